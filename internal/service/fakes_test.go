package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"conftickets/internal/gateway"
	"conftickets/internal/mailer"
	"conftickets/internal/model"
	"conftickets/internal/repo"
)

// memRepo is an in-memory repo.Repository; one mutex stands in for row locks.
type memRepo struct {
	mu      sync.Mutex
	users   map[string]model.User
	tickets map[int64]*model.Ticket
	events  map[string]model.EmailEvent
	keys    []model.APIKey
	admins  map[string]model.Admin
	nextID  int64

	failCreate error
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:   map[string]model.User{},
		tickets: map[int64]*model.Ticket{},
		events:  map[string]model.EmailEvent{},
		admins:  map[string]model.Admin{},
	}
}

var _ repo.Repository = (*memRepo)(nil)

func (m *memRepo) withUser(t *model.Ticket) *model.TicketWithUser {
	return &model.TicketWithUser{Ticket: *t, User: m.users[t.UserID]}
}

func (m *memRepo) byUser(userID string) *model.Ticket {
	for _, t := range m.tickets {
		if t.UserID == userID {
			return t
		}
	}
	return nil
}

func (m *memRepo) EmailExists(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) CreateUserWithTicketTx(_ context.Context, u *model.User, amount int64) (*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return nil, m.failCreate
	}
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return nil, repo.ErrDuplicateEmail
		}
	}
	m.nextID++
	if u.ID == "" {
		u.ID = fmt.Sprintf("user-%d", m.nextID)
	}
	u.CreatedAt = time.Now()
	m.users[u.ID] = *u
	t := &model.Ticket{ID: m.nextID, UserID: u.ID, PaymentStatus: model.PaymentStatusPending, Amount: amount, CreatedAt: time.Now()}
	m.tickets[t.ID] = t
	cp := *t
	return &cp, nil
}

// addTicket seeds a user and ticket with a fixed id.
func (m *memRepo) addTicket(id int64, u model.User) *model.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	t := &model.Ticket{ID: id, UserID: u.ID, PaymentStatus: model.PaymentStatusPending, Amount: 20}
	m.tickets[id] = t
	if id > m.nextID {
		m.nextID = id
	}
	return t
}

func (m *memRepo) ticket(id int64) model.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.tickets[id]
}

func (m *memRepo) SetPaymentPreference(_ context.Context, ticketID int64, p model.PaymentPreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[ticketID]
	if !ok {
		return repo.ErrTicketNotFound
	}
	t.PaymentPreferenceID, t.InitPoint, t.PaymentGateway = p.PreferenceID, p.InitPoint, p.Gateway
	return nil
}

func (m *memRepo) MarkPaymentEmailSent(_ context.Context, ticketID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[ticketID]
	if !ok {
		return repo.ErrTicketNotFound
	}
	t.PaymentEmailSent = true
	return nil
}

func (m *memRepo) GetTicketByUserID(_ context.Context, userID string) (*model.TicketWithUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.byUser(userID)
	if t == nil {
		return nil, repo.ErrTicketNotFound
	}
	return m.withUser(t), nil
}

func (m *memRepo) GetTicketByID(_ context.Context, id int64) (*model.TicketWithUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, repo.ErrTicketNotFound
	}
	return m.withUser(t), nil
}

func (m *memRepo) UpdatePaymentTx(_ context.Context, userID string, decide func(model.Ticket) (*model.PaymentUpdate, bool)) (*model.TicketWithUser, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.byUser(userID)
	if t == nil {
		return nil, false, repo.ErrTicketNotFound
	}
	upd, ok := decide(*t)
	if !ok || upd == nil {
		return m.withUser(t), false, nil
	}
	t.Paid, t.PaymentStatus, t.PaymentMethod, t.PaymentID = upd.Paid, upd.PaymentStatus, upd.PaymentMethod, upd.PaymentID
	t.PaidAt, t.Amount, t.Fees, t.NetAmount, t.Installments = upd.PaidAt, upd.Amount, upd.Fees, upd.NetAmount, upd.Installments
	return m.withUser(t), true, nil
}

func (m *memRepo) SendTicketEmailOnceTx(ctx context.Context, userID string, send func(context.Context, *model.TicketWithUser) error) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.byUser(userID)
	if t == nil {
		return false, repo.ErrTicketNotFound
	}
	if t.TicketEmailSent {
		return true, nil
	}
	if err := send(ctx, m.withUser(t)); err != nil {
		return false, err
	}
	t.TicketEmailSent = true
	return false, nil
}

func (m *memRepo) CheckInTx(_ context.Context, id int64, at time.Time) (*model.TicketWithUser, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, false, repo.ErrTicketNotFound
	}
	if t.CheckedIn {
		return m.withUser(t), false, nil
	}
	t.CheckedIn = true
	t.CheckedInAt = &at
	return m.withUser(t), true, nil
}

func (m *memRepo) ClaimReminderTx(_ context.Context, id int64) (*model.TicketWithUser, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, false, repo.ErrTicketNotFound
	}
	if t.Paid || t.ReminderEmailSent {
		return m.withUser(t), false, nil
	}
	t.ReminderEmailSent = true
	return m.withUser(t), true, nil
}

func (m *memRepo) UpsertEmailEvent(_ context.Context, ev *model.EmailEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.events[ev.EmailID]
	if !ok {
		m.events[ev.EmailID] = *ev
		return nil
	}
	cur.Status, cur.Timestamp = ev.Status, ev.Timestamp
	if cur.SentDate == nil {
		cur.SentDate = ev.SentDate
	}
	if cur.DeliveredDate == nil {
		cur.DeliveredDate = ev.DeliveredDate
	}
	if cur.TicketID == nil {
		cur.TicketID = ev.TicketID
	}
	m.events[ev.EmailID] = cur
	return nil
}

func (m *memRepo) GetEmailEvent(_ context.Context, emailID string) (*model.EmailEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[emailID]
	if !ok {
		return nil, repo.ErrEmailEventNotFound
	}
	return &ev, nil
}

func (m *memRepo) InsertAPIKeyIfMissing(_ context.Context, k *model.APIKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.keys {
		if existing.Key == k.Key {
			return false, nil
		}
	}
	k.ID = int64(len(m.keys) + 1)
	m.keys = append(m.keys, *k)
	return true, nil
}

func (m *memRepo) FindAPIKeyByType(_ context.Context, keyType string) (*model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.Type == keyType {
			cp := k
			return &cp, nil
		}
	}
	return nil, repo.ErrAPIKeyNotFound
}

func (m *memRepo) ListAPIKeys(context.Context) ([]model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.APIKey(nil), m.keys...), nil
}

func (m *memRepo) TouchAPIKey(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.keys {
		if m.keys[i].ID == id {
			m.keys[i].LastUsedAt = &at
		}
	}
	return nil
}

func (m *memRepo) EnsureAdmin(_ context.Context, a *model.Admin) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.admins[a.Email]; ok {
		return false, nil
	}
	a.ID = int64(len(m.admins) + 1)
	a.IsActive = true
	m.admins[a.Email] = *a
	return true, nil
}

func (m *memRepo) GetAdminByEmail(_ context.Context, email string) (*model.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admins[email]
	if !ok {
		return nil, repo.ErrAdminNotFound
	}
	return &a, nil
}

func (m *memRepo) MigrateUp(string) error   { return nil }
func (m *memRepo) MigrateDown(string) error { return nil }

type mockGateway struct {
	mock.Mock
}

func (g *mockGateway) CreatePreference(ctx context.Context, req gateway.PreferenceRequest) (*gateway.Preference, error) {
	args := g.Called(ctx, req)
	p, _ := args.Get(0).(*gateway.Preference)
	return p, args.Error(1)
}

func (g *mockGateway) GetPayment(ctx context.Context, id string) (*gateway.Payment, error) {
	args := g.Called(ctx, id)
	p, _ := args.Get(0).(*gateway.Payment)
	return p, args.Error(1)
}

// recordingMailer keeps every message it was asked to send.
type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (r *recordingMailer) Send(_ context.Context, msg mailer.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.sent = append(r.sent, msg)
	return fmt.Sprintf("em-%d", len(r.sent)), nil
}

func (r *recordingMailer) messages() []mailer.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mailer.Message(nil), r.sent...)
}

type recordingPublisher struct {
	mu       sync.Mutex
	payloads [][]byte
	delays   []int
}

func (p *recordingPublisher) Publish(message []byte, delaySeconds int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, message)
	p.delays = append(p.delays, delaySeconds)
	return nil
}
