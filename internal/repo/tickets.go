package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"conftickets/internal/model"
)

const ticketWithUserColumns = `
	t.id, t.user_id, t.paid, t.payment_status, t.payment_method, t.payment_id,
	t.payment_gateway, t.payment_preference_id, t.init_point, t.amount, t.fees,
	t.net_amount, t.installments, t.paid_at, t.payment_email_sent, t.ticket_email_sent,
	t.reminder_email_sent, t.checked_in, t.checked_in_at, t.created_at,
	u.id, u.name, u.email, u.phone, u.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicketWithUser(row rowScanner) (*model.TicketWithUser, error) {
	var tw model.TicketWithUser
	err := row.Scan(
		&tw.ID, &tw.UserID, &tw.Paid, &tw.PaymentStatus, &tw.PaymentMethod, &tw.PaymentID,
		&tw.PaymentGateway, &tw.PaymentPreferenceID, &tw.InitPoint, &tw.Amount, &tw.Fees,
		&tw.NetAmount, &tw.Installments, &tw.PaidAt, &tw.PaymentEmailSent, &tw.TicketEmailSent,
		&tw.ReminderEmailSent, &tw.CheckedIn, &tw.CheckedInAt, &tw.CreatedAt,
		&tw.User.ID, &tw.User.Name, &tw.User.Email, &tw.User.Phone, &tw.User.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tw, nil
}

func (r *repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

func (r *repository) CreateUserWithTicketTx(ctx context.Context, u *model.User, amount int64) (*model.Ticket, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (id, name, email, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, u.ID, u.Name, u.Email, u.Phone).Scan(&u.CreatedAt)
	if err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	t := model.Ticket{
		UserID:        u.ID,
		PaymentStatus: model.PaymentStatusPending,
		Amount:        amount,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO tickets (user_id, paid, payment_status, amount, checked_in)
		VALUES ($1, FALSE, $2, $3, FALSE)
		RETURNING id, created_at
	`, t.UserID, t.PaymentStatus, t.Amount).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &t, nil
}

func (r *repository) SetPaymentPreference(ctx context.Context, ticketID int64, p model.PaymentPreference) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tickets
		SET payment_preference_id = $1, init_point = $2, payment_gateway = $3
		WHERE id = $4
	`, p.PreferenceID, p.InitPoint, p.Gateway, ticketID)
	if err != nil {
		return fmt.Errorf("failed to store payment preference: %w", err)
	}
	return expectOneRow(res)
}

func (r *repository) MarkPaymentEmailSent(ctx context.Context, ticketID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tickets SET payment_email_sent = TRUE WHERE id = $1`, ticketID)
	if err != nil {
		return fmt.Errorf("failed to mark payment email: %w", err)
	}
	return expectOneRow(res)
}

func (r *repository) GetTicketByUserID(ctx context.Context, userID string) (*model.TicketWithUser, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+ticketWithUserColumns+`
		FROM tickets t JOIN users u ON u.id = t.user_id
		WHERE t.user_id = $1
	`, userID)
	tw, err := scanTicketWithUser(row)
	if err != nil && !errors.Is(err, ErrTicketNotFound) {
		return nil, fmt.Errorf("failed to get ticket by user: %w", err)
	}
	return tw, err
}

func (r *repository) GetTicketByID(ctx context.Context, ticketID int64) (*model.TicketWithUser, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+ticketWithUserColumns+`
		FROM tickets t JOIN users u ON u.id = t.user_id
		WHERE t.id = $1
	`, ticketID)
	tw, err := scanTicketWithUser(row)
	if err != nil && !errors.Is(err, ErrTicketNotFound) {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return tw, err
}

func (r *repository) UpdatePaymentTx(ctx context.Context, userID string, decide func(model.Ticket) (*model.PaymentUpdate, bool)) (*model.TicketWithUser, bool, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	tw, err := scanTicketWithUser(tx.QueryRowContext(ctx, `
		SELECT `+ticketWithUserColumns+`
		FROM tickets t JOIN users u ON u.id = t.user_id
		WHERE t.user_id = $1
		FOR UPDATE OF t
	`, userID))
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, ErrTicketNotFound) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("failed to select ticket for payment update: %w", err)
	}

	upd, apply := decide(tw.Ticket)
	if !apply || upd == nil {
		_ = tx.Rollback()
		return tw, false, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tickets
		SET paid = $1, payment_status = $2, payment_method = $3, payment_id = $4,
		    paid_at = $5, amount = $6, fees = $7, net_amount = $8, installments = $9
		WHERE id = $10
	`, upd.Paid, upd.PaymentStatus, upd.PaymentMethod, upd.PaymentID,
		upd.PaidAt, upd.Amount, upd.Fees, upd.NetAmount, upd.Installments, tw.ID)
	if err != nil {
		_ = tx.Rollback()
		return nil, false, fmt.Errorf("failed to update ticket payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit payment update: %w", err)
	}

	tw.Paid = upd.Paid
	tw.PaymentStatus = upd.PaymentStatus
	tw.PaymentMethod = upd.PaymentMethod
	tw.PaymentID = upd.PaymentID
	tw.PaidAt = upd.PaidAt
	tw.Amount = upd.Amount
	tw.Fees = upd.Fees
	tw.NetAmount = upd.NetAmount
	tw.Installments = upd.Installments
	return tw, true, nil
}

func (r *repository) SendTicketEmailOnceTx(ctx context.Context, userID string, send func(context.Context, *model.TicketWithUser) error) (bool, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	tw, err := scanTicketWithUser(tx.QueryRowContext(ctx, `
		SELECT `+ticketWithUserColumns+`
		FROM tickets t JOIN users u ON u.id = t.user_id
		WHERE t.user_id = $1
		FOR UPDATE OF t
	`, userID))
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, ErrTicketNotFound) {
			return false, err
		}
		return false, fmt.Errorf("failed to select ticket for email latch: %w", err)
	}

	if tw.TicketEmailSent {
		_ = tx.Rollback()
		return true, nil
	}

	if err := send(ctx, tw); err != nil {
		_ = tx.Rollback()
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE tickets SET ticket_email_sent = TRUE WHERE id = $1`, tw.ID); err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("failed to set ticket email latch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit ticket email latch: %w", err)
	}
	return false, nil
}

func (r *repository) CheckInTx(ctx context.Context, ticketID int64, at time.Time) (*model.TicketWithUser, bool, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	tw, err := scanTicketWithUser(tx.QueryRowContext(ctx, `
		SELECT `+ticketWithUserColumns+`
		FROM tickets t JOIN users u ON u.id = t.user_id
		WHERE t.id = $1
		FOR UPDATE OF t
	`, ticketID))
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, ErrTicketNotFound) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("failed to select ticket for check-in: %w", err)
	}

	if tw.CheckedIn {
		_ = tx.Rollback()
		return tw, false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tickets SET checked_in = TRUE, checked_in_at = $1 WHERE id = $2
	`, at, ticketID); err != nil {
		_ = tx.Rollback()
		return nil, false, fmt.Errorf("failed to check in ticket: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit check-in: %w", err)
	}

	tw.CheckedIn = true
	tw.CheckedInAt = &at
	return tw, true, nil
}

func (r *repository) ClaimReminderTx(ctx context.Context, ticketID int64) (*model.TicketWithUser, bool, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	tw, err := scanTicketWithUser(tx.QueryRowContext(ctx, `
		SELECT `+ticketWithUserColumns+`
		FROM tickets t JOIN users u ON u.id = t.user_id
		WHERE t.id = $1
		FOR UPDATE OF t
	`, ticketID))
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, ErrTicketNotFound) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("failed to select ticket for reminder: %w", err)
	}

	if tw.Paid || tw.ReminderEmailSent {
		_ = tx.Rollback()
		return tw, false, nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE tickets SET reminder_email_sent = TRUE WHERE id = $1`, ticketID); err != nil {
		_ = tx.Rollback()
		return nil, false, fmt.Errorf("failed to claim reminder: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit reminder claim: %w", err)
	}

	tw.ReminderEmailSent = true
	return tw, true, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrTicketNotFound
	}
	return nil
}
