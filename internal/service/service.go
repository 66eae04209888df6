package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"conftickets/internal/dto"
	"conftickets/internal/gateway"
	"conftickets/internal/mailer"
	"conftickets/internal/model"
	"conftickets/internal/repo"
	"conftickets/internal/signature"
	"conftickets/internal/token"
	"conftickets/pkg/validator"
)

var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrPaymentGateway     = errors.New("payment gateway error")
	ErrMalformedWebhook   = errors.New("malformed webhook")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrMissingReference   = errors.New("payment has no user reference")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrEmailDispatch      = errors.New("ticket email dispatch failed")
	ErrBadFormat          = errors.New("bad ticket code format")
	ErrMissingParameter   = errors.New("missing token or code")
	ErrStaffRequired      = errors.New("staff authentication required")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrUnauthorized       = errors.New("invalid staff credentials")
)

// ValidationError carries field-keyed messages for rejected registration input.
type ValidationError struct {
	Fields validator.FieldErrors
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	return "validation failed: " + strings.Join(keys, ", ")
}

type PaymentGateway interface {
	CreatePreference(ctx context.Context, req gateway.PreferenceRequest) (*gateway.Preference, error)
	GetPayment(ctx context.Context, paymentID string) (*gateway.Payment, error)
}

type TokenCodec interface {
	Issue(userID string, ticketID int64) (string, error)
	Verify(raw string) (token.Payload, error)
}

type SignatureVerifier interface {
	Verify(body []byte, h signature.Headers) error
}

// ReminderPublisher is satisfied by *rabbit.Client.
type ReminderPublisher interface {
	Publish(message []byte, delaySeconds int) error
}

type Config struct {
	EventName   string
	TicketPrice decimal.Decimal
	Currency    string

	WebsiteURL      string
	ConfirmationURL string
	PendingURL      string
	AlreadyPaidURL  string
	ErrorURL        string

	RemindersEnabled bool
	ReminderDelay    time.Duration
}

func (c Config) website() string {
	return strings.TrimRight(c.WebsiteURL, "/")
}

// PaymentLink is the durable link mailed to attendees; it resolves to the live checkout.
func (c Config) PaymentLink(userID string) string {
	return c.website() + "/payment/" + userID
}

func (c Config) ticketAmount() int64 {
	return c.TicketPrice.Round(0).IntPart()
}

type Service interface {
	Register(ctx context.Context, req dto.RegistrationRequest) (*RegisterResult, error)
	HandlePaymentNotification(ctx context.Context, n PaymentNotification) (*PaymentOutcome, error)
	VerifyScan(ctx context.Context, req ScanRequest) (*ScanResult, error)
	HandleEmailStatus(ctx context.Context, body []byte, h signature.Headers) (*model.EmailEvent, error)
	PaymentRedirect(ctx context.Context, userID string) string
	SendPaymentReminder(ctx context.Context, msg dto.ReminderMessage) (bool, error)
	AuthenticateStaff(ctx context.Context, email, password string) (*model.Admin, error)
	EnsureBootstrapAdmin(ctx context.Context, email, name, password string) error
}

type service struct {
	cfg      Config
	repo     repo.Repository
	gw       PaymentGateway
	mail     mailer.Sender
	tokens   TokenCodec
	verifier SignatureVerifier
	rbt      ReminderPublisher
	log      *zerolog.Logger
	now      func() time.Time
}

type Deps struct {
	Repo      repo.Repository
	Gateway   PaymentGateway
	Mailer    mailer.Sender
	Tokens    TokenCodec
	Verifier  SignatureVerifier
	Reminders ReminderPublisher
	Log       *zerolog.Logger
	Now       func() time.Time
}

func NewService(cfg Config, d Deps) (Service, error) {
	if d.Repo == nil || d.Gateway == nil || d.Mailer == nil || d.Tokens == nil || d.Verifier == nil {
		return nil, fmt.Errorf("service: missing dependency")
	}
	if d.Log == nil {
		nop := zerolog.Nop()
		d.Log = &nop
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &service{
		cfg:      cfg,
		repo:     d.Repo,
		gw:       d.Gateway,
		mail:     d.Mailer,
		tokens:   d.Tokens,
		verifier: d.Verifier,
		rbt:      d.Reminders,
		log:      d.Log,
		now:      d.Now,
	}, nil
}
