package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusApproved = "approved"

	GatewayMercadoPago = "mercadopago"
)

type User struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Ticket struct {
	ID     int64  `db:"id" json:"id"`
	UserID string `db:"user_id" json:"user_id"`

	Paid                bool            `db:"paid" json:"paid"`
	PaymentStatus       string          `db:"payment_status" json:"payment_status"`
	PaymentMethod       string          `db:"payment_method" json:"payment_method,omitempty"`
	PaymentID           string          `db:"payment_id" json:"payment_id,omitempty"`
	PaymentGateway      string          `db:"payment_gateway" json:"payment_gateway,omitempty"`
	PaymentPreferenceID string          `db:"payment_preference_id" json:"payment_preference_id,omitempty"`
	InitPoint           string          `db:"init_point" json:"init_point,omitempty"`
	Amount              int64           `db:"amount" json:"amount"`
	Fees                decimal.Decimal `db:"fees" json:"fees"`
	NetAmount           decimal.Decimal `db:"net_amount" json:"net_amount"`
	Installments        *int            `db:"installments" json:"installments,omitempty"`
	PaidAt              *time.Time      `db:"paid_at" json:"paid_at,omitempty"`

	PaymentEmailSent  bool `db:"payment_email_sent" json:"payment_email_sent"`
	TicketEmailSent   bool `db:"ticket_email_sent" json:"ticket_email_sent"`
	ReminderEmailSent bool `db:"reminder_email_sent" json:"reminder_email_sent"`

	CheckedIn   bool       `db:"checked_in" json:"checked_in"`
	CheckedInAt *time.Time `db:"checked_in_at" json:"checked_in_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Code returns the human ticket code printed on emails and typed at the door.
func (t *Ticket) Code() string {
	return FormatTicketCode(t.ID)
}

// TicketWithUser is a ticket joined with its owner.
type TicketWithUser struct {
	Ticket
	User User
}

// PaymentUpdate carries the gateway-mirrored fields written by the payment webhook.
type PaymentUpdate struct {
	Paid          bool
	PaymentStatus string
	PaymentMethod string
	PaymentID     string
	PaidAt        *time.Time
	Amount        int64
	Fees          decimal.Decimal
	NetAmount     decimal.Decimal
	Installments  *int
}

// PaymentPreference is what registration stores after the gateway created a checkout.
type PaymentPreference struct {
	PreferenceID string
	InitPoint    string
	Gateway      string
}

type EmailEvent struct {
	ID            int64      `db:"id" json:"id"`
	EmailID       string     `db:"email_id" json:"email_id"`
	To            string     `db:"recipient" json:"to"`
	Subject       string     `db:"subject" json:"subject"`
	Status        string     `db:"status" json:"status"`
	Timestamp     time.Time  `db:"occurred_at" json:"timestamp"`
	SentDate      *time.Time `db:"sent_date" json:"sent_date,omitempty"`
	DeliveredDate *time.Time `db:"delivered_date" json:"delivered_date,omitempty"`
	Type          string     `db:"type" json:"type"`
	TicketID      *int64     `db:"ticket_id" json:"ticket_id,omitempty"`
}

// APIKey describes an external credential. Key is a reference resolved
// against process configuration; the secret itself is never stored.
type APIKey struct {
	ID         int64      `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	Key        string     `db:"key" json:"key"`
	Type       string     `db:"type" json:"type"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

type Admin struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
