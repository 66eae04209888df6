package dto

import (
	"net/http"
	"time"

	"github.com/wb-go/wbf/ginext"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	TicketNotFound     = "TICKET_NOT_FOUND"
	MissingReference   = "MISSING_REFERENCE"
	MalformedWebhook   = "MALFORMED_WEBHOOK"
	InvalidSignature   = "INVALID_SIGNATURE"
	GatewayUnavailable = "GATEWAY_UNAVAILABLE"
	Unauthorized       = "UNAUTHORIZED"
	TooManyRequests    = "TOO_MANY_REQUESTS"
	NotFound           = "NOT_FOUND"
)

type RegistrationRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Email       string `json:"email" validate:"required,email,max=255"`
	Phone       string `json:"phone" validate:"phone"`
	AcceptTerms bool   `json:"acceptTerms" validate:"accepted"`
}

type RegistrationResponse struct {
	Success     bool                `json:"success"`
	CheckoutURL string              `json:"checkoutUrl,omitempty"`
	Error       map[string][]string `json:"error,omitempty"`
}

// ReminderMessage is published to the delayed exchange at registration.
type ReminderMessage struct {
	TicketID int64     `json:"ticket_id"`
	UserID   string    `json:"user_id"`
	SendAt   time.Time `json:"send_at"`
}

type WebhookAck struct {
	Received bool `json:"received"`
}

type ScanUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ScanTicket struct {
	ID          int64      `json:"id"`
	Code        string     `json:"code"`
	CheckedIn   bool       `json:"checkedIn"`
	CheckedInAt *time.Time `json:"checkedInAt,omitempty"`
	Paid        bool       `json:"paid"`
}

type ScanResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	User    *ScanUser   `json:"user,omitempty"`
	Ticket  *ScanTicket `json:"ticket,omitempty"`
}

type APIKeyResponse struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Key        string     `json:"key"`
	Type       string     `json:"type"`
	IsActive   bool       `json:"isActive"`
	PartialKey string     `json:"partialKey"`
	Status     string     `json:"status"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func ErrorResponse(c *ginext.Context, status int, code, desc string) {
	c.JSON(status, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func BadResponseError(c *ginext.Context, code, desc string) {
	ErrorResponse(c, http.StatusBadRequest, code, desc)
}

func InternalServerError(c *ginext.Context) {
	ErrorResponse(c, http.StatusInternalServerError, ServiceUnavailable, InternalError)
}

func FieldBadFormatError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldBadFormat, "Field '"+fieldName+"' has bad format")
}

func TicketNotFoundError(c *ginext.Context) {
	ErrorResponse(c, http.StatusNotFound, TicketNotFound, "Ticket not found")
}

func UnauthorizedError(c *ginext.Context) {
	ErrorResponse(c, http.StatusUnauthorized, Unauthorized, "Staff credentials required")
}

func TooManyRequestsError(c *ginext.Context) {
	ErrorResponse(c, http.StatusTooManyRequests, TooManyRequests, "Too many requests. Please try again later.")
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Status: "ok",
		Data:   data,
	})
}

func Acknowledge(c *ginext.Context) {
	c.JSON(http.StatusOK, WebhookAck{Received: true})
}
