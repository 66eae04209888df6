package mailer

import (
	"context"
	"errors"
	"fmt"
)

const (
	DriverResend = "resend"
	DriverSMTP   = "smtp"
)

var (
	ErrNoRecipient   = errors.New("email has no recipient")
	ErrSendFailed    = errors.New("email send failed")
	ErrUnknownDriver = errors.New("unknown email driver")
)

// Tag is a provider-side label echoed back by delivery webhooks.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
	Tags    []Tag
}

// Sender delivers one message and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type Config struct {
	Driver        string `mapstructure:"driver"`
	SenderName    string `mapstructure:"sender_name"`
	SenderEmail   string `mapstructure:"sender_email"`
	ReplyTo       string `mapstructure:"reply_to"`
	ResendBaseURL string `mapstructure:"resend_base_url"`
	ResendAPIKey  string `mapstructure:"-"`
	SMTPHost      string `mapstructure:"smtp_host"`
	SMTPPort      int    `mapstructure:"smtp_port"`
	SMTPUsername  string `mapstructure:"smtp_username"`
	SMTPPassword  string `mapstructure:"-"`
}

func (c Config) from() string {
	if c.SenderName == "" {
		return c.SenderEmail
	}
	return fmt.Sprintf("%s <%s>", c.SenderName, c.SenderEmail)
}
