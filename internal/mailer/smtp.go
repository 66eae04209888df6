package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"

	"github.com/domodwyer/mailyak/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SMTPSender sends through a plain SMTP relay. Tags travel as X-Tag-* headers.
type SMTPSender struct {
	cfg  Config
	addr string
	auth smtp.Auth
	log  *zerolog.Logger
}

func NewSMTPSender(cfg Config, log *zerolog.Logger) *SMTPSender {
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	var auth smtp.Auth
	if cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &SMTPSender{
		cfg:  cfg,
		addr: cfg.SMTPHost + ":" + strconv.Itoa(port),
		auth: auth,
		log:  log,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	mail := mailyak.New(s.addr, s.auth)
	mail.To(msg.To)
	mail.From(s.cfg.SenderEmail)
	mail.FromName(s.cfg.SenderName)
	if s.cfg.ReplyTo != "" {
		mail.ReplyTo(s.cfg.ReplyTo)
	}
	mail.Subject(msg.Subject)
	mail.AddHeader("Message-ID", fmt.Sprintf("<%s@%s>", id, s.cfg.SMTPHost))
	for _, t := range msg.Tags {
		mail.AddHeader("X-Tag-"+t.Name, t.Value)
	}
	mail.HTML().Set(msg.HTML)
	if msg.Text != "" {
		mail.Plain().Set(msg.Text)
	}

	if err := mail.Send(); err != nil {
		s.log.Warn().Err(err).Str("to", msg.To).Msg("smtp send failed")
		return "", fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	s.log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("email sent over smtp")
	return id, nil
}

// New picks the driver named in cfg.
func New(cfg Config, log *zerolog.Logger) (Sender, error) {
	switch cfg.Driver {
	case DriverResend, "":
		return NewResendSender(cfg), nil
	case DriverSMTP:
		return NewSMTPSender(cfg, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
