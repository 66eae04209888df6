package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"conftickets/internal/gateway"
	"conftickets/internal/mailer"
	"conftickets/internal/metrics"
	"conftickets/internal/model"
	"conftickets/internal/repo"
)

const notificationTypePayment = "payment"

// PaymentNotification is a gateway webhook reduced to what the handler needs.
type PaymentNotification struct {
	Type      string
	PaymentID string
}

// ParsePaymentNotification accepts type|topic and data.id|id from a JSON
// body or the query string, body first. Ids may be JSON numbers or strings.
func ParsePaymentNotification(body []byte, query url.Values) (PaymentNotification, error) {
	var n PaymentNotification

	if len(bytes.TrimSpace(body)) > 0 {
		var raw map[string]any
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			if query.Get("type") == "" && query.Get("topic") == "" {
				return n, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
			}
		} else {
			n.Type = firstNonEmpty(stringField(raw["type"]), stringField(raw["topic"]))
			if data, ok := raw["data"].(map[string]any); ok {
				n.PaymentID = stringField(data["id"])
			}
			if n.PaymentID == "" {
				n.PaymentID = stringField(raw["id"])
			}
		}
	}

	n.Type = firstNonEmpty(n.Type, query.Get("type"), query.Get("topic"))
	n.PaymentID = firstNonEmpty(n.PaymentID, query.Get("data.id"), query.Get("id"))
	n.Type = strings.ToLower(strings.TrimSpace(n.Type))
	n.PaymentID = strings.TrimSpace(n.PaymentID)
	return n, nil
}

func stringField(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		return ""
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

type PaymentOutcome struct {
	Ignored     bool
	UserID      string
	TicketID    int64
	Status      string
	Applied     bool
	Paid        bool
	EmailSent   bool
	AlreadySent bool
}

func (s *service) HandlePaymentNotification(ctx context.Context, n PaymentNotification) (*PaymentOutcome, error) {
	if n.Type != notificationTypePayment {
		s.log.Debug().Str("type", n.Type).Msg("ignoring non-payment notification")
		return &PaymentOutcome{Ignored: true}, nil
	}
	if n.PaymentID == "" {
		return nil, fmt.Errorf("%w: missing payment id", ErrMalformedWebhook)
	}

	payment, err := s.gw.GetPayment(ctx, n.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	userID := payment.UserID()
	if userID == "" {
		return nil, fmt.Errorf("%w: payment %s", ErrMissingReference, n.PaymentID)
	}

	tw, applied, err := s.repo.UpdatePaymentTx(ctx, userID, func(cur model.Ticket) (*model.PaymentUpdate, bool) {
		return decidePayment(cur, payment)
	})
	if errors.Is(err, repo.ErrTicketNotFound) {
		return nil, fmt.Errorf("%w: user %s", ErrTicketNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}

	out := &PaymentOutcome{
		UserID:   userID,
		TicketID: tw.ID,
		Status:   payment.Status,
		Applied:  applied,
		Paid:     tw.Paid,
	}
	s.log.Info().
		Str("user_id", userID).
		Int64("ticket_id", tw.ID).
		Str("payment_id", n.PaymentID).
		Str("status", payment.Status).
		Bool("applied", applied).
		Msg("payment notification processed")
	metrics.TrackPaymentWebhook(payment.Status, outcomeLabel(applied))

	if payment.Status != gateway.StatusApproved || !tw.Paid {
		return out, nil
	}

	already, err := s.repo.SendTicketEmailOnceTx(ctx, userID, s.sendTicketEmail)
	if errors.Is(err, repo.ErrTicketNotFound) {
		return nil, fmt.Errorf("%w: user %s", ErrTicketNotFound, userID)
	}
	if err != nil {
		metrics.TrackEmail("ticket", "failed")
		return nil, fmt.Errorf("%w: %v", ErrEmailDispatch, err)
	}
	out.AlreadySent = already
	out.EmailSent = !already
	if already {
		s.log.Info().Int64("ticket_id", tw.ID).Msg("ticket email already sent")
	}
	return out, nil
}

// decidePayment mirrors the gateway payment onto the ticket. A paid ticket
// ignores non-terminal statuses and any non-approved status from a different
// payment attempt; a terminal status of the paying payment always applies.
func decidePayment(cur model.Ticket, p *gateway.Payment) (*model.PaymentUpdate, bool) {
	paymentID := p.ID.String()
	if cur.Paid && p.Status != gateway.StatusApproved {
		if !gateway.IsTerminal(p.Status) {
			return nil, false
		}
		if cur.PaymentID != "" && cur.PaymentID != paymentID {
			return nil, false
		}
	}

	upd := &model.PaymentUpdate{
		Paid:          p.Status == gateway.StatusApproved,
		PaymentStatus: p.Status,
		PaymentMethod: p.PaymentMethodID,
		PaymentID:     paymentID,
		Amount:        p.TransactionAmount.Round(0).IntPart(),
		Fees:          p.Fee(),
		NetAmount:     p.TransactionDetails.NetReceivedAmount,
		Installments:  p.Installments,
	}
	if upd.Paid && p.DateApproved != nil {
		at := p.DateApproved.UTC()
		upd.PaidAt = &at
	}
	return upd, true
}

func (s *service) sendTicketEmail(ctx context.Context, tw *model.TicketWithUser) error {
	tok, err := s.tokens.Issue(tw.User.ID, tw.ID)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	r, err := mailer.RenderTicket(mailer.TicketData{
		Name:       tw.User.Name,
		EventName:  s.cfg.EventName,
		TicketCode: tw.Code(),
		ScanURL:    mailer.ScanURL(s.cfg.WebsiteURL, tok),
		QRImageURL: mailer.QRImageURL(s.cfg.WebsiteURL, tok),
	})
	if err != nil {
		return err
	}

	id, err := s.mail.Send(ctx, mailer.Message{
		To:      tw.User.Email,
		Subject: r.Subject,
		HTML:    r.HTML,
		Text:    r.Text,
		Tags:    ticketTags(tw.ID, tw.User.ID),
	})
	if err != nil {
		return err
	}
	metrics.TrackEmail("ticket", "sent")
	s.log.Info().Str("email_id", id).Int64("ticket_id", tw.ID).Str("to", tw.User.Email).Msg("ticket email sent")
	return nil
}

func outcomeLabel(applied bool) string {
	if applied {
		return "applied"
	}
	return "skipped"
}
