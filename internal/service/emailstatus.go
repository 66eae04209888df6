package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"conftickets/internal/metrics"
	"conftickets/internal/model"
	"conftickets/internal/signature"
)

const (
	EmailTypeTicketResend       = "ticket_resend"
	EmailTypeReminder           = "reminder"
	EmailTypeWelcome            = "welcome"
	EmailTypeTicketConfirmation = "ticket_confirmation"
	EmailTypePayment            = "payment"
	EmailTypeOther              = "other"

	emailEventPrefix = "email."
)

var emailClassifiers = []struct {
	kind     string
	keywords []string
}{
	{EmailTypeTicketResend, []string{"reenvío", "reenvio", "reenviar", "resend", "resent"}},
	{EmailTypeReminder, []string{"recordatorio", "recuerda", "reminder"}},
	{EmailTypeWelcome, []string{"bienvenida", "welcome"}},
	{EmailTypeTicketConfirmation, []string{"ticket", "entrada", "qr"}},
	{EmailTypePayment, []string{"pago", "payment"}},
}

// ClassifyEmailSubject maps a subject to a coarse email type; the first matching rule wins.
func ClassifyEmailSubject(subject string) string {
	s := strings.ToLower(subject)
	for _, c := range emailClassifiers {
		for _, kw := range c.keywords {
			if strings.Contains(s, kw) {
				return c.kind
			}
		}
	}
	return EmailTypeOther
}

type emailWebhook struct {
	Type string `json:"type"`
	Data struct {
		EmailID string          `json:"email_id"`
		To      json.RawMessage `json:"to"`
		Subject string          `json:"subject"`
		Tags    json.RawMessage `json:"tags"`
	} `json:"data"`
}

// HandleEmailStatus verifies and records a delivery webhook. It returns a nil
// event for verified payloads that are not email lifecycle events.
func (s *service) HandleEmailStatus(ctx context.Context, body []byte, h signature.Headers) (*model.EmailEvent, error) {
	if err := s.verifier.Verify(body, h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var wh emailWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	if !strings.HasPrefix(wh.Type, emailEventPrefix) {
		s.log.Debug().Str("type", wh.Type).Msg("ignoring non-email webhook")
		return nil, nil
	}
	if wh.Data.EmailID == "" {
		return nil, fmt.Errorf("%w: missing email_id", ErrMalformedWebhook)
	}

	now := s.now().UTC()
	ev := &model.EmailEvent{
		EmailID:   wh.Data.EmailID,
		To:        firstRecipient(wh.Data.To),
		Subject:   wh.Data.Subject,
		Status:    strings.TrimPrefix(wh.Type, emailEventPrefix),
		Timestamp: now,
		Type:      ClassifyEmailSubject(wh.Data.Subject),
	}
	switch ev.Status {
	case "sent":
		ev.SentDate = &now
	case "delivered":
		ev.DeliveredDate = &now
	}
	if raw, ok := parseTags(wh.Data.Tags)["ticketId"]; ok {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			ev.TicketID = &id
		}
	}

	if err := s.repo.UpsertEmailEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("record email event: %w", err)
	}
	metrics.TrackEmailEvent(ev.Status)
	s.log.Info().Str("email_id", ev.EmailID).Str("status", ev.Status).Str("type", ev.Type).Msg("email event recorded")
	return ev, nil
}

func firstRecipient(raw json.RawMessage) string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil && one != "" {
		return one
	}
	return "unknown"
}

// parseTags accepts {"name":"value"} objects and [{"name":..,"value":..}] arrays.
func parseTags(raw json.RawMessage) map[string]string {
	out := map[string]string{}
	if len(raw) == 0 {
		return out
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for k, v := range obj {
			switch x := v.(type) {
			case string:
				out[k] = x
			case float64:
				out[k] = strconv.FormatFloat(x, 'f', -1, 64)
			}
		}
		return out
	}
	var list []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, t := range list {
			out[t.Name] = t.Value
		}
	}
	return out
}
