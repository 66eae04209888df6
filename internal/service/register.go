package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"conftickets/internal/dto"
	"conftickets/internal/gateway"
	"conftickets/internal/mailer"
	"conftickets/internal/metrics"
	"conftickets/internal/model"
	"conftickets/internal/repo"
	"conftickets/pkg/validator"
)

type RegisterResult struct {
	UserID      string
	TicketID    int64
	TicketCode  string
	CheckoutURL string
	EmailSent   bool
}

func (s *service) Register(ctx context.Context, req dto.RegistrationRequest) (*RegisterResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)

	if verr := validator.Validate(ctx, req); verr != nil {
		metrics.TrackRegistration("invalid")
		return nil, &ValidationError{Fields: verr}
	}

	exists, err := s.repo.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		metrics.TrackRegistration("duplicate")
		return nil, ErrDuplicateEmail
	}

	user := &model.User{Name: req.Name, Email: req.Email, Phone: req.Phone}
	ticket, err := s.repo.CreateUserWithTicketTx(ctx, user, s.cfg.ticketAmount())
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			metrics.TrackRegistration("duplicate")
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	s.log.Info().Str("user_id", user.ID).Int64("ticket_id", ticket.ID).Msg("ticket created")

	pref, err := s.gw.CreatePreference(ctx, gateway.PreferenceRequest{
		Title:             s.cfg.EventName,
		Quantity:          1,
		UnitPrice:         s.cfg.TicketPrice,
		Currency:          s.cfg.Currency,
		ExternalReference: user.ID,
		UserID:            user.ID,
		NotificationURL:   s.cfg.website() + "/v1/webhooks/payment",
		SuccessURL:        s.cfg.ConfirmationURL,
		FailureURL:        s.cfg.ErrorURL,
		PendingURL:        s.cfg.PendingURL,
		PayerEmail:        user.Email,
		PayerName:         user.Name,
	})
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Int64("ticket_id", ticket.ID).Msg("failed to create payment preference, ticket left pending")
		metrics.TrackRegistration("gateway_error")
		return nil, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}

	if err := s.repo.SetPaymentPreference(ctx, ticket.ID, model.PaymentPreference{
		PreferenceID: pref.ID,
		InitPoint:    pref.InitPoint,
		Gateway:      model.GatewayMercadoPago,
	}); err != nil {
		return nil, fmt.Errorf("store payment preference: %w", err)
	}

	res := &RegisterResult{
		UserID:      user.ID,
		TicketID:    ticket.ID,
		TicketCode:  ticket.Code(),
		CheckoutURL: s.cfg.PaymentLink(user.ID),
	}
	metrics.TrackRegistration("created")
	res.EmailSent = s.sendPaymentLink(ctx, user, ticket, res.CheckoutURL)
	s.scheduleReminder(user.ID, ticket.ID)

	return res, nil
}

func (s *service) sendPaymentLink(ctx context.Context, user *model.User, ticket *model.Ticket, link string) bool {
	r, err := mailer.RenderPaymentLink(mailer.PaymentLinkData{
		Name:       user.Name,
		EventName:  s.cfg.EventName,
		PaymentURL: link,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to render payment email")
		return false
	}

	id, err := s.mail.Send(ctx, mailer.Message{
		To:      user.Email,
		Subject: r.Subject,
		HTML:    r.HTML,
		Text:    r.Text,
		Tags:    ticketTags(ticket.ID, user.ID),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to send payment email")
		metrics.TrackEmail("payment_link", "failed")
		return false
	}

	if err := s.repo.MarkPaymentEmailSent(ctx, ticket.ID); err != nil {
		s.log.Error().Err(err).Int64("ticket_id", ticket.ID).Msg("payment email sent but latch not stored")
	}
	metrics.TrackEmail("payment_link", "sent")
	s.log.Info().Str("email_id", id).Int64("ticket_id", ticket.ID).Msg("payment email sent")
	return true
}

func (s *service) scheduleReminder(userID string, ticketID int64) {
	if !s.cfg.RemindersEnabled || s.rbt == nil || s.cfg.ReminderDelay <= 0 {
		return
	}
	payload, err := json.Marshal(dto.ReminderMessage{
		TicketID: ticketID,
		UserID:   userID,
		SendAt:   s.now().Add(s.cfg.ReminderDelay),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal reminder message")
		return
	}
	if err := s.rbt.Publish(payload, int(s.cfg.ReminderDelay.Seconds())); err != nil {
		s.log.Error().Err(err).Int64("ticket_id", ticketID).Msg("failed to publish reminder message")
	}
}

func ticketTags(ticketID int64, userID string) []mailer.Tag {
	return []mailer.Tag{
		{Name: "ticketId", Value: strconv.FormatInt(ticketID, 10)},
		{Name: "userId", Value: userID},
	}
}
