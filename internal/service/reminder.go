package service

import (
	"context"
	"errors"

	"conftickets/internal/dto"
	"conftickets/internal/mailer"
	"conftickets/internal/metrics"
	"conftickets/internal/repo"
)

// SendPaymentReminder mails the payment link once to an attendee who has not paid.
// The latch is claimed before sending, so a failed send is not retried.
func (s *service) SendPaymentReminder(ctx context.Context, msg dto.ReminderMessage) (bool, error) {
	tw, claimed, err := s.repo.ClaimReminderTx(ctx, msg.TicketID)
	if errors.Is(err, repo.ErrTicketNotFound) {
		s.log.Warn().Int64("ticket_id", msg.TicketID).Msg("reminder for unknown ticket dropped")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !claimed {
		s.log.Info().Int64("ticket_id", msg.TicketID).Bool("paid", tw.Paid).Msg("reminder not needed")
		return false, nil
	}
	if msg.UserID != "" && msg.UserID != tw.UserID {
		s.log.Warn().Int64("ticket_id", msg.TicketID).Str("user_id", msg.UserID).Msg("reminder user mismatch")
		return false, nil
	}

	r, err := mailer.RenderReminder(mailer.ReminderData{
		Name:       tw.User.Name,
		EventName:  s.cfg.EventName,
		PaymentURL: s.cfg.PaymentLink(tw.UserID),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to render reminder email")
		return false, nil
	}

	id, err := s.mail.Send(ctx, mailer.Message{
		To:      tw.User.Email,
		Subject: r.Subject,
		HTML:    r.HTML,
		Text:    r.Text,
		Tags:    ticketTags(tw.ID, tw.UserID),
	})
	if err != nil {
		s.log.Warn().Err(err).Int64("ticket_id", tw.ID).Msg("failed to send reminder email")
		metrics.TrackEmail("reminder", "failed")
		return false, nil
	}
	metrics.TrackEmail("reminder", "sent")
	s.log.Info().Str("email_id", id).Int64("ticket_id", tw.ID).Msg("reminder email sent")
	return true, nil
}
