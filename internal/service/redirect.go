package service

import (
	"context"
	"errors"
	"strings"

	"conftickets/internal/repo"
)

// PaymentRedirect resolves the durable payment link to where the attendee should go.
func (s *service) PaymentRedirect(ctx context.Context, userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return s.cfg.ErrorURL
	}

	tw, err := s.repo.GetTicketByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, repo.ErrTicketNotFound) {
			s.log.Error().Err(err).Str("user_id", userID).Msg("payment redirect lookup failed")
		}
		return s.cfg.ErrorURL
	}
	if tw.Paid {
		return s.cfg.AlreadyPaidURL
	}
	if tw.InitPoint == "" {
		return s.cfg.ErrorURL
	}
	return tw.InitPoint
}
