package service

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"conftickets/internal/metrics"
	"conftickets/internal/model"
	"conftickets/internal/repo"
)

type ScanStatus string

const (
	ScanSuccess          ScanStatus = "success"
	ScanAlreadyCheckedIn ScanStatus = "already_checked_in"
	ScanInvalid          ScanStatus = "invalid"
	ScanError            ScanStatus = "error"
)

// InvalidReason separates an unknown ticket from a failed credential.
type InvalidReason int

const (
	ReasonNone InvalidReason = iota
	ReasonNotFound
	ReasonUnauthenticated
)

const (
	msgCheckedIn      = "Asistencia registrada"
	msgAlreadyUsed    = "Este ticket ya fue usado"
	msgInvalidTicket  = "Ticket inválido"
	msgTicketNotFound = "Ticket no encontrado"
	msgInvalidToken   = "Token o código inválido"
)

type ScanRequest struct {
	Token string
	Code  string
	// Staff is true when the caller presented valid staff credentials.
	Staff bool
}

type ScanMode string

const (
	ModeToken ScanMode = "token"
	ModeCode  ScanMode = "code"
)

type ScanResult struct {
	Status  ScanStatus
	Message string
	Mode    ScanMode
	Reason  InvalidReason
	Ticket  *model.TicketWithUser
}

func invalid(mode ScanMode, reason InvalidReason, msg string) *ScanResult {
	return &ScanResult{Status: ScanInvalid, Message: msg, Mode: mode, Reason: reason}
}

// VerifyScan resolves a token or a manual code and checks the ticket in at
// most once. Token wins when both are present. Errors are reserved for
// malformed requests; every other outcome is a ScanResult.
func (s *service) VerifyScan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	raw := strings.TrimSpace(req.Token)
	code := strings.TrimSpace(req.Code)

	var res *ScanResult
	switch {
	case raw != "":
		res = s.scanToken(ctx, raw)
	case code != "":
		if !req.Staff {
			return nil, ErrStaffRequired
		}
		id, err := model.ParseTicketCode(code)
		if err != nil {
			metrics.TrackScan(string(ModeCode), "bad_format")
			return nil, ErrBadFormat
		}
		res = s.checkIn(ctx, ModeCode, id, "")
	default:
		return nil, ErrMissingParameter
	}
	metrics.TrackScan(string(res.Mode), string(res.Status))
	return res, nil
}

func (s *service) scanToken(ctx context.Context, raw string) *ScanResult {
	payload, err := s.tokens.Verify(extractToken(raw))
	if err != nil {
		s.log.Info().Err(err).Msg("scan token rejected")
		return invalid(ModeToken, ReasonUnauthenticated, msgInvalidToken)
	}
	return s.checkIn(ctx, ModeToken, payload.TicketID, payload.UserID)
}

// checkIn applies the check-in transition. A non-empty owner must match the ticket's user.
func (s *service) checkIn(ctx context.Context, mode ScanMode, ticketID int64, owner string) *ScanResult {
	if owner != "" {
		tw, err := s.repo.GetTicketByID(ctx, ticketID)
		if errors.Is(err, repo.ErrTicketNotFound) {
			return invalid(mode, ReasonNotFound, msgInvalidTicket)
		}
		if err != nil {
			s.log.Error().Err(err).Int64("ticket_id", ticketID).Msg("scan lookup failed")
			return invalid(mode, ReasonUnauthenticated, msgInvalidToken)
		}
		if tw.UserID != owner {
			s.log.Warn().Int64("ticket_id", ticketID).Str("token_user", owner).Msg("scan token owner mismatch")
			return invalid(mode, ReasonNotFound, msgInvalidTicket)
		}
	}

	tw, checkedNow, err := s.repo.CheckInTx(ctx, ticketID, s.now().UTC())
	if errors.Is(err, repo.ErrTicketNotFound) {
		msg := msgTicketNotFound
		if mode == ModeToken {
			msg = msgInvalidTicket
		}
		return invalid(mode, ReasonNotFound, msg)
	}
	if err != nil {
		s.log.Error().Err(err).Int64("ticket_id", ticketID).Msg("check-in failed")
		return invalid(mode, ReasonUnauthenticated, msgInvalidToken)
	}

	if !checkedNow {
		return &ScanResult{Status: ScanAlreadyCheckedIn, Message: msgAlreadyUsed, Mode: mode, Ticket: tw}
	}
	s.log.Info().Int64("ticket_id", tw.ID).Str("mode", string(mode)).Msg("ticket checked in")
	return &ScanResult{Status: ScanSuccess, Message: msgCheckedIn, Mode: mode, Ticket: tw}
}

// extractToken accepts a raw token or a URL carrying it as the token query parameter.
func extractToken(raw string) string {
	if !strings.Contains(raw, "token=") {
		return raw
	}
	if u, err := url.Parse(raw); err == nil {
		if t := u.Query().Get("token"); t != "" {
			return t
		}
	}
	if q, err := url.ParseQuery(raw[strings.Index(raw, "token="):]); err == nil {
		if t := q.Get("token"); t != "" {
			return t
		}
	}
	return raw
}
