package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"conftickets/internal/model"
)

var ErrEmailEventNotFound = errors.New("email event not found")

// UpsertEmailEvent records a delivery webhook keyed by provider message id.
// Milestone dates already stored are kept.
func (r *repository) UpsertEmailEvent(ctx context.Context, ev *model.EmailEvent) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO email_events (email_id, recipient, subject, status, occurred_at, sent_date, delivered_date, type, ticket_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (email_id) DO UPDATE SET
			status         = EXCLUDED.status,
			occurred_at    = EXCLUDED.occurred_at,
			sent_date      = COALESCE(email_events.sent_date, EXCLUDED.sent_date),
			delivered_date = COALESCE(email_events.delivered_date, EXCLUDED.delivered_date),
			ticket_id      = COALESCE(email_events.ticket_id, EXCLUDED.ticket_id)
		RETURNING id
	`, ev.EmailID, ev.To, ev.Subject, ev.Status, ev.Timestamp, ev.SentDate, ev.DeliveredDate, ev.Type, ev.TicketID).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert email event: %w", err)
	}
	return nil
}

func (r *repository) GetEmailEvent(ctx context.Context, emailID string) (*model.EmailEvent, error) {
	var ev model.EmailEvent
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email_id, recipient, subject, status, occurred_at, sent_date, delivered_date, type, ticket_id
		FROM email_events
		WHERE email_id = $1
	`, emailID).Scan(
		&ev.ID, &ev.EmailID, &ev.To, &ev.Subject, &ev.Status, &ev.Timestamp,
		&ev.SentDate, &ev.DeliveredDate, &ev.Type, &ev.TicketID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEmailEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email event: %w", err)
	}
	return &ev, nil
}
