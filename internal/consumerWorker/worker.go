package consumerWorker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wb-go/wbf/zlog"

	"conftickets/internal/dto"
	"conftickets/internal/rabbit"
)

// Consumer is the part of *rabbit.Client the reader drives.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, []byte) error) error
}

// Reminders sends one payment reminder; satisfied by service.Service.
type Reminders interface {
	SendPaymentReminder(ctx context.Context, msg dto.ReminderMessage) (bool, error)
}

type Reader struct {
	RMQ       Consumer
	reminders Reminders
	done      chan struct{}
	cancel    context.CancelFunc
}

func NewReader(rmq Consumer, reminders Reminders) *Reader {
	return &Reader{
		RMQ:       rmq,
		reminders: reminders,
		done:      make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("reminder reader started")

	go func() {
		defer close(r.done)

		if err := r.RMQ.Consume(cctx, r.handle); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to start consuming")
			return
		}
		zlog.Logger.Info().Msg("reminder reader stopped")
	}()
}

func (r *Reader) handle(ctx context.Context, body []byte) error {
	var msg dto.ReminderMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		zlog.Logger.Error().
			Err(err).
			Msgf("Failed to unmarshal message: %s", string(body))
		return fmt.Errorf("%w: %v", rabbit.ErrDrop, err)
	}
	if msg.TicketID <= 0 {
		return fmt.Errorf("%w: missing ticket id", rabbit.ErrDrop)
	}

	zlog.Logger.Info().
		Int64("ticket_id", msg.TicketID).
		Str("user_id", msg.UserID).
		Msg("reminder message received")

	sent, err := r.reminders.SendPaymentReminder(ctx, msg)
	if err != nil {
		zlog.Logger.Error().
			Err(err).
			Int64("ticket_id", msg.TicketID).
			Msg("failed to process reminder")
		return err
	}
	if !sent {
		zlog.Logger.Info().
			Int64("ticket_id", msg.TicketID).
			Msg("reminder skipped")
	}
	return nil
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
