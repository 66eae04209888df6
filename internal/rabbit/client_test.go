package rabbit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

type ackRecorder struct {
	acked   int
	nacked  int
	requeue bool
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acked++; return nil }

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}

func (a *ackRecorder) Reject(_ uint64, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}

func TestSettle(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantAck     bool
		wantRequeue bool
	}{
		{"ok", nil, true, false},
		{"transient", errors.New("db down"), false, true},
		{"malformed", fmt.Errorf("%w: bad json", ErrDrop), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &ackRecorder{}
			d := amqp.Delivery{Acknowledger: rec, DeliveryTag: 1, Body: []byte(`{}`)}

			settle(context.Background(), d, func(context.Context, []byte) error { return tt.err })

			if tt.wantAck {
				assert.Equal(t, 1, rec.acked)
				assert.Zero(t, rec.nacked)
				return
			}
			assert.Equal(t, 1, rec.nacked)
			assert.Equal(t, tt.wantRequeue, rec.requeue)
		})
	}
}

func TestDelayHeaders(t *testing.T) {
	assert.Empty(t, delayHeaders(0))
	assert.Equal(t, int32(172800000), delayHeaders(48*3600)["x-delay"])
	assert.Equal(t, int32(math.MaxInt32), delayHeaders(90*24*3600)["x-delay"])
}
