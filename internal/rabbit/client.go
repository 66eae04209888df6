package rabbit

import (
	"context"
	"errors"
	"math"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wb-go/wbf/zlog"
)

// ErrDrop marks a message that can never be processed; it is rejected without requeue.
var ErrDrop = errors.New("drop message")

type Config struct {
	Url      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
	Queue    string `mapstructure:"queue"`
	Prefetch int    `mapstructure:"prefetch"`
}

type Client struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
}

type Rabbiter interface {
	Close()
	Publish(message []byte, delaySeconds int) error
	Consume(ctx context.Context, handler func(context.Context, []byte) error) error
}

var _ Rabbiter = (*Client)(nil)

// NewRabbit declares a delayed-message exchange bound to one durable queue.
func NewRabbit(cfg Config) (*Client, error) {
	conn, err := amqp.Dial(cfg.Url)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to connect to RabbitMQ")
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		zlog.Logger.Error().Err(err).Msg("failed to open RabbitMQ channel")
		return nil, err
	}

	client := &Client{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
		queue:    cfg.Queue,
	}

	args := amqp.Table{"x-delayed-type": "direct"}
	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		"x-delayed-message",
		true,
		false,
		false,
		false,
		args,
	); err != nil {
		client.Close()
		zlog.Logger.Error().Err(err).Msg("failed to declare exchange")
		return nil, err
	}

	if _, err := ch.QueueDeclare(
		cfg.Queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		client.Close()
		zlog.Logger.Error().Err(err).Msg("failed to declare queue")
		return nil, err
	}

	if err := ch.QueueBind(
		cfg.Queue,
		"",
		cfg.Exchange,
		false,
		nil,
	); err != nil {
		client.Close()
		zlog.Logger.Error().Err(err).Msg("failed to bind queue")
		return nil, err
	}

	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			client.Close()
			zlog.Logger.Error().Err(err).Msg("failed to set prefetch")
			return nil, err
		}
	}

	zlog.Logger.Info().Msgf("RabbitMQ initialized (exchange=%s, queue=%s)", cfg.Exchange, cfg.Queue)

	return client, nil
}

func (c *Client) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	zlog.Logger.Info().Msg("RabbitMQ connection closed")
}

// Publish routes message through the delayed exchange; delaySeconds <= 0 delivers immediately.
func (c *Client) Publish(message []byte, delaySeconds int) error {
	err := c.channel.Publish(
		c.exchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         message,
			Timestamp:    time.Now(),
			Headers:      delayHeaders(delaySeconds),
		},
	)

	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to publish message to RabbitMQ")
	} else {
		zlog.Logger.Debug().Msgf("Message published to exchange=%s delay=%ds", c.exchange, delaySeconds)
	}
	return err
}

// delayHeaders builds the x-delay header in milliseconds, capped to what the plugin accepts.
func delayHeaders(delaySeconds int) amqp.Table {
	args := amqp.Table{}
	if delaySeconds <= 0 {
		return args
	}
	ms := int64(delaySeconds) * 1000
	if ms > math.MaxInt32 {
		ms = math.MaxInt32
	}
	args["x-delay"] = int32(ms)
	return args
}

// Consume delivers messages to handler until ctx is cancelled or the channel closes.
// A handler error requeues the message unless it wraps ErrDrop.
func (c *Client) Consume(ctx context.Context, handler func(context.Context, []byte) error) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to start consuming messages")
		return err
	}

	zlog.Logger.Info().Msgf("Started consuming from queue %s", c.queue)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				zlog.Logger.Warn().Msg("RabbitMQ delivery channel closed")
				return nil
			}
			settle(ctx, d, handler)
		}
	}
}

func settle(ctx context.Context, d amqp.Delivery, handler func(context.Context, []byte) error) {
	err := handler(ctx, d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrDrop):
		zlog.Logger.Warn().Err(err).Msg("dropping message")
		_ = d.Nack(false, false)
	default:
		zlog.Logger.Warn().Msgf("failed to process message: %v", err)
		_ = d.Nack(false, true)
	}
}
