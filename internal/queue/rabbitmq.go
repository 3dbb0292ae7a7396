package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/docvault/docvault/internal/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Rabbit implements Queue over a topic exchange with QoS-limited consumers.
// Messages are acked on handler success and nacked with requeue on failure,
// which gives the at-least-once semantics the pipeline is designed around.
type Rabbit struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	prefetch int
}

// NewRabbit connects, declares the exchange, and declares+binds the three
// core queues.
func NewRabbit(cfg config.QueueConfig) (*Rabbit, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	declarations := []struct {
		queue string
		route string
	}{
		{cfg.ProcessingQueue, RouteProcessing},
		{cfg.CompletionQueue, RouteCompletion},
		{cfg.DeletionQueue, RouteDeletion},
	}
	for _, d := range declarations {
		if _, err := ch.QueueDeclare(d.queue, true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("declare queue %s: %w", d.queue, err)
		}
		if err := ch.QueueBind(d.queue, d.route, cfg.Exchange, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("bind queue %s: %w", d.queue, err)
		}
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Rabbit{conn: conn, channel: ch, exchange: cfg.Exchange, prefetch: prefetch}, nil
}

func (r *Rabbit) Close() error {
	return r.conn.Close()
}

// Ping reports whether the connection is still open.
func (r *Rabbit) Ping(_ context.Context) error {
	if r.conn.IsClosed() {
		return fmt.Errorf("amqp connection closed")
	}
	return nil
}

func (r *Rabbit) Publish(ctx context.Context, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	err = r.channel.PublishWithContext(ctx,
		r.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

// Consume delivers messages from queueName to handler until ctx is done.
// Each delivery runs on the calling goroutine so prefetch bounds in-flight
// work per consumer.
func (r *Rabbit) Consume(ctx context.Context, queueName string, handler Handler) error {
	// A dedicated channel per consumer so a poisoned consumer cannot take
	// down the publisher.
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(r.prefetch, 0, false); err != nil {
		return fmt.Errorf("set consumer qos: %w", err)
	}

	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queueName, err)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("consumer shutting down", "queue", queueName)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("amqp channel closed for %s", queueName)
			}
			if err := handler(ctx, msg.Body); err != nil {
				slog.Error("message handling failed, requeueing",
					"queue", queueName, "error", err)
				_ = msg.Nack(false, true)
				continue
			}
			_ = msg.Ack(false)
		}
	}
}
