package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
)

const (
	CheckoutExchange     = "storefront.checkout"
	CheckoutQueue        = "cart.checkout-completed"
	CheckoutCompletedKey = "checkout.completed"

	// Unacked deliveries the broker may push to one consumer
	prefetchCount = 10
)

const (
	retryInitialDelay = 1 * time.Second
	retryMaxDelay     = 15 * time.Second
)

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// CheckoutCompleted is published by the order backend once a cart has been
// paid for.
type CheckoutCompleted struct {
	CartID    string `json:"cart_id"`
	OrderID   string `json:"order_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// NewRabbitMQWithRetry keeps dialing with capped exponential backoff until it
// connects or ctx is done. The broker often starts after the service.
func NewRabbitMQWithRetry(ctx context.Context, url string) (*RabbitMQ, error) {
	var rmq *RabbitMQ
	attempt := 0
	backoff := retry.WithCappedDuration(retryMaxDelay, retry.NewExponential(retryInitialDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		conn, err := NewRabbitMQ(url)
		if err != nil {
			slog.Warn("rabbitmq not ready, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}
		rmq = conn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("giving up on RabbitMQ after %d attempts: %w", attempt, err)
	}
	return rmq, nil
}

func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		CheckoutExchange, // name
		"topic",          // type
		true,             // durable
		false,            // auto-deleted
		false,            // internal
		false,            // no-wait
		nil,              // arguments
	); err != nil {
		return fmt.Errorf("failed to declare checkout exchange: %w", err)
	}

	if _, err := r.channel.QueueDeclare(
		CheckoutQueue, // name
		true,          // durable
		false,         // delete when unused
		false,         // exclusive
		false,         // no-wait
		nil,           // arguments
	); err != nil {
		return fmt.Errorf("failed to declare %s queue: %w", CheckoutQueue, err)
	}

	if err := r.channel.QueueBind(
		CheckoutQueue,        // queue name
		CheckoutCompletedKey, // routing key
		CheckoutExchange,     // exchange
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind %s queue: %w", CheckoutQueue, err)
	}

	if err := r.channel.Qos(prefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

// PublishCheckoutCompleted announces a completed checkout. The storefront
// itself only consumes these; publishing is used by tooling and tests.
func (r *RabbitMQ) PublishCheckoutCompleted(ctx context.Context, evt *CheckoutCompleted) error {
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().Unix()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal checkout event: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		CheckoutExchange,
		CheckoutCompletedKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish checkout event: %w", err)
	}

	slog.Info("published checkout event", slog.String("cart_id", evt.CartID))
	return nil
}

func (r *RabbitMQ) ConsumeCheckoutEvents() (<-chan amqp.Delivery, error) {
	msgs, err := r.channel.Consume(
		CheckoutQueue,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming checkout events", slog.String("queue", CheckoutQueue))
	return msgs, nil
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

// Ping reports whether the broker connection is still open.
func (r *RabbitMQ) Ping(context.Context) error {
	if r.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
