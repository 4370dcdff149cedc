package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"storefront/internal/observability"
)

var ErrMalformedEvent = errors.New("malformed checkout event")

// CartClearer empties a cart by ID.
type CartClearer interface {
	Clear(ctx context.Context, cartID string) error
}

// CheckoutConsumer clears a guest cart once its checkout has completed.
type CheckoutConsumer struct {
	rmq   *RabbitMQ
	carts CartClearer
}

func NewCheckoutConsumer(rmq *RabbitMQ, carts CartClearer) *CheckoutConsumer {
	return &CheckoutConsumer{
		rmq:   rmq,
		carts: carts,
	}
}

// Start begins consuming in a background goroutine that runs until ctx is
// done or the delivery channel closes.
func (c *CheckoutConsumer) Start(ctx context.Context) error {
	msgs, err := c.rmq.ConsumeCheckoutEvents()
	if err != nil {
		return err
	}

	go c.run(ctx, msgs)
	return nil
}

func (c *CheckoutConsumer) run(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping checkout consumer")
			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Warn("checkout consumer channel closed")
				return
			}
			c.process(ctx, msg)
		}
	}
}

// process handles one delivery. Malformed events are dropped; a failed clear
// is requeued once and dropped if it fails again on redelivery.
func (c *CheckoutConsumer) process(ctx context.Context, msg amqp.Delivery) {
	err := c.handle(ctx, msg.Body)
	switch {
	case err == nil:
		observability.CheckoutEventsTotal.WithLabelValues("cleared").Inc()
		if ackErr := msg.Ack(false); ackErr != nil {
			slog.Error("failed to ack checkout event", slog.String("error", ackErr.Error()))
		}
	case errors.Is(err, ErrMalformedEvent):
		observability.CheckoutEventsTotal.WithLabelValues("malformed").Inc()
		slog.Warn("dropping checkout event",
			slog.String("error", err.Error()),
			slog.Int("body_size", len(msg.Body)))
		_ = msg.Nack(false, false)
	default:
		requeue := !msg.Redelivered
		observability.CheckoutEventsTotal.WithLabelValues("failed").Inc()
		slog.Error("failed to clear cart after checkout",
			slog.String("error", err.Error()),
			slog.Bool("requeue", requeue))
		_ = msg.Nack(false, requeue)
	}
}

func (c *CheckoutConsumer) handle(ctx context.Context, body []byte) error {
	var evt CheckoutCompleted
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.CartID == "" {
		return fmt.Errorf("%w: missing cart_id", ErrMalformedEvent)
	}

	ctx = observability.WithCartID(ctx, evt.CartID)
	if err := c.carts.Clear(ctx, evt.CartID); err != nil {
		return fmt.Errorf("clear cart %s: %w", evt.CartID, err)
	}

	observability.FromContext(ctx).Info("cart cleared after checkout",
		slog.String("order_id", evt.OrderID))
	return nil
}
