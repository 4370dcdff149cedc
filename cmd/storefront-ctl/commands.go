package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"storefront/internal/config"
	"storefront/internal/messaging"
	"storefront/internal/repository/postgres"
)

var errNoBroker = errors.New("RABBITMQ_URL is not set")

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the cart storage schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := postgres.RunMigrations(ctx, db); err != nil {
			return err
		}
		slog.Info("migrations applied")
		return nil
	},
}

var purgeOlderThan time.Duration

var purgeCartsCmd = &cobra.Command{
	Use:   "purge-carts",
	Short: "Delete persisted carts that have not been written to recently",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		age := purgeOlderThan
		if age <= 0 {
			age = cfg.CartTTL
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		storage, err := postgres.NewCartStorage(db)
		if err != nil {
			return err
		}
		defer storage.Close()

		n, err := storage.PurgeOlderThan(ctx, time.Now().Add(-age))
		if err != nil {
			return err
		}
		slog.Info("purged stale carts", slog.Int64("count", n), slog.Duration("older_than", age))
		return nil
	},
}

var (
	checkoutOrderID string
	checkoutUserID  string
)

var publishCheckoutCmd = &cobra.Command{
	Use:   "publish-checkout <cart-id>",
	Short: "Publish a checkout-completed event, clearing the cart in every running server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		evt, err := newCheckoutEvent(args[0], checkoutOrderID, checkoutUserID, time.Now())
		if err != nil {
			return err
		}
		if cfg.RabbitMQURL == "" {
			return errNoBroker
		}

		rmq, err := messaging.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			return err
		}
		defer rmq.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return rmq.PublishCheckoutCompleted(ctx, evt)
	},
}

func init() {
	purgeCartsCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 0, "Age cutoff (default CART_TTL)")
	publishCheckoutCmd.Flags().StringVar(&checkoutOrderID, "order-id", "", "Order the checkout belongs to")
	publishCheckoutCmd.Flags().StringVar(&checkoutUserID, "user-id", "", "User who checked out")
}

// newCheckoutEvent validates the cart id the same way the cart cookie is
// validated, so a typo cannot silently target nothing.
func newCheckoutEvent(cartID, orderID, userID string, now time.Time) (*messaging.CheckoutCompleted, error) {
	if _, err := uuid.Parse(cartID); err != nil {
		return nil, fmt.Errorf("invalid cart id %q: %w", cartID, err)
	}
	return &messaging.CheckoutCompleted{
		CartID:    cartID,
		OrderID:   orderID,
		UserID:    userID,
		Timestamp: now.Unix(),
	}, nil
}

func openDatabase(ctx context.Context) (*sql.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for %s storage", config.StoragePostgres)
	}
	return config.NewPostgresConnection(ctx, cfg.DatabaseURL)
}
