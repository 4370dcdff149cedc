// Package postgres stores serialized carts in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storefront/internal/domain"
)

// CartStorage implements domain.CartStorage on the cart_storage table.
type CartStorage struct {
	db         *sql.DB
	loadStmt   *sql.Stmt
	saveStmt   *sql.Stmt
	deleteStmt *sql.Stmt
	purgeStmt  *sql.Stmt
}

// NewCartStorage creates a CartStorage with prepared statements.
// Returns an error if statement preparation fails.
func NewCartStorage(db *sql.DB) (*CartStorage, error) {
	s := &CartStorage{db: db}

	var err error
	s.loadStmt, err = db.Prepare(`SELECT payload FROM cart_storage WHERE storage_key = $1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare load statement: %w", err)
	}

	s.saveStmt, err = db.Prepare(`
		INSERT INTO cart_storage (storage_key, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (storage_key)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.deleteStmt, err = db.Prepare(`DELETE FROM cart_storage WHERE storage_key = $1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	s.purgeStmt, err = db.Prepare(`DELETE FROM cart_storage WHERE updated_at < $1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare purge statement: %w", err)
	}

	return s, nil
}

func (s *CartStorage) Load(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.loadStmt.QueryRowContext(ctx, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return payload, nil
}

func (s *CartStorage) Save(ctx context.Context, key string, data []byte) error {
	if _, err := s.saveStmt.ExecContext(ctx, key, string(data)); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

func (s *CartStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.deleteStmt.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

// PurgeOlderThan removes carts untouched since before cutoff.
func (s *CartStorage) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.purgeStmt.ExecContext(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge carts: %w", err)
	}
	return res.RowsAffected()
}

// RunPurger deletes carts older than ttl every interval until ctx is done.
func (s *CartStorage) RunPurger(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeOlderThan(ctx, time.Now().Add(-ttl))
			if err != nil {
				slog.Error("failed to purge stale carts", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				slog.Info("purged stale carts", slog.Int64("count", n))
			}
		}
	}
}

func (s *CartStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Metadata reports connection pool statistics for the readiness probe.
func (s *CartStorage) Metadata() map[string]interface{} {
	stats := s.db.Stats()
	return map[string]interface{}{
		"connections_open":   stats.OpenConnections,
		"connections_in_use": stats.InUse,
		"connections_idle":   stats.Idle,
		"max_open":           stats.MaxOpenConnections,
	}
}

// Close releases the prepared statements.
func (s *CartStorage) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{s.loadStmt, s.saveStmt, s.deleteStmt, s.purgeStmt} {
		if stmt != nil {
			errs = append(errs, stmt.Close())
		}
	}
	return errors.Join(errs...)
}
