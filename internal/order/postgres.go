package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noah-isme/candle-checkout/internal/obs"
)

// DB is the subset of pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists receipts in the order_receipts table. Rows past
// expires_at are invisible to reads and removed by Sweep.
type PostgresStore struct {
	db        DB
	retention time.Duration
	now       func() time.Time
}

// NewPostgresStore constructs a store over db.
func NewPostgresStore(db DB, retention time.Duration) *PostgresStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &PostgresStore{db: db, retention: retention, now: time.Now}
}

// Set implements Store.
func (s *PostgresStore) Set(ctx context.Context, key string, o Order) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	_, err = s.db.Exec(ctx, `
INSERT INTO order_receipts (lookup_key, payment_id, payload, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (lookup_key) DO UPDATE SET
  payment_id = EXCLUDED.payment_id,
  payload    = EXCLUDED.payload,
  created_at = EXCLUDED.created_at,
  expires_at = EXCLUDED.expires_at`,
		key, o.PaymentID, payload, now, now.Add(s.retention))
	obs.CountOrderStoreOp("postgres", "set", err)
	if err != nil {
		return fmt.Errorf("order receipts upsert: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) (Order, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT payload FROM order_receipts WHERE lookup_key = $1 AND expires_at > $2`,
		key, s.now().UTC()).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			obs.CountOrderStoreOp("postgres", "get", ErrNotFound)
			return Order{}, ErrNotFound
		}
		obs.CountOrderStoreOp("postgres", "get", err)
		return Order{}, err
	}
	var o Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return Order{}, err
	}
	obs.CountOrderStoreOp("postgres", "get", nil)
	return o, nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM order_receipts WHERE lookup_key = $1`, key)
	obs.CountOrderStoreOp("postgres", "delete", err)
	return err
}

// Has implements Store.
func (s *PostgresStore) Has(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM order_receipts WHERE lookup_key = $1 AND expires_at > $2)`,
		key, s.now().UTC()).Scan(&exists)
	return exists, err
}

// Sweep deletes expired rows and returns how many were removed.
func (s *PostgresStore) Sweep(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM order_receipts WHERE expires_at <= $1`, s.now().UTC())
	obs.CountOrderStoreOp("postgres", "sweep", err)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
