// Package postgres implements form storage against PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fernwood/payform/internal/domain"
)

// FormStore implements domain.FormRepository using PostgreSQL. Form
// configuration is stored as a JSONB document per form; the pricing pipeline
// only ever reads whole forms, so there is no per-field schema to keep in
// sync with the domain model.
type FormStore struct {
	pool *pgxpool.Pool
}

// Compile-time check that FormStore implements domain.FormRepository.
var _ domain.FormRepository = (*FormStore)(nil)

// NewFormStore creates a new PostgreSQL-backed form store.
func NewFormStore(pool *pgxpool.Pool) *FormStore {
	return &FormStore{pool: pool}
}

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, domain.Internal(err, "postgres.connect", "failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, domain.Internal(err, "postgres.connect", "failed to reach database")
	}
	return pool, nil
}

// GetForm returns the form by ID.
func (s *FormStore) GetForm(ctx context.Context, id string) (*domain.PaymentForm, error) {
	const op = "postgres.form.get"

	var config []byte
	err := s.pool.QueryRow(ctx,
		`SELECT config FROM payment_forms WHERE id = $1`,
		id,
	).Scan(&config)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound(op, "payment form", id)
		}
		return nil, domain.Internal(err, op, "failed to load payment form")
	}

	var form domain.PaymentForm
	if err := json.Unmarshal(config, &form); err != nil {
		return nil, domain.Internal(err, op, "failed to decode payment form")
	}
	form.ID = id
	return &form, nil
}

// GetCouponRecord returns the local restriction record for a coupon code.
// Lookups are case-insensitive to match Stripe's coupon ID handling.
func (s *FormStore) GetCouponRecord(ctx context.Context, code string) (*domain.CouponRecord, error) {
	const op = "postgres.coupon.get"

	record := &domain.CouponRecord{}
	err := s.pool.QueryRow(ctx,
		`SELECT code, form_ids FROM coupon_records WHERE lower(code) = lower($1)`,
		code,
	).Scan(&record.Code, &record.FormIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound(op, "coupon record", code)
		}
		return nil, domain.Internal(err, op, "failed to load coupon record")
	}
	return record, nil
}

// SaveForm inserts or replaces a form's configuration document.
func (s *FormStore) SaveForm(ctx context.Context, form *domain.PaymentForm) error {
	const op = "postgres.form.save"

	config, err := json.Marshal(form)
	if err != nil {
		return domain.Internal(err, op, "failed to encode payment form")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO payment_forms (id, config, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (id) DO UPDATE SET config = EXCLUDED.config, updated_at = now()`,
		form.ID, config,
	)
	if err != nil {
		return domain.Internal(err, op, "failed to save payment form")
	}
	return nil
}
