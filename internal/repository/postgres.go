package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/viego-wallet/viego-backend/internal/models"
)

// SpendingSchema creates the spending_periods table.
const SpendingSchema = `CREATE TABLE IF NOT EXISTS spending_periods (
	user_id VARCHAR(64) NOT NULL,
	period CHAR(7) NOT NULL,
	total NUMERIC(14, 2) NOT NULL DEFAULT 0,
	txn_count INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, period)
)`

// PostgresSpending is a SpendingStore on PostgreSQL. Each (user, month) is
// one row; increments are a single upsert so concurrent requests add up.
type PostgresSpending struct {
	db *sql.DB
}

func NewPostgresSpending(db *sql.DB) *PostgresSpending {
	return &PostgresSpending{db: db}
}

func (s *PostgresSpending) Add(ctx context.Context, userID, period string, amount models.Money, at time.Time) (models.SpendingPeriod, error) {
	const q = `
		INSERT INTO spending_periods (user_id, period, total, txn_count, updated_at)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (user_id, period) DO UPDATE
		SET total = spending_periods.total + EXCLUDED.total,
		    txn_count = spending_periods.txn_count + 1,
		    updated_at = EXCLUDED.updated_at
		RETURNING total, txn_count, updated_at`

	out := models.SpendingPeriod{UserID: userID, Period: period}
	err := s.db.QueryRowContext(ctx, q, userID, period, amount.Decimal, at.UTC()).
		Scan(&out.Total.Decimal, &out.Count, &out.UpdatedAt)
	if err != nil {
		return models.SpendingPeriod{}, err
	}
	return out, nil
}

func (s *PostgresSpending) Get(ctx context.Context, userID, period string) (models.SpendingPeriod, error) {
	const q = `SELECT total, txn_count, updated_at FROM spending_periods WHERE user_id = $1 AND period = $2`

	out := models.SpendingPeriod{UserID: userID, Period: period}
	err := s.db.QueryRowContext(ctx, q, userID, period).Scan(&out.Total.Decimal, &out.Count, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return out, nil
	}
	if err != nil {
		return models.SpendingPeriod{}, err
	}
	return out, nil
}
