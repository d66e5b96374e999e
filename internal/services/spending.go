package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/viego-wallet/viego-backend/internal/clock"
	"github.com/viego-wallet/viego-backend/internal/models"
	"github.com/viego-wallet/viego-backend/internal/repository"
)

const (
	SpendingOK         = "ok"
	SpendingAlert      = "alert"
	SpendingOverBudget = "over_budget"
)

// SpendingTracker keeps approved spend per user and calendar month and
// evaluates it against a monthly budget. Each month starts from zero.
type SpendingTracker struct {
	store      repository.SpendingStore
	clock      clock.Clock
	budget     models.Money
	alertRatio decimal.Decimal
}

// NewSpendingTracker parses budget and alertRatio (e.g. "500", "0.8").
func NewSpendingTracker(store repository.SpendingStore, clk clock.Clock, budget, alertRatio string) (*SpendingTracker, error) {
	b, err := models.NewMoney(budget)
	if err != nil {
		return nil, fmt.Errorf("monthly budget: %w", err)
	}
	if !b.IsPositive() {
		return nil, fmt.Errorf("monthly budget must be positive")
	}
	r, err := decimal.NewFromString(alertRatio)
	if err != nil {
		return nil, fmt.Errorf("alert ratio: %w", err)
	}
	if !r.IsPositive() || r.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("alert ratio must be in (0, 1]")
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &SpendingTracker{store: store, clock: clk, budget: b, alertRatio: r}, nil
}

// Record adds an approved amount to the current month.
func (t *SpendingTracker) Record(ctx context.Context, userID string, amount models.Money) (models.SpendingStatus, error) {
	if !amount.IsPositive() {
		return models.SpendingStatus{}, invalid("record spending", "amount must be positive")
	}
	now := t.clock.Now()
	dbCtx, cancel := dbContext(ctx)
	defer cancel()
	p, err := t.store.Add(dbCtx, userID, repository.PeriodOf(now), amount, now)
	if err != nil {
		return models.SpendingStatus{}, err
	}
	return t.evaluate(p), nil
}

// Status reports the current month.
func (t *SpendingTracker) Status(ctx context.Context, userID string) (models.SpendingStatus, error) {
	dbCtx, cancel := dbContext(ctx)
	defer cancel()
	p, err := t.store.Get(dbCtx, userID, repository.PeriodOf(t.clock.Now()))
	if err != nil {
		return models.SpendingStatus{}, err
	}
	return t.evaluate(p), nil
}

func (t *SpendingTracker) evaluate(p models.SpendingPeriod) models.SpendingStatus {
	alertLevel := t.budget.Mul(t.alertRatio)
	remaining := t.budget.Sub(p.Total)
	if remaining.IsNegative() {
		remaining = models.Money{}
	}

	state := SpendingOK
	switch {
	case p.Total.GreaterThan(t.budget.Decimal):
		state = SpendingOverBudget
	case p.Total.GreaterThanOrEqual(alertLevel.Decimal):
		state = SpendingAlert
	}
	return models.SpendingStatus{
		SpendingPeriod: p,
		Budget:         t.budget,
		Remaining:      remaining,
		AlertLevel:     alertLevel,
		State:          state,
	}
}
