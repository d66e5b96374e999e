// Package services ties the local stores to the vendor workflow: profiles
// and alert routing, card enrollment and rules, scheduled payments with
// their reminders, and the monthly spending tracker.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/viego-wallet/viego-backend/internal/controls"
)

// dbTimeout bounds every local store call.
const dbTimeout = 5 * time.Second

func dbContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, dbTimeout)
}

func invalid(op, msg string) error {
	return &controls.Error{Kind: controls.KindRejected, Op: op, Err: errors.New(msg)}
}

func invalidErr(op string, err error) error {
	return &controls.Error{Kind: controls.KindRejected, Op: op, Err: err}
}
