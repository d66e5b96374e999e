package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/viego-wallet/viego-backend/internal/cache"
	"github.com/viego-wallet/viego-backend/internal/clock"
	"github.com/viego-wallet/viego-backend/internal/models"
	"github.com/viego-wallet/viego-backend/internal/repository"
)

// DispatchLockKey serializes reminder runs across instances.
const DispatchLockKey = "lock:reminders:dispatch"

// ErrDispatchInProgress means another run holds the dispatch lock.
var ErrDispatchInProgress = errors.New("reminder dispatch already in progress")

// Locker hands out expiring mutual-exclusion locks. The returned function
// releases the lock.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// ReminderDispatcher sends due reminders. It has no scheduler of its own;
// something external calls Run periodically.
type ReminderDispatcher struct {
	reminders repository.ReminderRepository
	payments  repository.PaymentRepository
	profiles  repository.ProfileRepository
	notifier  *Notifier
	locker    Locker
	clock     clock.Clock
	logger    *slog.Logger
	lockTTL   time.Duration
	batchSize int
}

type DispatcherDeps struct {
	Reminders repository.ReminderRepository
	Payments  repository.PaymentRepository
	Profiles  repository.ProfileRepository
	Notifier  *Notifier
	Locker    Locker
	Clock     clock.Clock
	Logger    *slog.Logger
	LockTTL   time.Duration
	BatchSize int
}

func NewReminderDispatcher(deps DispatcherDeps) *ReminderDispatcher {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.LockTTL <= 0 {
		deps.LockTTL = 2 * time.Minute
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = 500
	}
	return &ReminderDispatcher{
		reminders: deps.Reminders,
		payments:  deps.Payments,
		profiles:  deps.Profiles,
		notifier:  deps.Notifier,
		locker:    deps.Locker,
		clock:     deps.Clock,
		logger:    deps.Logger,
		lockTTL:   deps.LockTTL,
		batchSize: deps.BatchSize,
	}
}

// DispatchReport summarizes one run.
type DispatchReport struct {
	Due        int `json:"due"`
	Sent       int `json:"sent"`
	Suppressed int `json:"suppressed"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	Overdue    int `json:"overdue"`
	Reopened   int `json:"reopened"`
}

// Run performs one bounded scan: it reopens paid payments whose covered
// due date has passed, marks past-due payments overdue, then
// claims and delivers each due reminder. A reminder is claimed before it
// is sent and released again if delivery fails, so it is delivered at most
// once per success and retried on the next run otherwise.
func (d *ReminderDispatcher) Run(ctx context.Context) (DispatchReport, error) {
	var report DispatchReport

	if d.locker != nil {
		release, err := d.locker.Acquire(ctx, DispatchLockKey, d.lockTTL)
		if err != nil {
			if errors.Is(err, cache.ErrLockHeld) {
				return report, ErrDispatchInProgress
			}
			return report, fmt.Errorf("acquire dispatch lock: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				d.logger.Warn("dispatch lock not released", "error", err)
			}
		}()
	}

	now := d.clock.Now()

	dbCtx, cancel := dbContext(ctx)
	reopened, err := d.payments.ReopenPaid(dbCtx, now)
	cancel()
	if err != nil {
		return report, fmt.Errorf("reopen paid: %w", err)
	}
	report.Reopened = int(reopened)

	dbCtx, cancel = dbContext(ctx)
	overdue, err := d.payments.MarkOverdue(dbCtx, now)
	cancel()
	if err != nil {
		return report, fmt.Errorf("mark overdue: %w", err)
	}
	report.Overdue = int(overdue)

	dbCtx, cancel = dbContext(ctx)
	due, err := d.reminders.Due(dbCtx, now, d.batchSize)
	cancel()
	if err != nil {
		return report, fmt.Errorf("list due reminders: %w", err)
	}
	report.Due = len(due)

	for _, r := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		switch d.deliver(ctx, r, now) {
		case outcomeSent:
			report.Sent++
		case outcomeSuppressed:
			report.Suppressed++
		case outcomeSkipped:
			report.Skipped++
		case outcomeFailed:
			report.Failed++
		}
	}

	d.logger.Info("reminder dispatch finished",
		"due", report.Due,
		"sent", report.Sent,
		"suppressed", report.Suppressed,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"overdue", report.Overdue,
		"reopened", report.Reopened,
	)
	return report, nil
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeSuppressed
	outcomeSkipped
	outcomeFailed
)

func (d *ReminderDispatcher) deliver(ctx context.Context, r models.Reminder, now time.Time) outcome {
	id := r.ID.Hex()
	logger := d.logger.With("reminder_id", id, "payment_id", r.PaymentID)

	dbCtx, cancel := dbContext(ctx)
	won, err := d.reminders.Claim(dbCtx, id, now)
	cancel()
	if err != nil {
		logger.Warn("reminder claim failed", "error", err)
		return outcomeFailed
	}
	if !won {
		return outcomeSkipped
	}

	dbCtx, cancel = dbContext(ctx)
	payment, perr := d.payments.Get(dbCtx, r.PaymentID)
	profile, uerr := d.profiles.Get(dbCtx, r.UserID)
	cancel()
	if errors.Is(perr, repository.ErrNotFound) || errors.Is(uerr, repository.ErrNotFound) {
		// Orphaned reminder; leave it claimed so it is not picked up again.
		logger.Info("reminder target no longer exists")
		return outcomeSuppressed
	}
	if err := errors.Join(perr, uerr); err != nil {
		d.release(ctx, logger, id)
		logger.Warn("reminder context not loaded", "error", err)
		return outcomeFailed
	}
	if !profile.Notifications.Reminder || payment.Status == models.PaymentPaid {
		return outcomeSuppressed
	}

	note := reminderNotification(payment, r, now)
	delivered, err := d.notifier.Notify(ctx, profile, note)
	if err != nil && delivered == 0 {
		d.release(ctx, logger, id)
		logger.Warn("reminder delivery failed", "error", err)
		return outcomeFailed
	}
	if err != nil {
		logger.Warn("reminder partially delivered", "error", err)
	}
	if delivered == 0 {
		return outcomeSuppressed
	}
	return outcomeSent
}

func (d *ReminderDispatcher) release(ctx context.Context, logger *slog.Logger, id string) {
	dbCtx, cancel := dbContext(context.WithoutCancel(ctx))
	defer cancel()
	if err := d.reminders.Release(dbCtx, id); err != nil {
		logger.Error("reminder claim not released", "error", err)
	}
}

func reminderNotification(p *models.AutomatedPayment, r models.Reminder, now time.Time) Notification {
	when := "tomorrow"
	if r.DaysBefore != 1 {
		when = fmt.Sprintf("in %d days", r.DaysBefore)
	}
	return Notification{
		Type:      "payment_reminder",
		UserID:    r.UserID,
		Title:     fmt.Sprintf("%s payment due %s", p.MerchantName, when),
		Body:      fmt.Sprintf("%s of %s is due on %s.", p.MerchantName, p.Amount.StringFixed(2), r.DueDate.Format("Jan 2, 2006")),
		PaymentID: p.ID.Hex(),
		DueDate:   r.DueDate,
		CreatedAt: now.UTC(),
	}
}
