package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/viego-wallet/viego-backend/internal/models"
	"github.com/viego-wallet/viego-backend/internal/repository"
	"github.com/viego-wallet/viego-backend/internal/services"
)

func seedPayment(t *testing.T, e *env, user string, due time.Time, days ...int) *models.AutomatedPayment {
	t.Helper()
	ctx := context.Background()
	p := &models.AutomatedPayment{
		UserID:       user,
		MerchantName: "City Power",
		Amount:       models.MustMoney("64.20"),
		Frequency:    models.FrequencyMonthly,
		DueDay:       due.Day(),
		NextDueDate:  due,
		Status:       models.PaymentPending,
		ReminderDays: days,
	}
	if err := e.payments.Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	if err := e.reminders.CreateMany(ctx, services.GenerateReminders(p, days)); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDispatchSendsDueRemindersOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.signup(t, "ana@example.com")
	conn := &fakeConn{}
	e.hub.Register(user.ID.Hex(), conn)

	// Due the 16th: the 3- and 7-day reminders are due on the 14th, the
	// 1-day one is not.
	seedPayment(t, e, user.ID.Hex(), time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), 7, 3, 1)

	report, err := e.dispatcher.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Due != 2 || report.Sent != 2 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if e.sender.count() != 2 || len(conn.written) != 2 {
		t.Fatalf("expected 2 emails and 2 pushes, got %d and %d", e.sender.count(), len(conn.written))
	}
	if conn.written[0].Type != "payment_reminder" || conn.written[0].UserID != user.ID.Hex() {
		t.Fatalf("unexpected push %+v", conn.written[0])
	}

	report, _ = e.dispatcher.Run(ctx)
	if report.Due != 0 || e.sender.count() != 2 {
		t.Fatalf("second run must not resend, report %+v", report)
	}

	e.clock.Advance(24 * time.Hour)
	report, _ = e.dispatcher.Run(ctx)
	if report.Sent != 1 || e.sender.count() != 3 {
		t.Fatalf("expected the 1-day reminder next day, report %+v", report)
	}
}

func TestDispatchReleasesFailedDeliveries(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.signup(t, "ana@example.com")
	off := models.NotificationSettings{Email: true, Reminder: true}
	if _, err := e.profileSvc.UpdateSettings(ctx, user.ID.Hex(), repository.ProfileUpdate{Notifications: &off}); err != nil {
		t.Fatal(err)
	}
	seedPayment(t, e, user.ID.Hex(), time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), 1)

	e.sender.setFail(errors.New("smtp down"))
	report, err := e.dispatcher.Run(ctx)
	if err != nil || report.Failed != 1 || report.Sent != 0 {
		t.Fatalf("expected a failed delivery, got %+v %v", report, err)
	}

	e.sender.setFail(nil)
	report, _ = e.dispatcher.Run(ctx)
	if report.Sent != 1 || e.sender.count() != 1 {
		t.Fatalf("released reminder should be retried, got %+v", report)
	}
}

func TestDispatchRespectsReminderSetting(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.signup(t, "ana@example.com")
	off := models.NotificationSettings{Email: true, Reminder: false}
	if _, err := e.profileSvc.UpdateSettings(ctx, user.ID.Hex(), repository.ProfileUpdate{Notifications: &off}); err != nil {
		t.Fatal(err)
	}
	seedPayment(t, e, user.ID.Hex(), time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), 1)

	report, _ := e.dispatcher.Run(ctx)
	if report.Suppressed != 1 || e.sender.count() != 0 {
		t.Fatalf("expected suppression, got %+v", report)
	}
	report, _ = e.dispatcher.Run(ctx)
	if report.Due != 0 {
		t.Fatalf("suppressed reminders stay claimed, got %+v", report)
	}
}

func TestDispatchMarksOverduePayments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.signup(t, "ana@example.com")
	p := seedPayment(t, e, user.ID.Hex(), time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))

	report, err := e.dispatcher.Run(ctx)
	if err != nil || report.Overdue != 1 {
		t.Fatalf("expected one overdue payment, got %+v %v", report, err)
	}
	got, _ := e.payments.Get(ctx, p.ID.Hex())
	if got.Status != models.PaymentOverdue {
		t.Fatalf("expected overdue, got %s", got.Status)
	}
}

func TestConcurrentDispatchSendsEachReminderOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.signup(t, "ana@example.com")
	seedPayment(t, e, user.ID.Hex(), time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), 7, 3, 1)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.dispatcher.Run(ctx)
			if err != nil && !errors.Is(err, services.ErrDispatchInProgress) {
				t.Errorf("run: %v", err)
			}
		}()
	}
	wg.Wait()
	if e.sender.count() != 3 {
		t.Fatalf("expected each reminder emailed once, got %d", e.sender.count())
	}
}

func TestDispatchReportsHeldLock(t *testing.T) {
	e := newEnv(t)
	locker := &heldLocker{}
	d := services.NewReminderDispatcher(services.DispatcherDeps{
		Reminders: e.reminders,
		Payments:  e.payments,
		Profiles:  e.profiles,
		Notifier:  services.NewNotifier(e.sender, nil, nil),
		Locker:    locker,
		Clock:     e.clock,
	})
	if _, err := d.Run(context.Background()); !errors.Is(err, services.ErrDispatchInProgress) {
		t.Fatalf("expected ErrDispatchInProgress, got %v", err)
	}
}

func TestDispatchSuppressesRemindersOfPaidPayments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.signup(t, "ana@example.com")
	p := seedPayment(t, e, user.ID.Hex(), time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), 3)

	through := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	p.Status = models.PaymentPaid
	p.PaidThrough = &through
	if err := e.payments.Update(ctx, p); err != nil {
		t.Fatal(err)
	}

	report, err := e.dispatcher.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Suppressed != 1 || report.Reopened != 0 || e.sender.count() != 0 {
		t.Fatalf("paid payment should not be reminded, got %+v", report)
	}

	e.clock.Set(through)
	if report, _ := e.dispatcher.Run(ctx); report.Reopened != 1 {
		t.Fatalf("expected reopen once the covered date arrives, got %+v", report)
	}
	got, _ := e.payments.Get(ctx, p.ID.Hex())
	if got.Status != models.PaymentPending {
		t.Fatalf("status = %s", got.Status)
	}
}
