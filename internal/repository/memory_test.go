package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/viego-wallet/viego-backend/internal/models"
)

func TestMemoryProfilesEmailIsUnique(t *testing.T) {
	repo := NewMemoryProfiles()
	ctx := context.Background()

	if err := repo.Create(ctx, &models.UserProfile{Email: "Ana@Example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := repo.Create(ctx, &models.UserProfile{Email: " ana@example.com"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	p, err := repo.GetByEmail(ctx, "ANA@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if p.Email != "ana@example.com" {
		t.Fatalf("email should be normalized, got %q", p.Email)
	}
}

func TestMemoryProfilesVendorIDIsSetOnce(t *testing.T) {
	repo := NewMemoryProfiles()
	ctx := context.Background()
	p := &models.UserProfile{Email: "a@example.com"}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	id := p.ID.Hex()

	if err := repo.SetVendorUserID(ctx, id, "vendor-1"); err != nil {
		t.Fatalf("first set: %v", err)
	}
	if err := repo.SetVendorUserID(ctx, id, "vendor-1"); err != nil {
		t.Fatalf("same value should be a no-op: %v", err)
	}
	if err := repo.SetVendorUserID(ctx, id, "vendor-2"); !errors.Is(err, ErrVendorIDImmutable) {
		t.Fatalf("expected ErrVendorIDImmutable, got %v", err)
	}
	if err := repo.SetVendorUserID(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryCardsCategoriesMergeAndReplace(t *testing.T) {
	repo := NewMemoryCards()
	ctx := context.Background()
	c := &models.CardLink{UserID: "u1", PANHash: "h1", Last4: "1111"}
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	id := c.ID.Hex()
	if err := repo.SetDocument(ctx, id, "doc-1"); err != nil {
		t.Fatalf("set document: %v", err)
	}

	_ = repo.SetCategories(ctx, id, []string{"MCT_GROCERY"}, false)
	_ = repo.SetCategories(ctx, id, []string{"MCT_GROCERY", "MCT_ALCOHOL"}, false)
	got, _ := repo.Get(ctx, id)
	if len(got.ConfiguredCategories) != 2 {
		t.Fatalf("expected merged categories, got %v", got.ConfiguredCategories)
	}

	_ = repo.SetCategories(ctx, id, []string{"MCT_DINING"}, true)
	got, _ = repo.Get(ctx, id)
	if len(got.ConfiguredCategories) != 1 || got.ConfiguredCategories[0] != "MCT_DINING" {
		t.Fatalf("expected replaced categories, got %v", got.ConfiguredCategories)
	}

	if err := repo.ClearDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ = repo.Get(ctx, id)
	if got.State() != models.CardUnenrolled {
		t.Fatalf("expected UNENROLLED after clear, got %s", got.State())
	}
}

func TestMemoryRemindersClaimIsExclusive(t *testing.T) {
	repo := NewMemoryReminders()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rems := []models.Reminder{
		{PaymentID: "p1", ScheduledAt: now.Add(-time.Hour)},
		{PaymentID: "p1", ScheduledAt: now.Add(time.Hour)},
	}
	if err := repo.CreateMany(ctx, rems); err != nil {
		t.Fatalf("create: %v", err)
	}

	due, err := repo.Due(ctx, now, 10)
	if err != nil || len(due) != 1 {
		t.Fatalf("expected one due reminder, got %d (%v)", len(due), err)
	}
	id := due[0].ID.Hex()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Claim(ctx, id, now)
			if err != nil {
				t.Errorf("claim: %v", err)
			}
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}

	if err := repo.Release(ctx, id); err != nil {
		t.Fatalf("release: %v", err)
	}
	due, _ = repo.Due(ctx, now, 10)
	if len(due) != 1 {
		t.Fatalf("released reminder should be due again")
	}
}

func TestMemoryPaymentsMarkOverdue(t *testing.T) {
	repo := NewMemoryPayments()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	past := &models.AutomatedPayment{UserID: "u1", Status: models.PaymentPending, NextDueDate: now.AddDate(0, 0, -1)}
	future := &models.AutomatedPayment{UserID: "u1", Status: models.PaymentPending, NextDueDate: now.AddDate(0, 0, 1)}
	_ = repo.Create(ctx, past)
	_ = repo.Create(ctx, future)

	n, err := repo.MarkOverdue(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 overdue, got %d (%v)", n, err)
	}
	got, _ := repo.Get(ctx, past.ID.Hex())
	if got.Status != models.PaymentOverdue {
		t.Fatalf("expected overdue, got %s", got.Status)
	}
}

func TestMemoryPaymentsReopenPaid(t *testing.T) {
	repo := NewMemoryPayments()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	covered, ahead := now, now.AddDate(0, 0, 1)
	done := &models.AutomatedPayment{UserID: "u1", Status: models.PaymentPaid, PaidThrough: &covered, NextDueDate: now.AddDate(0, 1, 0)}
	early := &models.AutomatedPayment{UserID: "u1", Status: models.PaymentPaid, PaidThrough: &ahead, NextDueDate: now.AddDate(0, 1, 0)}
	_ = repo.Create(ctx, done)
	_ = repo.Create(ctx, early)

	n, err := repo.ReopenPaid(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 reopened, got %d (%v)", n, err)
	}
	if got, _ := repo.Get(ctx, done.ID.Hex()); got.Status != models.PaymentPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}
	if got, _ := repo.Get(ctx, early.ID.Hex()); got.Status != models.PaymentPaid {
		t.Fatalf("expected paid, got %s", got.Status)
	}
}

func TestMemoryPaymentsListMonitoring(t *testing.T) {
	repo := NewMemoryPayments()
	ctx := context.Background()
	for _, p := range []*models.AutomatedPayment{
		{UserID: "u1", DocumentID: "doc-1", ControlType: "MCT_GROCERY"},
		{UserID: "u1", DocumentID: "doc-1", ControlType: "MCT_GROCERY"},
		{UserID: "u1", DocumentID: "doc-1", ControlType: "MCT_DINING"},
		{UserID: "u1", DocumentID: "doc-2", ControlType: "MCT_GROCERY"},
	} {
		_ = repo.Create(ctx, p)
	}

	got, err := repo.ListMonitoring(ctx, "doc-1", "MCT_GROCERY")
	if err != nil || len(got) != 2 {
		t.Fatalf("expected 2 payments, got %d (%v)", len(got), err)
	}

	if n, _ := repo.ClearDocument(ctx, "doc-1"); n != 3 {
		t.Fatalf("expected 3 cleared, got %d", n)
	}
	if got, _ := repo.ListMonitoring(ctx, "doc-1", "MCT_GROCERY"); len(got) != 0 {
		t.Fatalf("cleared payments still listed: %d", len(got))
	}
}

func TestMemorySpendingAccumulatesPerPeriod(t *testing.T) {
	s := NewMemorySpending()
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	_, _ = s.Add(ctx, "u1", PeriodOf(at), models.MustMoney("100"), at)
	p, _ := s.Add(ctx, "u1", PeriodOf(at), models.MustMoney("45.50"), at)
	if p.Total.String() != "145.5" || p.Count != 2 {
		t.Fatalf("unexpected period %+v", p)
	}

	next, _ := s.Get(ctx, "u1", PeriodOf(at.AddDate(0, 1, 0)))
	if !next.Total.IsZero() || next.Period != "2026-04" {
		t.Fatalf("new period should start at zero, got %+v", next)
	}
}
