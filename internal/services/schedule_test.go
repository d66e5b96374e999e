package services

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/viego-wallet/viego-backend/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalculateNextDueDate(t *testing.T) {
	tests := []struct {
		name   string
		freq   models.Frequency
		dueDay int
		ref    time.Time
		want   time.Time
	}{
		{"monthly after due day", models.FrequencyMonthly, 15, time.Date(2026, 3, 20, 13, 45, 0, 0, time.UTC), day(2026, 4, 15)},
		{"monthly before due day", models.FrequencyMonthly, 15, day(2026, 3, 2), day(2026, 3, 15)},
		{"monthly on due day", models.FrequencyMonthly, 15, day(2026, 3, 15), day(2026, 4, 15)},
		{"monthly clamps short month", models.FrequencyMonthly, 31, day(2026, 1, 31), day(2026, 2, 28)},
		{"monthly across year end", models.FrequencyMonthly, 5, day(2026, 12, 20), day(2027, 1, 5)},
		{"monthly defaults to ref day", models.FrequencyMonthly, 0, day(2026, 3, 9), day(2026, 4, 9)},
		{"quarterly", models.FrequencyQuarterly, 0, day(2026, 3, 14), day(2026, 6, 14)},
		{"quarterly clamps", models.FrequencyQuarterly, 0, day(2026, 11, 30), day(2027, 2, 28)},
		{"quarterly keeps due day after clamp", models.FrequencyQuarterly, 30, day(2026, 2, 28), day(2026, 5, 30)},
		{"yearly leap day", models.FrequencyYearly, 0, day(2028, 2, 29), day(2029, 2, 28)},
		{"yearly back to leap day", models.FrequencyYearly, 29, day(2031, 2, 28), day(2032, 2, 29)},
		{"weekly", models.FrequencyWeekly, 0, day(2026, 3, 14), day(2026, 3, 21)},
		{"biweekly", models.FrequencyBiweekly, 0, day(2026, 3, 14), day(2026, 3, 28)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateNextDueDate(tt.freq, tt.dueDay, tt.ref)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("got %s, want %s", got.Format(time.DateOnly), tt.want.Format(time.DateOnly))
			}
		})
	}
}

func TestCalculateNextDueDateIsPure(t *testing.T) {
	ref := day(2026, 3, 20)
	a, _ := CalculateNextDueDate(models.FrequencyMonthly, 15, ref)
	b, _ := CalculateNextDueDate(models.FrequencyMonthly, 15, ref)
	if !a.Equal(b) {
		t.Fatalf("same inputs gave %s and %s", a, b)
	}
}

func TestCalculateNextDueDateRejectsBadInput(t *testing.T) {
	if _, err := CalculateNextDueDate("fortnightly", 0, day(2026, 3, 1)); err == nil {
		t.Fatal("expected error for unknown frequency")
	}
	if _, err := CalculateNextDueDate(models.FrequencyMonthly, 32, day(2026, 3, 1)); err == nil {
		t.Fatal("expected error for due day 32")
	}
}

func TestResolveDueDay(t *testing.T) {
	ref := time.Date(2026, 1, 31, 18, 30, 0, 0, time.UTC)
	tests := []struct {
		freq   models.Frequency
		dueDay int
		want   int
	}{
		{models.FrequencyMonthly, 0, 31},
		{models.FrequencyMonthly, 12, 12},
		{models.FrequencyQuarterly, 0, 31},
		{models.FrequencyYearly, 0, 31},
		{models.FrequencyWeekly, 0, 0},
		{models.FrequencyBiweekly, 5, 0},
	}
	for _, tt := range tests {
		if got := ResolveDueDay(tt.freq, tt.dueDay, ref); got != tt.want {
			t.Errorf("%s/%d: got %d, want %d", tt.freq, tt.dueDay, got, tt.want)
		}
	}
}

func TestGenerateReminders(t *testing.T) {
	due := day(2026, 4, 15)
	p := &models.AutomatedPayment{ID: primitive.NewObjectID(), UserID: "u1", NextDueDate: due}

	got := GenerateReminders(p, []int{1, 7, 3, 3, 0, -2})
	if len(got) != 3 {
		t.Fatalf("expected 3 reminders, got %d", len(got))
	}
	want := []time.Time{day(2026, 4, 8), day(2026, 4, 12), day(2026, 4, 14)}
	for i, r := range got {
		if !r.ScheduledAt.Equal(want[i]) {
			t.Errorf("reminder %d at %s, want %s", i, r.ScheduledAt.Format(time.DateOnly), want[i].Format(time.DateOnly))
		}
		if r.Sent || r.PaymentID != p.ID.Hex() || r.UserID != "u1" || !r.DueDate.Equal(due) {
			t.Errorf("unexpected reminder %+v", r)
		}
	}
}
