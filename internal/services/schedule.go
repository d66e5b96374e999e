package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/viego-wallet/viego-backend/internal/models"
)

// CalculateNextDueDate returns the first due date strictly after ref for a
// payment of the given frequency. Dates are whole days in UTC.
//
// Weekly and biweekly add 7 and 14 days. Monthly lands on dueDay (ref's
// day when zero) of ref's month if that is still ahead, otherwise of the
// next month; short months clamp to their last day. Quarterly and yearly
// move 3 and 12 calendar months and land on dueDay (ref's day when zero),
// also clamping.
func CalculateNextDueDate(freq models.Frequency, dueDay int, ref time.Time) (time.Time, error) {
	day := truncateDay(ref)
	switch freq {
	case models.FrequencyWeekly:
		return day.AddDate(0, 0, 7), nil
	case models.FrequencyBiweekly:
		return day.AddDate(0, 0, 14), nil
	case models.FrequencyMonthly:
		if dueDay < 0 || dueDay > 31 {
			return time.Time{}, fmt.Errorf("due day %d out of range", dueDay)
		}
		if dueDay == 0 {
			dueDay = day.Day()
		}
		candidate := dateIn(day.Year(), day.Month(), dueDay)
		if !candidate.After(day) {
			candidate = dateIn(day.Year(), day.Month()+1, dueDay)
		}
		return candidate, nil
	case models.FrequencyQuarterly, models.FrequencyYearly:
		if dueDay < 0 || dueDay > 31 {
			return time.Time{}, fmt.Errorf("due day %d out of range", dueDay)
		}
		if dueDay == 0 {
			dueDay = day.Day()
		}
		months := 3
		if freq == models.FrequencyYearly {
			months = 12
		}
		return dateIn(day.Year(), day.Month()+time.Month(months), dueDay), nil
	}
	return time.Time{}, fmt.Errorf("unknown frequency %q", freq)
}

// ResolveDueDay pins the day of month a calendar-based payment falls on, so
// a clamped date such as February 28 does not become the new anchor. Weekly
// and biweekly payments have no due day.
func ResolveDueDay(freq models.Frequency, dueDay int, ref time.Time) int {
	switch freq {
	case models.FrequencyMonthly, models.FrequencyQuarterly, models.FrequencyYearly:
		if dueDay == 0 {
			return truncateDay(ref).Day()
		}
		return dueDay
	}
	return 0
}

// GenerateReminders returns one unsent reminder per distinct positive
// offset, scheduled that many days before the payment's next due date,
// earliest first.
func GenerateReminders(p *models.AutomatedPayment, days []int) []models.Reminder {
	offsets := make([]int, 0, len(days))
	seen := make(map[int]struct{}, len(days))
	for _, d := range days {
		if d <= 0 {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		offsets = append(offsets, d)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(offsets)))

	out := make([]models.Reminder, 0, len(offsets))
	for _, d := range offsets {
		out = append(out, models.Reminder{
			PaymentID:   p.ID.Hex(),
			UserID:      p.UserID,
			DueDate:     p.NextDueDate,
			DaysBefore:  d,
			ScheduledAt: p.NextDueDate.AddDate(0, 0, -d),
		})
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// dateIn is year/month/day with day clamped to the month's length. month
// may overflow into the next year.
func dateIn(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}
