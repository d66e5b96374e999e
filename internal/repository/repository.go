// Package repository persists the local records that cross-reference vendor
// identifiers: profiles, card links, scheduled payments, reminders and
// monthly spending periods. Each store has a MongoDB (or PostgreSQL)
// implementation and an in-memory one with the same semantics.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/viego-wallet/viego-backend/internal/models"
)

var (
	// ErrNotFound means no local record matched.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate means a unique key (email, card) is already taken.
	ErrDuplicate = errors.New("record already exists")
	// ErrVendorIDImmutable means the profile already carries a different
	// vendor user identifier.
	ErrVendorIDImmutable = errors.New("vendor user identifier is already set")
)

// ProfileUpdate carries the user-editable settings. Nil fields are left
// unchanged.
type ProfileUpdate struct {
	FirstName     *string
	LastName      *string
	Notifications *models.NotificationSettings
}

type ProfileRepository interface {
	Create(ctx context.Context, p *models.UserProfile) error
	Get(ctx context.Context, id string) (*models.UserProfile, error)
	GetByEmail(ctx context.Context, email string) (*models.UserProfile, error)
	UpdateSettings(ctx context.Context, id string, u ProfileUpdate) (*models.UserProfile, error)
	SetStatus(ctx context.Context, id string, status models.AccountStatus) error
	// SetVendorUserID records the vendor identifier once. Setting the same
	// value again is a no-op; a different value fails with
	// ErrVendorIDImmutable.
	SetVendorUserID(ctx context.Context, id, vendorUserID string) error
	SetAlertPreferences(ctx context.Context, id string, prefs []models.AlertPreference) error
}

type CardRepository interface {
	Create(ctx context.Context, c *models.CardLink) error
	Get(ctx context.Context, id string) (*models.CardLink, error)
	GetByPANHash(ctx context.Context, userID, panHash string) (*models.CardLink, error)
	ListByUser(ctx context.Context, userID string) ([]models.CardLink, error)
	SetDocument(ctx context.Context, id, documentID string) error
	// SetCategories merges categories into the configured set, or replaces
	// the set when replace is true.
	SetCategories(ctx context.Context, id string, categories []string, replace bool) error
	// ClearDocument forgets documentID and its categories on every card
	// that references it.
	ClearDocument(ctx context.Context, documentID string) error
}

type PaymentRepository interface {
	Create(ctx context.Context, p *models.AutomatedPayment) error
	Get(ctx context.Context, id string) (*models.AutomatedPayment, error)
	ListByUser(ctx context.Context, userID string) ([]models.AutomatedPayment, error)
	Update(ctx context.Context, p *models.AutomatedPayment) error
	Delete(ctx context.Context, id string) error
	// MarkOverdue flips pending payments due before now to overdue.
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
	// ReopenPaid flips paid payments whose PaidThrough is at or before now
	// back to pending.
	ReopenPaid(ctx context.Context, now time.Time) (int64, error)
	// ListMonitoring returns the payments whose spend limit lives on the
	// controlType rule of documentID.
	ListMonitoring(ctx context.Context, documentID, controlType string) ([]models.AutomatedPayment, error)
	// ClearDocument drops the vendor linkage of payments monitored by
	// documentID.
	ClearDocument(ctx context.Context, documentID string) (int64, error)
}

type ReminderRepository interface {
	CreateMany(ctx context.Context, reminders []models.Reminder) error
	ListByPayment(ctx context.Context, paymentID string) ([]models.Reminder, error)
	DeleteByPayment(ctx context.Context, paymentID string) error
	DeleteUnsentByPayment(ctx context.Context, paymentID string) error
	// Due returns unsent reminders scheduled at or before now, oldest
	// first, at most limit.
	Due(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error)
	// Claim marks a reminder sent if and only if it was unsent. It reports
	// whether this caller won the claim.
	Claim(ctx context.Context, id string, at time.Time) (bool, error)
	// Release undoes a claim after a failed delivery.
	Release(ctx context.Context, id string) error
}

// SpendingStore keeps one running total per user and calendar month.
type SpendingStore interface {
	Add(ctx context.Context, userID, period string, amount models.Money, at time.Time) (models.SpendingPeriod, error)
	Get(ctx context.Context, userID, period string) (models.SpendingPeriod, error)
}

// PeriodOf returns the spending period key (YYYY-MM) containing t.
func PeriodOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}
