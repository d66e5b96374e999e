package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/viego-wallet/viego-backend/internal/models"
)

// Notification is a user-facing message. It is what the push channel
// carries over Redis and the websocket.
type Notification struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	PaymentID string    `json:"payment_id,omitempty"`
	DueDate   time.Time `json:"due_date,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Sender delivers to an out-of-band destination such as an email address
// or phone number.
type Sender interface {
	Send(ctx context.Context, channel models.ContactType, destination string, n Notification) error
}

// PushPublisher delivers to the user's open websocket connections.
type PushPublisher interface {
	Publish(ctx context.Context, n Notification) error
}

// LogSender records deliveries in the log. It stands in for an email or
// SMS provider.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(_ context.Context, channel models.ContactType, destination string, n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification sent",
		"channel", channel,
		"destination", maskDestination(destination),
		"type", n.Type,
		"title", n.Title,
	)
	return nil
}

func maskDestination(v string) string {
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}

// Notifier fans a notification out over the channels a profile enabled.
type Notifier struct {
	sender Sender
	push   PushPublisher
	logger *slog.Logger
}

func NewNotifier(sender Sender, push PushPublisher, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{sender: sender, push: push, logger: logger}
}

// Notify delivers n to every enabled channel. Email goes to the account
// address, SMS to the first SMS contact of the alert preferences, push to
// the websocket channel. It returns the joined channel errors and how many
// channels accepted the message.
func (n *Notifier) Notify(ctx context.Context, profile *models.UserProfile, note Notification) (int, error) {
	note.UserID = profile.ID.Hex()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}

	var (
		delivered int
		errs      []error
	)
	settings := profile.Notifications
	if settings.Email && profile.Email != "" && n.sender != nil {
		if err := n.sender.Send(ctx, models.ContactEmail, profile.Email, note); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		} else {
			delivered++
		}
	}
	if settings.SMS && n.sender != nil {
		if phone := firstContact(profile.AlertPreferences, models.ContactSMS); phone != "" {
			if err := n.sender.Send(ctx, models.ContactSMS, phone, note); err != nil {
				errs = append(errs, fmt.Errorf("sms: %w", err))
			} else {
				delivered++
			}
		}
	}
	if settings.Push && n.push != nil {
		if err := n.push.Publish(ctx, note); err != nil {
			errs = append(errs, fmt.Errorf("push: %w", err))
		} else {
			delivered++
		}
	}
	return delivered, errors.Join(errs...)
}

func firstContact(prefs []models.AlertPreference, channel models.ContactType) string {
	for _, p := range prefs {
		for _, c := range p.Contacts {
			if c.ContactType == channel && c.ContactValue != "" {
				if c.CallingCode != "" {
					return "+" + c.CallingCode + c.ContactValue
				}
				return c.ContactValue
			}
		}
	}
	return ""
}
