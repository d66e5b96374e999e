package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiweekly  Frequency = "biweekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentOverdue PaymentStatus = "overdue"
)

// AutomatedPayment is a recurring bill the user wants reminders for and,
// when a card is linked, vendor-side spend monitoring on.
type AutomatedPayment struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`

	UserID       string        `bson:"user_id" json:"user_id"`
	MerchantName string        `bson:"merchant_name" json:"merchant_name"`
	CategoryCode string        `bson:"category_code" json:"category_code"` // merchant category code
	Amount       Money         `bson:"amount" json:"amount"`
	Frequency    Frequency     `bson:"frequency" json:"frequency"`
	DueDay       int           `bson:"due_day,omitempty" json:"due_day,omitempty"` // resolved at creation for monthly, quarterly and yearly
	NextDueDate  time.Time     `bson:"next_due_date" json:"next_due_date"`
	Status       PaymentStatus `bson:"status" json:"status"`
	ReminderDays []int         `bson:"reminder_days" json:"reminder_days"`
	LastPaidAt   *time.Time    `bson:"last_paid_at,omitempty" json:"last_paid_at,omitempty"`
	// PaidThrough is the due date the last payment covered. A paid payment
	// goes back to pending once it passes.
	PaidThrough *time.Time `bson:"paid_through,omitempty" json:"paid_through,omitempty"`

	// DocumentID is the vendor control document monitoring this payment.
	// Empty when rule attachment failed or no card is linked.
	DocumentID  string `bson:"vctc_document_id,omitempty" json:"vctc_document_id,omitempty"`
	ControlType string `bson:"control_type,omitempty" json:"control_type,omitempty"`
	CardID      string `bson:"card_id,omitempty" json:"card_id,omitempty"`
}

// Reminder is one notification scheduled ahead of a payment's due date.
type Reminder struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`

	PaymentID   string     `bson:"payment_id" json:"payment_id"`
	UserID      string     `bson:"user_id" json:"user_id"`
	DueDate     time.Time  `bson:"due_date" json:"due_date"`
	DaysBefore  int        `bson:"days_before" json:"days_before"`
	ScheduledAt time.Time  `bson:"scheduled_at" json:"scheduled_at"`
	Sent        bool       `bson:"sent" json:"sent"`
	SentAt      *time.Time `bson:"sent_at,omitempty" json:"sent_at,omitempty"`
}
