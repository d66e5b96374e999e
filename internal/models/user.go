package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountInactive  AccountStatus = "inactive"
	AccountSuspended AccountStatus = "suspended"
)

// Valid reports whether s is one of the known account states.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountActive, AccountInactive, AccountSuspended:
		return true
	}
	return false
}

// UserProfile is the local identity record. VendorUserID is assigned once by
// the vendor profile workflow and never changes afterwards.
type UserProfile struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`

	Email        string        `bson:"email" json:"email"`
	FirstName    string        `bson:"first_name" json:"first_name"`
	LastName     string        `bson:"last_name" json:"last_name"`
	PasswordHash string        `bson:"password_hash" json:"-"`
	Status       AccountStatus `bson:"status" json:"status"`

	Notifications NotificationSettings `bson:"notifications" json:"notifications"`

	VendorUserID          string            `bson:"vendor_user_id,omitempty" json:"vendor_user_id,omitempty"`
	VendorAlertDocumentID string            `bson:"vendor_alert_document_id,omitempty" json:"vendor_alert_document_id,omitempty"`
	AlertPreferences      []AlertPreference `bson:"alert_preferences" json:"alert_preferences"`
}

// NotificationSettings are the coarse per-channel switches shown on the
// settings page.
type NotificationSettings struct {
	Email    bool `bson:"email" json:"email"`
	SMS      bool `bson:"sms" json:"sms"`
	Push     bool `bson:"push" json:"push"`
	Reminder bool `bson:"reminder" json:"reminder"`
}

type ContactType string

const (
	ContactEmail ContactType = "Email"
	ContactSMS   ContactType = "SMS"
	ContactPush  ContactType = "Push"
)

func (c ContactType) Valid() bool {
	switch c {
	case ContactEmail, ContactSMS, ContactPush:
		return true
	}
	return false
}

// Contact is one delivery destination of an alert preference.
type Contact struct {
	ContactType     ContactType `bson:"contact_type" json:"contactType"`
	ContactValue    string      `bson:"contact_value" json:"contactValue"`
	CallingCode     string      `bson:"calling_code,omitempty" json:"callingCode,omitempty"`
	PreferredFormat string      `bson:"preferred_format,omitempty" json:"preferredEmailFormat,omitempty"`
	IsVerified      bool        `bson:"is_verified" json:"isVerified"`
	Status          string      `bson:"status,omitempty" json:"status,omitempty"`
}

// AlertPreference routes one kind of vendor alert to one or more contacts.
type AlertPreference struct {
	AlertType   string    `bson:"alert_type" json:"alertType"`
	ControlType string    `bson:"control_type" json:"controlType"`
	Contacts    []Contact `bson:"contacts" json:"contacts"`
	Status      string    `bson:"status,omitempty" json:"status,omitempty"`
	PortfolioID string    `bson:"portfolio_id,omitempty" json:"portfolioID,omitempty"`
}

// PreferenceSignature identifies an alert preference for add/remove
// reconciliation: alert type, control type and the first contact.
type PreferenceSignature struct {
	AlertType    string
	ControlType  string
	ContactType  ContactType
	ContactValue string
}

// Signature returns the reconciliation key of p. Contact values are compared
// case-insensitively with surrounding space removed.
func (p AlertPreference) Signature() PreferenceSignature {
	sig := PreferenceSignature{
		AlertType:   p.AlertType,
		ControlType: p.ControlType,
	}
	if len(p.Contacts) > 0 {
		sig.ContactType = p.Contacts[0].ContactType
		sig.ContactValue = strings.ToLower(strings.TrimSpace(p.Contacts[0].ContactValue))
	}
	return sig
}
