package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CardLink associates a user's card with its vendor control document. Only
// the document id and the categories configured on it are kept; the rules
// themselves live at the vendor.
type CardLink struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`

	UserID       string `bson:"user_id" json:"user_id"`
	PANEncrypted string `bson:"pan_encrypted" json:"-"`
	PANHash      string `bson:"pan_hash" json:"-"`
	Last4        string `bson:"last4" json:"last4"`

	DocumentID           string   `bson:"document_id,omitempty" json:"document_id,omitempty"`
	ConfiguredCategories []string `bson:"configured_categories" json:"configured_categories"`
}

// CardState is the enrollment state of a card's control document.
type CardState string

const (
	CardUnenrolled CardState = "UNENROLLED"
	CardEnrolled   CardState = "ENROLLED"
	CardRuled      CardState = "RULED"
)

// State derives the card's control document state from the local link.
func (c CardLink) State() CardState {
	switch {
	case c.DocumentID == "":
		return CardUnenrolled
	case len(c.ConfiguredCategories) == 0:
		return CardEnrolled
	default:
		return CardRuled
	}
}
