package models

import (
	"encoding/json"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestMoneyBSONStoresDecimal128(t *testing.T) {
	type doc struct {
		Amount Money `bson:"amount"`
	}

	data, err := bson.Marshal(doc{Amount: MustMoney("45.10")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	raw := bson.Raw(data).Lookup("amount")
	if _, ok := raw.Decimal128OK(); !ok {
		t.Fatalf("expected Decimal128, got %s", raw.Type)
	}

	var out doc
	if err := bson.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Amount.Equal(MustMoney("45.1").Decimal) {
		t.Fatalf("expected 45.1, got %s", out.Amount)
	}
}

func TestMoneyBSONAcceptsLegacyDoubles(t *testing.T) {
	data, err := bson.Marshal(bson.M{"amount": 12.5})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out struct {
		Amount Money `bson:"amount"`
	}
	if err := bson.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Amount.String() != "12.5" {
		t.Fatalf("expected 12.5, got %s", out.Amount)
	}
}

func TestMoneyJSONIsANumber(t *testing.T) {
	data, err := json.Marshal(struct {
		Amount Money `json:"amount"`
	}{MustMoney("200")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"amount":200}` {
		t.Fatalf("unexpected json %s", data)
	}

	var in struct {
		Amount Money `json:"amount"`
	}
	if err := json.Unmarshal([]byte(`{"amount":"19.99"}`), &in); err != nil {
		t.Fatalf("quoted amounts should decode: %v", err)
	}
	if in.Amount.String() != "19.99" {
		t.Fatalf("expected 19.99, got %s", in.Amount)
	}
}

func TestAlertPreferenceSignatureUsesFirstContact(t *testing.T) {
	p := AlertPreference{
		AlertType:   "PUSH_ALERT",
		ControlType: "MCT_GROCERY",
		Contacts: []Contact{
			{ContactType: ContactEmail, ContactValue: " Ana@Example.com "},
			{ContactType: ContactSMS, ContactValue: "5550100"},
		},
	}
	sig := p.Signature()
	if sig.ContactType != ContactEmail || sig.ContactValue != "ana@example.com" {
		t.Fatalf("unexpected signature %+v", sig)
	}
}

func TestCardLinkState(t *testing.T) {
	if got := (CardLink{}).State(); got != CardUnenrolled {
		t.Fatalf("expected UNENROLLED, got %s", got)
	}
	if got := (CardLink{DocumentID: "doc"}).State(); got != CardEnrolled {
		t.Fatalf("expected ENROLLED, got %s", got)
	}
	if got := (CardLink{DocumentID: "doc", ConfiguredCategories: []string{"MCT_GROCERY"}}).State(); got != CardRuled {
		t.Fatalf("expected RULED, got %s", got)
	}
}
