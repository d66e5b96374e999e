package services_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/viego-wallet/viego-backend/internal/controls"
	"github.com/viego-wallet/viego-backend/internal/models"
	"github.com/viego-wallet/viego-backend/internal/repository"
	"github.com/viego-wallet/viego-backend/internal/services"
)

func TestSignupValidatesAndNormalizes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p := e.signup(t, " Ana@Example.com ")
	if p.Email != "ana@example.com" || p.Status != models.AccountActive {
		t.Fatalf("unexpected profile %+v", p)
	}
	if p.PasswordHash == "" || p.PasswordHash == "correct horse battery" {
		t.Fatalf("password must be hashed")
	}

	_, err := e.profileSvc.Signup(ctx, services.SignupInput{Email: "ana@example.com", Password: "another password"})
	if !errors.Is(err, repository.ErrDuplicate) || controls.Classify(err) != controls.KindRejected {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	_, err = e.profileSvc.Signup(ctx, services.SignupInput{Email: "not-an-email", Password: "long enough"})
	if controls.Classify(err) != controls.KindRejected {
		t.Fatalf("expected rejected, got %v", err)
	}
	_, err = e.profileSvc.Signup(ctx, services.SignupInput{Email: "b@example.com", Password: "short"})
	if controls.Classify(err) != controls.KindRejected {
		t.Fatalf("expected rejected, got %v", err)
	}

	if _, err := e.profileSvc.Authenticate(ctx, "ana@example.com", "correct horse battery"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := e.profileSvc.Authenticate(ctx, "ana@example.com", "wrong"); err == nil {
		t.Fatal("wrong password must fail")
	}
}

func TestSetStatusIsSoft(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.signup(t, "ana@example.com")
	id := p.ID.Hex()

	if err := e.profileSvc.SetStatus(ctx, id, models.AccountSuspended); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, err := e.profileSvc.Get(ctx, id)
	if err != nil || got.Status != models.AccountSuspended {
		t.Fatalf("expected suspended profile, got %+v (%v)", got, err)
	}
	if err := e.profileSvc.SetStatus(ctx, id, "deleted"); controls.Classify(err) != controls.KindRejected {
		t.Fatalf("unknown status should be rejected, got %v", err)
	}
	if _, err := e.profileSvc.Authenticate(ctx, "ana@example.com", "correct horse battery"); err == nil {
		t.Fatal("suspended accounts cannot sign in")
	}
}

func TestUpdateSettings(t *testing.T) {
	e := newEnv(t)
	p := e.signup(t, "ana@example.com")
	name := "  Ana Maria "
	off := models.NotificationSettings{Email: false, Push: true}

	got, err := e.profileSvc.UpdateSettings(context.Background(), p.ID.Hex(), repository.ProfileUpdate{
		FirstName:     &name,
		Notifications: &off,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.FirstName != "Ana Maria" || got.LastName != "Lima" || got.Notifications != off {
		t.Fatalf("unexpected profile %+v", got)
	}
}

func TestLinkVendorProfileIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.signup(t, "ana@example.com")
	id := p.ID.Hex()

	linked, first, err := e.profileSvc.LinkVendorProfile(ctx, id)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	want := services.VendorUserID(id)
	if !first.Created || linked.VendorUserID != want {
		t.Fatalf("unexpected first link %+v / %+v", first, linked)
	}

	_, second, err := e.profileSvc.LinkVendorProfile(ctx, id)
	if err != nil {
		t.Fatalf("second link: %v", err)
	}
	if second.Created || second.UserIdentifier != want {
		t.Fatalf("second link must reuse the profile, got %+v", second)
	}
	if n := e.sandbox.Calls(http.MethodPost, profilesPath); n != 1 {
		t.Fatalf("expected one profile creation, got %d", n)
	}

	if err := e.profiles.SetVendorUserID(ctx, id, "someone-else"); !errors.Is(err, repository.ErrVendorIDImmutable) {
		t.Fatalf("vendor id must be immutable, got %v", err)
	}
}

func TestAlertPreferencesSyncToVendor(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.signup(t, "ana@example.com")
	id := p.ID.Hex()
	if _, _, err := e.profileSvc.LinkVendorProfile(ctx, id); err != nil {
		t.Fatalf("link: %v", err)
	}
	vendorPath := profilesPath + "/" + services.VendorUserID(id)

	grocery := models.AlertPreference{
		AlertType:   "PUSH_ALERT",
		ControlType: "MCT_GROCERY",
		Contacts:    []models.Contact{{ContactType: models.ContactSMS, ContactValue: "5550100", CallingCode: "1"}},
	}
	list, err := e.profileSvc.AddAlertPreferences(ctx, id, []models.AlertPreference{grocery, grocery})
	if err != nil || len(list) != 2 {
		t.Fatalf("add: %d %v", len(list), err)
	}
	if n := e.sandbox.Calls(http.MethodPut, vendorPath); n != 1 {
		t.Fatalf("expected one vendor update, got %d", n)
	}

	list, err = e.profileSvc.RemoveAlertPreferences(ctx, id, []models.AlertPreference{grocery})
	if err != nil || len(list) != 0 {
		t.Fatalf("remove should drop both entries: %d %v", len(list), err)
	}

	// Vendor outage does not fail the local change.
	e.sandbox.FailNext(http.MethodGet, vendorPath, http.StatusServiceUnavailable, 3)
	list, err = e.profileSvc.ReplaceAlertPreferences(ctx, id, []models.AlertPreference{grocery})
	if err != nil || len(list) != 1 {
		t.Fatalf("replace: %d %v", len(list), err)
	}
	stored, _ := e.profileSvc.Get(ctx, id)
	if len(stored.AlertPreferences) != 1 {
		t.Fatalf("local list not saved: %+v", stored.AlertPreferences)
	}

	if _, err := e.profileSvc.AddAlertPreferences(ctx, id, []models.AlertPreference{{AlertType: "X"}}); controls.Classify(err) != controls.KindRejected {
		t.Fatalf("invalid preference should be rejected, got %v", err)
	}
}
