package app

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/viego-wallet/viego-backend/internal/config"
	"github.com/viego-wallet/viego-backend/internal/controls"
	"github.com/viego-wallet/viego-backend/internal/logging"
	"github.com/viego-wallet/viego-backend/internal/services"
)

func testConfig(env map[string]string) *config.Config {
	return config.LoadFrom(func(k string) string { return env[k] })
}

func TestWithoutVendorCredentialsCardCallsFailAsConfig(t *testing.T) {
	a, err := NewWithStores(testConfig(nil), logging.Discard(), MemoryStores())
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	if a.VendorErr == nil {
		t.Fatal("expected a vendor configuration error")
	}
	if _, ok := a.Checks(context.Background())["vendor"]; !ok {
		t.Fatal("vendor problem should show up in health checks")
	}

	ctx := context.Background()
	user, err := a.Profiles.Signup(ctx, services.SignupInput{Email: "ana@example.com", Password: "correct horse battery"})
	if err != nil {
		t.Fatalf("signup should work without the vendor: %v", err)
	}
	_, err = a.Cards.Enroll(ctx, user.ID.Hex(), "4111111111111111")
	if kind := controls.Classify(err); kind != controls.KindConfig {
		t.Fatalf("expected config kind, got %q (%v)", kind, err)
	}
}

func TestProductionRequiresEncryptionKey(t *testing.T) {
	_, err := NewWithStores(testConfig(map[string]string{"ENV": "production"}), logging.Discard(), MemoryStores())
	if err == nil || !strings.Contains(err.Error(), "ENCRYPTION_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}

	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	if _, err := NewWithStores(testConfig(map[string]string{"ENV": "production", "ENCRYPTION_KEY": key}), logging.Discard(), MemoryStores()); err != nil {
		t.Fatalf("valid key should wire: %v", err)
	}
}

func TestBadSpendingConfigIsRejected(t *testing.T) {
	_, err := NewWithStores(testConfig(map[string]string{"SPENDING_ALERT_RATIO": "1.5"}), logging.Discard(), MemoryStores())
	if err == nil {
		t.Fatal("alert ratio above 1 should fail")
	}
}
