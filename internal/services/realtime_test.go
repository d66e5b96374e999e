package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/viego-wallet/viego-backend/internal/cache"
	"github.com/viego-wallet/viego-backend/internal/logging"
	"github.com/viego-wallet/viego-backend/internal/services"
)

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return nil, cache.ErrLockHeld
}

func TestHubFansOutToTheUsersConnections(t *testing.T) {
	hub := services.NewHub(logging.Discard())
	a1, a2, b := &fakeConn{}, &fakeConn{}, &fakeConn{}
	hub.Register("a", a1)
	hub.Register("a", a2)
	hub.Register("b", b)

	if err := (services.LocalPush{Hub: hub}).Publish(context.Background(), services.Notification{UserID: "a", Title: "hi"}); err != nil {
		t.Fatal(err)
	}
	if len(a1.written) != 1 || len(a2.written) != 1 || len(b.written) != 0 {
		t.Fatalf("unexpected fan-out a1=%d a2=%d b=%d", len(a1.written), len(a2.written), len(b.written))
	}

	hub.Unregister("a", a2)
	if hub.Connections("a") != 1 {
		t.Fatalf("expected one connection left")
	}
}

func TestHubDropsBrokenConnections(t *testing.T) {
	hub := services.NewHub(logging.Discard())
	broken := &fakeConn{fail: true}
	hub.Register("a", broken)

	hub.FanOut(services.Notification{UserID: "a"})
	if !broken.closed || hub.Connections("a") != 0 {
		t.Fatalf("broken connection should be closed and removed")
	}
}
