package services_test

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/viego-wallet/viego-backend/internal/cache"
	"github.com/viego-wallet/viego-backend/internal/clock"
	"github.com/viego-wallet/viego-backend/internal/controls"
	"github.com/viego-wallet/viego-backend/internal/logging"
	"github.com/viego-wallet/viego-backend/internal/models"
	"github.com/viego-wallet/viego-backend/internal/repository"
	"github.com/viego-wallet/viego-backend/internal/services"
	"github.com/viego-wallet/viego-backend/internal/visa"
	"github.com/viego-wallet/viego-backend/internal/visa/visatest"
	"github.com/viego-wallet/viego-backend/pkg/utils"
)

const (
	testPAN       = "4111111111111111"
	documentsPath = "/vctc/customerrules/v1/consumertransactioncontrols"
	profilesPath  = "/vctc/customerrules/v1/customerinfo"
)

type env struct {
	sandbox   *visatest.Server
	clock     *clock.FakeClock
	profiles  *repository.MemoryProfiles
	cards     *repository.MemoryCards
	payments  *repository.MemoryPayments
	reminders *repository.MemoryReminders
	workflow  *controls.Service
	tracker   *services.SpendingTracker
	sender    *recordingSender
	hub       *services.Hub

	profileSvc *services.ProfileService
	cardSvc    *services.CardService
	paymentSvc *services.PaymentService
	dispatcher *services.ReminderDispatcher
}

func newEnv(t *testing.T) *env {
	t.Helper()
	sandbox := visatest.NewServer(t)
	sandbox.AddCard(testPAN,
		[]string{visa.MCTGrocery, visa.MCTAlcohol},
		[]string{visa.TCTECommerce, visa.TCTATMWithdraw},
	)
	fake := clock.Fake(time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC))
	logger := logging.Discard()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	cipher, err := utils.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}

	e := &env{
		sandbox:   sandbox,
		clock:     fake,
		profiles:  repository.NewMemoryProfiles(),
		cards:     repository.NewMemoryCards(),
		payments:  repository.NewMemoryPayments(),
		reminders: repository.NewMemoryReminders(),
		sender:    &recordingSender{},
		hub:       services.NewHub(logger),
	}
	e.workflow = controls.NewService(sandbox.NewClient(t), controls.Options{
		Clock:       fake,
		Logger:      logger,
		CallTimeout: 5 * time.Second,
	})
	e.tracker, err = services.NewSpendingTracker(repository.NewMemorySpending(), fake, "150", "0.8")
	if err != nil {
		t.Fatal(err)
	}
	e.profileSvc = services.NewProfileService(e.profiles, e.workflow, logger)
	e.cardSvc = services.NewCardService(services.CardServiceDeps{
		Cards:    e.cards,
		Payments: e.payments,
		Profiles: e.profiles,
		Workflow: e.workflow,
		Cipher:   cipher,
		Spending: e.tracker,
		Logger:   logger,
	})
	e.paymentSvc = services.NewPaymentService(services.PaymentServiceDeps{
		Payments:  e.payments,
		Reminders: e.reminders,
		Cards:     e.cardSvc,
		Workflow:  e.workflow,
		Clock:     fake,
		Logger:    logger,
	})
	e.dispatcher = services.NewReminderDispatcher(services.DispatcherDeps{
		Reminders: e.reminders,
		Payments:  e.payments,
		Profiles:  e.profiles,
		Notifier:  services.NewNotifier(e.sender, services.LocalPush{Hub: e.hub}, logger),
		Locker:    cache.NewMemoryLocker(),
		Clock:     fake,
		Logger:    logger,
	})
	return e
}

func (e *env) signup(t *testing.T, email string) *models.UserProfile {
	t.Helper()
	p, err := e.profileSvc.Signup(context.Background(), services.SignupInput{
		Email:     email,
		Password:  "correct horse battery",
		FirstName: "Ana",
		LastName:  "Lima",
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	return p
}

func (e *env) enroll(t *testing.T, userID string) *models.CardLink {
	t.Helper()
	card, err := e.cardSvc.Enroll(context.Background(), userID, testPAN)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	return card
}

type sent struct {
	channel     models.ContactType
	destination string
	note        services.Notification
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sent
	fail error
}

func (s *recordingSender) Send(_ context.Context, channel models.ContactType, destination string, n services.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, sent{channel: channel, destination: destination, note: n})
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *recordingSender) setFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

type fakeConn struct {
	mu      sync.Mutex
	written []services.Notification
	fail    bool
	closed  bool
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return context.DeadlineExceeded
	}
	c.written = append(c.written, v.(services.Notification))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
