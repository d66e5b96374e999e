package handlers_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/viego-wallet/viego-backend/internal/cache"
	"github.com/viego-wallet/viego-backend/internal/clock"
	"github.com/viego-wallet/viego-backend/internal/controls"
	"github.com/viego-wallet/viego-backend/internal/handlers"
	"github.com/viego-wallet/viego-backend/internal/logging"
	"github.com/viego-wallet/viego-backend/internal/middleware"
	"github.com/viego-wallet/viego-backend/internal/repository"
	"github.com/viego-wallet/viego-backend/internal/routes"
	"github.com/viego-wallet/viego-backend/internal/services"
	"github.com/viego-wallet/viego-backend/internal/visa"
	"github.com/viego-wallet/viego-backend/internal/visa/visatest"
	"github.com/viego-wallet/viego-backend/pkg/utils"
)

const (
	testPAN       = "4111111111111111"
	decisionsPath = "/vctc/authorizationdecision/v1/decisions"
	documentsPath = "/vctc/customerrules/v1/consumertransactioncontrols"
)

type harness struct {
	t       *testing.T
	sandbox *visatest.Server
	hub     *services.Hub
	server  *httptest.Server
	checks  map[string]error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sandbox := visatest.NewServer(t)
	sandbox.AddCard(testPAN, []string{visa.MCTGrocery, visa.MCTAlcohol}, []string{visa.TCTECommerce})
	logger := logging.Discard()
	clk := clock.Real()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	cipher, err := utils.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}

	profiles := repository.NewMemoryProfiles()
	cards := repository.NewMemoryCards()
	payments := repository.NewMemoryPayments()
	reminders := repository.NewMemoryReminders()

	workflow := controls.NewService(sandbox.NewClient(t), controls.Options{
		Clock:       clk,
		Logger:      logger,
		Retry:       controls.RetryPolicy{MaxAttempts: 1},
		CallTimeout: 5 * time.Second,
	})
	tracker, err := services.NewSpendingTracker(repository.NewMemorySpending(), clk, "500", "0.8")
	if err != nil {
		t.Fatal(err)
	}
	cardSvc := services.NewCardService(services.CardServiceDeps{
		Cards:    cards,
		Payments: payments,
		Profiles: profiles,
		Workflow: workflow,
		Cipher:   cipher,
		Spending: tracker,
		Logger:   logger,
	})
	hub := services.NewHub(logger)

	h := &harness{t: t, sandbox: sandbox, hub: hub, checks: map[string]error{"mongo": nil}}
	api := &handlers.Handlers{
		Profiles: services.NewProfileService(profiles, workflow, logger),
		Cards:    cardSvc,
		Payments: services.NewPaymentService(services.PaymentServiceDeps{
			Payments:  payments,
			Reminders: reminders,
			Cards:     cardSvc,
			Workflow:  workflow,
			Clock:     clk,
			Logger:    logger,
		}),
		Dispatcher: services.NewReminderDispatcher(services.DispatcherDeps{
			Reminders: reminders,
			Payments:  payments,
			Profiles:  profiles,
			Notifier:  services.NewNotifier(services.LogSender{Logger: logger}, services.LocalPush{Hub: hub}, logger),
			Locker:    cache.NewMemoryLocker(),
			Clock:     clk,
			Logger:    logger,
		}),
		Spending: tracker,
		Hub:      hub,
		Checks:   func(context.Context) map[string]error { return h.checks },
		Logger:   logger,
	}

	generous := middleware.NewIPLimiter(rate.Inf, 1)
	r := chi.NewRouter()
	routes.SetupRoutes(r, api, middleware.Limiters{Global: generous, Auth: generous, Vendor: generous})
	h.server = httptest.NewServer(r)
	t.Cleanup(h.server.Close)
	return h
}

type reply struct {
	status int
	body   map[string]interface{}
}

func (r reply) kind() string {
	k, _ := r.body["error_kind"].(string)
	return k
}

func (r reply) object(key string) map[string]interface{} {
	m, _ := r.body[key].(map[string]interface{})
	return m
}

func (h *harness) do(method, path string, body interface{}) reply {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, h.server.URL+path, &buf)
	if err != nil {
		h.t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.server.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := reply{status: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(&out.body); err != nil {
		h.t.Fatalf("%s %s: decode reply: %v", method, path, err)
	}
	return out
}

func (h *harness) signup(email string) string {
	h.t.Helper()
	res := h.do(http.MethodPost, "/api/auth/signup", map[string]string{
		"email": email, "password": "correct horse battery", "first_name": "Ana",
	})
	if res.status != http.StatusCreated {
		h.t.Fatalf("signup: %d %v", res.status, res.body)
	}
	return res.object("user")["id"].(string)
}

func (h *harness) enroll(userID string) string {
	h.t.Helper()
	res := h.do(http.MethodPost, "/api/users/"+userID+"/cards", map[string]string{"pan": testPAN})
	if res.status != http.StatusCreated {
		h.t.Fatalf("enroll: %d %v", res.status, res.body)
	}
	return res.object("card")["id"].(string)
}

func TestSignupAndSignin(t *testing.T) {
	h := newHarness(t)
	h.signup("ana@example.com")

	dup := h.do(http.MethodPost, "/api/auth/signup", map[string]string{
		"email": "ANA@example.com", "password": "correct horse battery",
	})
	if dup.status != http.StatusUnprocessableEntity || dup.kind() != "rejected" {
		t.Fatalf("duplicate email: %d %v", dup.status, dup.body)
	}

	short := h.do(http.MethodPost, "/api/auth/signup", map[string]string{
		"email": "bo@example.com", "password": "short",
	})
	if short.status != http.StatusUnprocessableEntity {
		t.Fatalf("short password: %d %v", short.status, short.body)
	}

	bad := h.do(http.MethodPost, "/api/auth/signin", map[string]string{
		"email": "ana@example.com", "password": "wrong password",
	})
	if bad.status != http.StatusUnauthorized {
		t.Fatalf("wrong password: %d %v", bad.status, bad.body)
	}
	good := h.do(http.MethodPost, "/api/auth/signin", map[string]string{
		"email": "ana@example.com", "password": "correct horse battery",
	})
	if good.status != http.StatusOK || good.object("user")["email"] != "ana@example.com" {
		t.Fatalf("signin: %d %v", good.status, good.body)
	}
	if _, leaked := good.object("user")["password_hash"]; leaked {
		t.Fatal("password hash must not be serialised")
	}
}

func TestUnknownFieldsAreRejected(t *testing.T) {
	h := newHarness(t)
	res := h.do(http.MethodPost, "/api/auth/signup", map[string]string{"email": "a@b.co", "nickname": "x"})
	if res.status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.status)
	}
}

func TestCardWorkflowOverHTTP(t *testing.T) {
	h := newHarness(t)
	user := h.signup("ana@example.com")

	linked := h.do(http.MethodPost, "/api/users/"+user+"/vendor-profile", nil)
	if linked.status != http.StatusCreated || linked.body["vendor_user_id"] == "" {
		t.Fatalf("link vendor profile: %d %v", linked.status, linked.body)
	}
	if again := h.do(http.MethodPost, "/api/users/"+user+"/vendor-profile", nil); again.status != http.StatusOK {
		t.Fatalf("second link should be a no-op 200, got %d", again.status)
	}

	card := h.enroll(user)
	base := "/api/users/" + user + "/cards/" + card

	avail := h.do(http.MethodGet, base+"/controls", nil)
	if avail.status != http.StatusOK || avail.body["complete"] != true {
		t.Fatalf("controls: %d %v", avail.status, avail.body)
	}

	attach := h.do(http.MethodPost, base+"/rules", map[string]interface{}{
		"rules": []visa.ControlRule{{
			ControlType:      visa.MCTGrocery,
			IsControlEnabled: true,
			AlertThreshold:   visa.Amount(150),
			DeclineThreshold: visa.Amount(300),
		}},
	})
	if attach.status != http.StatusOK {
		t.Fatalf("attach: %d %v", attach.status, attach.body)
	}

	unsupported := h.do(http.MethodPost, base+"/rules", map[string]interface{}{
		"rules": []visa.ControlRule{{ControlType: visa.MCTAirfare, IsControlEnabled: true, ShouldDeclineAll: true}},
	})
	if unsupported.status != http.StatusUnprocessableEntity || unsupported.kind() != "rejected" {
		t.Fatalf("unsupported control: %d %v", unsupported.status, unsupported.body)
	}

	purchase := func(amount string) reply {
		return h.do(http.MethodPost, base+"/decisions", map[string]interface{}{
			"amount":        json.RawMessage(amount),
			"merchant_name": "Corner Grocer",
			"category_code": "5411",
		})
	}
	first := purchase("145")
	if first.status != http.StatusOK || first.object("decision")["approved"] != true {
		t.Fatalf("first purchase: %d %v", first.status, first.body)
	}
	if first.object("spending") == nil {
		t.Fatal("approved purchase should report spending")
	}
	second := purchase("200")
	if second.object("decision")["approved"] != false || second.body["message"] != "Transaction declined" {
		t.Fatalf("second purchase should be declined: %v", second.body)
	}

	spending := h.do(http.MethodGet, "/api/users/"+user+"/spending", nil)
	if total := spending.object("spending")["total"]; total != float64(145) {
		t.Fatalf("expected 145 spent, got %v", total)
	}

	alerts := h.do(http.MethodGet, base+"/alerts?limit=10", nil)
	if alerts.status != http.StatusOK {
		t.Fatalf("alerts: %d %v", alerts.status, alerts.body)
	}
	if bad := h.do(http.MethodGet, base+"/alerts?limit=-1", nil); bad.status != http.StatusUnprocessableEntity {
		t.Fatalf("negative limit: %d", bad.status)
	}

	del := h.do(http.MethodDelete, base+"/document", nil)
	if del.status != http.StatusOK {
		t.Fatalf("delete document: %d %v", del.status, del.body)
	}
	gone := h.do(http.MethodGet, base+"/document", nil)
	if gone.status != http.StatusNotFound || gone.kind() != "not_found" {
		t.Fatalf("document after delete: %d %v", gone.status, gone.body)
	}
}

func TestVendorOutageMapsToBadGateway(t *testing.T) {
	h := newHarness(t)
	user := h.signup("ana@example.com")
	card := h.enroll(user)

	h.sandbox.FailNext(http.MethodPost, decisionsPath, http.StatusServiceUnavailable, 1)
	res := h.do(http.MethodPost, "/api/users/"+user+"/cards/"+card+"/decisions", map[string]interface{}{
		"amount": 20, "merchant_name": "Corner Grocer", "category_code": "5411",
	})
	if res.status != http.StatusBadGateway || res.kind() != "unreachable" {
		t.Fatalf("expected 502 unreachable, got %d %v", res.status, res.body)
	}
}

func TestDocumentMissingAtVendorIsDistinctFromLocal(t *testing.T) {
	h := newHarness(t)
	user := h.signup("ana@example.com")
	card := h.enroll(user)
	base := "/api/users/" + user + "/cards/" + card

	doc := h.do(http.MethodGet, base, nil).object("card")["document_id"].(string)
	h.sandbox.RespondNext(http.MethodGet, documentsPath+"/"+doc, http.StatusNotFound,
		`{"responseStatus":{"status":404,"code":"DOCUMENT_NOT_FOUND","message":"control document not found"}}`)

	res := h.do(http.MethodGet, base+"/document", nil)
	if res.status != http.StatusNotFound || res.kind() != "vendor_not_found" {
		t.Fatalf("expected 404 vendor_not_found, got %d %v", res.status, res.body)
	}

	missing := h.do(http.MethodGet, "/api/users/"+user+"/cards/000000000000000000000000", nil)
	if missing.status != http.StatusNotFound || missing.kind() != "not_found" {
		t.Fatalf("expected 404 not_found, got %d %v", missing.status, missing.body)
	}
}

func TestCardsOfOtherUsersAreNotFound(t *testing.T) {
	h := newHarness(t)
	owner := h.signup("ana@example.com")
	other := h.signup("bo@example.com")
	card := h.enroll(owner)

	res := h.do(http.MethodGet, "/api/users/"+other+"/cards/"+card, nil)
	if res.status != http.StatusNotFound || res.kind() != "not_found" {
		t.Fatalf("expected 404, got %d %v", res.status, res.body)
	}
}

func TestPaymentLifecycle(t *testing.T) {
	h := newHarness(t)
	user := h.signup("ana@example.com")
	card := h.enroll(user)

	created := h.do(http.MethodPost, "/api/users/"+user+"/payments", map[string]interface{}{
		"merchant_name": "Corner Grocer",
		"category_code": "5411",
		"amount":        120,
		"frequency":     "monthly",
		"due_day":       15,
		"card_id":       card,
	})
	if created.status != http.StatusCreated || created.body["monitored"] != true {
		t.Fatalf("create payment: %d %v", created.status, created.body)
	}
	payment := created.object("payment")["id"].(string)
	base := "/api/users/" + user + "/payments/" + payment

	reminders := h.do(http.MethodGet, base+"/reminders", nil)
	if list, _ := reminders.body["reminders"].([]interface{}); len(list) != 3 {
		t.Fatalf("expected 3 reminders, got %v", reminders.body)
	}

	before := created.object("payment")["next_due_date"].(string)
	paid := h.do(http.MethodPost, base+"/paid", nil)
	if paid.status != http.StatusOK || paid.object("payment")["next_due_date"] == before {
		t.Fatalf("mark paid should advance the due date: %v", paid.body)
	}

	invalid := h.do(http.MethodPost, "/api/users/"+user+"/payments", map[string]interface{}{
		"merchant_name": "Gym", "amount": 30, "frequency": "hourly",
	})
	if invalid.status != http.StatusUnprocessableEntity {
		t.Fatalf("bad frequency: %d %v", invalid.status, invalid.body)
	}

	if del := h.do(http.MethodDelete, base, nil); del.status != http.StatusOK {
		t.Fatalf("delete: %d %v", del.status, del.body)
	}
	if gone := h.do(http.MethodGet, base, nil); gone.status != http.StatusNotFound {
		t.Fatalf("payment should be gone, got %d", gone.status)
	}
}

func TestDispatchEndpoint(t *testing.T) {
	h := newHarness(t)
	res := h.do(http.MethodPost, "/api/reminders/dispatch", nil)
	if res.status != http.StatusOK {
		t.Fatalf("dispatch: %d %v", res.status, res.body)
	}
	if report := res.object("report"); report["due"] != float64(0) {
		t.Fatalf("unexpected report %v", report)
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	if res := h.do(http.MethodGet, "/health", nil); res.status != http.StatusOK {
		t.Fatalf("health: %d %v", res.status, res.body)
	}
	h.checks["redis"] = errors.New("connection refused")
	res := h.do(http.MethodGet, "/health", nil)
	if res.status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.status)
	}
	if !strings.Contains(res.object("components")["redis"].(string), "refused") {
		t.Fatalf("redis failure not reported: %v", res.body)
	}
}

func TestNotificationsWebsocketReceivesPush(t *testing.T) {
	h := newHarness(t)
	user := h.signup("ana@example.com")

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/notifications?user_id=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.hub.Connections(user) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.hub.FanOut(services.Notification{Type: "payment_reminder", UserID: user, Title: "Rent due in 3 days"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got services.Notification
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Title != "Rent due in 3 days" || got.UserID != user {
		t.Fatalf("unexpected notification %+v", got)
	}
}

func TestNotificationsWebsocketRequiresKnownUser(t *testing.T) {
	h := newHarness(t)
	if res := h.do(http.MethodGet, "/ws/notifications", nil); res.status != http.StatusBadRequest {
		t.Fatalf("missing user_id: %d", res.status)
	}
	res := h.do(http.MethodGet, "/ws/notifications?user_id=65f000000000000000000000", nil)
	if res.status != http.StatusNotFound {
		t.Fatalf("unknown user: %d %v", res.status, res.body)
	}
}
