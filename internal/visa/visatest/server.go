// Package visatest runs an in-process stand-in for the transaction controls
// sandbox. It keeps profiles, control documents and cumulative spend in
// memory and evaluates decision requests against the stored rules, so the
// orchestration workflow can be exercised end to end over real TLS.
package visatest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/viego-wallet/viego-backend/internal/config"
	"github.com/viego-wallet/viego-backend/internal/visa"
)

// Credentials the fake accepts.
const (
	UserID       = "sandbox-user"
	Password     = "sandbox-password"
	APIKey       = "sandbox-api-key"
	SharedSecret = "sandbox-shared-secret"
)

// Call is one request the fake received.
type Call struct {
	Method string
	Path   string
	Body   []byte
	Header http.Header
}

type cannedResponse struct {
	status int
	body   string
}

type card struct {
	merchantTypes    []string
	transactionTypes []string
}

type document struct {
	id             string
	pan            string
	userIdentifier string
	merchant       []visa.ControlRule
	transaction    []visa.ControlRule
}

// Server is the fake sandbox. The zero value is not usable; call NewServer.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	profiles  map[string]visa.CustomerProfile
	cards     map[string]card
	documents map[string]*document
	byPAN     map[string]string
	spend     map[string]float64
	canned    map[string][]cannedResponse
	alerts    []visa.Notification
	calls     []Call
}

// NewServer starts a TLS server. It is closed automatically when t ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		profiles:  make(map[string]visa.CustomerProfile),
		cards:     make(map[string]card),
		documents: make(map[string]*document),
		byPAN:     make(map[string]string),
		spend:     make(map[string]float64),
		canned:    make(map[string][]cannedResponse),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /vctc/customerrules/v1/customerinfo/{id}", s.getProfile)
	mux.HandleFunc("POST /vctc/customerrules/v1/customerinfo", s.createProfile)
	mux.HandleFunc("PUT /vctc/customerrules/v1/customerinfo/{id}", s.updateProfile)
	mux.HandleFunc("POST /vctc/customerrules/v1/consumertransactioncontrols", s.enroll)
	mux.HandleFunc("POST /vctc/customerrules/v1/consumertransactioncontrols/inquiries/cardinquiry", s.cardInquiry)
	mux.HandleFunc("GET /vctc/customerrules/v1/consumertransactioncontrols/{id}", s.getDocument)
	mux.HandleFunc("DELETE /vctc/customerrules/v1/consumertransactioncontrols/{id}", s.deleteDocument)
	mux.HandleFunc("POST /vctc/customerrules/v1/consumertransactioncontrols/{id}/rules", s.addRules)
	mux.HandleFunc("PUT /vctc/customerrules/v1/consumertransactioncontrols/{id}/rules", s.replaceRules)
	mux.HandleFunc("POST /vctc/customerrules/v1/merchanttypecontrols/cardinquiry", s.merchantTypes)
	mux.HandleFunc("POST /vctc/customerrules/v1/transactiontypecontrols/cardinquiry", s.transactionTypes)
	mux.HandleFunc("POST /vctc/authorizationdecision/v1/decisions", s.decide)
	mux.HandleFunc("POST /vctc/alerthistory/v1/inquiries", s.alertHistory)

	s.Server = httptest.NewTLSServer(s.intercept(mux))
	t.Cleanup(s.Server.Close)
	return s
}

// Config returns a VisaConfig pointing at the fake with valid credentials.
func (s *Server) Config() config.VisaConfig {
	return config.VisaConfig{
		BaseURL:      s.URL,
		UserID:       UserID,
		Password:     Password,
		APIKey:       APIKey,
		SharedSecret: SharedSecret,
		CallTimeout:  5 * time.Second,
		MaxAttempts:  3,
	}
}

// NewClient returns a gateway client that trusts the fake's certificate.
func (s *Server) NewClient(t testing.TB, opts ...visa.ClientOption) *visa.Client {
	t.Helper()
	transport, err := visa.NewTransportFromClient(s.Server.Client(), s.Config())
	if err != nil {
		t.Fatalf("visatest transport: %v", err)
	}
	client, err := visa.NewClient(s.URL, transport, opts...)
	if err != nil {
		t.Fatalf("visatest client: %v", err)
	}
	return client
}

// AddCard makes pan eligible for enrollment with the given control types.
func (s *Server) AddCard(pan string, merchantTypes, transactionTypes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[pan] = card{merchantTypes: merchantTypes, transactionTypes: transactionTypes}
}

// AddProfile seeds an existing customer profile.
func (s *Server) AddProfile(p visa.CustomerProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserIdentifier] = p
}

// SetSpend seeds the cumulative approved spend for a card and control type.
func (s *Server) SetSpend(pan, controlType string, amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spend[pan+"|"+controlType] = amount
}

// Spend returns the cumulative approved spend for a card and control type.
func (s *Server) Spend(pan, controlType string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spend[pan+"|"+controlType]
}

// FailNext makes the next n requests to method+path answer with status.
func (s *Server) FailNext(method, path string, status, n int) {
	body := fmt.Sprintf(`{"responseStatus":{"status":%d,"code":"INJECTED","severity":"ERROR","message":"injected failure"}}`, status)
	for i := 0; i < n; i++ {
		s.RespondNext(method, path, status, body)
	}
}

// RespondNext queues a raw response for the next request to method+path.
func (s *Server) RespondNext(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.canned[key] = append(s.canned[key], cannedResponse{status: status, body: body})
}

// Calls returns the number of requests received for method+path.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// Requests returns every request received for method+path, in order.
func (s *Server) Requests(method, path string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// MutatingCalls counts requests that change vendor state. Inquiries and
// decision simulations are POSTs but read-only.
func (s *Server) MutatingCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == http.MethodGet || strings.Contains(c.Path, "inquir") || strings.HasSuffix(c.Path, "/decisions") {
			continue
		}
		n++
	}
	return n
}

// Document returns a stored control document.
func (s *Server) Document(id string) (visa.ControlDocument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return visa.ControlDocument{}, false
	}
	return d.resource(), true
}

// DocumentForPAN returns the id of the document enrolled for pan.
func (s *Server) DocumentForPAN(pan string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byPAN[pan]
}

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Body: body, Header: r.Header.Clone()})
		key := r.Method + " " + r.URL.Path
		var canned *cannedResponse
		if queue := s.canned[key]; len(queue) > 0 {
			canned = &queue[0]
			s.canned[key] = queue[1:]
		}
		s.mu.Unlock()

		if canned != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(canned.status)
			io.WriteString(w, canned.body)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok || user != UserID || pass != Password {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
			return
		}
		if r.URL.Query().Get("apikey") != "" && !strings.HasPrefix(r.Header.Get("x-pay-token"), "xv2:") {
			writeError(w, http.StatusUnauthorized, "MISSING_PAY_TOKEN", "x-pay-token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, resource any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"resource": resource})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"responseStatus": map[string]any{
			"status":   status,
			"code":     code,
			"severity": "ERROR",
			"message":  message,
		},
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed JSON body")
		return false
	}
	return true
}

func (d *document) resource() visa.ControlDocument {
	return visa.ControlDocument{
		DocumentID:          d.id,
		UserIdentifier:      d.userIdentifier,
		MerchantControls:    append([]visa.ControlRule(nil), d.merchant...),
		TransactionControls: append([]visa.ControlRule(nil), d.transaction...),
	}
}

func (s *Server) newDocumentID() string {
	return "ctc-vd-" + uuid.NewString()
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// validateRules reports the first control type the card does not support.
// Caller holds s.mu.
func (s *Server) validateRules(pan string, set visa.RuleSet) string {
	c := s.cards[pan]
	for _, r := range set.MerchantControls {
		if !contains(c.merchantTypes, r.ControlType) {
			return r.ControlType
		}
	}
	for _, r := range set.TransactionControls {
		if !contains(c.transactionTypes, r.ControlType) {
			return r.ControlType
		}
	}
	return ""
}
