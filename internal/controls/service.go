// Package controls orchestrates the vendor transaction-control workflow:
// customer profiles, card enrollment, control discovery, rule attachment,
// decision simulation and alert history. Every step is one vendor round
// trip; nothing here coordinates several calls atomically, so each
// operation is written to be safely re-run after a partial failure.
package controls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/viego-wallet/viego-backend/internal/clock"
	"github.com/viego-wallet/viego-backend/internal/models"
	"github.com/viego-wallet/viego-backend/internal/visa"
)

// Gateway is the subset of the vendor client the workflow uses.
type Gateway interface {
	GetProfile(ctx context.Context, userIdentifier string) (*visa.CustomerProfile, error)
	CreateProfile(ctx context.Context, profile visa.CustomerProfile) (*visa.CustomerProfile, error)
	UpdateProfile(ctx context.Context, profile visa.CustomerProfile) (*visa.CustomerProfile, error)
	Enroll(ctx context.Context, req visa.EnrollRequest) (string, error)
	FindDocument(ctx context.Context, pan string) (string, error)
	GetDocument(ctx context.Context, documentID string) (*visa.ControlDocument, error)
	AddRules(ctx context.Context, documentID string, rules visa.RuleSet) (*visa.ControlDocument, error)
	ReplaceRules(ctx context.Context, documentID string, rules visa.RuleSet) (*visa.ControlDocument, error)
	DeleteDocument(ctx context.Context, documentID string) error
	MerchantTypes(ctx context.Context, pan string) ([]string, error)
	TransactionTypes(ctx context.Context, pan string) ([]string, error)
	Decide(ctx context.Context, req visa.DecisionRequest) (*visa.Decision, error)
	AlertHistory(ctx context.Context, req visa.AlertHistoryRequest) (*visa.AlertHistory, error)
}

// Options configures a Service. Zero values get defaults.
type Options struct {
	Cache       DiscoveryCache
	Clock       clock.Clock
	Logger      *slog.Logger
	Retry       RetryPolicy
	CallTimeout time.Duration
}

// Service runs the orchestration workflow against one vendor gateway.
type Service struct {
	gateway     Gateway
	cache       DiscoveryCache
	clock       clock.Clock
	logger      *slog.Logger
	retry       RetryPolicy
	callTimeout time.Duration
}

// NewService builds a Service.
func NewService(gateway Gateway, opts Options) *Service {
	s := &Service{
		gateway:     gateway,
		cache:       opts.Cache,
		clock:       opts.Clock,
		logger:      opts.Logger,
		retry:       opts.Retry,
		callTimeout: opts.CallTimeout,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.cache == nil {
		s.cache = NewMemoryCache(10*time.Minute, s.clock)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.retry.MaxAttempts == 0 {
		s.retry = DefaultRetryPolicy()
	}
	if s.callTimeout <= 0 {
		s.callTimeout = 10 * time.Second
	}
	return s
}

// Identity describes the local user a vendor profile is kept for.
// UserIdentifier must be stable for the user so that repeated calls find
// the same profile.
type Identity struct {
	UserIdentifier    string
	FirstName         string
	LastName          string
	CountryCode       string
	PreferredLanguage string
	Alerts            []visa.AlertPreference
}

// ProfileResult reports the vendor profile id and whether this call
// created it.
type ProfileResult struct {
	UserIdentifier string `json:"user_identifier"`
	Created        bool   `json:"created"`
}

// EnsureProfile returns the vendor profile for id, creating it only when
// the vendor reports it absent. A second call with the same identity makes
// no mutating call.
func (s *Service) EnsureProfile(ctx context.Context, id Identity) (ProfileResult, error) {
	if id.UserIdentifier == "" {
		return ProfileResult{}, &Error{Kind: KindRejected, Op: "ensure profile", Err: errors.New("user identifier is required")}
	}

	var existing *visa.CustomerProfile
	err := s.call(ctx, "get profile", func(ctx context.Context) error {
		p, err := s.gateway.GetProfile(ctx, id.UserIdentifier)
		existing = p
		return err
	})
	if err == nil {
		return ProfileResult{UserIdentifier: existing.UserIdentifier}, nil
	}
	if !visa.IsNotFound(err) {
		return ProfileResult{}, err
	}

	profile := visa.CustomerProfile{
		UserIdentifier:     id.UserIdentifier,
		FirstName:          id.FirstName,
		LastName:           id.LastName,
		CountryCode:        defaultString(id.CountryCode, "USA"),
		PreferredLanguage:  defaultString(id.PreferredLanguage, "en-us"),
		DefaultAlertsPrefs: id.Alerts,
		IsProfileActive:    true,
	}
	var created *visa.CustomerProfile
	err = s.call(ctx, "create profile", func(ctx context.Context) error {
		p, err := s.gateway.CreateProfile(ctx, profile)
		created = p
		return err
	})
	if isConflict(err) {
		// Created by a concurrent or earlier timed-out attempt.
		return ProfileResult{UserIdentifier: id.UserIdentifier}, nil
	}
	if err != nil {
		return ProfileResult{}, err
	}

	s.logger.Info("vendor profile created", "user_identifier", created.UserIdentifier)
	return ProfileResult{UserIdentifier: created.UserIdentifier, Created: true}, nil
}

// SyncAlertPreferences pushes the user's alert routing to the vendor
// profile.
func (s *Service) SyncAlertPreferences(ctx context.Context, userIdentifier string, alerts []visa.AlertPreference) error {
	var current *visa.CustomerProfile
	err := s.call(ctx, "get profile", func(ctx context.Context) error {
		p, err := s.gateway.GetProfile(ctx, userIdentifier)
		current = p
		return err
	})
	if err != nil {
		return err
	}

	updated := *current
	updated.DefaultAlertsPrefs = alerts
	return s.call(ctx, "update profile", func(ctx context.Context) error {
		_, err := s.gateway.UpdateProfile(ctx, updated)
		return err
	})
}

// EnrollCard returns the control document for pan, enrolling the card only
// when the vendor has no document for it yet. Re-running after a crash
// between enrollment and local save returns the same document.
func (s *Service) EnrollCard(ctx context.Context, pan, userIdentifier string) (string, error) {
	if pan == "" {
		return "", &Error{Kind: KindRejected, Op: "enroll card", Err: errors.New("card number is required")}
	}
	existing, err := s.findDocument(ctx, pan)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}
	return s.enroll(ctx, visa.EnrollRequest{PrimaryAccountNumber: pan, UserIdentifier: userIdentifier})
}

func (s *Service) findDocument(ctx context.Context, pan string) (string, error) {
	var id string
	err := s.call(ctx, "find control document", func(ctx context.Context) error {
		found, err := s.gateway.FindDocument(ctx, pan)
		id = found
		return err
	})
	return id, err
}

func (s *Service) enroll(ctx context.Context, req visa.EnrollRequest) (string, error) {
	var id string
	err := s.call(ctx, "enroll card", func(ctx context.Context) error {
		created, err := s.gateway.Enroll(ctx, req)
		id = created
		return err
	})
	if isConflict(err) {
		// A retried enrollment may already have succeeded.
		return s.findDocument(ctx, req.PrimaryAccountNumber)
	}
	if err != nil {
		return "", err
	}
	s.logger.Info("card enrolled", "document_id", id, "rules", len(req.MerchantControls)+len(req.TransactionControls))
	return id, nil
}

// AttachRequest adds or replaces rules on a card's control document.
// With no DocumentID the card is enrolled with the rules in one call.
type AttachRequest struct {
	DocumentID     string
	PAN            string
	UserIdentifier string
	Rules          []visa.ControlRule
	Replace        bool
}

// AttachResult is the document the rules now live on.
type AttachResult struct {
	DocumentID   string   `json:"document_id"`
	ControlTypes []string `json:"control_types"`
	Created      bool     `json:"created"`
}

// AttachRules validates every rule against the card's available control
// types and writes them to the vendor. An unsupported control type is a
// KindRejected error and nothing is sent.
func (s *Service) AttachRules(ctx context.Context, req AttachRequest) (AttachResult, error) {
	const op = "attach rules"
	if len(req.Rules) == 0 {
		return AttachResult{}, &Error{Kind: KindRejected, Op: op, Err: errors.New("at least one rule is required")}
	}
	if req.PAN == "" {
		return AttachResult{}, &Error{Kind: KindRejected, Op: op, Err: errors.New("card number is required to validate rules")}
	}

	availability := s.DiscoverAvailableControls(ctx, req.PAN)
	for _, rule := range req.Rules {
		if rule.ControlType == "" {
			return AttachResult{}, &Error{Kind: KindRejected, Op: op, Err: errors.New("controlType is required")}
		}
		supported, known := availability.Supports(rule.ControlType)
		if !known {
			return AttachResult{}, &Error{Kind: Classify(availability.Err()), Op: op, Err: fmt.Errorf("cannot validate %s: %w", rule.ControlType, availability.Err())}
		}
		if !supported {
			return AttachResult{}, &Error{Kind: KindRejected, Op: op, Err: fmt.Errorf("%s: %w", rule.ControlType, ErrUnsupportedControl)}
		}
	}

	set := visa.SplitRules(req.Rules)
	result := AttachResult{DocumentID: req.DocumentID, ControlTypes: set.ControlTypes()}

	if result.DocumentID == "" {
		existing, err := s.findDocument(ctx, req.PAN)
		if err != nil {
			return AttachResult{}, err
		}
		if existing == "" {
			id, err := s.enroll(ctx, visa.EnrollRequest{
				PrimaryAccountNumber: req.PAN,
				UserIdentifier:       req.UserIdentifier,
				MerchantControls:     set.MerchantControls,
				TransactionControls:  set.TransactionControls,
			})
			if err != nil {
				return AttachResult{}, err
			}
			result.DocumentID = id
			result.Created = true
			return result, nil
		}
		result.DocumentID = existing
	}

	err := s.call(ctx, op, func(ctx context.Context) error {
		var err error
		if req.Replace {
			_, err = s.gateway.ReplaceRules(ctx, result.DocumentID, set)
		} else {
			_, err = s.gateway.AddRules(ctx, result.DocumentID, set)
		}
		return err
	})
	if err != nil {
		return AttachResult{}, err
	}
	s.logger.Info("rules attached", "document_id", result.DocumentID, "control_types", result.ControlTypes, "replace", req.Replace)
	return result, nil
}

// GetDocument reads a control document and its rules.
func (s *Service) GetDocument(ctx context.Context, documentID string) (*visa.ControlDocument, error) {
	var doc *visa.ControlDocument
	err := s.call(ctx, "get control document", func(ctx context.Context) error {
		d, err := s.gateway.GetDocument(ctx, documentID)
		doc = d
		return err
	})
	return doc, err
}

// DeleteDocument removes a control document. A document the vendor no
// longer has counts as deleted.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	err := s.call(ctx, "delete control document", func(ctx context.Context) error {
		return s.gateway.DeleteDocument(ctx, documentID)
	})
	if err != nil && visa.IsNotFound(err) {
		return nil
	}
	return err
}

// DecisionInput describes a synthetic purchase.
type DecisionInput struct {
	PAN          string
	Amount       models.Money
	MerchantName string
	CategoryCode string
	CountryCode  string
	CurrencyCode string
	CardPresent  bool
}

// SimulateDecision submits a synthetic authorization and turns the vendor
// verdict into an approve/decline result.
func (s *Service) SimulateDecision(ctx context.Context, in DecisionInput) (models.DecisionResult, error) {
	const op = "simulate decision"
	if in.PAN == "" {
		return models.DecisionResult{}, &Error{Kind: KindRejected, Op: op, Err: errors.New("card number is required")}
	}
	if !in.Amount.IsPositive() {
		return models.DecisionResult{}, &Error{Kind: KindRejected, Op: op, Err: errors.New("amount must be positive")}
	}

	req := s.buildDecisionRequest(in)
	var decision *visa.Decision
	err := s.call(ctx, op, func(ctx context.Context) error {
		d, err := s.gateway.Decide(ctx, req)
		decision = d
		return err
	})
	if err != nil {
		return models.DecisionResult{}, err
	}
	return interpretDecision(req, decision, in.Amount, s.clock.Now()), nil
}

func (s *Service) buildDecisionRequest(in DecisionInput) visa.DecisionRequest {
	now := s.clock.Now()
	amount := in.Amount.Float()

	howPresented := "CUSTOMER_NOT_PRESENT"
	entry := "5"
	posCondition := "08"
	if in.CardPresent {
		howPresented = "CUSTOMER_PRESENT"
		entry = "2"
		posCondition = "00"
	}

	return visa.DecisionRequest{
		PrimaryAccountNumber:     in.PAN,
		MessageType:              "0100",
		TransactionID:            fmt.Sprintf("%015d", now.UnixNano()%1_000_000_000_000_000),
		RetrievalReferenceNumber: fmt.Sprintf("%012d", rand.Int64N(1_000_000_000_000)),
		DateTimeLocal:            now.Format("0102150405"),
		CardholderBillAmount:     amount,
		MerchantInfo: visa.MerchantInfo{
			Name:                 defaultString(in.MerchantName, "Viego Test Merchant"),
			MerchantCategoryCode: in.CategoryCode,
			CountryCode:          defaultString(in.CountryCode, "USA"),
			CurrencyCode:         defaultString(in.CurrencyCode, "840"),
			TransactionAmount:    amount,
		},
		PointOfServiceInfo: visa.PointOfServiceInfo{
			TerminalEntryCapability: entry,
			PosConditionCode:        posCondition,
			PresentationData: visa.PresentationData{
				IsCardPresent: in.CardPresent,
				HowPresented:  []string{howPresented},
			},
		},
		ProcessingCode: visa.ProcessingCode{TransactionTypeCode: "00"},
	}
}

func interpretDecision(req visa.DecisionRequest, d *visa.Decision, amount models.Money, now time.Time) models.DecisionResult {
	resp := d.DecisionResponse
	result := models.DecisionResult{
		Approved:      !resp.ShouldDecline,
		DecisionID:    d.DecisionID,
		TransactionID: req.TransactionID,
		RuleType:      resp.DeclineRuleType,
		ControlType:   resp.DeclineControlType,
		Alerts:        resp.AlertControlTypes,
		Amount:        amount,
		DecidedAt:     now,
	}

	switch {
	case resp.ShouldDecline && resp.DeclineControlType != "":
		result.Reason = fmt.Sprintf("declined by %s rule %s", ruleLabel(resp.DeclineRuleType), resp.DeclineControlType)
	case resp.ShouldDecline:
		result.Reason = "declined by card controls"
	case len(resp.AlertControlTypes) > 0:
		result.Reason = "approved; alert threshold reached for " + strings.Join(resp.AlertControlTypes, ", ")
	default:
		result.Reason = "approved"
	}
	return result
}

func ruleLabel(ruleType string) string {
	switch ruleType {
	case visa.RuleMerchant:
		return "merchant"
	case visa.RuleTransaction:
		return "transaction"
	case "":
		return "control"
	default:
		return strings.ToLower(ruleType)
	}
}

// HistoryQuery selects alert notifications by document or vendor user.
type HistoryQuery struct {
	DocumentIDs    []string
	UserIdentifier string
	PageLimit      int
	StartIndex     int
}

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// FetchAlertHistory returns one page of previously sent alerts.
func (s *Service) FetchAlertHistory(ctx context.Context, q HistoryQuery) (*visa.AlertHistory, error) {
	const op = "fetch alert history"
	if len(q.DocumentIDs) == 0 && q.UserIdentifier == "" {
		return nil, &Error{Kind: KindRejected, Op: op, Err: errors.New("a document id or user identifier is required")}
	}
	if q.StartIndex < 0 {
		return nil, &Error{Kind: KindRejected, Op: op, Err: errors.New("startIndex must not be negative")}
	}
	limit := q.PageLimit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	req := visa.AlertHistoryRequest{
		Pagination:             visa.Pagination{PageLimit: limit, StartIndex: q.StartIndex},
		DocumentIDs:            q.DocumentIDs,
		UserIdentifier:         q.UserIdentifier,
		IncludeAlertDetails:    true,
		IncludeMerchantDetails: true,
	}
	var history *visa.AlertHistory
	err := s.call(ctx, op, func(ctx context.Context) error {
		h, err := s.gateway.AlertHistory(ctx, req)
		history = h
		return err
	})
	return history, err
}

func isConflict(err error) bool {
	var apiErr *visa.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
