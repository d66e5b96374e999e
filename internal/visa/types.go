package visa

import (
	"errors"
	"strings"
)

// Spend limit windows accepted by the vendor.
const (
	LimitDay       = "LMT_DAY"
	LimitWeek      = "LMT_WEEK"
	LimitMonth     = "LMT_MONTH"
	LimitYear      = "LMT_YEAR"
	LimitRecurring = "LMT_RECURRING"
)

// Rule types reported in declineRuleType.
const (
	RuleMerchant    = "MCT"
	RuleTransaction = "TCT"
)

// SpendLimit bounds cumulative spend over a window.
type SpendLimit struct {
	Type               string   `json:"type"`
	AlertThreshold     *float64 `json:"alertThreshold,omitempty"`
	DeclineThreshold   *float64 `json:"declineThreshold,omitempty"`
	CurrentPeriodSpend *float64 `json:"currentPeriodSpend,omitempty"`
}

// ControlRule is one merchant or transaction control on a document.
// Thresholds are ignored by the vendor when ShouldDeclineAll is set.
type ControlRule struct {
	ControlType          string      `json:"controlType"`
	IsControlEnabled     bool        `json:"isControlEnabled"`
	ShouldDeclineAll     bool        `json:"shouldDeclineAll"`
	ShouldAlertOnDecline bool        `json:"shouldAlertOnDecline"`
	AlertThreshold       *float64    `json:"alertThreshold,omitempty"`
	DeclineThreshold     *float64    `json:"declineThreshold,omitempty"`
	SpendLimit           *SpendLimit `json:"spendLimit,omitempty"`
}

// IsMerchantControl reports whether the rule targets a merchant category.
func (r ControlRule) IsMerchantControl() bool {
	return strings.HasPrefix(r.ControlType, "MCT_")
}

// Amount returns a pointer for the optional threshold fields.
func Amount(v float64) *float64 { return &v }

// RuleSet is the body of rule add/replace calls.
type RuleSet struct {
	MerchantControls    []ControlRule `json:"merchantControls,omitempty"`
	TransactionControls []ControlRule `json:"transactionControls,omitempty"`
}

// SplitRules partitions rules into merchant and transaction controls by
// control type prefix.
func SplitRules(rules []ControlRule) RuleSet {
	var set RuleSet
	for _, r := range rules {
		if r.IsMerchantControl() {
			set.MerchantControls = append(set.MerchantControls, r)
		} else {
			set.TransactionControls = append(set.TransactionControls, r)
		}
	}
	return set
}

// ControlTypes lists every control type in the set.
func (s RuleSet) ControlTypes() []string {
	out := make([]string, 0, len(s.MerchantControls)+len(s.TransactionControls))
	for _, r := range s.MerchantControls {
		out = append(out, r.ControlType)
	}
	for _, r := range s.TransactionControls {
		out = append(out, r.ControlType)
	}
	return out
}

// --- customer profiles ---

// CustomerProfile is the vendor's customer info record.
type CustomerProfile struct {
	UserIdentifier      string            `json:"userIdentifier"`
	FirstName           string            `json:"firstName,omitempty"`
	LastName            string            `json:"lastName,omitempty"`
	PreferredLanguage   string            `json:"preferredLanguage,omitempty"`
	CountryCode         string            `json:"countryCode,omitempty"`
	DefaultAlertsPrefs  []AlertPreference `json:"defaultAlertsPreferences,omitempty"`
	IsProfileActive     bool              `json:"isProfileActive"`
	DocumentID          string            `json:"documentID,omitempty"`
	LastUpdateTimeStamp string            `json:"lastUpdateTimeStamp,omitempty"`
}

// AlertPreference is the vendor form of a contact routing preference.
type AlertPreference struct {
	ContactType          string `json:"contactType"`
	ContactValue         string `json:"contactValue"`
	CallingCode          string `json:"callingCode,omitempty"`
	PreferredEmailFormat string `json:"preferredEmailFormat,omitempty"`
	IsVerified           bool   `json:"isVerified"`
	Status               string `json:"status,omitempty"`
}

type profileEnvelope struct {
	Resource CustomerProfile `json:"resource"`
}

func (e *profileEnvelope) validate() error {
	if e.Resource.UserIdentifier == "" {
		return errors.New("resource.userIdentifier missing")
	}
	return nil
}

// --- control documents ---

// EnrollRequest enrolls a card, optionally with initial rules.
type EnrollRequest struct {
	PrimaryAccountNumber string        `json:"primaryAccountNumber"`
	UserIdentifier       string        `json:"userIdentifier,omitempty"`
	MerchantControls     []ControlRule `json:"merchantControls,omitempty"`
	TransactionControls  []ControlRule `json:"transactionControls,omitempty"`
}

type panRequest struct {
	PrimaryAccountNumber string `json:"primaryAccountNumber"`
}

// ControlDocument is the vendor resource holding a card's rules.
type ControlDocument struct {
	DocumentID          string        `json:"documentID"`
	UserIdentifier      string        `json:"userIdentifier,omitempty"`
	LastUpdateTimeStamp string        `json:"lastUpdateTimeStamp,omitempty"`
	MerchantControls    []ControlRule `json:"merchantControls,omitempty"`
	TransactionControls []ControlRule `json:"transactionControls,omitempty"`
}

type documentEnvelope struct {
	Resource ControlDocument `json:"resource"`
}

func (e *documentEnvelope) validate() error {
	if e.Resource.DocumentID == "" {
		return errors.New("resource.documentID missing")
	}
	return nil
}

// cardInquiryEnvelope answers the document lookup by PAN. An empty
// documentID means the card is not enrolled.
type cardInquiryEnvelope struct {
	Resource struct {
		DocumentID string            `json:"documentID"`
		Documents  []ControlDocument `json:"documents"`
	} `json:"resource"`
}

func (e *cardInquiryEnvelope) documentID() string {
	if e.Resource.DocumentID != "" {
		return e.Resource.DocumentID
	}
	for _, d := range e.Resource.Documents {
		if d.DocumentID != "" {
			return d.DocumentID
		}
	}
	return ""
}

// --- category discovery ---

type merchantTypesEnvelope struct {
	Resource struct {
		AvailableMerchantTypes []string `json:"availableMerchantTypes"`
	} `json:"resource"`
}

func (e *merchantTypesEnvelope) validate() error {
	if e.Resource.AvailableMerchantTypes == nil {
		return errors.New("resource.availableMerchantTypes missing")
	}
	return nil
}

type transactionTypesEnvelope struct {
	Resource struct {
		AvailableTransactionTypes []string `json:"availableTransactionTypes"`
	} `json:"resource"`
}

func (e *transactionTypesEnvelope) validate() error {
	if e.Resource.AvailableTransactionTypes == nil {
		return errors.New("resource.availableTransactionTypes missing")
	}
	return nil
}

// --- decisions ---

// DecisionRequest is the synthetic authorization message.
type DecisionRequest struct {
	PrimaryAccountNumber     string             `json:"primaryAccountNumber"`
	MessageType              string             `json:"messageType"`
	TransactionID            string             `json:"transactionID"`
	RetrievalReferenceNumber string             `json:"retrievalReferenceNumber"`
	DateTimeLocal            string             `json:"dateTimeLocal"`
	CardholderBillAmount     float64            `json:"cardholderBillAmount"`
	MerchantInfo             MerchantInfo       `json:"merchantInfo"`
	PointOfServiceInfo       PointOfServiceInfo `json:"pointOfServiceInfo"`
	ProcessingCode           ProcessingCode     `json:"processingCode"`
}

type MerchantInfo struct {
	Name                 string  `json:"name"`
	MerchantCategoryCode string  `json:"merchantCategoryCode"`
	CountryCode          string  `json:"countryCode"`
	CurrencyCode         string  `json:"currencyCode"`
	TransactionAmount    float64 `json:"transactionAmount"`
}

type PointOfServiceInfo struct {
	TerminalEntryCapability string           `json:"terminalEntryCapability"`
	PosConditionCode        string           `json:"posConditionCode"`
	PresentationData        PresentationData `json:"presentationData"`
}

type PresentationData struct {
	IsCardPresent bool     `json:"isCardPresent"`
	HowPresented  []string `json:"howPresented"`
}

type ProcessingCode struct {
	TransactionTypeCode string `json:"transactionTypeCode"`
}

// DecisionResponse is the vendor verdict for a DecisionRequest.
type DecisionResponse struct {
	ShouldDecline      bool     `json:"shouldDecline"`
	DeclineRuleType    string   `json:"declineRuleType,omitempty"`
	DeclineControlType string   `json:"declineControlType,omitempty"`
	AlertControlTypes  []string `json:"alertControlTypes,omitempty"`
}

// Decision is the decoded resource of a decision call.
type Decision struct {
	DecisionID       string           `json:"decisionID"`
	DecisionResponse DecisionResponse `json:"decisionResponse"`
}

type decisionEnvelope struct {
	Resource Decision `json:"resource"`
}

func (e *decisionEnvelope) validate() error {
	if e.Resource.DecisionID == "" {
		return errors.New("resource.decisionID missing")
	}
	return nil
}

// --- alert history ---

type Pagination struct {
	PageLimit  int `json:"pageLimit"`
	StartIndex int `json:"startIndex"`
}

// AlertHistoryRequest pages through previously sent notifications.
type AlertHistoryRequest struct {
	Pagination             Pagination `json:"pagination"`
	DocumentIDs            []string   `json:"documentIds,omitempty"`
	UserIdentifier         string     `json:"userIdentifier,omitempty"`
	IncludeAlertDetails    bool       `json:"includeAlertDetails"`
	IncludeMerchantDetails bool       `json:"includeMerchantDetails"`
}

// Notification is one alert the vendor sent.
type Notification struct {
	NotificationID   string   `json:"notificationId,omitempty"`
	DocumentID       string   `json:"documentId,omitempty"`
	AlertType        string   `json:"alertType,omitempty"`
	ControlType      string   `json:"controlType,omitempty"`
	TransactionID    string   `json:"transactionId,omitempty"`
	MerchantName     string   `json:"merchantName,omitempty"`
	TransactionAmt   *float64 `json:"transactionAmount,omitempty"`
	CurrencyCode     string   `json:"currencyCode,omitempty"`
	NotificationTime string   `json:"notificationDateTime,omitempty"`
	ShouldDecline    bool     `json:"shouldDecline,omitempty"`
}

type PaginationData struct {
	PageLimit         int `json:"pageLimit"`
	StartIndex        int `json:"startIndex"`
	TotalRecordsCount int `json:"totalRecordsCount"`
}

// AlertHistory is one page of notifications.
type AlertHistory struct {
	NotificationDetails []Notification `json:"notificationDetails"`
	PaginationData      PaginationData `json:"paginationData"`
}

type alertHistoryEnvelope struct {
	Resource AlertHistory `json:"resource"`
}

func (e *alertHistoryEnvelope) validate() error {
	if e.Resource.NotificationDetails == nil {
		e.Resource.NotificationDetails = []Notification{}
	}
	return nil
}
