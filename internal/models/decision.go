package models

import "time"

// DecisionResult is the outcome of a simulated authorization. It is shown to
// the user and never stored.
type DecisionResult struct {
	Approved      bool      `json:"approved"`
	Reason        string    `json:"reason"`
	DecisionID    string    `json:"decision_id"`
	TransactionID string    `json:"transaction_id"`
	RuleType      string    `json:"rule_type,omitempty"`
	ControlType   string    `json:"control_type,omitempty"`
	Alerts        []string  `json:"alerts,omitempty"`
	Amount        Money     `json:"amount"`
	DecidedAt     time.Time `json:"decided_at"`
}

// SpendingPeriod is a user's running spend for one calendar month. A new
// period starts from zero, which is the reset policy.
type SpendingPeriod struct {
	UserID    string    `json:"user_id"`
	Period    string    `json:"period"` // YYYY-MM
	Total     Money     `json:"total"`
	Count     int       `json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SpendingStatus is SpendingPeriod evaluated against the monthly budget.
type SpendingStatus struct {
	SpendingPeriod
	Budget     Money  `json:"budget"`
	Remaining  Money  `json:"remaining"`
	AlertLevel Money  `json:"alert_level"`
	State      string `json:"state"` // ok|alert|over_budget
}
