package visa

import (
	"context"
	"net/http"
	"net/url"
)

const (
	customerRulesBase = "/vctc/customerrules/v1"
	profilesPath      = customerRulesBase + "/customerinfo"
	documentsPath     = customerRulesBase + "/consumertransactioncontrols"
	cardInquiryPath   = documentsPath + "/inquiries/cardinquiry"
	merchantTypesPath = customerRulesBase + "/merchanttypecontrols/cardinquiry"
	txnTypesPath      = customerRulesBase + "/transactiontypecontrols/cardinquiry"
	decisionsPath     = "/vctc/authorizationdecision/v1/decisions"
	alertHistoryPath  = "/vctc/alerthistory/v1/inquiries"
)

// GetProfile fetches a customer profile. A missing profile is a 404
// *APIError; use IsNotFound.
func (c *Client) GetProfile(ctx context.Context, userIdentifier string) (*CustomerProfile, error) {
	var env profileEnvelope
	if err := c.Do(ctx, http.MethodGet, profilesPath+"/"+url.PathEscape(userIdentifier), nil, &env); err != nil {
		return nil, err
	}
	return &env.Resource, nil
}

// CreateProfile registers a new customer profile.
func (c *Client) CreateProfile(ctx context.Context, profile CustomerProfile) (*CustomerProfile, error) {
	var env profileEnvelope
	if err := c.Do(ctx, http.MethodPost, profilesPath, profile, &env); err != nil {
		return nil, err
	}
	return &env.Resource, nil
}

// UpdateProfile replaces the mutable fields of an existing profile.
func (c *Client) UpdateProfile(ctx context.Context, profile CustomerProfile) (*CustomerProfile, error) {
	var env profileEnvelope
	path := profilesPath + "/" + url.PathEscape(profile.UserIdentifier)
	if err := c.Do(ctx, http.MethodPut, path, profile, &env); err != nil {
		return nil, err
	}
	return &env.Resource, nil
}

// Enroll creates a control document for a card, with or without rules, and
// returns its id.
func (c *Client) Enroll(ctx context.Context, req EnrollRequest) (string, error) {
	var env documentEnvelope
	if err := c.Do(ctx, http.MethodPost, documentsPath, req, &env); err != nil {
		return "", err
	}
	return env.Resource.DocumentID, nil
}

// FindDocument returns the control document id already registered for pan,
// or "" when the card is not enrolled.
func (c *Client) FindDocument(ctx context.Context, pan string) (string, error) {
	var env cardInquiryEnvelope
	err := c.Do(ctx, http.MethodPost, cardInquiryPath, panRequest{PrimaryAccountNumber: pan}, &env)
	if IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return env.documentID(), nil
}

// GetDocument reads a control document and its rules.
func (c *Client) GetDocument(ctx context.Context, documentID string) (*ControlDocument, error) {
	var env documentEnvelope
	if err := c.Do(ctx, http.MethodGet, documentsPath+"/"+url.PathEscape(documentID), nil, &env); err != nil {
		return nil, err
	}
	return &env.Resource, nil
}

// AddRules appends rules to a document.
func (c *Client) AddRules(ctx context.Context, documentID string, rules RuleSet) (*ControlDocument, error) {
	return c.writeRules(ctx, http.MethodPost, documentID, rules)
}

// ReplaceRules overwrites the rules of a document.
func (c *Client) ReplaceRules(ctx context.Context, documentID string, rules RuleSet) (*ControlDocument, error) {
	return c.writeRules(ctx, http.MethodPut, documentID, rules)
}

func (c *Client) writeRules(ctx context.Context, method, documentID string, rules RuleSet) (*ControlDocument, error) {
	var env documentEnvelope
	path := documentsPath + "/" + url.PathEscape(documentID) + "/rules"
	if err := c.Do(ctx, method, path, rules, &env); err != nil {
		return nil, err
	}
	return &env.Resource, nil
}

// DeleteDocument removes a control document and every rule on it.
func (c *Client) DeleteDocument(ctx context.Context, documentID string) error {
	return c.Do(ctx, http.MethodDelete, documentsPath+"/"+url.PathEscape(documentID), nil, nil)
}

// MerchantTypes lists the merchant control types the card supports.
func (c *Client) MerchantTypes(ctx context.Context, pan string) ([]string, error) {
	var env merchantTypesEnvelope
	if err := c.Do(ctx, http.MethodPost, merchantTypesPath, panRequest{PrimaryAccountNumber: pan}, &env); err != nil {
		return nil, err
	}
	return env.Resource.AvailableMerchantTypes, nil
}

// TransactionTypes lists the transaction control types the card supports.
func (c *Client) TransactionTypes(ctx context.Context, pan string) ([]string, error) {
	var env transactionTypesEnvelope
	if err := c.Do(ctx, http.MethodPost, txnTypesPath, panRequest{PrimaryAccountNumber: pan}, &env); err != nil {
		return nil, err
	}
	return env.Resource.AvailableTransactionTypes, nil
}

// Decide submits a synthetic authorization for evaluation against the
// card's rules.
func (c *Client) Decide(ctx context.Context, req DecisionRequest) (*Decision, error) {
	var env decisionEnvelope
	if err := c.Do(ctx, http.MethodPost, decisionsPath, req, &env); err != nil {
		return nil, err
	}
	return &env.Resource, nil
}

// AlertHistory returns one page of sent notifications. The call is signed
// with x-pay-token when an API key is configured.
func (c *Client) AlertHistory(ctx context.Context, req AlertHistoryRequest) (*AlertHistory, error) {
	var opts []RequestOption
	if c.transport.HasPayToken() {
		opts = append(opts, WithPayToken())
	}
	var env alertHistoryEnvelope
	if err := c.Do(ctx, http.MethodPost, alertHistoryPath, req, &env, opts...); err != nil {
		return nil, err
	}
	return &env.Resource, nil
}
