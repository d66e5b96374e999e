package visa

import "context"

// Unavailable stands in for a Client that could not be built. Every call
// returns the construction error, so the rest of the system keeps serving
// local data and vendor routes report a configuration failure.
type Unavailable struct {
	Err *ConfigError
}

func (u Unavailable) err() error {
	if u.Err == nil {
		return &ConfigError{Field: "transport"}
	}
	return u.Err
}

func (u Unavailable) GetProfile(context.Context, string) (*CustomerProfile, error) {
	return nil, u.err()
}

func (u Unavailable) CreateProfile(context.Context, CustomerProfile) (*CustomerProfile, error) {
	return nil, u.err()
}

func (u Unavailable) UpdateProfile(context.Context, CustomerProfile) (*CustomerProfile, error) {
	return nil, u.err()
}

func (u Unavailable) Enroll(context.Context, EnrollRequest) (string, error) { return "", u.err() }

func (u Unavailable) FindDocument(context.Context, string) (string, error) { return "", u.err() }

func (u Unavailable) GetDocument(context.Context, string) (*ControlDocument, error) {
	return nil, u.err()
}

func (u Unavailable) AddRules(context.Context, string, RuleSet) (*ControlDocument, error) {
	return nil, u.err()
}

func (u Unavailable) ReplaceRules(context.Context, string, RuleSet) (*ControlDocument, error) {
	return nil, u.err()
}

func (u Unavailable) DeleteDocument(context.Context, string) error { return u.err() }

func (u Unavailable) MerchantTypes(context.Context, string) ([]string, error) { return nil, u.err() }

func (u Unavailable) TransactionTypes(context.Context, string) ([]string, error) {
	return nil, u.err()
}

func (u Unavailable) Decide(context.Context, DecisionRequest) (*Decision, error) {
	return nil, u.err()
}

func (u Unavailable) AlertHistory(context.Context, AlertHistoryRequest) (*AlertHistory, error) {
	return nil, u.err()
}
