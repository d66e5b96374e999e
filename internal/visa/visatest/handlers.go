package visatest

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/viego-wallet/viego-backend/internal/visa"
)

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	p, ok := s.profiles[r.PathValue("id")]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "PROFILE_NOT_FOUND", "customer profile not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) createProfile(w http.ResponseWriter, r *http.Request) {
	var p visa.CustomerProfile
	if !decode(w, r, &p) {
		return
	}
	if p.UserIdentifier == "" {
		p.UserIdentifier = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.profiles[p.UserIdentifier]; exists {
		writeError(w, http.StatusConflict, "PROFILE_EXISTS", "customer profile already exists")
		return
	}
	p.IsProfileActive = true
	p.LastUpdateTimeStamp = time.Now().UTC().Format(time.RFC3339)
	s.profiles[p.UserIdentifier] = p
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var p visa.CustomerProfile
	if !decode(w, r, &p) {
		return
	}
	id := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[id]; !ok {
		writeError(w, http.StatusNotFound, "PROFILE_NOT_FOUND", "customer profile not found")
		return
	}
	p.UserIdentifier = id
	p.LastUpdateTimeStamp = time.Now().UTC().Format(time.RFC3339)
	s.profiles[id] = p
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) enroll(w http.ResponseWriter, r *http.Request) {
	var req visa.EnrollRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[req.PrimaryAccountNumber]; !ok {
		writeError(w, http.StatusBadRequest, "CARD_NOT_ELIGIBLE", "card is not eligible for transaction controls")
		return
	}
	if _, enrolled := s.byPAN[req.PrimaryAccountNumber]; enrolled {
		writeError(w, http.StatusConflict, "ALREADY_ENROLLED", "card already has a control document")
		return
	}
	set := visa.RuleSet{MerchantControls: req.MerchantControls, TransactionControls: req.TransactionControls}
	if bad := s.validateRules(req.PrimaryAccountNumber, set); bad != "" {
		writeError(w, http.StatusBadRequest, "INVALID_CONTROL_TYPE", "unsupported controlType "+bad)
		return
	}

	d := &document{
		id:             s.newDocumentID(),
		pan:            req.PrimaryAccountNumber,
		userIdentifier: req.UserIdentifier,
		merchant:       req.MerchantControls,
		transaction:    req.TransactionControls,
	}
	s.documents[d.id] = d
	s.byPAN[d.pan] = d.id
	writeJSON(w, http.StatusOK, d.resource())
}

func (s *Server) cardInquiry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PrimaryAccountNumber string `json:"primaryAccountNumber"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	id, ok := s.byPAN[req.PrimaryAccountNumber]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "DOCUMENT_NOT_FOUND", "no control document for card")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"documentID": id})
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	d, ok := s.documents[r.PathValue("id")]
	var res visa.ControlDocument
	if ok {
		res = d.resource()
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "DOCUMENT_NOT_FOUND", "control document not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "DOCUMENT_NOT_FOUND", "control document not found")
		return
	}
	delete(s.documents, d.id)
	delete(s.byPAN, d.pan)
	writeJSON(w, http.StatusOK, map[string]string{"documentID": d.id})
}

func (s *Server) addRules(w http.ResponseWriter, r *http.Request) {
	s.writeRules(w, r, false)
}

func (s *Server) replaceRules(w http.ResponseWriter, r *http.Request) {
	s.writeRules(w, r, true)
}

func (s *Server) writeRules(w http.ResponseWriter, r *http.Request, replace bool) {
	var set visa.RuleSet
	if !decode(w, r, &set) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "DOCUMENT_NOT_FOUND", "control document not found")
		return
	}
	if bad := s.validateRules(d.pan, set); bad != "" {
		writeError(w, http.StatusBadRequest, "INVALID_CONTROL_TYPE", "unsupported controlType "+bad)
		return
	}
	if replace {
		d.merchant = set.MerchantControls
		d.transaction = set.TransactionControls
	} else {
		d.merchant = mergeRules(d.merchant, set.MerchantControls)
		d.transaction = mergeRules(d.transaction, set.TransactionControls)
	}
	writeJSON(w, http.StatusOK, d.resource())
}

// mergeRules adds rules, overwriting any existing rule of the same type.
func mergeRules(existing, added []visa.ControlRule) []visa.ControlRule {
	out := append([]visa.ControlRule(nil), existing...)
	for _, a := range added {
		replaced := false
		for i := range out {
			if out[i].ControlType == a.ControlType {
				out[i] = a
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, a)
		}
	}
	return out
}

func (s *Server) merchantTypes(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookupCard(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"availableMerchantTypes": nonNil(c.merchantTypes)})
}

func (s *Server) transactionTypes(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookupCard(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"availableTransactionTypes": nonNil(c.transactionTypes)})
}

func (s *Server) lookupCard(w http.ResponseWriter, r *http.Request) (card, bool) {
	var req struct {
		PrimaryAccountNumber string `json:"primaryAccountNumber"`
	}
	if !decode(w, r, &req) {
		return card{}, false
	}
	s.mu.Lock()
	c, ok := s.cards[req.PrimaryAccountNumber]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "CARD_NOT_FOUND", "card not found")
		return card{}, false
	}
	return c, true
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func (s *Server) decide(w http.ResponseWriter, r *http.Request) {
	var req visa.DecisionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.MessageType != "0100" || len(req.DateTimeLocal) != 10 || req.TransactionID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed authorization message")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := visa.Decision{DecisionID: "ctc-dec-" + uuid.NewString()}
	d, ok := s.documents[s.byPAN[req.PrimaryAccountNumber]]
	if !ok {
		writeJSON(w, http.StatusOK, result)
		return
	}

	amount := req.CardholderBillAmount
	var touched []string

	if controlType, covered := visa.ControlTypeForMCC(req.MerchantInfo.MerchantCategoryCode); covered {
		if rule, found := findRule(d.merchant, controlType); found {
			s.evaluate(&result.DecisionResponse, visa.RuleMerchant, rule, req.PrimaryAccountNumber, amount)
			touched = append(touched, controlType)
		}
	}

	channel := visa.TCTECommerce
	if req.PointOfServiceInfo.PresentationData.IsCardPresent {
		channel = visa.TCTBrickMortar
	}
	if rule, found := findRule(d.transaction, channel); found && !result.DecisionResponse.ShouldDecline {
		s.evaluate(&result.DecisionResponse, visa.RuleTransaction, rule, req.PrimaryAccountNumber, amount)
		touched = append(touched, channel)
	}

	if !result.DecisionResponse.ShouldDecline {
		for _, ct := range touched {
			s.spend[req.PrimaryAccountNumber+"|"+ct] += amount
		}
	}

	if result.DecisionResponse.ShouldDecline || len(result.DecisionResponse.AlertControlTypes) > 0 {
		amt := amount
		controlType := result.DecisionResponse.DeclineControlType
		if controlType == "" {
			controlType = result.DecisionResponse.AlertControlTypes[0]
		}
		s.alerts = append(s.alerts, visa.Notification{
			NotificationID:   "ntf-" + uuid.NewString(),
			DocumentID:       d.id,
			AlertType:        "TRANSACTION_ALERT",
			ControlType:      controlType,
			TransactionID:    req.TransactionID,
			MerchantName:     req.MerchantInfo.Name,
			TransactionAmt:   &amt,
			CurrencyCode:     req.MerchantInfo.CurrencyCode,
			NotificationTime: time.Now().UTC().Format(time.RFC3339),
			ShouldDecline:    result.DecisionResponse.ShouldDecline,
		})
	}

	writeJSON(w, http.StatusOK, result)
}

func findRule(rules []visa.ControlRule, controlType string) (visa.ControlRule, bool) {
	for _, r := range rules {
		if r.ControlType == controlType && r.IsControlEnabled {
			return r, true
		}
	}
	return visa.ControlRule{}, false
}

// evaluate applies one rule. Caller holds s.mu.
func (s *Server) evaluate(resp *visa.DecisionResponse, ruleType string, rule visa.ControlRule, pan string, amount float64) {
	if rule.ShouldDeclineAll {
		resp.ShouldDecline = true
		resp.DeclineRuleType = ruleType
		resp.DeclineControlType = rule.ControlType
		return
	}

	alert, decline := thresholds(rule)
	total := s.spend[pan+"|"+rule.ControlType] + amount

	if decline > 0 && total > decline {
		resp.ShouldDecline = true
		resp.DeclineRuleType = ruleType
		resp.DeclineControlType = rule.ControlType
		return
	}
	if alert > 0 && total > alert {
		resp.AlertControlTypes = append(resp.AlertControlTypes, rule.ControlType)
	}
}

func thresholds(rule visa.ControlRule) (alert, decline float64) {
	if rule.AlertThreshold != nil {
		alert = *rule.AlertThreshold
	}
	if rule.DeclineThreshold != nil {
		decline = *rule.DeclineThreshold
	}
	if rule.SpendLimit != nil {
		if alert == 0 && rule.SpendLimit.AlertThreshold != nil {
			alert = *rule.SpendLimit.AlertThreshold
		}
		if decline == 0 && rule.SpendLimit.DeclineThreshold != nil {
			decline = *rule.SpendLimit.DeclineThreshold
		}
	}
	return alert, decline
}

func (s *Server) alertHistory(w http.ResponseWriter, r *http.Request) {
	var req visa.AlertHistoryRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Pagination.PageLimit <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_PAGINATION", "pageLimit must be positive")
		return
	}

	s.mu.Lock()
	var matched []visa.Notification
	for _, n := range s.alerts {
		if len(req.DocumentIDs) == 0 || contains(req.DocumentIDs, n.DocumentID) {
			matched = append(matched, n)
		}
	}
	s.mu.Unlock()

	start := req.Pagination.StartIndex
	if start > len(matched) {
		start = len(matched)
	}
	end := start + req.Pagination.PageLimit
	if end > len(matched) {
		end = len(matched)
	}

	writeJSON(w, http.StatusOK, visa.AlertHistory{
		NotificationDetails: append([]visa.Notification{}, matched[start:end]...),
		PaginationData: visa.PaginationData{
			PageLimit:         req.Pagination.PageLimit,
			StartIndex:        req.Pagination.StartIndex,
			TotalRecordsCount: len(matched),
		},
	})
}
