package handlers

import (
	"net/http"

	"github.com/viego-wallet/viego-backend/internal/controls"
	"github.com/viego-wallet/viego-backend/internal/services"
	"github.com/viego-wallet/viego-backend/internal/visa"
)

type enrollRequest struct {
	PAN string `json:"pan"`
}

// EnrollCard handles POST /api/users/{userID}/cards.
func (h *Handlers) EnrollCard(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if !decode(w, r, &req, false) {
		return
	}
	card, err := h.Cards.Enroll(r.Context(), userID(r), req.PAN)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusCreated, "Card enrolled", envelope{"card": card, "state": card.State()})
}

// ListCards handles GET /api/users/{userID}/cards.
func (h *Handlers) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.Cards.List(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "", envelope{"cards": cards, "total": len(cards)})
}

// GetCard handles GET /api/users/{userID}/cards/{cardID}.
func (h *Handlers) GetCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.Cards.Get(r.Context(), userID(r), cardID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "", envelope{"card": card, "state": card.State()})
}

// AvailableControls handles GET /api/users/{userID}/cards/{cardID}/controls.
// A half-failed discovery still answers 200 with what was learned and the
// kind of each failed inquiry.
func (h *Handlers) AvailableControls(w http.ResponseWriter, r *http.Request) {
	a, err := h.Cards.Discover(r.Context(), userID(r), cardID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if a.MerchantErr != nil && a.TransactionErr != nil {
		h.writeError(w, r, a.Err())
		return
	}
	fields := envelope{"controls": a, "complete": a.Complete()}
	failures := envelope{}
	if a.MerchantErr != nil {
		failures["merchant_types"] = controls.Classify(a.MerchantErr)
	}
	if a.TransactionErr != nil {
		failures["transaction_types"] = controls.Classify(a.TransactionErr)
	}
	if len(failures) > 0 {
		fields["failures"] = failures
	}
	success(w, http.StatusOK, "", fields)
}

type rulesRequest struct {
	Rules []visa.ControlRule `json:"rules"`
}

func (h *Handlers) attachRules(w http.ResponseWriter, r *http.Request, replace bool) {
	var req rulesRequest
	if !decode(w, r, &req, false) {
		return
	}
	res, err := h.Cards.AttachRules(r.Context(), userID(r), cardID(r), req.Rules, replace)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	success(w, status, "Rules attached", envelope{"result": res})
}

// AddRules handles POST /api/users/{userID}/cards/{cardID}/rules.
func (h *Handlers) AddRules(w http.ResponseWriter, r *http.Request) { h.attachRules(w, r, false) }

// ReplaceRules handles PUT /api/users/{userID}/cards/{cardID}/rules.
func (h *Handlers) ReplaceRules(w http.ResponseWriter, r *http.Request) { h.attachRules(w, r, true) }

// GetDocument handles GET /api/users/{userID}/cards/{cardID}/document.
func (h *Handlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Cards.Document(r.Context(), userID(r), cardID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "", envelope{"document": doc})
}

// DeleteDocument handles DELETE /api/users/{userID}/cards/{cardID}/document.
// The local link is gone even when the vendor call fails, so the failure is
// reported with the vendor's kind but the card is returned unlinked.
func (h *Handlers) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.Cards.DeleteDocument(r.Context(), userID(r), cardID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "Control document deleted", nil)
}

// SimulateDecision handles POST /api/users/{userID}/cards/{cardID}/decisions.
func (h *Handlers) SimulateDecision(w http.ResponseWriter, r *http.Request) {
	var req services.SimulateInput
	if !decode(w, r, &req, false) {
		return
	}
	res, err := h.Cards.Simulate(r.Context(), userID(r), cardID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	message := "Transaction approved"
	if !res.Decision.Approved {
		message = "Transaction declined"
	}
	fields := envelope{"decision": res.Decision}
	if res.Spending != nil {
		fields["spending"] = res.Spending
	}
	success(w, http.StatusOK, message, fields)
}

// AlertHistory handles GET /api/users/{userID}/cards/{cardID}/alerts.
func (h *Handlers) AlertHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	start, err := intQuery(r, "start", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	history, err := h.Cards.AlertHistory(r.Context(), userID(r), cardID(r), limit, start)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "", envelope{"history": history})
}
