package handlers

import (
	"net/http"

	"github.com/viego-wallet/viego-backend/internal/services"
)

// CreatePayment handles POST /api/users/{userID}/payments. Vendor
// monitoring is best effort; the payment is created either way and
// "monitored" tells the client whether a control document backs it.
func (h *Handlers) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req services.PaymentInput
	if !decode(w, r, &req, false) {
		return
	}
	p, err := h.Payments.Create(r.Context(), userID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusCreated, "Payment scheduled", envelope{
		"payment":   p,
		"monitored": p.DocumentID != "",
	})
}

// ListPayments handles GET /api/users/{userID}/payments.
func (h *Handlers) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Payments.List(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "", envelope{"payments": payments, "total": len(payments)})
}

// GetPayment handles GET /api/users/{userID}/payments/{paymentID}.
func (h *Handlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Payments.Get(r.Context(), userID(r), paymentID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "", envelope{"payment": p})
}

// MarkPaid handles POST /api/users/{userID}/payments/{paymentID}/paid.
func (h *Handlers) MarkPaid(w http.ResponseWriter, r *http.Request) {
	p, err := h.Payments.MarkPaid(r.Context(), userID(r), paymentID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "Payment marked as paid", envelope{"payment": p})
}

// DeletePayment handles DELETE /api/users/{userID}/payments/{paymentID}.
func (h *Handlers) DeletePayment(w http.ResponseWriter, r *http.Request) {
	if err := h.Payments.Delete(r.Context(), userID(r), paymentID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "Payment deleted", nil)
}

// PaymentReminders handles GET /api/users/{userID}/payments/{paymentID}/reminders.
func (h *Handlers) PaymentReminders(w http.ResponseWriter, r *http.Request) {
	reminders, err := h.Payments.Reminders(r.Context(), userID(r), paymentID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "", envelope{"reminders": reminders})
}
