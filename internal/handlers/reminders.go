package handlers

import (
	"errors"
	"net/http"

	"github.com/viego-wallet/viego-backend/internal/controls"
	"github.com/viego-wallet/viego-backend/internal/services"
)

// DispatchReminders handles POST /api/reminders/dispatch, the entry point a
// scheduler calls. A concurrent run answers 409 and sends nothing.
func (h *Handlers) DispatchReminders(w http.ResponseWriter, r *http.Request) {
	report, err := h.Dispatcher.Run(r.Context())
	if errors.Is(err, services.ErrDispatchInProgress) {
		fail(w, http.StatusConflict, controls.KindRejected, err.Error())
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "Reminders dispatched", envelope{"report": report})
}

// SpendingStatus handles GET /api/users/{userID}/spending.
func (h *Handlers) SpendingStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.Spending.Status(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "", envelope{"spending": status})
}
