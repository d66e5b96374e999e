// Package handlers is the thin HTTP layer over the services package. Every
// response is a JSON envelope {success, message, ...}; failures add
// error_kind so clients can tell a retryable outage from a bad request.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/viego-wallet/viego-backend/internal/controls"
	"github.com/viego-wallet/viego-backend/internal/services"
	"github.com/viego-wallet/viego-backend/pkg/utils"
)

const maxBodyBytes = 1 << 20

// Handlers holds the services the routes call into.
type Handlers struct {
	Profiles   *services.ProfileService
	Cards      *services.CardService
	Payments   *services.PaymentService
	Dispatcher *services.ReminderDispatcher
	Spending   *services.SpendingTracker
	Hub        *services.Hub
	Checks     HealthChecker
	Logger     *slog.Logger
}

type envelope map[string]interface{}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func success(w http.ResponseWriter, status int, message string, fields envelope) {
	body := envelope{"success": true, "message": message}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func fail(w http.ResponseWriter, status int, kind controls.Kind, message string) {
	writeJSON(w, status, envelope{
		"success":    false,
		"message":    message,
		"error_kind": kind,
	})
}

// statusFor maps an error classification to the HTTP status returned.
func statusFor(kind controls.Kind) int {
	switch kind {
	case controls.KindUnreachable, controls.KindDecode:
		return http.StatusBadGateway
	case controls.KindRejected:
		return http.StatusUnprocessableEntity
	case controls.KindNotFound, controls.KindVendorNotFound:
		return http.StatusNotFound
	case controls.KindConfig:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError classifies err and writes the matching failure envelope.
// Internal errors are logged and hidden from the client.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *utils.ValidationError
	if errors.As(err, &vErr) {
		fail(w, http.StatusUnprocessableEntity, controls.KindRejected, vErr.Error())
		return
	}
	kind := controls.Classify(err)
	status := statusFor(kind)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "kind", kind, "error", err)
		if kind == controls.KindInternal {
			message = "internal server error"
		}
	}
	fail(w, status, kind, message)
}

// decode reads a JSON body into dst. An empty body is allowed when
// optional is true.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		fail(w, http.StatusBadRequest, controls.KindRejected, "Invalid request body")
		return false
	}
	return true
}

func intQuery(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &utils.ValidationError{Field: key, Message: "must be a non-negative integer"}
	}
	return n, nil
}

func userID(r *http.Request) string    { return chi.URLParam(r, "userID") }
func cardID(r *http.Request) string    { return chi.URLParam(r, "cardID") }
func paymentID(r *http.Request) string { return chi.URLParam(r, "paymentID") }
