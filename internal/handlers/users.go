package handlers

import (
	"context"
	"net/http"

	"github.com/viego-wallet/viego-backend/internal/controls"
	"github.com/viego-wallet/viego-backend/internal/models"
	"github.com/viego-wallet/viego-backend/internal/repository"
	"github.com/viego-wallet/viego-backend/internal/services"
)

// Signup handles POST /api/auth/signup.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req services.SignupInput
	if !decode(w, r, &req, false) {
		return
	}
	p, err := h.Profiles.Signup(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusCreated, "Account created", envelope{"user": p})
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signin handles POST /api/auth/signin.
func (h *Handlers) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if !decode(w, r, &req, false) {
		return
	}
	p, err := h.Profiles.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if controls.Classify(err) == controls.KindRejected {
			fail(w, http.StatusUnauthorized, controls.KindRejected, "Invalid email or password")
			return
		}
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "Signed in", envelope{"user": p})
}

// GetUser handles GET /api/users/{userID}.
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	p, err := h.Profiles.Get(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "", envelope{"user": p})
}

type settingsRequest struct {
	FirstName     *string                      `json:"first_name,omitempty"`
	LastName      *string                      `json:"last_name,omitempty"`
	Notifications *models.NotificationSettings `json:"notifications,omitempty"`
}

// UpdateSettings handles PUT /api/users/{userID}/settings.
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !decode(w, r, &req, false) {
		return
	}
	p, err := h.Profiles.UpdateSettings(r.Context(), userID(r), repository.ProfileUpdate{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Notifications: req.Notifications,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "Settings updated", envelope{"user": p})
}

type statusRequest struct {
	Status models.AccountStatus `json:"status"`
}

// SetStatus handles PUT /api/users/{userID}/status.
func (h *Handlers) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decode(w, r, &req, false) {
		return
	}
	if err := h.Profiles.SetStatus(r.Context(), userID(r), req.Status); err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "Status updated", envelope{"status": req.Status})
}

// LinkVendorProfile handles POST /api/users/{userID}/vendor-profile.
func (h *Handlers) LinkVendorProfile(w http.ResponseWriter, r *http.Request) {
	p, res, err := h.Profiles.LinkVendorProfile(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	success(w, status, "Vendor profile linked", envelope{
		"user":           p,
		"vendor_user_id": p.VendorUserID,
		"created":        res.Created,
	})
}

type preferencesRequest struct {
	Preferences []models.AlertPreference `json:"preferences"`
}

type preferenceUpdate func(ctx context.Context, id string, prefs []models.AlertPreference) ([]models.AlertPreference, error)

func (h *Handlers) updatePreferences(w http.ResponseWriter, r *http.Request, update preferenceUpdate, message string) {
	var req preferencesRequest
	if !decode(w, r, &req, false) {
		return
	}
	prefs, err := update(r.Context(), userID(r), req.Preferences)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, message, envelope{"preferences": prefs})
}

// AddAlertPreferences handles POST /api/users/{userID}/alert-preferences.
func (h *Handlers) AddAlertPreferences(w http.ResponseWriter, r *http.Request) {
	h.updatePreferences(w, r, h.Profiles.AddAlertPreferences, "Alert preferences added")
}

// RemoveAlertPreferences handles POST /api/users/{userID}/alert-preferences/remove.
func (h *Handlers) RemoveAlertPreferences(w http.ResponseWriter, r *http.Request) {
	h.updatePreferences(w, r, h.Profiles.RemoveAlertPreferences, "Alert preferences removed")
}

// ReplaceAlertPreferences handles PUT /api/users/{userID}/alert-preferences.
func (h *Handlers) ReplaceAlertPreferences(w http.ResponseWriter, r *http.Request) {
	h.updatePreferences(w, r, h.Profiles.ReplaceAlertPreferences, "Alert preferences replaced")
}
