package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/viego-wallet/viego-backend/internal/controls"
	"github.com/viego-wallet/viego-backend/internal/models"
	"github.com/viego-wallet/viego-backend/internal/repository"
	"github.com/viego-wallet/viego-backend/pkg/utils"
)

// ProfileService manages local profiles and keeps the vendor profile's
// alert routing in step with them.
type ProfileService struct {
	profiles repository.ProfileRepository
	workflow *controls.Service
	logger   *slog.Logger
}

func NewProfileService(profiles repository.ProfileRepository, workflow *controls.Service, logger *slog.Logger) *ProfileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileService{profiles: profiles, workflow: workflow, logger: logger}
}

type SignupInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Signup creates an active profile. Emails are unique case-insensitively.
func (s *ProfileService) Signup(ctx context.Context, in SignupInput) (*models.UserProfile, error) {
	const op = "signup"
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := utils.ValidateEmail(in.Email); err != nil {
		return nil, invalidErr(op, err)
	}
	if err := utils.ValidatePassword(in.Password); err != nil {
		return nil, invalidErr(op, err)
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	p := &models.UserProfile{
		Email:            in.Email,
		FirstName:        strings.TrimSpace(in.FirstName),
		LastName:         strings.TrimSpace(in.LastName),
		PasswordHash:     hash,
		Status:           models.AccountActive,
		Notifications:    models.NotificationSettings{Email: true, Push: true, Reminder: true},
		AlertPreferences: []models.AlertPreference{},
	}

	dbCtx, cancel := dbContext(ctx)
	defer cancel()
	if err := s.profiles.Create(dbCtx, p); err != nil {
		return nil, err
	}
	s.logger.Info("profile created", "user_id", p.ID.Hex())
	return p, nil
}

// Authenticate returns the profile for email when password matches.
func (s *ProfileService) Authenticate(ctx context.Context, email, password string) (*models.UserProfile, error) {
	dbCtx, cancel := dbContext(ctx)
	defer cancel()
	p, err := s.profiles.GetByEmail(dbCtx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalid("signin", "invalid email or password")
		}
		return nil, err
	}
	ok, err := utils.VerifyPassword(password, p.PasswordHash)
	if err != nil || !ok {
		return nil, invalid("signin", "invalid email or password")
	}
	if p.Status != models.AccountActive {
		return nil, invalid("signin", "account is "+string(p.Status))
	}
	return p, nil
}

func (s *ProfileService) Get(ctx context.Context, id string) (*models.UserProfile, error) {
	dbCtx, cancel := dbContext(ctx)
	defer cancel()
	return s.profiles.Get(dbCtx, id)
}

func (s *ProfileService) UpdateSettings(ctx context.Context, id string, u repository.ProfileUpdate) (*models.UserProfile, error) {
	if u.FirstName != nil {
		trimmed := strings.TrimSpace(*u.FirstName)
		u.FirstName = &trimmed
	}
	if u.LastName != nil {
		trimmed := strings.TrimSpace(*u.LastName)
		u.LastName = &trimmed
	}
	dbCtx, cancel := dbContext(ctx)
	defer cancel()
	return s.profiles.UpdateSettings(dbCtx, id, u)
}

// SetStatus soft-activates or deactivates an account. Profiles are never
// deleted.
func (s *ProfileService) SetStatus(ctx context.Context, id string, status models.AccountStatus) error {
	if !status.Valid() {
		return invalid("set status", "status must be active, inactive or suspended")
	}
	dbCtx, cancel := dbContext(ctx)
	defer cancel()
	return s.profiles.SetStatus(dbCtx, id, status)
}

// VendorUserID is the vendor identifier a local profile maps to. It is
// derived from the local id so every retry asks the vendor about the same
// profile.
func VendorUserID(localID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("viego:"+localID)).String()
}

// LinkVendorProfile makes sure the vendor has a customer profile for the
// user and records its identifier locally. Safe to call repeatedly.
func (s *ProfileService) LinkVendorProfile(ctx context.Context, id string) (*models.UserProfile, controls.ProfileResult, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, controls.ProfileResult{}, err
	}
	vendorID := p.VendorUserID
	if vendorID == "" {
		vendorID = VendorUserID(p.ID.Hex())
	}

	result, err := s.workflow.EnsureProfile(ctx, controls.Identity{
		UserIdentifier: vendorID,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Alerts:         VendorAlerts(p.AlertPreferences),
	})
	if err != nil {
		return nil, controls.ProfileResult{}, err
	}

	if p.VendorUserID == "" {
		dbCtx, cancel := dbContext(ctx)
		defer cancel()
		if err := s.profiles.SetVendorUserID(dbCtx, id, result.UserIdentifier); err != nil {
			return nil, controls.ProfileResult{}, err
		}
		p.VendorUserID = result.UserIdentifier
	}
	return p, result, nil
}

// AddAlertPreferences appends prefs to the user's list.
func (s *ProfileService) AddAlertPreferences(ctx context.Context, id string, prefs []models.AlertPreference) ([]models.AlertPreference, error) {
	if err := ValidatePreferences(prefs); err != nil {
		return nil, invalidErr("add alert preferences", err)
	}
	return s.updatePreferences(ctx, id, prefs, AddPreferences)
}

// RemoveAlertPreferences removes every preference matching a signature in
// prefs.
func (s *ProfileService) RemoveAlertPreferences(ctx context.Context, id string, prefs []models.AlertPreference) ([]models.AlertPreference, error) {
	return s.updatePreferences(ctx, id, prefs, RemovePreferences)
}

// ReplaceAlertPreferences discards the current list.
func (s *ProfileService) ReplaceAlertPreferences(ctx context.Context, id string, prefs []models.AlertPreference) ([]models.AlertPreference, error) {
	if err := ValidatePreferences(prefs); err != nil {
		return nil, invalidErr("replace alert preferences", err)
	}
	return s.updatePreferences(ctx, id, prefs, ReplacePreferences)
}

func (s *ProfileService) updatePreferences(
	ctx context.Context,
	id string,
	change []models.AlertPreference,
	apply func(list, change []models.AlertPreference) []models.AlertPreference,
) ([]models.AlertPreference, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := apply(p.AlertPreferences, change)

	dbCtx, cancel := dbContext(ctx)
	defer cancel()
	if err := s.profiles.SetAlertPreferences(dbCtx, id, next); err != nil {
		return nil, err
	}

	if p.VendorUserID != "" {
		if err := s.workflow.SyncAlertPreferences(ctx, p.VendorUserID, VendorAlerts(next)); err != nil {
			s.logger.Warn("alert preferences not synced to vendor profile",
				"user_id", id,
				"error_kind", controls.Classify(err),
				"error", err,
			)
		}
	}
	return next, nil
}
