package services

import (
	"fmt"
	"strings"

	"github.com/viego-wallet/viego-backend/internal/models"
	"github.com/viego-wallet/viego-backend/internal/visa"
)

// AddPreferences appends add to list. Entries with the same signature are
// kept side by side; add never deduplicates.
func AddPreferences(list, add []models.AlertPreference) []models.AlertPreference {
	out := make([]models.AlertPreference, 0, len(list)+len(add))
	out = append(out, list...)
	return append(out, add...)
}

// RemovePreferences drops every entry of list whose signature matches any
// entry of remove.
func RemovePreferences(list, remove []models.AlertPreference) []models.AlertPreference {
	drop := make(map[models.PreferenceSignature]struct{}, len(remove))
	for _, p := range remove {
		drop[p.Signature()] = struct{}{}
	}
	out := make([]models.AlertPreference, 0, len(list))
	for _, p := range list {
		if _, ok := drop[p.Signature()]; ok {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ReplacePreferences discards list and returns a copy of with.
func ReplacePreferences(_, with []models.AlertPreference) []models.AlertPreference {
	return append([]models.AlertPreference{}, with...)
}

// ValidatePreferences checks that each preference names an alert type and
// at least one contact on a known channel.
func ValidatePreferences(prefs []models.AlertPreference) error {
	for i, p := range prefs {
		if strings.TrimSpace(p.AlertType) == "" {
			return fmt.Errorf("preference %d: alertType is required", i)
		}
		if len(p.Contacts) == 0 {
			return fmt.Errorf("preference %d: at least one contact is required", i)
		}
		for _, c := range p.Contacts {
			if !c.ContactType.Valid() {
				return fmt.Errorf("preference %d: unknown contact type %q", i, c.ContactType)
			}
			if strings.TrimSpace(c.ContactValue) == "" {
				return fmt.Errorf("preference %d: contact value is required", i)
			}
		}
	}
	return nil
}

// VendorAlerts flattens the preference contacts into the vendor profile's
// default alert destinations, one per distinct channel and value.
func VendorAlerts(prefs []models.AlertPreference) []visa.AlertPreference {
	seen := make(map[string]struct{})
	out := []visa.AlertPreference{}
	for _, p := range prefs {
		for _, c := range p.Contacts {
			key := string(c.ContactType) + "|" + strings.ToLower(strings.TrimSpace(c.ContactValue))
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, visa.AlertPreference{
				ContactType:          string(c.ContactType),
				ContactValue:         strings.TrimSpace(c.ContactValue),
				CallingCode:          c.CallingCode,
				PreferredEmailFormat: c.PreferredFormat,
				IsVerified:           c.IsVerified,
				Status:               c.Status,
			})
		}
	}
	return out
}
