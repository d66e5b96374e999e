package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/viego-wallet/viego-backend/internal/models"
)

// The in-memory stores back tests and the CLI when no database is
// configured. They copy on the way in and out so callers never share state
// with the store.

// MemoryProfiles is an in-memory ProfileRepository.
type MemoryProfiles struct {
	mu   sync.Mutex
	byID map[string]models.UserProfile
}

func NewMemoryProfiles() *MemoryProfiles {
	return &MemoryProfiles{byID: make(map[string]models.UserProfile)}
}

func (r *MemoryProfiles) Create(_ context.Context, p *models.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(p.Email))
	for _, existing := range r.byID {
		if existing.Email == email {
			return ErrDuplicate
		}
	}
	now := time.Now().UTC()
	p.ID = primitive.NewObjectID()
	p.Email = email
	p.CreatedAt, p.UpdatedAt = now, now
	if p.AlertPreferences == nil {
		p.AlertPreferences = []models.AlertPreference{}
	}
	r.byID[p.ID.Hex()] = cloneProfile(*p)
	return nil
}

func (r *MemoryProfiles) Get(_ context.Context, id string) (*models.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneProfile(p)
	return &out, nil
}

func (r *MemoryProfiles) GetByEmail(_ context.Context, email string) (*models.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, p := range r.byID {
		if p.Email == email {
			out := cloneProfile(p)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryProfiles) UpdateSettings(_ context.Context, id string, u ProfileUpdate) (*models.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if u.FirstName != nil {
		p.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		p.LastName = *u.LastName
	}
	if u.Notifications != nil {
		p.Notifications = *u.Notifications
	}
	p.UpdatedAt = time.Now().UTC()
	r.byID[id] = p
	out := cloneProfile(p)
	return &out, nil
}

func (r *MemoryProfiles) SetStatus(_ context.Context, id string, status models.AccountStatus) error {
	return r.update(id, func(p *models.UserProfile) error {
		p.Status = status
		return nil
	})
}

func (r *MemoryProfiles) SetVendorUserID(_ context.Context, id, vendorUserID string) error {
	return r.update(id, func(p *models.UserProfile) error {
		if p.VendorUserID != "" && p.VendorUserID != vendorUserID {
			return ErrVendorIDImmutable
		}
		p.VendorUserID = vendorUserID
		return nil
	})
}

func (r *MemoryProfiles) SetAlertPreferences(_ context.Context, id string, prefs []models.AlertPreference) error {
	return r.update(id, func(p *models.UserProfile) error {
		p.AlertPreferences = append([]models.AlertPreference{}, prefs...)
		return nil
	})
}

func (r *MemoryProfiles) update(id string, fn func(*models.UserProfile) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if err := fn(&p); err != nil {
		return err
	}
	p.UpdatedAt = time.Now().UTC()
	r.byID[id] = p
	return nil
}

func cloneProfile(p models.UserProfile) models.UserProfile {
	prefs := make([]models.AlertPreference, len(p.AlertPreferences))
	for i, pref := range p.AlertPreferences {
		pref.Contacts = append([]models.Contact(nil), pref.Contacts...)
		prefs[i] = pref
	}
	p.AlertPreferences = prefs
	return p
}

// MemoryCards is an in-memory CardRepository.
type MemoryCards struct {
	mu   sync.Mutex
	byID map[string]models.CardLink
}

func NewMemoryCards() *MemoryCards {
	return &MemoryCards{byID: make(map[string]models.CardLink)}
}

func (r *MemoryCards) Create(_ context.Context, c *models.CardLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.UserID == c.UserID && existing.PANHash == c.PANHash {
			return ErrDuplicate
		}
	}
	now := time.Now().UTC()
	c.ID = primitive.NewObjectID()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.ConfiguredCategories == nil {
		c.ConfiguredCategories = []string{}
	}
	r.byID[c.ID.Hex()] = cloneCard(*c)
	return nil
}

func (r *MemoryCards) Get(_ context.Context, id string) (*models.CardLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneCard(c)
	return &out, nil
}

func (r *MemoryCards) GetByPANHash(_ context.Context, userID, panHash string) (*models.CardLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byID {
		if c.UserID == userID && c.PANHash == panHash {
			out := cloneCard(c)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryCards) ListByUser(_ context.Context, userID string) ([]models.CardLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.CardLink{}
	for _, c := range r.byID {
		if c.UserID == userID {
			out = append(out, cloneCard(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryCards) SetDocument(_ context.Context, id, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	c.DocumentID = documentID
	c.UpdatedAt = time.Now().UTC()
	r.byID[id] = c
	return nil
}

func (r *MemoryCards) SetCategories(_ context.Context, id string, categories []string, replace bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if replace {
		c.ConfiguredCategories = append([]string{}, categories...)
	} else {
		for _, cat := range categories {
			if !containsString(c.ConfiguredCategories, cat) {
				c.ConfiguredCategories = append(c.ConfiguredCategories, cat)
			}
		}
	}
	c.UpdatedAt = time.Now().UTC()
	r.byID[id] = c
	return nil
}

func (r *MemoryCards) ClearDocument(_ context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.byID {
		if c.DocumentID == documentID {
			c.DocumentID = ""
			c.ConfiguredCategories = []string{}
			c.UpdatedAt = time.Now().UTC()
			r.byID[id] = c
		}
	}
	return nil
}

func cloneCard(c models.CardLink) models.CardLink {
	c.ConfiguredCategories = append([]string{}, c.ConfiguredCategories...)
	return c
}

// MemoryPayments is an in-memory PaymentRepository.
type MemoryPayments struct {
	mu   sync.Mutex
	byID map[string]models.AutomatedPayment
}

func NewMemoryPayments() *MemoryPayments {
	return &MemoryPayments{byID: make(map[string]models.AutomatedPayment)}
}

func (r *MemoryPayments) Create(_ context.Context, p *models.AutomatedPayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	p.ID = primitive.NewObjectID()
	p.CreatedAt, p.UpdatedAt = now, now
	r.byID[p.ID.Hex()] = clonePayment(*p)
	return nil
}

func (r *MemoryPayments) Get(_ context.Context, id string) (*models.AutomatedPayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := clonePayment(p)
	return &out, nil
}

func (r *MemoryPayments) ListByUser(_ context.Context, userID string) ([]models.AutomatedPayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.AutomatedPayment{}
	for _, p := range r.byID {
		if p.UserID == userID {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextDueDate.Before(out[j].NextDueDate) })
	return out, nil
}

func (r *MemoryPayments) Update(_ context.Context, p *models.AutomatedPayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := p.ID.Hex()
	if _, ok := r.byID[id]; !ok {
		return ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	r.byID[id] = clonePayment(*p)
	return nil
}

func (r *MemoryPayments) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *MemoryPayments) MarkOverdue(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, p := range r.byID {
		if p.Status == models.PaymentPending && p.NextDueDate.Before(now) {
			p.Status = models.PaymentOverdue
			p.UpdatedAt = now.UTC()
			r.byID[id] = p
			n++
		}
	}
	return n, nil
}

func (r *MemoryPayments) ReopenPaid(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, p := range r.byID {
		if p.Status == models.PaymentPaid && p.PaidThrough != nil && !p.PaidThrough.After(now) {
			p.Status = models.PaymentPending
			p.UpdatedAt = now.UTC()
			r.byID[id] = p
			n++
		}
	}
	return n, nil
}

func (r *MemoryPayments) ListMonitoring(_ context.Context, documentID, controlType string) ([]models.AutomatedPayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.AutomatedPayment{}
	for _, p := range r.byID {
		if p.DocumentID == documentID && p.ControlType == controlType {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryPayments) ClearDocument(_ context.Context, documentID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, p := range r.byID {
		if p.DocumentID == documentID {
			p.DocumentID, p.ControlType = "", ""
			p.UpdatedAt = time.Now().UTC()
			r.byID[id] = p
			n++
		}
	}
	return n, nil
}

func clonePayment(p models.AutomatedPayment) models.AutomatedPayment {
	p.ReminderDays = append([]int(nil), p.ReminderDays...)
	if p.LastPaidAt != nil {
		t := *p.LastPaidAt
		p.LastPaidAt = &t
	}
	if p.PaidThrough != nil {
		t := *p.PaidThrough
		p.PaidThrough = &t
	}
	return p
}

// MemoryReminders is an in-memory ReminderRepository. Claim is atomic under
// the store mutex, matching the conditional update of the Mongo store.
type MemoryReminders struct {
	mu   sync.Mutex
	byID map[string]models.Reminder
}

func NewMemoryReminders() *MemoryReminders {
	return &MemoryReminders{byID: make(map[string]models.Reminder)}
}

func (r *MemoryReminders) CreateMany(_ context.Context, reminders []models.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for i := range reminders {
		reminders[i].ID = primitive.NewObjectID()
		reminders[i].CreatedAt = now
		r.byID[reminders[i].ID.Hex()] = reminders[i]
	}
	return nil
}

func (r *MemoryReminders) ListByPayment(_ context.Context, paymentID string) ([]models.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Reminder{}
	for _, rem := range r.byID {
		if rem.PaymentID == paymentID {
			out = append(out, rem)
		}
	}
	sortReminders(out)
	return out, nil
}

func (r *MemoryReminders) DeleteByPayment(_ context.Context, paymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rem := range r.byID {
		if rem.PaymentID == paymentID {
			delete(r.byID, id)
		}
	}
	return nil
}

func (r *MemoryReminders) DeleteUnsentByPayment(_ context.Context, paymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rem := range r.byID {
		if rem.PaymentID == paymentID && !rem.Sent {
			delete(r.byID, id)
		}
	}
	return nil
}

func (r *MemoryReminders) Due(_ context.Context, now time.Time, limit int) ([]models.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Reminder{}
	for _, rem := range r.byID {
		if !rem.Sent && !rem.ScheduledAt.After(now) {
			out = append(out, rem)
		}
	}
	sortReminders(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryReminders) Claim(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if rem.Sent {
		return false, nil
	}
	sentAt := at.UTC()
	rem.Sent = true
	rem.SentAt = &sentAt
	r.byID[id] = rem
	return true, nil
}

func (r *MemoryReminders) Release(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	rem.Sent = false
	rem.SentAt = nil
	r.byID[id] = rem
	return nil
}

func sortReminders(list []models.Reminder) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].ScheduledAt.Equal(list[j].ScheduledAt) {
			return list[i].ID.Hex() < list[j].ID.Hex()
		}
		return list[i].ScheduledAt.Before(list[j].ScheduledAt)
	})
}

// MemorySpending is an in-memory SpendingStore.
type MemorySpending struct {
	mu      sync.Mutex
	periods map[string]models.SpendingPeriod
}

func NewMemorySpending() *MemorySpending {
	return &MemorySpending{periods: make(map[string]models.SpendingPeriod)}
}

func (s *MemorySpending) Add(_ context.Context, userID, period string, amount models.Money, at time.Time) (models.SpendingPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "|" + period
	p, ok := s.periods[key]
	if !ok {
		p = models.SpendingPeriod{UserID: userID, Period: period}
	}
	p.Total = p.Total.Add(amount)
	p.Count++
	p.UpdatedAt = at.UTC()
	s.periods[key] = p
	return p, nil
}

func (s *MemorySpending) Get(_ context.Context, userID, period string) (models.SpendingPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.periods[userID+"|"+period]
	if !ok {
		return models.SpendingPeriod{UserID: userID, Period: period}, nil
	}
	return p, nil
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
