package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/viego-wallet/viego-backend/internal/clock"
	"github.com/viego-wallet/viego-backend/internal/controls"
	"github.com/viego-wallet/viego-backend/internal/models"
	"github.com/viego-wallet/viego-backend/internal/repository"
	"github.com/viego-wallet/viego-backend/internal/visa"
)

// PaymentService schedules recurring payments, their reminders and, when a
// card is given, a vendor spend-limit rule that watches the payment.
type PaymentService struct {
	payments    repository.PaymentRepository
	reminders   repository.ReminderRepository
	cards       *CardService
	workflow    *controls.Service
	clock       clock.Clock
	logger      *slog.Logger
	defaultDays []int
}

type PaymentServiceDeps struct {
	Payments    repository.PaymentRepository
	Reminders   repository.ReminderRepository
	Cards       *CardService
	Workflow    *controls.Service
	Clock       clock.Clock
	Logger      *slog.Logger
	DefaultDays []int
}

func NewPaymentService(deps PaymentServiceDeps) *PaymentService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if len(deps.DefaultDays) == 0 {
		deps.DefaultDays = []int{7, 3, 1}
	}
	return &PaymentService{
		payments:    deps.Payments,
		reminders:   deps.Reminders,
		cards:       deps.Cards,
		workflow:    deps.Workflow,
		clock:       deps.Clock,
		logger:      deps.Logger,
		defaultDays: deps.DefaultDays,
	}
}

type PaymentInput struct {
	MerchantName string           `json:"merchant_name"`
	CategoryCode string           `json:"category_code"`
	Amount       models.Money     `json:"amount"`
	Frequency    models.Frequency `json:"frequency"`
	DueDay       int              `json:"due_day,omitempty"`
	ReminderDays []int            `json:"reminder_days,omitempty"`
	CardID       string           `json:"card_id,omitempty"`
}

// Create stores the payment and its reminders. With a card, a spend-limit
// rule for the merchant's category is attached on a best-effort basis;
// when that fails the payment is kept without a DocumentID.
func (s *PaymentService) Create(ctx context.Context, userID string, in PaymentInput) (*models.AutomatedPayment, error) {
	const op = "create payment"
	in.MerchantName = strings.TrimSpace(in.MerchantName)
	if in.MerchantName == "" {
		return nil, invalid(op, "merchant_name is required")
	}
	if !in.Amount.IsPositive() {
		return nil, invalid(op, "amount must be positive")
	}
	if in.DueDay < 0 || in.DueDay > 31 {
		return nil, invalid(op, "due_day must be between 1 and 31")
	}

	var card *models.CardLink
	if in.CardID != "" {
		c, err := s.cards.Get(ctx, userID, in.CardID)
		if err != nil {
			return nil, err
		}
		card = c
	}

	now := s.clock.Now()
	next, err := CalculateNextDueDate(in.Frequency, in.DueDay, now)
	if err != nil {
		return nil, invalidErr(op, err)
	}
	days := in.ReminderDays
	if len(days) == 0 {
		days = s.defaultDays
	}

	p := &models.AutomatedPayment{
		UserID:       userID,
		MerchantName: in.MerchantName,
		CategoryCode: in.CategoryCode,
		Amount:       in.Amount,
		Frequency:    in.Frequency,
		DueDay:       ResolveDueDay(in.Frequency, in.DueDay, now),
		NextDueDate:  next,
		Status:       models.PaymentPending,
		ReminderDays: days,
	}

	dbCtx, cancel := dbContext(ctx)
	defer cancel()
	if err := s.payments.Create(dbCtx, p); err != nil {
		return nil, err
	}
	if err := s.reminders.CreateMany(dbCtx, GenerateReminders(p, days)); err != nil {
		return nil, err
	}

	if card != nil {
		s.monitor(ctx, p, card)
	}
	return p, nil
}

// monitor folds p's amount into the spend limit of the card's rule for the
// payment's category and records the document on success. A rule already
// on the document keeps its own thresholds; payments sharing the rule add
// up. Failures are logged and leave p unmonitored.
func (s *PaymentService) monitor(ctx context.Context, p *models.AutomatedPayment, card *models.CardLink) {
	rule, ok := SpendLimitRule(p)
	if !ok {
		s.logger.Info("no merchant control for category; payment not monitored",
			"payment_id", p.ID.Hex(), "category_code", p.CategoryCode)
		return
	}
	logger := s.logger.With("payment_id", p.ID.Hex(), "control_type", rule.ControlType)

	if card.DocumentID != "" {
		doc, err := s.workflow.GetDocument(ctx, card.DocumentID)
		if err != nil {
			logger.Warn("control document not read; payment not monitored",
				"error_kind", controls.Classify(err), "error", err)
			return
		}
		others, err := s.monitoring(ctx, card.DocumentID, rule.ControlType, p.ID)
		if err != nil {
			logger.Warn("monitored payments not listed; payment not monitored", "error", err)
			return
		}
		var current *visa.SpendLimit
		if existing, found := findRule(doc, rule.ControlType); found {
			rule = existing
			current = existing.SpendLimit
		}
		rule.SpendLimit = spendLimitFor(current, append(others, *p))
	}

	result, err := s.cards.attach(ctx, card, []visa.ControlRule{rule}, false)
	if err != nil {
		logger.Warn("spend-limit rule not attached",
			"error_kind", controls.Classify(err),
			"error", err,
		)
		return
	}

	p.DocumentID = result.DocumentID
	p.ControlType = rule.ControlType
	p.CardID = card.ID.Hex()
	dbCtx, cancel := dbContext(ctx)
	defer cancel()
	if err := s.payments.Update(dbCtx, p); err != nil {
		logger.Warn("payment document not saved", "error", err)
	}
}

// unmonitor takes p out of the spend limit it shares. The rule is dropped
// once nothing else holds it and the document is deleted with its last
// rule. Failures are logged only.
func (s *PaymentService) unmonitor(ctx context.Context, p *models.AutomatedPayment) {
	logger := s.logger.With("payment_id", p.ID.Hex(), "document_id", p.DocumentID, "control_type", p.ControlType)

	others, err := s.monitoring(ctx, p.DocumentID, p.ControlType, p.ID)
	if err != nil {
		logger.Warn("monitored payments not listed; spend limit left in place", "error", err)
		return
	}
	doc, err := s.workflow.GetDocument(ctx, p.DocumentID)
	if err != nil {
		logger.Warn("control document not read; spend limit left in place",
			"error_kind", controls.Classify(err), "error", err)
		return
	}

	var kept []visa.ControlRule
	changed := false
	for _, r := range append(append([]visa.ControlRule(nil), doc.MerchantControls...), doc.TransactionControls...) {
		if r.ControlType != p.ControlType {
			kept = append(kept, r)
			continue
		}
		changed = true
		r.SpendLimit = spendLimitFor(r.SpendLimit, others)
		if !spendLimitOnly(r) || r.SpendLimit != nil {
			kept = append(kept, r)
		}
	}
	if !changed {
		return
	}

	if len(kept) == 0 {
		if err := s.workflow.DeleteDocument(ctx, p.DocumentID); err != nil {
			logger.Warn("control document not deleted",
				"error_kind", controls.Classify(err), "error", err)
			return
		}
		if err := s.cards.forgetDocument(ctx, p.DocumentID); err != nil {
			logger.Warn("local document links not cleared", "error", err)
		}
		return
	}

	card, err := s.cards.Get(ctx, p.UserID, p.CardID)
	if err != nil || card.DocumentID != p.DocumentID {
		logger.Warn("monitoring card not found; spend limit left in place", "card_id", p.CardID, "error", err)
		return
	}
	if _, err := s.cards.attach(ctx, card, kept, true); err != nil {
		logger.Warn("spend limit not removed",
			"error_kind", controls.Classify(err), "error", err)
	}
}

// monitoring lists the payments other than exclude that share the rule.
func (s *PaymentService) monitoring(ctx context.Context, documentID, controlType string, exclude primitive.ObjectID) ([]models.AutomatedPayment, error) {
	dbCtx, cancel := dbContext(ctx)
	defer cancel()
	all, err := s.payments.ListMonitoring(dbCtx, documentID, controlType)
	if err != nil {
		return nil, err
	}
	out := make([]models.AutomatedPayment, 0, len(all))
	for _, p := range all {
		if p.ID != exclude {
			out = append(out, p)
		}
	}
	return out, nil
}

func findRule(doc *visa.ControlDocument, controlType string) (visa.ControlRule, bool) {
	for _, list := range [][]visa.ControlRule{doc.MerchantControls, doc.TransactionControls} {
		for _, r := range list {
			if r.ControlType == controlType {
				return r, true
			}
		}
	}
	return visa.ControlRule{}, false
}

// spendLimitOnly reports whether r carries nothing but its spend limit.
func spendLimitOnly(r visa.ControlRule) bool {
	return !r.ShouldDeclineAll && r.AlertThreshold == nil && r.DeclineThreshold == nil
}

// spendLimitFor alerts on the combined amount of payments. A decline
// threshold already on current is kept. Payments on different windows are
// summed as monthly equivalents on a monthly window. It returns nil when
// nothing is left to watch.
func spendLimitFor(current *visa.SpendLimit, payments []models.AutomatedPayment) *visa.SpendLimit {
	var limit visa.SpendLimit
	if current != nil {
		limit.Type = current.Type
		limit.DeclineThreshold = current.DeclineThreshold
	}
	if len(payments) == 0 {
		if limit.DeclineThreshold == nil {
			return nil
		}
		return &limit
	}

	window := visa.SpendLimitForFrequency(string(payments[0].Frequency))
	mixed := false
	for _, p := range payments[1:] {
		if visa.SpendLimitForFrequency(string(p.Frequency)) != window {
			mixed = true
		}
	}
	total := decimal.Zero
	for _, p := range payments {
		if mixed {
			total = total.Add(monthlyEquivalent(p))
		} else {
			total = total.Add(p.Amount.Decimal)
		}
	}
	if mixed {
		window = visa.LimitMonth
	}
	limit.Type = window
	amount, _ := total.Round(2).Float64()
	limit.AlertThreshold = visa.Amount(amount)
	return &limit
}

func monthlyEquivalent(p models.AutomatedPayment) decimal.Decimal {
	a := p.Amount.Decimal
	switch p.Frequency {
	case models.FrequencyWeekly:
		return a.Mul(decimal.NewFromInt(52)).Div(decimal.NewFromInt(12))
	case models.FrequencyBiweekly:
		return a.Mul(decimal.NewFromInt(26)).Div(decimal.NewFromInt(12))
	case models.FrequencyQuarterly:
		return a.Div(decimal.NewFromInt(3))
	case models.FrequencyYearly:
		return a.Div(decimal.NewFromInt(12))
	}
	return a
}

// SpendLimitRule builds the rule that alerts when spend at the payment's
// merchant category passes the payment amount within its cadence.
func SpendLimitRule(p *models.AutomatedPayment) (visa.ControlRule, bool) {
	controlType, ok := visa.ControlTypeForMCC(p.CategoryCode)
	if !ok {
		return visa.ControlRule{}, false
	}
	return visa.ControlRule{
		ControlType:          controlType,
		IsControlEnabled:     true,
		ShouldAlertOnDecline: true,
		SpendLimit: &visa.SpendLimit{
			Type:           visa.SpendLimitForFrequency(string(p.Frequency)),
			AlertThreshold: visa.Amount(p.Amount.Float()),
		},
	}, true
}

func (s *PaymentService) List(ctx context.Context, userID string) ([]models.AutomatedPayment, error) {
	dbCtx, cancel := dbContext(ctx)
	defer cancel()
	return s.payments.ListByUser(dbCtx, userID)
}

func (s *PaymentService) Get(ctx context.Context, userID, paymentID string) (*models.AutomatedPayment, error) {
	dbCtx, cancel := dbContext(ctx)
	defer cancel()
	p, err := s.payments.Get(dbCtx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

// MarkPaid records the payment, moves the due date one period past the
// current one and reschedules the unsent reminders. The payment stays paid
// until the due date it covered has passed.
func (s *PaymentService) MarkPaid(ctx context.Context, userID, paymentID string) (*models.AutomatedPayment, error) {
	p, err := s.Get(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}
	next, err := CalculateNextDueDate(p.Frequency, p.DueDay, p.NextDueDate)
	if err != nil {
		return nil, invalidErr("mark paid", err)
	}

	now := s.clock.Now().UTC()
	covered := p.NextDueDate
	p.LastPaidAt = &now
	p.PaidThrough = &covered
	p.NextDueDate = next
	p.Status = models.PaymentPaid

	dbCtx, cancel := dbContext(ctx)
	defer cancel()
	if err := s.payments.Update(dbCtx, p); err != nil {
		return nil, err
	}
	if err := s.reminders.DeleteUnsentByPayment(dbCtx, paymentID); err != nil {
		return nil, err
	}
	if err := s.reminders.CreateMany(dbCtx, GenerateReminders(p, p.ReminderDays)); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes the payment and its reminders. Its share of the spend
// limit it was monitored by is removed best-effort; other rules on the
// card's document stay. A vendor failure is logged only.
func (s *PaymentService) Delete(ctx context.Context, userID, paymentID string) error {
	p, err := s.Get(ctx, userID, paymentID)
	if err != nil {
		return err
	}

	if p.DocumentID != "" && p.ControlType != "" {
		s.unmonitor(ctx, p)
	}

	dbCtx, cancel := dbContext(ctx)
	defer cancel()
	if err := s.reminders.DeleteByPayment(dbCtx, paymentID); err != nil {
		return err
	}
	if err := s.payments.Delete(dbCtx, paymentID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return nil
}

// Reminders lists the payment's reminders, earliest first.
func (s *PaymentService) Reminders(ctx context.Context, userID, paymentID string) ([]models.Reminder, error) {
	if _, err := s.Get(ctx, userID, paymentID); err != nil {
		return nil, err
	}
	dbCtx, cancel := dbContext(ctx)
	defer cancel()
	return s.reminders.ListByPayment(dbCtx, paymentID)
}
