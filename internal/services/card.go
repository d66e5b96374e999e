package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/viego-wallet/viego-backend/internal/controls"
	"github.com/viego-wallet/viego-backend/internal/models"
	"github.com/viego-wallet/viego-backend/internal/repository"
	"github.com/viego-wallet/viego-backend/internal/visa"
	"github.com/viego-wallet/viego-backend/pkg/utils"
)

// CardService links cards to users and drives the vendor workflow for
// them. Card numbers are stored encrypted and only decrypted to make a
// vendor call.
type CardService struct {
	cards    repository.CardRepository
	payments repository.PaymentRepository
	profiles repository.ProfileRepository
	workflow *controls.Service
	cipher   *utils.Cipher
	spending *SpendingTracker
	logger   *slog.Logger
}

type CardServiceDeps struct {
	Cards    repository.CardRepository
	Payments repository.PaymentRepository
	Profiles repository.ProfileRepository
	Workflow *controls.Service
	Cipher   *utils.Cipher
	Spending *SpendingTracker
	Logger   *slog.Logger
}

func NewCardService(deps CardServiceDeps) *CardService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &CardService{
		cards:    deps.Cards,
		payments: deps.Payments,
		profiles: deps.Profiles,
		workflow: deps.Workflow,
		cipher:   deps.Cipher,
		spending: deps.Spending,
		logger:   deps.Logger,
	}
}

// Enroll links pan to the user and makes sure the vendor has a control
// document for it. Enrolling the same card again returns the existing link;
// a link left without a document by an earlier failure is completed.
func (s *CardService) Enroll(ctx context.Context, userID, pan string) (*models.CardLink, error) {
	const op = "enroll card"
	pan = utils.NormalizePAN(pan)
	if err := utils.ValidatePAN(pan); err != nil {
		return nil, invalidErr(op, err)
	}

	dbCtx, cancel := dbContext(ctx)
	profile, err := s.profiles.Get(dbCtx, userID)
	cancel()
	if err != nil {
		return nil, err
	}

	hash := utils.HashPAN(pan)
	dbCtx, cancel = dbContext(ctx)
	link, err := s.cards.GetByPANHash(dbCtx, userID, hash)
	cancel()
	switch {
	case err == nil && link.DocumentID != "":
		return link, nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	documentID, err := s.workflow.EnrollCard(ctx, pan, profile.VendorUserID)
	if err != nil {
		return nil, err
	}

	dbCtx, cancel = dbContext(ctx)
	defer cancel()
	if link != nil {
		if err := s.cards.SetDocument(dbCtx, link.ID.Hex(), documentID); err != nil {
			return nil, err
		}
		link.DocumentID = documentID
		return link, nil
	}

	encrypted, err := s.cipher.Encrypt(pan)
	if err != nil {
		return nil, err
	}
	link = &models.CardLink{
		UserID:               userID,
		PANEncrypted:         encrypted,
		PANHash:              hash,
		Last4:                utils.Last4(pan),
		DocumentID:           documentID,
		ConfiguredCategories: []string{},
	}
	if err := s.cards.Create(dbCtx, link); err != nil {
		return nil, err
	}
	s.logger.Info("card linked", "user_id", userID, "card_id", link.ID.Hex(), "document_id", documentID)
	return link, nil
}

func (s *CardService) List(ctx context.Context, userID string) ([]models.CardLink, error) {
	dbCtx, cancel := dbContext(ctx)
	defer cancel()
	return s.cards.ListByUser(dbCtx, userID)
}

// Get returns the user's card. Another user's card reads as not found.
func (s *CardService) Get(ctx context.Context, userID, cardID string) (*models.CardLink, error) {
	dbCtx, cancel := dbContext(ctx)
	defer cancel()
	card, err := s.cards.Get(dbCtx, cardID)
	if err != nil {
		return nil, err
	}
	if card.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return card, nil
}

func (s *CardService) pan(card *models.CardLink) (string, error) {
	pan, err := s.cipher.Decrypt(card.PANEncrypted)
	if err != nil {
		return "", &controls.Error{Kind: controls.KindConfig, Op: "decrypt card number", Err: err}
	}
	return pan, nil
}

// Discover lists the control types the vendor offers for the card.
func (s *CardService) Discover(ctx context.Context, userID, cardID string) (controls.Availability, error) {
	card, err := s.Get(ctx, userID, cardID)
	if err != nil {
		return controls.Availability{}, err
	}
	pan, err := s.pan(card)
	if err != nil {
		return controls.Availability{}, err
	}
	return s.workflow.DiscoverAvailableControls(ctx, pan), nil
}

// AttachRules adds (or with replace, overwrites) rules on the card's
// control document and records the configured categories.
func (s *CardService) AttachRules(ctx context.Context, userID, cardID string, rules []visa.ControlRule, replace bool) (controls.AttachResult, error) {
	card, err := s.Get(ctx, userID, cardID)
	if err != nil {
		return controls.AttachResult{}, err
	}
	return s.attach(ctx, card, rules, replace)
}

func (s *CardService) attach(ctx context.Context, card *models.CardLink, rules []visa.ControlRule, replace bool) (controls.AttachResult, error) {
	pan, err := s.pan(card)
	if err != nil {
		return controls.AttachResult{}, err
	}

	userIdentifier := ""
	dbCtx, cancel := dbContext(ctx)
	if profile, err := s.profiles.Get(dbCtx, card.UserID); err == nil {
		userIdentifier = profile.VendorUserID
	}
	cancel()

	result, err := s.workflow.AttachRules(ctx, controls.AttachRequest{
		DocumentID:     card.DocumentID,
		PAN:            pan,
		UserIdentifier: userIdentifier,
		Rules:          rules,
		Replace:        replace,
	})
	if err != nil {
		return controls.AttachResult{}, err
	}

	dbCtx, cancel = dbContext(ctx)
	defer cancel()
	if result.DocumentID != card.DocumentID {
		if err := s.cards.SetDocument(dbCtx, card.ID.Hex(), result.DocumentID); err != nil {
			return controls.AttachResult{}, err
		}
		card.DocumentID = result.DocumentID
	}
	// A freshly created document holds exactly these rules.
	if err := s.cards.SetCategories(dbCtx, card.ID.Hex(), result.ControlTypes, replace || result.Created); err != nil {
		return controls.AttachResult{}, err
	}
	return result, nil
}

// Document reads the card's control document from the vendor.
func (s *CardService) Document(ctx context.Context, userID, cardID string) (*visa.ControlDocument, error) {
	card, err := s.Get(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	if card.DocumentID == "" {
		return nil, &controls.Error{Kind: controls.KindNotFound, Op: "get control document", Err: errors.New("card has no control document")}
	}
	return s.workflow.GetDocument(ctx, card.DocumentID)
}

// DeleteDocument deletes the card's control document at the vendor and
// forgets it locally, on the card and on any payment it monitored. The
// local records are cleared even when the vendor call fails; that error is
// still returned.
func (s *CardService) DeleteDocument(ctx context.Context, userID, cardID string) error {
	card, err := s.Get(ctx, userID, cardID)
	if err != nil {
		return err
	}
	if card.DocumentID == "" {
		return nil
	}
	vendorErr := s.workflow.DeleteDocument(ctx, card.DocumentID)
	if vendorErr != nil {
		s.logger.Warn("vendor document delete failed; clearing local link anyway",
			"document_id", card.DocumentID,
			"error_kind", controls.Classify(vendorErr),
			"error", vendorErr,
		)
	}
	return errors.Join(vendorErr, s.forgetDocument(ctx, card.DocumentID))
}

func (s *CardService) forgetDocument(ctx context.Context, documentID string) error {
	dbCtx, cancel := dbContext(ctx)
	defer cancel()
	if err := s.cards.ClearDocument(dbCtx, documentID); err != nil {
		return err
	}
	n, err := s.payments.ClearDocument(dbCtx, documentID)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("payments unlinked from deleted document", "document_id", documentID, "payments", n)
	}
	return nil
}

// SimulateInput is a synthetic purchase on a linked card.
type SimulateInput struct {
	Amount       models.Money `json:"amount"`
	MerchantName string       `json:"merchant_name"`
	CategoryCode string       `json:"category_code"`
	CountryCode  string       `json:"country_code,omitempty"`
	CurrencyCode string       `json:"currency_code,omitempty"`
	CardPresent  bool         `json:"card_present"`
}

// SimulationResult is the vendor verdict and, for approvals, the updated
// monthly spend.
type SimulationResult struct {
	Decision models.DecisionResult  `json:"decision"`
	Spending *models.SpendingStatus `json:"spending,omitempty"`
}

// Simulate runs a decision for the card. Approved amounts count towards
// the user's monthly spend.
func (s *CardService) Simulate(ctx context.Context, userID, cardID string, in SimulateInput) (SimulationResult, error) {
	card, err := s.Get(ctx, userID, cardID)
	if err != nil {
		return SimulationResult{}, err
	}
	pan, err := s.pan(card)
	if err != nil {
		return SimulationResult{}, err
	}

	decision, err := s.workflow.SimulateDecision(ctx, controls.DecisionInput{
		PAN:          pan,
		Amount:       in.Amount,
		MerchantName: in.MerchantName,
		CategoryCode: in.CategoryCode,
		CountryCode:  in.CountryCode,
		CurrencyCode: in.CurrencyCode,
		CardPresent:  in.CardPresent,
	})
	if err != nil {
		return SimulationResult{}, err
	}

	result := SimulationResult{Decision: decision}
	if decision.Approved && s.spending != nil {
		status, err := s.spending.Record(ctx, userID, decision.Amount)
		if err != nil {
			s.logger.Warn("approved amount not recorded", "user_id", userID, "error", err)
		} else {
			result.Spending = &status
		}
	}
	return result, nil
}

// AlertHistory pages through the alerts raised for the card's document.
func (s *CardService) AlertHistory(ctx context.Context, userID, cardID string, pageLimit, startIndex int) (*visa.AlertHistory, error) {
	card, err := s.Get(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	if card.DocumentID == "" {
		return nil, &controls.Error{Kind: controls.KindNotFound, Op: "fetch alert history", Err: errors.New("card has no control document")}
	}
	return s.workflow.FetchAlertHistory(ctx, controls.HistoryQuery{
		DocumentIDs: []string{card.DocumentID},
		PageLimit:   pageLimit,
		StartIndex:  startIndex,
	})
}
