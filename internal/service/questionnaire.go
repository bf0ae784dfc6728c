package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"solarmarket/verify-api/internal/metrics"
	"solarmarket/verify-api/internal/model"
	"solarmarket/verify-api/pkg/security"
	"solarmarket/verify-api/pkg/validators"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SubmitQuestionnaire struct {
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Address      string
	PropertyType string
	MonthlyBill  float64
	Answers      map[string]any
}

// VerificationOutcome is what a successful questionnaire verification
// reports. AlreadyVerified is the idempotent repeat visit, not an error.
type VerificationOutcome struct {
	QuestionnaireID string
	Email           string
	AlreadyVerified bool
	// Set when the vendor notification could not be handed over. The
	// verification itself still succeeded
	NotificationWarning error
}

type QuestionnaireService struct {
	db            *gorm.DB
	tokens        *TokenService
	notifications *NotificationService
	mailer        Mailer
	throttle      Throttle
	links         Links
	log           *zap.Logger
	metrics       *metrics.Metrics

	Now func() time.Time
}

func NewQuestionnaireService(
	db *gorm.DB,
	tokens *TokenService,
	notifications *NotificationService,
	mailer Mailer,
	throttle Throttle,
	links Links,
	log *zap.Logger,
	m *metrics.Metrics,
) *QuestionnaireService {
	return &QuestionnaireService{
		db:            db,
		tokens:        tokens,
		notifications: notifications,
		mailer:        mailer,
		throttle:      throttle,
		links:         links,
		log:           log,
		metrics:       m,
		Now:           time.Now,
	}
}

// Submit stores a new draft questionnaire together with its first
// verification token and mails the link. A failed mail is logged only, the
// customer can ask for the link again.
func (s *QuestionnaireService) Submit(ctx context.Context, in SubmitQuestionnaire) (*model.PropertyQuestionnaire, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := validators.EmailValidator(email); err != nil {
		return nil, fmt.Errorf("%w, %w", ErrMalformedInput, err)
	}

	if in.MonthlyBill < 0 {
		return nil, fmt.Errorf("%w, monthly bill can't be negative", ErrMalformedInput)
	}

	q := &model.PropertyQuestionnaire{
		ID:           uuid.NewString(),
		Status:       model.StatusDraft,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        email,
		Phone:        strings.TrimSpace(in.Phone),
		Address:      strings.TrimSpace(in.Address),
		PropertyType: strings.TrimSpace(in.PropertyType),
		MonthlyBill:  in.MonthlyBill,
		Answers:      in.Answers,
	}

	var tokenValue string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(q).Error; err != nil {
			return fmt.Errorf("failed to create questionnaire, %w", err)
		}

		tok, err := s.tokens.IssueTx(tx, q.ID, model.TokenKindQuestionnaire)
		if err != nil {
			return err
		}

		tokenValue = tok.Value
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sendLink(ctx, q, tokenValue)
	return q, nil
}

// RequestVerification issues a new token for the questionnaire, superseding
// the previous one, and mails the link to the recorded address.
func (s *QuestionnaireService) RequestVerification(ctx context.Context, questionnaireID string) error {
	if questionnaireID == "" {
		return fmt.Errorf("%w, no questionnaire id provided", ErrMalformedInput)
	}

	q, err := s.load(s.db.WithContext(ctx), questionnaireID)
	if err != nil {
		return err
	}

	if q.Verified() {
		return ErrAlreadyVerified
	}

	if s.throttle != nil {
		ok, err := s.throttle.Allow(ctx, "questionnaire:"+q.ID)
		if err != nil {
			// Fail open, a broken throttle must not block verification
			s.log.Warn("Resend throttle unavailable", zap.Error(err))
		} else if !ok {
			return ErrThrottled
		}
	}

	tok, err := s.tokens.Issue(ctx, q.ID, model.TokenKindQuestionnaire)
	if err != nil {
		return err
	}

	s.sendLink(ctx, q, tok.Value)
	return nil
}

func (s *QuestionnaireService) sendLink(ctx context.Context, q *model.PropertyQuestionnaire, token string) {
	err := s.mailer.SendQuestionnaireVerification(ctx, q.Email, q.FirstName, s.links.QuestionnaireVerification(token))
	if err != nil {
		s.log.Error("Failed to send questionnaire verification mail",
			zap.String("questionnaire_id", q.ID), zap.Error(err))
	}
}

// Verify consumes a questionnaire token and activates its questionnaire.
//
// Token consumption, activation and the vendor notification outbox row are
// committed in one transaction. A token that is already consumed resolves to
// its questionnaire: verified means the idempotent "already" outcome, not
// verified means an earlier run never activated it and it is activated now.
func (s *QuestionnaireService) Verify(ctx context.Context, token string) (*VerificationOutcome, error) {
	outcome, err := s.verify(ctx, token)

	label := "success"
	switch {
	case err != nil:
		label = verifyErrorLabel(err)
	case outcome.AlreadyVerified:
		label = "already"
	}
	s.metrics.VerificationOutcomes.WithLabelValues(string(model.TokenKindQuestionnaire), label).Inc()

	return outcome, err
}

func (s *QuestionnaireService) verify(ctx context.Context, token string) (*VerificationOutcome, error) {
	// Checked again by the token service, but nothing below should even
	// open a transaction for garbage
	if err := validateTokenInput(token); err != nil {
		return nil, err
	}

	var (
		outcome *VerificationOutcome
		outbox  *model.NotificationOutbox
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := s.tokens.ConsumeTx(tx, token, model.TokenKindQuestionnaire)
		if err != nil {
			return err
		}

		switch res.Status {
		case TokenNotFound:
			return ErrTokenNotFound
		case TokenExpired:
			return ErrTokenExpired
		}

		q, err := s.load(tx, res.SubjectID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Token outlived its questionnaire
				return ErrTokenNotFound
			}

			return err
		}

		outcome = &VerificationOutcome{QuestionnaireID: q.ID, Email: q.Email}

		if q.Verified() {
			outcome.AlreadyVerified = true
			return nil
		}

		if res.Status == TokenAlreadyConsumed {
			s.log.Warn("Token consumed but questionnaire never activated, repairing",
				zap.String("questionnaire_id", q.ID))
		}

		activated, err := s.activateTx(tx, q)
		if err != nil {
			return err
		}

		if !activated {
			outcome.AlreadyVerified = true
			return nil
		}

		outbox, err = s.notifications.RecordTx(tx, q)
		return err
	})
	if err != nil {
		return nil, err
	}

	if outbox != nil {
		if err := s.notifications.Deliver(ctx, outbox); err != nil {
			s.log.Warn("Questionnaire verified but vendors were not notified yet",
				zap.String("questionnaire_id", outcome.QuestionnaireID), zap.Error(err))
			outcome.NotificationWarning = err
		}
	}

	return outcome, nil
}

// activateTx moves a draft to active and stamps verified_at. Returns false
// when a concurrent verification got there first.
func (s *QuestionnaireService) activateTx(tx *gorm.DB, q *model.PropertyQuestionnaire) (bool, error) {
	if err := canTransition(q, model.StatusActive); err != nil {
		return false, err
	}

	now := s.Now().UTC()

	res := tx.Model(&model.PropertyQuestionnaire{}).
		Where("id = ? AND verified_at IS NULL", q.ID).
		Updates(map[string]any{
			"status":      model.StatusActive,
			"verified_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to activate questionnaire, %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return false, nil
	}

	q.Status = model.StatusActive
	q.VerifiedAt = &now
	return true, nil
}

// Status reports the verification state of a questionnaire.
func (s *QuestionnaireService) Status(ctx context.Context, questionnaireID string) (*model.PropertyQuestionnaire, error) {
	if questionnaireID == "" {
		return nil, fmt.Errorf("%w, no questionnaire id provided", ErrMalformedInput)
	}

	return s.load(s.db.WithContext(ctx), questionnaireID)
}

// Complete is the customer's profile completion action. Only the linked
// customer may complete, and only a verified questionnaire.
func (s *QuestionnaireService) Complete(ctx context.Context, userID, questionnaireID string) (*model.PropertyQuestionnaire, error) {
	if userID == "" || questionnaireID == "" {
		return nil, fmt.Errorf("%w, user id and questionnaire id are required", ErrMalformedInput)
	}

	var q *model.PropertyQuestionnaire

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		q, err = s.load(tx, questionnaireID)
		if err != nil {
			return err
		}

		if q.CustomerID == nil || *q.CustomerID != userID {
			return ErrNotOwner
		}

		if err := canTransition(q, model.StatusCompleted); err != nil {
			return err
		}

		err = tx.Model(&model.PropertyQuestionnaire{}).
			Where("id = ? AND customer_id = ?", q.ID, userID).
			Updates(map[string]any{
				"status":       model.StatusCompleted,
				"is_completed": true,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to complete questionnaire, %w", err)
		}

		q.Status = model.StatusCompleted
		q.IsCompleted = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	return q, nil
}

func (s *QuestionnaireService) load(tx *gorm.DB, id string) (*model.PropertyQuestionnaire, error) {
	return loadQuestionnaire(tx, s.log, id)
}

func loadQuestionnaire(tx *gorm.DB, log *zap.Logger, id string) (*model.PropertyQuestionnaire, error) {
	var q model.PropertyQuestionnaire

	if err := tx.Where("id = ?", id).First(&q).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to get questionnaire, %w", err)
	}

	if err := q.Validate(); err != nil {
		log.Error("Questionnaire record failed validation", zap.String("questionnaire_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w, questionnaire %s: %w", ErrInvalidRecord, id, err)
	}

	return &q, nil
}

func validateTokenInput(token string) error {
	if token == "" {
		return fmt.Errorf("%w, no verification token provided", ErrMalformedInput)
	}

	if err := security.CheckTokenShape(token); err != nil {
		return ErrMalformedToken
	}

	return nil
}

func verifyErrorLabel(err error) string {
	switch {
	case errors.Is(err, ErrMalformedInput), errors.Is(err, ErrMalformedToken):
		return "malformed"
	case errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrInvalidToken):
		return "invalid"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	}

	return "error"
}
