package service

import (
	"context"
	"errors"
	"fmt"

	"solarmarket/verify-api/internal/metrics"
	"solarmarket/verify-api/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LinkOutcome is the successful result of a link call. LinkedToOther is only
// ever set together with AlreadyLinked and means the questionnaire is claimed
// by a different account than the caller.
type LinkOutcome struct {
	AlreadyLinked bool
	LinkedToOther bool
}

type LinkingService struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewLinkingService(db *gorm.DB, log *zap.Logger, m *metrics.Metrics) *LinkingService {
	return &LinkingService{db: db, log: log, metrics: m}
}

// Link attaches a questionnaire to an authenticated account and re-opens it
// as a draft for the customer to edit. An existing link is never
// overwritten, whoever it points to. Safe to retry.
func (s *LinkingService) Link(ctx context.Context, userID, questionnaireID string) (LinkOutcome, error) {
	outcome, err := s.link(ctx, userID, questionnaireID)

	label := "linked"
	switch {
	case err != nil:
		label = "error"
		if errors.Is(err, ErrNotFound) {
			label = "not_found"
		}
	case outcome.LinkedToOther:
		label = "conflict"
	case outcome.AlreadyLinked:
		label = "already"
	}
	s.metrics.LinkOutcomes.WithLabelValues(label).Inc()

	return outcome, err
}

func (s *LinkingService) link(ctx context.Context, userID, questionnaireID string) (LinkOutcome, error) {
	if userID == "" || questionnaireID == "" {
		return LinkOutcome{}, fmt.Errorf("%w, user id and questionnaire id are required", ErrMalformedInput)
	}

	db := s.db.WithContext(ctx)

	q, err := loadQuestionnaire(db, s.log, questionnaireID)
	if err != nil {
		return LinkOutcome{}, err
	}

	if !canReopen(q) {
		return s.existingLink(q, userID), nil
	}

	var n int64
	if err := db.Model(&model.UserAccount{}).Where("id = ?", userID).Count(&n).Error; err != nil {
		return LinkOutcome{}, fmt.Errorf("failed to look up account, %w", err)
	}

	if n == 0 {
		return LinkOutcome{}, fmt.Errorf("%w, account %s", ErrNotFound, userID)
	}

	res := db.Model(&model.PropertyQuestionnaire{}).
		Where("id = ? AND customer_id IS NULL", q.ID).
		Updates(map[string]any{
			"customer_id":  userID,
			"status":       model.StatusDraft,
			"is_completed": false,
		})
	if res.Error != nil {
		return LinkOutcome{}, fmt.Errorf("failed to link questionnaire, %w", res.Error)
	}

	if res.RowsAffected == 1 {
		return LinkOutcome{}, nil
	}

	// Lost the race against another link call, report whoever won
	q, err = loadQuestionnaire(db, s.log, questionnaireID)
	if err != nil {
		return LinkOutcome{}, err
	}

	if q.CustomerID == nil {
		return LinkOutcome{}, fmt.Errorf("questionnaire %s unlinked after a failed link update", q.ID)
	}

	return s.existingLink(q, userID), nil
}

func (s *LinkingService) existingLink(q *model.PropertyQuestionnaire, userID string) LinkOutcome {
	if *q.CustomerID == userID {
		return LinkOutcome{AlreadyLinked: true}
	}

	s.log.Warn("Questionnaire claimed by another account",
		zap.String("questionnaire_id", q.ID),
		zap.String("user_id", userID))

	return LinkOutcome{AlreadyLinked: true, LinkedToOther: true}
}
