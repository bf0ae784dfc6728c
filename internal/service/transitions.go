package service

import (
	"fmt"

	"solarmarket/verify-api/internal/model"
)

// Allowed questionnaire status moves. Status only moves forward, with one
// exception: linking an account re-opens the questionnaire as a draft so the
// customer can keep editing it. verified_at survives the re-open.
var questionnaireTransitions = map[model.QuestionnaireStatus]map[model.QuestionnaireStatus]bool{
	model.StatusDraft:     {model.StatusActive: true, model.StatusCompleted: true},
	model.StatusActive:    {model.StatusCompleted: true},
	model.StatusCompleted: {},
}

func canTransition(q *model.PropertyQuestionnaire, to model.QuestionnaireStatus) error {
	if q.Status == to {
		return nil
	}

	// Completion needs a verified questionnaire whatever the current status is
	if to == model.StatusCompleted && !q.Verified() {
		return fmt.Errorf("%w, %s -> %s: %w", ErrInvalidTransition, q.Status, to, ErrNotVerified)
	}

	if !questionnaireTransitions[q.Status][to] {
		return fmt.Errorf("%w, %s -> %s", ErrInvalidTransition, q.Status, to)
	}

	return nil
}

// canReopen reports whether the linking re-open may run: only a questionnaire
// nobody has claimed yet.
func canReopen(q *model.PropertyQuestionnaire) bool {
	return q.CustomerID == nil
}
