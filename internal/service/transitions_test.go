package service

import (
	"testing"
	"time"

	"solarmarket/verify-api/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	now := time.Now()

	cases := []struct {
		from     model.QuestionnaireStatus
		verified bool
		to       model.QuestionnaireStatus
		ok       bool
	}{
		{model.StatusDraft, false, model.StatusActive, true},
		{model.StatusDraft, false, model.StatusCompleted, false},
		{model.StatusDraft, true, model.StatusCompleted, true},
		{model.StatusActive, true, model.StatusCompleted, true},
		{model.StatusActive, true, model.StatusDraft, false},
		{model.StatusCompleted, true, model.StatusActive, false},
		{model.StatusCompleted, true, model.StatusDraft, false},
		{model.StatusActive, true, model.StatusActive, true},
	}

	for _, c := range cases {
		q := &model.PropertyQuestionnaire{Status: c.from}
		if c.verified {
			q.VerifiedAt = &now
		}

		err := canTransition(q, c.to)
		if c.ok {
			assert.NoError(t, err, "%s -> %s", c.from, c.to)
			continue
		}

		assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", c.from, c.to)
	}
}

func TestCanReopen(t *testing.T) {
	owner := "user-1"

	assert.True(t, canReopen(&model.PropertyQuestionnaire{}))
	assert.False(t, canReopen(&model.PropertyQuestionnaire{CustomerID: &owner}))
}
