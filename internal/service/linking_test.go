package service

import (
	"context"
	"sync"
	"testing"

	"solarmarket/verify-api/internal/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "user-1")

	q := env.submit(t)
	_, err := env.questionnaires.Verify(ctx, env.currentToken(t, q.ID, model.TokenKindQuestionnaire))
	require.NoError(t, err)

	out, err := env.linking.Link(ctx, "user-1", q.ID)
	require.NoError(t, err)
	assert.Equal(t, LinkOutcome{}, out)

	linked := env.reload(t, q.ID)
	require.NotNil(t, linked.CustomerID)
	assert.Equal(t, "user-1", *linked.CustomerID)
	// Re-opened for editing, verification is kept
	assert.Equal(t, model.StatusDraft, linked.Status)
	assert.False(t, linked.IsCompleted)
	assert.NotNil(t, linked.VerifiedAt)

	out, err = env.linking.Link(ctx, "user-1", q.ID)
	require.NoError(t, err)
	assert.Equal(t, LinkOutcome{AlreadyLinked: true}, out)

	again := env.reload(t, q.ID)
	assert.Equal(t, "user-1", *again.CustomerID)
	assert.True(t, again.UpdatedAt.Equal(linked.UpdatedAt), "second link must not write")

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.LinkOutcomes.WithLabelValues("linked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.LinkOutcomes.WithLabelValues("already")))
}

func TestLinkNeverOverwritesAnotherCustomer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "user-1")
	env.createUser(t, "user-2")

	q := env.submit(t)

	_, err := env.linking.Link(ctx, "user-2", q.ID)
	require.NoError(t, err)

	out, err := env.linking.Link(ctx, "user-1", q.ID)
	require.NoError(t, err)
	assert.Equal(t, LinkOutcome{AlreadyLinked: true, LinkedToOther: true}, out)

	assert.Equal(t, "user-2", *env.reload(t, q.ID).CustomerID)
	assert.Equal(t, 1, env.logs.FilterMessage("Questionnaire claimed by another account").Len())
}

func TestLinkMissingRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "user-1")

	_, err := env.linking.Link(ctx, "user-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	q := env.submit(t)
	_, err = env.linking.Link(ctx, "ghost", q.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, env.reload(t, q.ID).CustomerID)

	_, err = env.linking.Link(ctx, "", q.ID)
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestLinkConcurrentClaimsHaveOneWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	users := []string{"user-1", "user-2", "user-3", "user-4"}
	for _, u := range users {
		env.createUser(t, u)
	}

	q := env.submit(t)

	var (
		wg       sync.WaitGroup
		outcomes = make([]LinkOutcome, len(users))
	)

	for i, u := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()

			var err error
			outcomes[i], err = env.linking.Link(ctx, u, q.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	winner := *env.reload(t, q.ID).CustomerID

	fresh := 0
	for i, out := range outcomes {
		if !out.AlreadyLinked {
			fresh++
			assert.Equal(t, users[i], winner)
			continue
		}

		assert.True(t, out.LinkedToOther)
	}

	assert.Equal(t, 1, fresh)
}
