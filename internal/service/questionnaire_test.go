package service

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"solarmarket/verify-api/internal/model"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitCreatesDraftAndMailsLink(t *testing.T) {
	env := newTestEnv(t)

	q := env.submit(t)
	assert.Equal(t, model.StatusDraft, q.Status)
	assert.Equal(t, "jane@example.com", q.Email)
	assert.Nil(t, q.VerifiedAt)

	stored := env.reload(t, q.ID)
	assert.Equal(t, map[string]any{"roofAge": 7.0}, stored.Answers)

	sent := env.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "jane@example.com", sent[0].To)

	link, err := url.Parse(sent[0].Link)
	require.NoError(t, err)
	assert.Equal(t, "/verify-questionnaire", link.Path)
	assert.Equal(t, env.currentToken(t, q.ID, model.TokenKindQuestionnaire), link.Query().Get("token"))
}

func TestSubmitRejectsBadEmail(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.questionnaires.Submit(context.Background(), SubmitQuestionnaire{Email: "nope"})
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestSubmitSurvivesMailFailure(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.err = ErrDownstream

	q := env.submit(t)
	assert.NotEmpty(t, env.currentToken(t, q.ID, model.TokenKindQuestionnaire))
	assert.Equal(t, 1, env.logs.FilterMessage("Failed to send questionnaire verification mail").Len())
}

func TestVerifyTwiceIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	q := env.submit(t)
	token := env.currentToken(t, q.ID, model.TokenKindQuestionnaire)

	first, err := env.questionnaires.Verify(ctx, token)
	require.NoError(t, err)
	assert.False(t, first.AlreadyVerified)
	assert.NoError(t, first.NotificationWarning)

	stored := env.reload(t, q.ID)
	assert.Equal(t, model.StatusActive, stored.Status)
	require.NotNil(t, stored.VerifiedAt)
	assert.True(t, stored.VerifiedAt.Equal(env.clock.Now()))

	env.clock.Advance(time.Minute)

	second, err := env.questionnaires.Verify(ctx, token)
	require.NoError(t, err)
	assert.True(t, second.AlreadyVerified)
	assert.Equal(t, first.QuestionnaireID, second.QuestionnaireID)
	assert.Equal(t, first.Email, second.Email)

	// verified_at is set once
	assert.True(t, env.reload(t, q.ID).VerifiedAt.Equal(*stored.VerifiedAt))

	delivered := env.dispatcher.Delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, VendorNotification{
		QuestionnaireID: q.ID,
		CustomerName:    "Jane Doe",
		CustomerEmail:   "jane@example.com",
		PropertyType:    "single_family",
		MonthlyBill:     180,
	}, delivered[0])

	var outbox []model.NotificationOutbox
	require.NoError(t, env.db.Find(&outbox).Error)
	require.Len(t, outbox, 1)
	assert.Equal(t, model.OutboxDispatched, outbox[0].Status)

	outcomes := env.metrics.VerificationOutcomes
	assert.Equal(t, 1.0, testutil.ToFloat64(outcomes.WithLabelValues("questionnaire", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(outcomes.WithLabelValues("questionnaire", "already")))
}

func TestVerifyExpiredLeavesDraft(t *testing.T) {
	env := newTestEnv(t)

	q := env.submit(t)
	token := env.currentToken(t, q.ID, model.TokenKindQuestionnaire)

	env.clock.Advance(tokenTTL + time.Second)

	_, err := env.questionnaires.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	stored := env.reload(t, q.ID)
	assert.Equal(t, model.StatusDraft, stored.Status)
	assert.Nil(t, stored.VerifiedAt)
	assert.Empty(t, env.dispatcher.Delivered())
}

func TestVerifyMalformedTokenSkipsStore(t *testing.T) {
	env := newTestEnv(t)
	queries := countQueries(t, env.db)

	_, err := env.questionnaires.Verify(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrMalformedToken)

	_, err = env.questionnaires.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrMalformedInput)

	assert.Zero(t, queries.Load())
}

func TestVerifyUnknownToken(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.questionnaires.Verify(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestVerifyNotificationFailureIsOnlyAWarning(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.dispatcher.SetFail(errors.New("connection refused"))

	q := env.submit(t)

	out, err := env.questionnaires.Verify(ctx, env.currentToken(t, q.ID, model.TokenKindQuestionnaire))
	require.NoError(t, err)
	assert.False(t, out.AlreadyVerified)
	assert.ErrorIs(t, out.NotificationWarning, ErrDownstream)
	assert.Equal(t, model.StatusActive, env.reload(t, q.ID).Status)

	var row model.NotificationOutbox
	require.NoError(t, env.db.First(&row, "questionnaire_id = ?", q.ID).Error)
	assert.Equal(t, model.OutboxPending, row.Status)
	assert.Equal(t, 1, row.Attempts)
	assert.Contains(t, row.LastError, "connection refused")

	env.dispatcher.SetFail(nil)

	n, err := env.notifications.RelayPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, env.dispatcher.Delivered(), 1)

	require.NoError(t, env.db.First(&row, "questionnaire_id = ?", q.ID).Error)
	assert.Equal(t, model.OutboxDispatched, row.Status)
	assert.NotNil(t, row.DispatchedAt)
}

func TestVerifyRepairsConsumedButInactiveQuestionnaire(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	q := env.submit(t)
	token := env.currentToken(t, q.ID, model.TokenKindQuestionnaire)

	// Token consumed without the activation ever landing
	res, err := env.tokens.ValidateAndConsume(ctx, token, model.TokenKindQuestionnaire)
	require.NoError(t, err)
	require.Equal(t, TokenValid, res.Status)

	out, err := env.questionnaires.Verify(ctx, token)
	require.NoError(t, err)
	assert.False(t, out.AlreadyVerified)

	stored := env.reload(t, q.ID)
	assert.Equal(t, model.StatusActive, stored.Status)
	assert.NotNil(t, stored.VerifiedAt)
	assert.Len(t, env.dispatcher.Delivered(), 1)
	assert.Equal(t, 1, env.logs.FilterMessage("Token consumed but questionnaire never activated, repairing").Len())
}

func TestRequestVerificationReissues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	q := env.submit(t)
	old := env.currentToken(t, q.ID, model.TokenKindQuestionnaire)

	require.NoError(t, env.questionnaires.RequestVerification(ctx, q.ID))
	fresh := env.currentToken(t, q.ID, model.TokenKindQuestionnaire)
	assert.NotEqual(t, old, fresh)
	assert.Len(t, env.mailer.Sent(), 2)

	assert.ErrorIs(t, env.questionnaires.RequestVerification(ctx, q.ID), ErrThrottled)

	_, err := env.questionnaires.Verify(ctx, old)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	_, err = env.questionnaires.Verify(ctx, fresh)
	require.NoError(t, err)

	assert.ErrorIs(t, env.questionnaires.RequestVerification(ctx, q.ID), ErrAlreadyVerified)
	assert.ErrorIs(t, env.questionnaires.RequestVerification(ctx, "missing"), ErrNotFound)
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	q := env.submit(t)

	got, err := env.questionnaires.Status(ctx, q.ID)
	require.NoError(t, err)
	assert.False(t, got.Verified())

	_, err = env.questionnaires.Verify(ctx, env.currentToken(t, q.ID, model.TokenKindQuestionnaire))
	require.NoError(t, err)

	got, err = env.questionnaires.Status(ctx, q.ID)
	require.NoError(t, err)
	assert.True(t, got.Verified())
	assert.Equal(t, "jane@example.com", got.Email)

	_, err = env.questionnaires.Status(ctx, "")
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = env.questionnaires.Status(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatusRejectsInvalidRecord(t *testing.T) {
	env := newTestEnv(t)

	// Active without ever being verified can't be written by the service
	require.NoError(t, env.db.Create(&model.PropertyQuestionnaire{
		ID:     "broken",
		Status: model.StatusActive,
		Email:  "x@example.com",
	}).Error)

	_, err := env.questionnaires.Status(context.Background(), "broken")
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestComplete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "user-1")

	q := env.submit(t)

	_, err := env.questionnaires.Complete(ctx, "user-1", q.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = env.linking.Link(ctx, "user-1", q.ID)
	require.NoError(t, err)

	_, err = env.questionnaires.Complete(ctx, "user-1", q.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, err, ErrNotVerified)

	_, err = env.questionnaires.Verify(ctx, env.currentToken(t, q.ID, model.TokenKindQuestionnaire))
	require.NoError(t, err)

	done, err := env.questionnaires.Complete(ctx, "user-1", q.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)
	assert.True(t, done.IsCompleted)

	stored := env.reload(t, q.ID)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	assert.True(t, stored.IsCompleted)
}
