package service

import (
	"context"
	"testing"
	"time"

	"solarmarket/verify-api/config"
	"solarmarket/verify-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCleanupTokensHonoursRetention(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	jobs, err := NewJobs(config.JobsConfig{OutboxRelay: "@every 1m", TokenCleanup: "@every 24h"},
		7*24*time.Hour, env.db, env.notifications, zaptest.NewLogger(t))
	require.NoError(t, err)
	jobs.Now = env.clock.Now

	_, err = env.tokens.Issue(ctx, "old", model.TokenKindQuestionnaire)
	require.NoError(t, err)

	env.clock.Advance(5 * 24 * time.Hour)

	_, err = env.tokens.Issue(ctx, "recent", model.TokenKindQuestionnaire)
	require.NoError(t, err)

	env.clock.Advance(4 * 24 * time.Hour)

	_, err = env.tokens.Issue(ctx, "live", model.TokenKindRegistration)
	require.NoError(t, err)

	// old expired 8 days ago, recent 3 days ago, live not at all
	n, err := jobs.CleanupTokens(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var left []string
	require.NoError(t, env.db.Model(&model.VerificationToken{}).Order("subject_id").Pluck("subject_id", &left).Error)
	assert.Equal(t, []string{"live", "recent"}, left)
}

func TestNewJobsRejectsBadSchedule(t *testing.T) {
	env := newTestEnv(t)

	_, err := NewJobs(config.JobsConfig{OutboxRelay: "every minute", TokenCleanup: "@daily"},
		time.Hour, env.db, env.notifications, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestJobsStartStop(t *testing.T) {
	env := newTestEnv(t)

	jobs, err := NewJobs(config.JobsConfig{OutboxRelay: "@every 1h", TokenCleanup: "@every 1h"},
		time.Hour, env.db, env.notifications, zaptest.NewLogger(t))
	require.NoError(t, err)

	jobs.Start()
	jobs.Stop()
}
