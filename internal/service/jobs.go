package service

import (
	"context"
	"fmt"
	"time"

	"solarmarket/verify-api/config"
	"solarmarket/verify-api/internal/model"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Jobs runs the periodic maintenance of the verification workflow: retrying
// vendor notifications that never got handed over and removing tokens long
// past their expiry.
type Jobs struct {
	cron          *cron.Cron
	db            *gorm.DB
	notifications *NotificationService
	retention     time.Duration
	log           *zap.Logger

	Now func() time.Time
}

func NewJobs(cfg config.JobsConfig, retention time.Duration, db *gorm.DB, n *NotificationService, log *zap.Logger) (*Jobs, error) {
	j := &Jobs{
		cron:          cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		db:            db,
		notifications: n,
		retention:     retention,
		log:           log,
		Now:           time.Now,
	}

	if _, err := j.cron.AddFunc(cfg.OutboxRelay, j.relayOutbox); err != nil {
		return nil, fmt.Errorf("failed to schedule outbox relay, %w", err)
	}

	if _, err := j.cron.AddFunc(cfg.TokenCleanup, j.cleanupTokens); err != nil {
		return nil, fmt.Errorf("failed to schedule token cleanup, %w", err)
	}

	log.Debug("Background jobs attached",
		zap.String("outbox_relay", cfg.OutboxRelay),
		zap.String("token_cleanup", cfg.TokenCleanup))

	return j, nil
}

func (j *Jobs) Start() {
	j.cron.Start()
}

// Stop waits for running jobs to finish.
func (j *Jobs) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Jobs) relayOutbox() {
	n, err := j.notifications.RelayPending(context.Background())
	if err != nil {
		j.log.Error("Failed to relay vendor notifications", zap.Error(err))
		return
	}

	if n > 0 {
		j.log.Info("Relayed pending vendor notifications", zap.Int("count", n))
	}
}

func (j *Jobs) cleanupTokens() {
	n, err := j.CleanupTokens(context.Background())
	if err != nil {
		j.log.Error("Failed to cleanup expired tokens", zap.Error(err))
		return
	}

	if n > 0 {
		j.log.Debug("Cleaned up expired tokens", zap.Int64("count", n))
	}
}

// CleanupTokens deletes tokens that expired more than the retention window
// ago. Recently expired ones are kept so a late click still reads "expired"
// instead of "invalid".
func (j *Jobs) CleanupTokens(ctx context.Context) (int64, error) {
	cutoff := j.Now().UTC().Add(-j.retention)

	res := j.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&model.VerificationToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete expired tokens, %w", res.Error)
	}

	return res.RowsAffected, nil
}
