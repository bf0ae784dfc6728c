package service

import (
	"context"
	"encoding/json"
	"fmt"

	"solarmarket/verify-api/config"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TypeVendorNotify  = "vendors:notify"
	NotificationQueue = "notifications"
)

func NewVendorNotifyTask(n VendorNotification) (*asynq.Task, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to encode vendor notification, %w", err)
	}

	return asynq.NewTask(TypeVendorNotify, payload), nil
}

// HandleVendorNotifyTask delivers queued notifications. Payloads that can't
// be decoded are dropped instead of retried.
func HandleVendorNotifyTask(notifier VendorNotifier) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var n VendorNotification
		if err := json.Unmarshal(t.Payload(), &n); err != nil {
			return fmt.Errorf("bad vendor notification payload: %v: %w", err, asynq.SkipRetry)
		}

		if n.QuestionnaireID == "" {
			return fmt.Errorf("vendor notification without questionnaire id: %w", asynq.SkipRetry)
		}

		return notifier.NotifyVendors(ctx, n)
	}
}

func RedisOpt(cfg config.QueueConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// Worker runs the asynq server that consumes the notification queue.
type Worker struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

func NewWorker(cfg config.QueueConfig, notifier VendorNotifier, log *zap.Logger) *Worker {
	srv := asynq.NewServer(RedisOpt(cfg), asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{NotificationQueue: 1},
		Logger:      log.Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			log.Warn("Vendor notification task failed", zap.String("type", t.Type()), zap.Error(err))
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeVendorNotify, HandleVendorNotifyTask(notifier))

	return &Worker{srv: srv, mux: mux}
}

func (w *Worker) Start() error {
	return w.srv.Start(w.mux)
}

func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}
