package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solarmarket/verify-api/internal/metrics"
	"solarmarket/verify-api/internal/model"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	relayBatchSize     = 100
	outboxWriteTimeout = 5 * time.Second
)

type VendorNotification struct {
	QuestionnaireID string  `json:"questionnaireId"`
	CustomerName    string  `json:"customerName"`
	CustomerEmail   string  `json:"customerEmail"`
	PropertyType    string  `json:"propertyType"`
	MonthlyBill     float64 `json:"monthlyBill"`
}

// Dispatcher hands a notification over to whatever delivers it to vendors.
// A nil error means the notification was accepted, not necessarily delivered.
type Dispatcher interface {
	Dispatch(ctx context.Context, n VendorNotification) error
}

// DirectDispatcher calls the notifier in-process. Used when no task queue
// is configured.
type DirectDispatcher struct {
	Notifier VendorNotifier
}

func (d *DirectDispatcher) Dispatch(ctx context.Context, n VendorNotification) error {
	return d.Notifier.NotifyVendors(ctx, n)
}

// QueueDispatcher enqueues an asynq task handled by the notification worker.
type QueueDispatcher struct {
	client *asynq.Client
	queue  string
}

func NewQueueDispatcher(client *asynq.Client) *QueueDispatcher {
	return &QueueDispatcher{client: client, queue: NotificationQueue}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, n VendorNotification) error {
	task, err := NewVendorNotifyTask(n)
	if err != nil {
		return err
	}

	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue(d.queue),
		asynq.MaxRetry(10),
		asynq.Timeout(30*time.Second),
		// The relay may hand over a row whose first enqueue succeeded but
		// whose status update didn't
		asynq.TaskID("notify:"+n.QuestionnaireID),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}

	return err
}

// NotificationService owns the vendor notification outbox. Rows are written
// inside the activating transaction and delivered afterwards, so a slow or
// failing notifier can never undo or fail a verification.
type NotificationService struct {
	db          *gorm.DB
	dispatcher  Dispatcher
	timeout     time.Duration
	maxAttempts int
	log         *zap.Logger
	metrics     *metrics.Metrics

	Now func() time.Time
}

func NewNotificationService(db *gorm.DB, d Dispatcher, timeout time.Duration, maxAttempts int, log *zap.Logger, m *metrics.Metrics) *NotificationService {
	return &NotificationService{
		db:          db,
		dispatcher:  d,
		timeout:     timeout,
		maxAttempts: maxAttempts,
		log:         log,
		metrics:     m,
		Now:         time.Now,
	}
}

func (s *NotificationService) RecordTx(tx *gorm.DB, q *model.PropertyQuestionnaire) (*model.NotificationOutbox, error) {
	row := &model.NotificationOutbox{
		QuestionnaireID: q.ID,
		CustomerName:    q.FullName(),
		CustomerEmail:   q.Email,
		PropertyType:    q.PropertyType,
		MonthlyBill:     q.MonthlyBill,
		Status:          model.OutboxPending,
	}

	if err := tx.Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to record vendor notification, %w", err)
	}

	return row, nil
}

// Deliver hands one outbox row to the dispatcher with a short timeout. The
// row is marked dispatched on success and keeps its pending state, with the
// attempt counted, on failure.
func (s *NotificationService) Deliver(ctx context.Context, row *model.NotificationOutbox) error {
	// The questionnaire is already active, a caller going away must not
	// abort the hand-over
	base := context.WithoutCancel(ctx)

	dctx, cancel := context.WithTimeout(base, s.timeout)
	err := s.dispatcher.Dispatch(dctx, VendorNotification{
		QuestionnaireID: row.QuestionnaireID,
		CustomerName:    row.CustomerName,
		CustomerEmail:   row.CustomerEmail,
		PropertyType:    row.PropertyType,
		MonthlyBill:     row.MonthlyBill,
	})
	cancel()

	// Bookkeeping gets its own deadline, the dispatch one may be spent already
	wctx, wcancel := context.WithTimeout(base, outboxWriteTimeout)
	defer wcancel()

	if err != nil {
		s.metrics.VendorNotifications.WithLabelValues("failed").Inc()
		s.recordFailure(wctx, row, err)

		return fmt.Errorf("%w, failed to dispatch vendor notification: %w", ErrDownstream, err)
	}

	s.metrics.VendorNotifications.WithLabelValues("dispatched").Inc()

	now := s.Now().UTC()
	err = s.db.WithContext(wctx).
		Model(&model.NotificationOutbox{}).
		Where("id = ? AND status = ?", row.ID, model.OutboxPending).
		Updates(map[string]any{
			"status":        model.OutboxDispatched,
			"dispatched_at": now,
			"attempts":      gorm.Expr("attempts + 1"),
		}).Error
	if err != nil {
		// Delivered but still pending, the relay will hand it over again
		s.log.Error("Failed to mark vendor notification dispatched",
			zap.Uint("outbox_id", row.ID), zap.Error(err))
	}

	return nil
}

func (s *NotificationService) recordFailure(ctx context.Context, row *model.NotificationOutbox, cause error) {
	status := model.OutboxPending
	if row.Attempts+1 >= s.maxAttempts {
		status = model.OutboxFailed
	}

	msg := cause.Error()
	if len(msg) > 1024 {
		msg = msg[:1024]
	}

	err := s.db.WithContext(ctx).
		Model(&model.NotificationOutbox{}).
		Where("id = ? AND status = ?", row.ID, model.OutboxPending).
		Updates(map[string]any{
			"status":     status,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": msg,
		}).Error
	if err != nil {
		s.log.Error("Failed to record vendor notification failure",
			zap.Uint("outbox_id", row.ID), zap.Error(err))
	}

	if status == model.OutboxFailed {
		s.log.Error("Giving up on vendor notification",
			zap.String("questionnaire_id", row.QuestionnaireID),
			zap.Int("attempts", row.Attempts+1),
			zap.Error(cause))
	}
}

// RelayPending retries every pending outbox row. Returns how many were handed over.
func (s *NotificationService) RelayPending(ctx context.Context) (int, error) {
	var rows []model.NotificationOutbox

	err := s.db.WithContext(ctx).
		Where("status = ?", model.OutboxPending).
		Order("id").
		Limit(relayBatchSize).
		Find(&rows).
		Error
	if err != nil {
		return 0, fmt.Errorf("failed to query pending vendor notifications, %w", err)
	}

	delivered := 0
	for i := range rows {
		if err := s.Deliver(ctx, &rows[i]); err != nil {
			s.log.Warn("Vendor notification still pending",
				zap.String("questionnaire_id", rows[i].QuestionnaireID), zap.Error(err))
			continue
		}

		delivered++
	}

	return delivered, nil
}
