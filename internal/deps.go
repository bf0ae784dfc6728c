package internal

import (
	"solarmarket/verify-api/config"
	"solarmarket/verify-api/internal/metrics"
	"solarmarket/verify-api/internal/service"
	"solarmarket/verify-api/pkg/security"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps is everything the handlers need, built once at startup.
type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Links    service.Links
	Access   *security.AccessTokens
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Tokens         *service.TokenService
	Notifications  *service.NotificationService
	Questionnaires *service.QuestionnaireService
	Linking        *service.LinkingService
	Registration   *service.RegistrationService

	// Set only when the task queue is enabled
	Notifier service.VendorNotifier

	closers []func()
}

// NewDeps wires the services from config. With the queue enabled vendor
// notifications go through asynq and resend throttling through redis,
// otherwise both stay in process.
func NewDeps(cfg *config.Config, db *gorm.DB, log *zap.Logger) *Deps {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	d := &Deps{
		Config:   cfg,
		DB:       db,
		Links:    service.Links{PublicURL: cfg.Host.PublicURL, FrontendURL: cfg.Host.FrontendURL},
		Access:   security.NewAccessTokens(cfg.JWT.Secret, cfg.JWT.TTL),
		Registry: reg,
		Metrics:  metrics.New(reg),
	}

	var (
		dispatcher service.Dispatcher
		throttle   service.Throttle
	)

	notifier := service.NewVendorNotifier(cfg.Notify, log)

	if cfg.Queue.Enabled {
		client := asynq.NewClient(service.RedisOpt(cfg.Queue))
		d.OnClose(func() { client.Close() })
		dispatcher = service.NewQueueDispatcher(client)
		d.Notifier = notifier

		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		d.OnClose(func() { rdb.Close() })
		throttle = service.NewRedisThrottle(rdb, cfg.Throttle.ResendCooldown)
	} else {
		dispatcher = &service.DirectDispatcher{Notifier: notifier}

		mem := service.NewMemoryThrottle(cfg.Throttle.ResendCooldown)
		d.OnClose(func() { mem.Close() })
		throttle = mem
	}

	mailer := service.NewMailer(cfg.Mail, cfg.Token.TTL, log)

	d.Tokens = service.NewTokenService(db, cfg.Token.TTL, d.Metrics)
	d.Notifications = service.NewNotificationService(db, dispatcher, cfg.Notify.Timeout, cfg.Notify.MaxAttempts, log, d.Metrics)
	d.Questionnaires = service.NewQuestionnaireService(db, d.Tokens, d.Notifications, mailer, throttle, d.Links, log, d.Metrics)
	d.Linking = service.NewLinkingService(db, log, d.Metrics)
	d.Registration = service.NewRegistrationService(db, d.Tokens, mailer, throttle, d.Links, security.New(), d.Access, log, d.Metrics)

	return d
}

// OnClose registers f to run on Close, in reverse order of registration.
func (d *Deps) OnClose(f func()) {
	d.closers = append(d.closers, f)
}

func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
