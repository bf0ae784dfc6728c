// Package app contains the HTTP surface of the verification service
package app

import (
	"net/http"
	"time"

	"solarmarket/verify-api/app/questionnaire"
	"solarmarket/verify-api/app/root"
	"solarmarket/verify-api/app/user"
	"solarmarket/verify-api/internal"
	"solarmarket/verify-api/pkg/middleware"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const maxBodySize = 1 << 20

func NewRouter(d *internal.Deps) *gin.Engine {
	router := gin.New()

	router.Use(
		// Called from the marketing site and the web app, both on other origins
		cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{"GET", "POST", "HEAD", "OPTIONS"},
			AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization", "TurnstileToken"},
			ExposeHeaders:   []string{"Content-Length", middleware.RequestIDHeader},
			MaxAge:          12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == http.MethodHead || c.FullPath() == "/metrics"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("userID"); v != "" {
					fields = append(fields, zap.String("userID", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true

	rateLimit := d.Config.Security.RateLimit
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: rateLimit,
		Burst:             rateLimit * 2,
	})
	d.OnClose(rl.Stop)

	turnstile := middleware.NewTurnstileMiddleware(d.Config.Turnstile)
	body := middleware.BodySizeLimiter(maxBodySize)
	requireAuth := middleware.NewJWTMiddleware(d.Access, true)
	optionalAuth := middleware.NewJWTMiddleware(d.Access, d.Config.Auth.EnforceLinking)

	// HEAD /heartbeat				-> Used to check if the server is alive
	router.HEAD("/heartbeat", func(c *gin.Context) { root.Heartbeat(c, d) })

	// GET /validate				-> Checks whether the caller's session is valid
	router.GET("/validate", requireAuth, root.Validate)

	// GET /metrics					-> Prometheus scrape endpoint
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))

	m := router.Group("", rl.Middleware())
	{
		// GET /verify-questionnaire?token=		-> Mailed questionnaire link, redirects to the web app
		m.GET("/verify-questionnaire", func(c *gin.Context) { questionnaire.Verify(c, d) })

		// GET /verify-registration?token=&userId=	-> Mailed registration link, redirects to login
		m.GET("/verify-registration", func(c *gin.Context) { user.Verify(c, d) })
	}

	q := m.Group("", body)
	{
		// POST /questionnaires				-> Intake of a new questionnaire
		q.POST("/questionnaires", turnstile, func(c *gin.Context) { questionnaire.Submit(c, d) })

		// POST /resend-questionnaire-verification	-> Mails a fresh verification link
		q.POST("/resend-questionnaire-verification", turnstile, func(c *gin.Context) { questionnaire.Resend(c, d) })

		// POST /check-questionnaire-verified		-> Verification status of a questionnaire
		q.POST("/check-questionnaire-verified", func(c *gin.Context) { questionnaire.Check(c, d) })

		// POST /confirm-questionnaire-user		-> Links a questionnaire to an account
		q.POST("/confirm-questionnaire-user", optionalAuth, func(c *gin.Context) { questionnaire.Link(c, d) })

		// POST /complete-questionnaire			-> Marks the customer's profile complete
		q.POST("/complete-questionnaire", requireAuth, func(c *gin.Context) { questionnaire.Complete(c, d) })
	}

	u := m.Group("", body)
	{
		// POST /register				-> Registers a new account
		u.POST("/register", turnstile, func(c *gin.Context) { user.Register(c, d) })

		// POST /resend-registration-verification	-> Mails a fresh registration link
		u.POST("/resend-registration-verification", turnstile, func(c *gin.Context) { user.Resend(c, d) })

		// POST /login					-> Logs in a verified account
		u.POST("/login", func(c *gin.Context) { user.Login(c, d) })
	}

	return router
}
