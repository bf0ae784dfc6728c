package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"solarmarket/verify-api/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const siteVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

type turnstileResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// NewTurnstileMiddleware guards the public intake endpoints against bots.
// It is a no-op when turnstile is disabled.
func NewTurnstileMiddleware(cfg config.TurnstileConfig) gin.HandlerFunc {
	return newTurnstileMiddleware(cfg, siteVerifyURL, &http.Client{Timeout: 5 * time.Second})
}

func newTurnstileMiddleware(cfg config.TurnstileConfig, verifyURL string, client *http.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		requestID := c.MustGet("requestID").(string)

		token := c.Request.Header.Get("TurnstileToken")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":     "Missing or invalid turnstile token",
				"requestID": requestID,
			})
			return
		}

		jsonBody, _ := json.Marshal(gin.H{
			"secret":   cfg.SecretToken,
			"response": token,
			"remoteip": c.ClientIP(),
		})

		req, _ := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, verifyURL, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "Unauthorized",
				"requestID": requestID,
			})

			zap.L().Error("Failed to reach turnstile", zap.Error(err), zap.String("requestID", requestID))
			return
		}
		defer resp.Body.Close()

		var res turnstileResponse
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil || !res.Success {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "Unauthorized",
				"requestID": requestID,
			})

			zap.L().Debug("Turnstile challenge failed", zap.Strings("codes", res.ErrorCodes), zap.String("requestID", requestID))
			return
		}

		c.Next()
	}
}
