package user

import (
	"errors"
	"net/http"
	"net/url"

	"solarmarket/verify-api/internal"
	"solarmarket/verify-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Verify handles the registration link. It only ever redirects to the login
// page, opening a mailed link must never sign anyone in.
func Verify(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	err := d.Registration.Verify(c.Request.Context(), c.Query("token"), c.Query("userId"))
	if err != nil {
		reason := "verification_failed"

		switch {
		case errors.Is(err, service.ErrInvalidToken):
			reason = "invalid_token"
		case errors.Is(err, service.ErrTokenExpired):
			reason = "token_expired"
		default:
			zap.L().Error("Failed to verify registration", zap.Error(err), zap.String("requestID", requestID))
		}

		c.Redirect(http.StatusFound, d.Links.Login(url.Values{"error": {reason}}))
		return
	}

	c.Redirect(http.StatusFound, d.Links.Login(url.Values{"verified": {"true"}}))
}
