// Package questionnaire contains the questionnaire intake, verification and
// linking endpoints
package questionnaire

import (
	"errors"
	"net/http"

	"solarmarket/verify-api/internal"
	"solarmarket/verify-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Verify handles the link mailed to the customer. Failures are plain text
// since the page is opened straight from a mail client.
func Verify(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	out, err := d.Questionnaires.Verify(c.Request.Context(), c.Query("token"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMalformedInput), errors.Is(err, service.ErrMalformedToken):
			c.String(http.StatusBadRequest, "Invalid verification link")
		case errors.Is(err, service.ErrTokenNotFound):
			c.String(http.StatusNotFound, "Invalid verification link")
		case errors.Is(err, service.ErrTokenExpired):
			c.String(http.StatusGone, "This verification link has expired, please request a new one")
		default:
			c.String(http.StatusInternalServerError, "An error occurred, please try again later")

			zap.L().Error("Failed to verify questionnaire", zap.Error(err), zap.String("requestID", requestID))
		}
		return
	}

	if out.NotificationWarning != nil {
		zap.L().Warn("Vendor notification deferred",
			zap.String("questionnaire_id", out.QuestionnaireID),
			zap.String("requestID", requestID))
	}

	verified := "success"
	if out.AlreadyVerified {
		verified = "already"
	}

	c.Redirect(http.StatusFound, d.Links.VerificationSuccess(verified, out.Email, out.QuestionnaireID))
}
