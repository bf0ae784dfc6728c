package user

import (
	"errors"
	"net/http"

	"solarmarket/verify-api/internal"
	"solarmarket/verify-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type resendBody struct {
	Email string `json:"email"`
}

// Resend answers the same way for known and unknown addresses.
func Resend(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	var data resendBody
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})
		return
	}

	err := d.Registration.Resend(c.Request.Context(), data.Email)
	switch {
	case err == nil, errors.Is(err, service.ErrAlreadyVerified):
		c.JSON(http.StatusOK, gin.H{"success": true})
	case errors.Is(err, service.ErrMalformedInput):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     err.Error(),
			"requestID": requestID,
		})
	case errors.Is(err, service.ErrThrottled):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":     "A verification mail was sent recently, please check your inbox",
			"requestID": requestID,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to resend registration verification", zap.Error(err), zap.String("requestID", requestID))
	}
}
