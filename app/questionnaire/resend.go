package questionnaire

import (
	"errors"
	"net/http"

	"solarmarket/verify-api/internal"
	"solarmarket/verify-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type idBody struct {
	QuestionnaireID string `json:"questionnaireId"`
}

func Resend(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	var data idBody
	if err := c.ShouldBindJSON(&data); err != nil || data.QuestionnaireID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No questionnaire ID provided",
			"requestID": requestID,
		})
		return
	}

	err := d.Questionnaires.RequestVerification(c.Request.Context(), data.QuestionnaireID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true})
	case errors.Is(err, service.ErrAlreadyVerified):
		c.JSON(http.StatusOK, gin.H{"success": true, "alreadyVerified": true})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "Questionnaire not found",
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

		zap.L().Error("Failed to resend questionnaire verification", zap.Error(err), zap.String("requestID", requestID))
	}
}
