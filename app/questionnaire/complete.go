package questionnaire

import (
	"errors"
	"net/http"

	"solarmarket/verify-api/internal"
	"solarmarket/verify-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func Complete(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	userID := c.GetString("userID")

	var data idBody
	if err := c.ShouldBindJSON(&data); err != nil || data.QuestionnaireID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No questionnaire ID provided",
			"requestID": requestID,
		})
		return
	}

	q, err := d.Questionnaires.Complete(c.Request.Context(), userID, data.QuestionnaireID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "Questionnaire not found",
				"requestID": requestID,
			})
		case errors.Is(err, service.ErrNotOwner):
			c.JSON(http.StatusForbidden, gin.H{
				"error":     "Questionnaire belongs to another account",
				"requestID": requestID,
			})
		case errors.Is(err, service.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{
				"error":     "Questionnaire must be verified before it can be completed",
				"requestID": requestID,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to complete questionnaire", zap.Error(err), zap.String("requestID", requestID))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"questionnaireId": q.ID,
		"status":          q.Status,
		"isCompleted":     q.IsCompleted,
	})
}
