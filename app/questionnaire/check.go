package questionnaire

import (
	"errors"
	"net/http"

	"solarmarket/verify-api/internal"
	"solarmarket/verify-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func Check(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	var data idBody
	if err := c.ShouldBindJSON(&data); err != nil || data.QuestionnaireID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No questionnaire ID provided",
			"requestID": requestID,
		})
		return
	}

	q, err := d.Questionnaires.Status(c.Request.Context(), data.QuestionnaireID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "Questionnaire not found",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to check questionnaire", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"verified":        q.Verified(),
		"questionnaireId": q.ID,
		"email":           q.Email,
	})
}
