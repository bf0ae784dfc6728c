package questionnaire

import (
	"errors"
	"net/http"

	"solarmarket/verify-api/internal"
	"solarmarket/verify-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type linkBody struct {
	UserID          string `json:"userId"`
	QuestionnaireID string `json:"questionnaireId"`
}

// Link attaches a questionnaire to the account that just signed up. When an
// access token came with the request it has to belong to that account.
func Link(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	var data linkBody
	if err := c.ShouldBindJSON(&data); err != nil || data.UserID == "" || data.QuestionnaireID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "userId and questionnaireId are required",
			"requestID": requestID,
		})
		return
	}

	if authed := c.GetString("userID"); authed != "" && authed != data.UserID {
		c.JSON(http.StatusForbidden, gin.H{
			"error":     "Can't link a questionnaire to another account",
			"requestID": requestID,
		})
		return
	}

	out, err := d.Linking.Link(c.Request.Context(), data.UserID, data.QuestionnaireID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "Questionnaire or user not found",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to link questionnaire", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	if out.LinkedToOther {
		c.JSON(http.StatusConflict, gin.H{
			"error":         "Questionnaire is already linked to another account",
			"alreadyLinked": true,
			"requestID":     requestID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"alreadyLinked": out.AlreadyLinked,
	})
}
