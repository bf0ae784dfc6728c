package questionnaire

import (
	"errors"
	"net/http"

	"solarmarket/verify-api/internal"
	"solarmarket/verify-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type submitBody struct {
	FirstName    string         `json:"firstName"`
	LastName     string         `json:"lastName"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone"`
	Address      string         `json:"address"`
	PropertyType string         `json:"propertyType"`
	MonthlyBill  float64        `json:"monthlyBill"`
	Answers      map[string]any `json:"answers"`
}

func Submit(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	var data submitBody
	if err := c.ShouldBindJSON(&data); err != nil {
		c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})
		return
	}

	q, err := d.Questionnaires.Submit(c.Request.Context(), service.SubmitQuestionnaire{
		FirstName:    data.FirstName,
		LastName:     data.LastName,
		Email:        data.Email,
		Phone:        data.Phone,
		Address:      data.Address,
		PropertyType: data.PropertyType,
		MonthlyBill:  data.MonthlyBill,
		Answers:      data.Answers,
	})
	if err != nil {
		if errors.Is(err, service.ErrMalformedInput) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     err.Error(),
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to submit questionnaire", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"questionnaireId": q.ID,
		"status":          q.Status,
	})
}
