// Package user contains the account registration, verification and login
// endpoints
package user

import (
	"errors"
	"net/http"

	"solarmarket/verify-api/internal"
	"solarmarket/verify-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type registerBody struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}

func Register(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	var data registerBody
	if err := c.ShouldBindJSON(&data); err != nil {
		c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})

		zap.L().Debug("Can't bind request body", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	user, err := d.Registration.Register(c.Request.Context(), service.RegisterInput{
		Email:    data.Email,
		Password: data.Password,
		Profile: service.Profile{
			FirstName: data.FirstName,
			LastName:  data.LastName,
			Phone:     data.Phone,
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMalformedInput):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     err.Error(),
				"requestID": requestID,
			})
		case errors.Is(err, service.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{
				"error":     "Email is already registered",
				"requestID": requestID,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to register user", zap.Error(err), zap.String("requestID", requestID))
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"userID":   user.ID,
		"verified": user.CustomEmailVerified,
	})
}
