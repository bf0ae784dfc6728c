package user

import (
	"errors"
	"net/http"
	"strings"

	"solarmarket/verify-api/internal"
	"solarmarket/verify-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func Login(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	var data loginBody
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})

		zap.L().Debug("Can't bind request body", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	authToken, user, err := d.Registration.Login(c.Request.Context(), data.Email, data.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMalformedInput):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     "Email and password are required",
				"requestID": requestID,
			})
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":     "Invalid credentials",
				"requestID": requestID,
			})
		case errors.Is(err, service.ErrEmailNotVerified):
			c.JSON(http.StatusForbidden, gin.H{
				"error":     "Please verify your email address before logging in",
				"requestID": requestID,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to log in", zap.Error(err), zap.String("requestID", requestID))
		}
		return
	}

	secure := strings.HasPrefix(d.Config.Host.PublicURL, "https://")
	maxAge := int(d.Config.JWT.TTL.Seconds())

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("auth_token", authToken, maxAge, "/", "", secure, true)
	c.SetCookie("logged_in", "1", maxAge, "/", "", secure, false)
	c.JSON(http.StatusOK, gin.H{
		"userID":   user.ID,
		"token":    authToken,
		"verified": user.CustomEmailVerified,
	})
}
