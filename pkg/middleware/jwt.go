package middleware

import (
	"net/http"
	"strings"

	"solarmarket/verify-api/pkg/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const authCookie = "auth_token"

// NewJWTMiddleware authenticates requests carrying an access token, either
// as a bearer token or in the auth_token cookie, and sets userID. With
// required unset, requests without any token pass through anonymously, but
// a token that is present has to be valid.
func NewJWTMiddleware(tokens *security.AccessTokens, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.MustGet("requestID").(string)

		tokenStr := bearerToken(c)
		if tokenStr == "" {
			if !required {
				c.Next()
				return
			}

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "Authorization required",
				"requestID": requestID,
			})
			return
		}

		userID, err := tokens.Parse(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "Authorization token invalid or expired. Please log in again",
				"requestID": requestID,
			})

			zap.L().Debug("Rejected access token", zap.Error(err), zap.String("requestID", requestID))
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if t, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(t)
	}

	if t, err := c.Cookie(authCookie); err == nil {
		return t
	}

	return ""
}
