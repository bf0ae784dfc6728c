// Package root contains the service level endpoints
package root

import (
	"net/http"

	"solarmarket/verify-api/internal"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Heartbeat reports whether the server and its record store are alive.
func Heartbeat(c *gin.Context, d *internal.Deps) {
	sqlDB, err := d.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}

	if err != nil {
		c.Status(http.StatusServiceUnavailable)

		zap.L().Error("Heartbeat failed to reach the database", zap.Error(err))
		return
	}

	c.Status(http.StatusOK)
}
