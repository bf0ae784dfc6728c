package root

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Validate lets the web app check whether its session is still good. The JWT
// middleware in front of it already rejected anything that isn't.
func Validate(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"userID": c.GetString("userID"),
	})
}
