package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandleHealthCheck reports service liveness.
func HandleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}
