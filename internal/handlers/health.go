package handlers

import "github.com/gin-gonic/gin"

// GET /healthcheck
func HealthCheck(c *gin.Context) {
	RespondOK(c, gin.H{"status": "ok"})
}
