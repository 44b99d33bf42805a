package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	logger "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Logger"
)

// HealthReporter computes the readiness of the service's dependencies
type HealthReporter interface {
	GetHealthStatus(ctx context.Context) (map[string]interface{}, bool)
}

// HealthController handles health requests
type HealthController struct {
	health HealthReporter
	logger *logger.Logger
}

// NewHealthController creates a new health controller
func NewHealthController(health HealthReporter, logger *logger.Logger) *HealthController {
	return &HealthController{
		health: health,
		logger: logger,
	}
}

// RegisterRoutes registers the health routes with Gin
func (c *HealthController) RegisterRoutes(router *gin.Engine) {
	router.GET("/health/live", c.HealthLive)
	router.GET("/health/ready", c.HealthReady)
}

func (c *HealthController) HealthLive(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func (c *HealthController) HealthReady(ctx *gin.Context) {
	status, ready := c.health.GetHealthStatus(ctx.Request.Context())
	if !ready {
		c.logger.Warn("Readiness check failed")
		ctx.JSON(http.StatusServiceUnavailable, status)
		return
	}
	ctx.JSON(http.StatusOK, status)
}
