package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.DashboardService/discovery"
	logger "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Logger"
	sfymodels "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Models"
	interfaces "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Repository/Interfaces"
)

// FleetService is the discovery coordinator as seen by the API
type FleetService interface {
	Snapshot() *sfymodels.Snapshot
	Trigger(trigger string) (string, error)
}

// FleetController serves the fleet view and discovery controls
type FleetController struct {
	fleet  FleetService
	runs   interfaces.RunRepository
	logger *logger.Logger
}

// NewFleetController creates a new fleet controller
func NewFleetController(fleet FleetService, runs interfaces.RunRepository, logger *logger.Logger) *FleetController {
	return &FleetController{
		fleet:  fleet,
		runs:   runs,
		logger: logger,
	}
}

// RegisterRoutes registers the fleet routes with Gin
func (c *FleetController) RegisterRoutes(router *gin.Engine) {
	router.GET("/buoys", c.ListBuoys)
	router.GET("/buoys/:dev", c.GetBuoy)

	router.POST("/discovery", c.TriggerDiscovery)
	router.GET("/discovery", c.GetDiscovery)

	router.GET("/runs", c.ListRuns)
}

// ListBuoys returns the whole current collection, most recent contact first
func (c *FleetController) ListBuoys(ctx *gin.Context) {
	snap := c.fleet.Snapshot()
	ctx.JSON(http.StatusOK, gin.H{
		"run_id":     snap.RunID,
		"state":      snap.State,
		"updated_at": snap.UpdatedAt,
		"error":      snap.Error,
		"count":      len(snap.Buoys),
		"buoys":      snap.Views(),
	})
}

func (c *FleetController) GetBuoy(ctx *gin.Context) {
	dev := ctx.Param("dev")
	snap := c.fleet.Snapshot()
	for _, b := range snap.Buoys {
		if b.Dev == dev {
			ctx.JSON(http.StatusOK, b.View())
			return
		}
	}
	ctx.JSON(http.StatusNotFound, gin.H{"error": "buoy not found"})
}

func (c *FleetController) TriggerDiscovery(ctx *gin.Context) {
	runID, err := c.fleet.Trigger(sfymodels.TriggerAPI)
	if err != nil {
		if errors.Is(err, discovery.ErrStopped) {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.logger.ErrorWithError(err, "Failed to trigger discovery")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{
		"run_id": runID,
		"state":  sfymodels.RunRunning,
	})
}

// GetDiscovery returns the current run state without the buoy list
func (c *FleetController) GetDiscovery(ctx *gin.Context) {
	snap := c.fleet.Snapshot()
	ctx.JSON(http.StatusOK, gin.H{
		"run":   snap,
		"count": len(snap.Buoys),
	})
}

func (c *FleetController) ListRuns(ctx *gin.Context) {
	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", strconv.Itoa(interfaces.DefaultRunLimit)))
	if err != nil || limit < 1 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	runs, err := c.runs.ListRuns(ctx, limit)
	if err != nil {
		c.logger.ErrorWithError(err, "Failed to list discovery runs")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"items": runs, "count": len(runs)})
}
