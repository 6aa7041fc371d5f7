package controllers

import (
	"accidentwatch/services"
	"accidentwatch/utils"
	"context"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// FacilityRefresher reloads the facility directory on demand.
type FacilityRefresher interface {
	Refresh(ctx context.Context) (*services.FacilitySnapshot, error)
}

type FacilityController struct {
	facilities services.FacilitySnapshots
	refresher  FacilityRefresher
}

func NewFacilityController(facilities services.FacilitySnapshots, refresher FacilityRefresher) *FacilityController {
	return &FacilityController{
		facilities: facilities,
		refresher:  refresher,
	}
}

// @Summary Current facility snapshot
// @Tags Facilities
// @Produce json
// @Success 200 {object} models.APIResponse{data=models.FacilitySnapshotView}
// @Router /facilities [get]
func (fc *FacilityController) GetFacilities(c *gin.Context) {
	snapshot := fc.facilities.Snapshot()
	utils.SuccessResponse(c, "Facilities retrieved successfully", snapshot.View())
}

// RefreshFacilities reloads both layers. On failure the previous snapshot
// stays installed.
// @Summary Reload facilities
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.APIResponse{data=models.FacilitySnapshotView}
// @Failure 503 {object} models.APIResponse
// @Router /admin/facilities/refresh [post]
func (fc *FacilityController) RefreshFacilities(c *gin.Context) {
	snapshot, err := fc.refresher.Refresh(c.Request.Context())
	if err != nil {
		logrus.Errorf("Manual facility refresh failed: %v", err)
		_ = c.Error(utils.NewNetworkError("Failed to refresh facilities", err))
		return
	}

	utils.SuccessResponse(c, "Facilities refreshed successfully", snapshot.View())
}
