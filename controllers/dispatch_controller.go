package controllers

import (
	"accidentwatch/interfaces"
	"accidentwatch/models"
	"accidentwatch/services"
	"accidentwatch/utils"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type DispatchController struct {
	planner    interfaces.DispatchPlanner
	facilities services.FacilitySnapshots
	validator  *utils.ValidationService
}

func NewDispatchController(planner interfaces.DispatchPlanner, facilities services.FacilitySnapshots) *DispatchController {
	return &DispatchController{
		planner:    planner,
		facilities: facilities,
		validator:  utils.NewValidationService(),
	}
}

// PreviewPlan computes a dispatch plan for an arbitrary point without
// creating a report. Partial plans are returned with 200.
// @Summary Preview dispatch plan
// @Tags Dispatch
// @Accept json
// @Produce json
// @Param request body models.DispatchPreviewRequest true "Location and injuries"
// @Success 200 {object} models.APIResponse{data=models.DispatchPlan}
// @Failure 400 {object} models.APIResponse
// @Router /dispatch/plan [post]
func (dc *DispatchController) PreviewPlan(c *gin.Context) {
	var req models.DispatchPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if validationErrors := dc.validator.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	snapshot := dc.facilities.Snapshot()
	report := models.AccidentReport{
		Geom:              *req.Geom,
		NumberOfAccidents: req.NumberOfAccidents,
	}

	plan, err := dc.planner.Plan(c.Request.Context(), report, snapshot.Ambulances, snapshot.Hospitals)
	if err != nil {
		var dispatchErr *services.DispatchError
		if !errors.As(err, &dispatchErr) {
			logrus.Errorf("Dispatch preview failed: %v", err)
			utils.InternalServerErrorResponse(c, "Failed to plan dispatch")
			return
		}
		logrus.Infof("Dispatch preview incomplete: %v", dispatchErr.Reasons())
		utils.SuccessResponse(c, "Dispatch plan incomplete", plan)
		return
	}

	utils.SuccessResponse(c, "Dispatch plan computed", plan)
}
