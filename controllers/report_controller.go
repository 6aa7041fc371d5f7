package controllers

import (
	"accidentwatch/interfaces"
	"accidentwatch/models"
	"accidentwatch/utils"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const defaultListLimit = 100

type ReportController struct {
	gateway   interfaces.IntakeGateway
	store     interfaces.ReportStore
	validator *utils.ValidationService
}

func NewReportController(gateway interfaces.IntakeGateway, store interfaces.ReportStore) *ReportController {
	return &ReportController{
		gateway:   gateway,
		store:     store,
		validator: utils.NewValidationService(),
	}
}

// SubmitReport runs a report through the same intake pipeline as the
// WebSocket newAccident event.
// @Summary Submit accident report
// @Tags Reports
// @Accept json
// @Produce json
// @Param request body models.ReportSubmission true "Accident report"
// @Success 201 {object} models.ReportAcceptedPayload
// @Failure 400 {object} models.ReportErrorPayload
// @Failure 422 {object} models.ReportRejectedPayload
// @Failure 500 {object} models.ReportErrorPayload
// @Router /reports [post]
func (rc *ReportController) SubmitReport(c *gin.Context) {
	var submission models.ReportSubmission
	if err := c.ShouldBindJSON(&submission); err != nil {
		c.JSON(http.StatusBadRequest, models.ReportErrorPayload{
			Success: false,
			Message: "Invalid accident report",
			Code:    utils.ErrCodeValidation,
			Details: err.Error(),
		})
		return
	}

	outcome := rc.gateway.Submit(c.Request.Context(), submission)
	c.JSON(outcomeStatus(outcome), outcome.Payload())
}

func outcomeStatus(outcome models.IntakeOutcome) int {
	switch {
	case outcome.Accepted():
		return http.StatusCreated
	case outcome.Rejected():
		return http.StatusUnprocessableEntity
	case outcome.Code == utils.ErrCodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// GetReports lists the most recent reports, newest first.
// @Summary List recent reports
// @Tags Reports
// @Produce json
// @Param limit query int false "Maximum reports" default(100)
// @Success 200 {object} models.APIResponse{data=[]models.AccidentReport}
// @Router /reports [get]
func (rc *ReportController) GetReports(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.BadRequestResponse(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	reports, err := rc.store.ListRecent(c.Request.Context(), limit)
	if err != nil {
		logrus.Errorf("List reports failed: %v", err)
		_ = c.Error(err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Reports retrieved successfully", reports, &models.MetaData{
		Total: int64(len(reports)),
		Limit: limit,
	})
}

// @Summary Get report
// @Tags Reports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} models.APIResponse{data=models.AccidentReport}
// @Failure 404 {object} models.APIResponse
// @Router /reports/{id} [get]
func (rc *ReportController) GetReport(c *gin.Context) {
	report, err := rc.store.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	utils.SuccessResponse(c, "Report retrieved successfully", report)
}

// VerifyReport marks a report as checked by an administrator.
// @Summary Verify report
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param request body models.VerifyReportRequest false "Verifier"
// @Success 200 {object} models.APIResponse{data=models.AccidentReport}
// @Failure 401 {object} models.APIResponse
// @Failure 404 {object} models.APIResponse
// @Router /admin/reports/{id}/verify [put]
func (rc *ReportController) VerifyReport(c *gin.Context) {
	var req models.VerifyReportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request body")
			return
		}
		if validationErrors := rc.validator.ValidateStruct(req); len(validationErrors) > 0 {
			utils.ValidationErrorResponse(c, validationErrors)
			return
		}
	}

	verifiedBy := req.VerifiedBy
	if verifiedBy == "" {
		verifiedBy = c.GetString("userName")
	}
	if verifiedBy == "" {
		verifiedBy = c.GetString("userID")
	}

	report, err := rc.store.MarkVerified(c.Request.Context(), c.Param("id"), verifiedBy, time.Now().UTC())
	if err != nil {
		logrus.Errorf("Verify report %s failed: %v", c.Param("id"), err)
		_ = c.Error(err)
		return
	}

	logrus.Infof("Report %s verified by %s", report.ID.Hex(), verifiedBy)
	utils.SuccessResponse(c, "Report verified successfully", report)
}
