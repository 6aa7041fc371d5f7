package services

import (
	"accidentwatch/interfaces"
	"accidentwatch/models"
	"accidentwatch/utils"
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultUserID       = 1
	failOpenWarning     = "Fraud detection was unavailable"
	saveFailedMessage   = "Failed to save report"
	invalidReportMsg    = "Invalid accident report"
	acceptedFallback    = "Report accepted"
	defaultStoreTimeout = 10 * time.Second
)

type intakeStage string

const (
	stageReceived    intakeStage = "received"
	stageScoring     intakeStage = "scoring"
	stageRejected    intakeStage = "rejected"
	stageAccepted    intakeStage = "accepted"
	stagePersisting  intakeStage = "persisting"
	stageDispatching intakeStage = "dispatching"
	stageBroadcast   intakeStage = "broadcast"
	stageDone        intakeStage = "done"
)

// FacilitySnapshots is the read side of the facility directory.
type FacilitySnapshots interface {
	Snapshot() *FacilitySnapshot
}

type IntakeConfig struct {
	StoreTimeout       time.Duration
	RecentReportsLimit int
}

// IntakeService runs each submitted report through validation, fraud
// scoring, persistence, dispatch planning and broadcast.
type IntakeService struct {
	store       interfaces.ReportStore
	scorer      interfaces.RiskScorer
	planner     interfaces.DispatchPlanner
	facilities  FacilitySnapshots
	broadcaster interfaces.ReportBroadcaster
	validator   *utils.ValidationService
	config      IntakeConfig
}

func NewIntakeService(
	store interfaces.ReportStore,
	scorer interfaces.RiskScorer,
	planner interfaces.DispatchPlanner,
	facilities FacilitySnapshots,
	broadcaster interfaces.ReportBroadcaster,
	config IntakeConfig,
) *IntakeService {
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = defaultStoreTimeout
	}
	if config.RecentReportsLimit <= 0 {
		config.RecentReportsLimit = 100
	}
	return &IntakeService{
		store:       store,
		scorer:      scorer,
		planner:     planner,
		facilities:  facilities,
		broadcaster: broadcaster,
		validator:   utils.NewValidationService(),
		config:      config,
	}
}

// Submit processes one report to completion and returns the submitter's outcome.
// Only scoring honours ctx cancellation; persistence onwards runs detached.
func (is *IntakeService) Submit(ctx context.Context, submission models.ReportSubmission) models.IntakeOutcome {
	log := logrus.WithField("correlation_id", utils.GenerateUUID())
	log.WithField("stage", stageReceived).Debug("Accident report received")

	if validationErrors := is.validator.ValidateStruct(submission); len(validationErrors) > 0 {
		log.WithField("stage", stageReceived).Infof("Report failed validation: %s", validationErrors[0].Message)
		return validationOutcome(validationErrors)
	}

	report := newAccidentReport(submission)

	log.WithField("stage", stageScoring).Debug("Running fraud detection")
	assessment := is.scorer.Assess(ctx, report)
	log = log.WithFields(logrus.Fields{
		"risk_level":        assessment.RiskLevel,
		"fraud_probability": assessment.FraudProbability,
	})

	if assessment.Recommendation.ShouldBlock {
		log.WithField("stage", stageRejected).Warn("🚫 Report blocked, flagged as fraudulent")
		return rejectedOutcome(assessment)
	}
	log.WithField("stage", stageAccepted).Debug("Report passed fraud check")

	report.RiskLevel = assessment.RiskLevel
	report.RequiresVerification = assessment.RiskLevel.RequiresVerification()
	if !assessment.FailedOpen() {
		report.FraudScore = utils.Float64Ptr(assessment.FraudProbability)
	}

	// Past this point the submitter can no longer cancel the pipeline.
	detached := context.WithoutCancel(ctx)

	log.WithField("stage", stagePersisting).Debug("Saving report")
	storeCtx, cancel := context.WithTimeout(detached, is.config.StoreTimeout)
	err := is.store.Create(storeCtx, &report)
	cancel()
	if err != nil {
		log.WithField("stage", stagePersisting).WithError(err).Error("❌ Failed to save report")
		return models.IntakeOutcome{
			Type:    models.WSTypeReportError,
			Success: false,
			Message: saveFailedMessage,
			Code:    utils.ErrCodeDatabase,
		}
	}
	reportID := report.ID.Hex()
	log = log.WithField("report_id", reportID)
	log.WithField("stage", stagePersisting).Info("✅ Report saved")

	log.WithField("stage", stageDispatching).Debug("Planning dispatch")
	plan := is.planDispatch(detached, report, log)

	log.WithField("stage", stageBroadcast).Debug("Broadcasting report")
	is.broadcaster.Publish(models.BroadcastReport{
		AccidentReport: report,
		FraudCheck: models.FraudCheck{
			RiskLevel:            assessment.RiskLevel,
			FraudProbability:     assessment.FraudProbability,
			RequiresVerification: report.RequiresVerification,
		},
		Dispatch: plan,
	})

	outcome := models.IntakeOutcome{
		Type:      models.WSTypeReportAccepted,
		Success:   true,
		Message:   assessment.Recommendation.Message,
		ReportID:  reportID,
		RiskLevel: assessment.RiskLevel,
	}
	if outcome.Message == "" {
		outcome.Message = acceptedFallback
	}
	if assessment.FailedOpen() {
		outcome.Warning = failOpenWarning
	}

	log.WithField("stage", stageDone).Info("📡 Report accepted and broadcast")
	return outcome
}

func (is *IntakeService) planDispatch(ctx context.Context, report models.AccidentReport, log *logrus.Entry) *models.DispatchPlan {
	snapshot := is.facilities.Snapshot()
	plan, err := is.planner.Plan(ctx, report, snapshot.Ambulances, snapshot.Hospitals)
	if err != nil {
		var dispatchErr *DispatchError
		if errors.As(err, &dispatchErr) {
			log.WithField("stage", stageDispatching).WithField("reasons", dispatchErr.Reasons()).
				Warn("Dispatch plan incomplete")
		} else {
			log.WithField("stage", stageDispatching).WithError(err).Warn("Dispatch planning failed")
		}
	}
	return plan
}

// RecentReports serves the history a newly joined observer asks for.
func (is *IntakeService) RecentReports(ctx context.Context) ([]models.AccidentReport, error) {
	return is.store.ListRecent(ctx, is.config.RecentReportsLimit)
}

func newAccidentReport(s models.ReportSubmission) models.AccidentReport {
	report := models.AccidentReport{
		Geom:              *s.Geom,
		NumberOfAccidents: s.NumberOfAccidents,
		Description:       s.Description,
		PictureURL:        s.PictureURL,
		UserID:            defaultUserID,
		LocationSource:    s.LocationSource,
		RiskLevel:         models.RiskLevelUnknown,
	}
	if s.UserID != nil {
		report.UserID = *s.UserID
	}
	if s.ResponseTimeSeconds != nil {
		report.ResponseTimeSeconds = *s.ResponseTimeSeconds
	}
	if s.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, s.Timestamp); err == nil {
			report.Timestamp = ts
		}
	}
	return report
}

func validationOutcome(validationErrors []utils.ValidationError) models.IntakeOutcome {
	return models.IntakeOutcome{
		Type:    models.WSTypeReportError,
		Success: false,
		Message: invalidReportMsg,
		Code:    utils.ErrCodeValidation,
		Details: validationErrors,
	}
}

func rejectedOutcome(a models.RiskAssessment) models.IntakeOutcome {
	return models.IntakeOutcome{
		Type:             models.WSTypeReportRejected,
		Success:          false,
		Message:          a.Recommendation.Message,
		RiskLevel:        a.RiskLevel,
		FraudProbability: a.FraudProbability,
		RiskFactors:      a.RiskFactors,
		Code:             utils.ErrCodeFraudBlocked,
	}
}
