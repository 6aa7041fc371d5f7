package interfaces

import (
	"accidentwatch/models"
	"context"
	"time"
)

// ReportStore is the persistence collaborator of the intake pipeline.
type ReportStore interface {
	Create(ctx context.Context, report *models.AccidentReport) error
	ListRecent(ctx context.Context, limit int) ([]models.AccidentReport, error)
	GetByID(ctx context.Context, id string) (*models.AccidentReport, error)
	MarkVerified(ctx context.Context, id, verifiedBy string, at time.Time) (*models.AccidentReport, error)
}

// RiskScorer never fails; scorer problems come back as an UNKNOWN assessment.
type RiskScorer interface {
	Assess(ctx context.Context, report models.AccidentReport) models.RiskAssessment
}

// Route is the result of a closest-facility solve. OriginIndex and
// DestinationIndex point into the slices passed to ClosestFacility.
type Route struct {
	OriginIndex      int
	DestinationIndex int
	Kilometers       float64
}

// RoutingService finds the minimum-cost route from any origin to any destination.
type RoutingService interface {
	ClosestFacility(ctx context.Context, origins, destinations []models.GeoPoint) (*Route, error)
}

type DispatchPlanner interface {
	Plan(ctx context.Context, report models.AccidentReport, ambulances, hospitals []models.Facility) (*models.DispatchPlan, error)
}

// FacilityLoader reads a facility layer from a source (URL or file) and tags it with role.
type FacilityLoader interface {
	Load(ctx context.Context, source string, role models.FacilityRole) ([]models.Facility, error)
}

// ReportBroadcaster delivers accepted reports to observers. Publish must not block.
type ReportBroadcaster interface {
	Publish(report models.BroadcastReport)
}

// IntakeGateway runs one submission through the whole pipeline.
type IntakeGateway interface {
	Submit(ctx context.Context, submission models.ReportSubmission) models.IntakeOutcome
	RecentReports(ctx context.Context) ([]models.AccidentReport, error)
}
