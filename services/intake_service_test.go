package services

import (
	"accidentwatch/models"
	"accidentwatch/utils"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeStore struct {
	mu        sync.Mutex
	created   []models.AccidentReport
	createErr error
	ctxErrs   []error
	listLimit int
	listed    []models.AccidentReport
}

func (s *fakeStore) Create(ctx context.Context, report *models.AccidentReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	if s.createErr != nil {
		return s.createErr
	}
	report.ID = primitive.NewObjectID()
	report.CreatedAt = time.Now()
	s.created = append(s.created, *report)
	return nil
}

func (s *fakeStore) ListRecent(_ context.Context, limit int) ([]models.AccidentReport, error) {
	s.listLimit = limit
	return s.listed, nil
}

func (s *fakeStore) GetByID(context.Context, string) (*models.AccidentReport, error) {
	return nil, utils.NewReportNotFoundError()
}

func (s *fakeStore) MarkVerified(context.Context, string, string, time.Time) (*models.AccidentReport, error) {
	return nil, utils.NewReportNotFoundError()
}

type fakeScorer struct {
	calls      int
	assessment models.RiskAssessment
}

func (s *fakeScorer) Assess(context.Context, models.AccidentReport) models.RiskAssessment {
	s.calls++
	return s.assessment
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	reports []models.BroadcastReport
}

func (b *recordingBroadcaster) Publish(report models.BroadcastReport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reports = append(b.reports, report)
}

type intakeFixture struct {
	store       *fakeStore
	broadcaster *recordingBroadcaster
	directory   *FacilityDirectory
	service     *IntakeService
}

func newIntakeFixture(scorer interface {
	Assess(context.Context, models.AccidentReport) models.RiskAssessment
}) *intakeFixture {
	f := &intakeFixture{
		store:       &fakeStore{},
		broadcaster: &recordingBroadcaster{},
		directory:   NewFacilityDirectory(),
	}
	f.directory.Replace(
		[]models.Facility{ambulance("a1", 31.25, 30.06), ambulance("a2", 31.50, 30.30)},
		[]models.Facility{
			hospital("h-small", 31.241, 30.051, 2),
			hospital("h-mid", 31.30, 30.10, 4),
			hospital("h-big", 31.45, 30.25, 30),
		},
		"test",
	)
	f.service = NewIntakeService(f.store, scorer, NewDispatchPlannerService(NewHaversineRouter(), 60), f.directory, f.broadcaster, IntakeConfig{})
	return f
}

func submission(injuries int) models.ReportSubmission {
	geom := models.NewGeoPoint(31.24, 30.05)
	return models.ReportSubmission{
		Geom:              &geom,
		NumberOfAccidents: injuries,
		Description:       "Two cars collided at the junction",
	}
}

func assessment(level models.RiskLevel, probability float64, block bool, message string) models.RiskAssessment {
	return models.RiskAssessment{
		FraudProbability: probability,
		RiskLevel:        level,
		RiskFactors:      []models.RiskFactor{},
		Recommendation: models.Recommendation{
			Action:      models.ActionDispatchImmediately,
			Message:     message,
			ShouldBlock: block,
		},
	}
}

func TestIntake_LowRiskIsAcceptedAndBroadcastWithDispatch(t *testing.T) {
	scorer := &fakeScorer{assessment: assessment(models.RiskLevelLow, 0.08, false, "Low fraud risk - dispatch emergency services")}
	f := newIntakeFixture(scorer)

	outcome := f.service.Submit(context.Background(), submission(3))

	require.True(t, outcome.Accepted(), "outcome: %+v", outcome)
	assert.True(t, outcome.Success)
	assert.Equal(t, models.RiskLevelLow, outcome.RiskLevel)
	assert.Equal(t, "Low fraud risk - dispatch emergency services", outcome.Message)
	assert.Empty(t, outcome.Warning)

	require.Len(t, f.store.created, 1)
	assert.Equal(t, f.store.created[0].ID.Hex(), outcome.ReportID)
	assert.Equal(t, 1, f.store.created[0].UserID)

	require.Len(t, f.broadcaster.reports, 1)
	event := f.broadcaster.reports[0]
	assert.Equal(t, outcome.ReportID, event.ID.Hex())
	assert.Equal(t, models.RiskLevelLow, event.FraudCheck.RiskLevel)
	assert.False(t, event.FraudCheck.RequiresVerification)
	require.NotNil(t, event.FraudScore)
	assert.InDelta(t, 0.08, *event.FraudScore, 1e-9)

	require.NotNil(t, event.Dispatch)
	require.NotNil(t, event.Dispatch.Hospital)
	assert.GreaterOrEqual(t, event.Dispatch.Hospital.Facility.Capacity, 3)
	assert.Equal(t, "h-mid", event.Dispatch.Hospital.Facility.ID)
	assert.Equal(t, "a1", event.Dispatch.Ambulance.Facility.ID)
	assert.Equal(t, outcome.ReportID, event.Dispatch.ReportID)
}

func TestIntake_ScorerTimeoutFailsOpen(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, _ []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	f := newIntakeFixture(NewRiskScorerService(runner, 30*time.Millisecond, 4))

	outcome := f.service.Submit(context.Background(), submission(2))

	require.True(t, outcome.Accepted(), "outcome: %+v", outcome)
	assert.Equal(t, models.RiskLevelUnknown, outcome.RiskLevel)
	assert.Equal(t, "Fraud detection was unavailable", outcome.Warning)

	require.Len(t, f.store.created, 1)
	persisted := f.store.created[0]
	assert.Equal(t, models.RiskLevelUnknown, persisted.RiskLevel)
	assert.False(t, persisted.RequiresVerification)
	assert.Nil(t, persisted.FraudScore)

	require.Len(t, f.broadcaster.reports, 1)
	assert.False(t, f.broadcaster.reports[0].FraudCheck.RequiresVerification)
}

func TestIntake_BlockedReportIsRejectedWithoutSideEffects(t *testing.T) {
	var factors []models.RiskFactor
	require.NoError(t, json.Unmarshal([]byte(`[
		{"factor": "Submitted too quickly", "severity": "HIGH"},
		{"factor": "Unusually high casualty count", "severity": "CRITICAL", "count": 5}
	]`), &factors))

	blocked := assessment(models.RiskLevelCritical, 0.94, true, "Critical fraud risk - report blocked")
	blocked.RiskFactors = factors
	blocked.Recommendation.Action = models.ActionBlock
	f := newIntakeFixture(&fakeScorer{assessment: blocked})

	outcome := f.service.Submit(context.Background(), submission(5))

	require.True(t, outcome.Rejected(), "outcome: %+v", outcome)
	assert.False(t, outcome.Success)
	assert.Equal(t, models.RiskLevelCritical, outcome.RiskLevel)
	assert.Equal(t, 0.94, outcome.FraudProbability)
	assert.Equal(t, factors, outcome.RiskFactors)
	assert.Empty(t, f.store.created)
	assert.Empty(t, f.store.ctxErrs)
	assert.Empty(t, f.broadcaster.reports)

	payload, err := json.Marshal(outcome.Payload())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"success": false,
		"message": "Critical fraud risk - report blocked",
		"risk_level": "CRITICAL",
		"fraud_probability": 0.94,
		"risk_factors": [
			{"factor": "Submitted too quickly", "severity": "HIGH"},
			{"factor": "Unusually high casualty count", "severity": "CRITICAL", "count": 5}
		]
	}`, string(payload))
}

func TestIntake_NoHospitalWithCapacityStillAccepts(t *testing.T) {
	f := newIntakeFixture(&fakeScorer{assessment: assessment(models.RiskLevelMedium, 0.4, false, "Medium fraud risk - proceed with caution")})

	outcome := f.service.Submit(context.Background(), submission(31))

	require.True(t, outcome.Accepted())
	require.Len(t, f.broadcaster.reports, 1)
	plan := f.broadcaster.reports[0].Dispatch
	require.NotNil(t, plan)
	assert.Nil(t, plan.Hospital)
	require.NotNil(t, plan.HospitalFailure)
	assert.Equal(t, models.DispatchInsufficientCapacity, plan.HospitalFailure.Reason)
	assert.NotNil(t, plan.Ambulance)
}

func TestIntake_HighRiskAcceptedRequiresVerification(t *testing.T) {
	high := assessment(models.RiskLevelHigh, 0.7, false, "High fraud risk - verify before dispatch")
	high.Recommendation.Action = models.ActionVerifyBeforeDispatch
	f := newIntakeFixture(&fakeScorer{assessment: high})

	outcome := f.service.Submit(context.Background(), submission(1))

	require.True(t, outcome.Accepted())
	require.Len(t, f.store.created, 1)
	assert.True(t, f.store.created[0].RequiresVerification)
	assert.True(t, f.broadcaster.reports[0].FraudCheck.RequiresVerification)
}

func TestIntake_PersistenceFailure(t *testing.T) {
	f := newIntakeFixture(&fakeScorer{assessment: assessment(models.RiskLevelLow, 0.1, false, "ok")})
	f.store.createErr = utils.NewDatabaseError("create report", errors.New("connection reset"))

	outcome := f.service.Submit(context.Background(), submission(1))

	assert.Equal(t, models.WSTypeReportError, outcome.Type)
	assert.False(t, outcome.Success)
	assert.Equal(t, "Failed to save report", outcome.Message)
	assert.Equal(t, utils.ErrCodeDatabase, outcome.Code)
	assert.Empty(t, f.broadcaster.reports)
}

func TestIntake_InvalidSubmissionSkipsScoring(t *testing.T) {
	scorer := &fakeScorer{assessment: assessment(models.RiskLevelLow, 0.1, false, "ok")}
	f := newIntakeFixture(scorer)

	badGeom := models.GeoPoint{Type: "Point", Coordinates: []float64{200, 30}}
	negative := -4.0
	tests := []struct {
		name       string
		submission models.ReportSubmission
	}{
		{"missing geometry", models.ReportSubmission{NumberOfAccidents: 1}},
		{"no injuries", models.ReportSubmission{Geom: submission(1).Geom, NumberOfAccidents: 0}},
		{"longitude out of range", models.ReportSubmission{Geom: &badGeom, NumberOfAccidents: 1}},
		{"negative response time", models.ReportSubmission{Geom: submission(1).Geom, NumberOfAccidents: 1, ResponseTimeSeconds: &negative}},
		{"unknown location source", models.ReportSubmission{Geom: submission(1).Geom, NumberOfAccidents: 1, LocationSource: "satellite"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := f.service.Submit(context.Background(), tt.submission)

			assert.Equal(t, models.WSTypeReportError, outcome.Type)
			assert.Equal(t, utils.ErrCodeValidation, outcome.Code)
			assert.Equal(t, "Invalid accident report", outcome.Message)
		})
	}

	assert.Zero(t, scorer.calls)
	assert.Empty(t, f.store.created)
}

func TestIntake_SubmitterCancellationDoesNotAbortPersistence(t *testing.T) {
	f := newIntakeFixture(&fakeScorer{assessment: assessment(models.RiskLevelLow, 0.1, false, "ok")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome := f.service.Submit(ctx, submission(1))

	require.True(t, outcome.Accepted())
	require.Len(t, f.store.ctxErrs, 1)
	assert.NoError(t, f.store.ctxErrs[0])
	assert.Len(t, f.broadcaster.reports, 1)
}

func TestIntake_SubmittedFieldsArePersisted(t *testing.T) {
	f := newIntakeFixture(&fakeScorer{assessment: assessment(models.RiskLevelLow, 0.1, false, "ok")})

	userID := 42
	responseTime := 18.0
	s := submission(2)
	s.UserID = &userID
	s.ResponseTimeSeconds = &responseTime
	s.LocationSource = models.LocationSourceMapClick
	s.PictureURL = "https://example.org/a.jpg"
	s.Timestamp = "2024-05-01T10:30:00Z"

	require.True(t, f.service.Submit(context.Background(), s).Accepted())

	persisted := f.store.created[0]
	assert.Equal(t, 42, persisted.UserID)
	assert.Equal(t, 18.0, persisted.ResponseTimeSeconds)
	assert.Equal(t, models.LocationSourceMapClick, persisted.LocationSource)
	assert.Equal(t, "https://example.org/a.jpg", persisted.PictureURL)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC), persisted.Timestamp.UTC())
}

func TestIntake_RecentReportsUsesConfiguredLimit(t *testing.T) {
	f := newIntakeFixture(&fakeScorer{})
	f.store.listed = []models.AccidentReport{{NumberOfAccidents: 1}}

	reports, err := f.service.RecentReports(context.Background())

	require.NoError(t, err)
	assert.Len(t, reports, 1)
	assert.Equal(t, 100, f.store.listLimit)
}
