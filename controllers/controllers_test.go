package controllers

import (
	"accidentwatch/middleware"
	"accidentwatch/models"
	"accidentwatch/services"
	"accidentwatch/utils"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubGateway struct {
	outcome   models.IntakeOutcome
	submitted []models.ReportSubmission
}

func (g *stubGateway) Submit(_ context.Context, submission models.ReportSubmission) models.IntakeOutcome {
	g.submitted = append(g.submitted, submission)
	return g.outcome
}

func (g *stubGateway) RecentReports(context.Context) ([]models.AccidentReport, error) {
	return nil, nil
}

type stubStore struct {
	reports    []models.AccidentReport
	listLimit  int
	err        error
	verifiedBy string
}

func (s *stubStore) Create(context.Context, *models.AccidentReport) error { return s.err }

func (s *stubStore) ListRecent(_ context.Context, limit int) ([]models.AccidentReport, error) {
	s.listLimit = limit
	return s.reports, s.err
}

func (s *stubStore) GetByID(_ context.Context, id string) (*models.AccidentReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	for i := range s.reports {
		if s.reports[i].ID.Hex() == id {
			return &s.reports[i], nil
		}
	}
	return nil, utils.NewReportNotFoundError()
}

func (s *stubStore) MarkVerified(ctx context.Context, id, verifiedBy string, at time.Time) (*models.AccidentReport, error) {
	report, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.verifiedBy = verifiedBy
	report.VerifiedBy = verifiedBy
	report.VerifiedAt = &at
	return report, nil
}

// newRouter installs the error handler that renders errors attached with c.Error.
func newRouter() *gin.Engine {
	r := gin.New()
	r.Use(middleware.NewErrorHandler("production").Handle())
	return r
}

func perform(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func validReport() map[string]interface{} {
	return map[string]interface{}{
		"geom":              map[string]interface{}{"type": "Point", "coordinates": []float64{31.24, 30.05}},
		"numberOfAccidents": 2,
	}
}

func TestSubmitReport_StatusFollowsOutcome(t *testing.T) {
	tests := []struct {
		name    string
		outcome models.IntakeOutcome
		status  int
	}{
		{"accepted", models.IntakeOutcome{Type: models.WSTypeReportAccepted, Success: true, ReportID: "r1"}, http.StatusCreated},
		{"rejected", models.IntakeOutcome{Type: models.WSTypeReportRejected, RiskLevel: models.RiskLevelCritical}, http.StatusUnprocessableEntity},
		{"invalid", models.IntakeOutcome{Type: models.WSTypeReportError, Code: utils.ErrCodeValidation}, http.StatusBadRequest},
		{"persistence failed", models.IntakeOutcome{Type: models.WSTypeReportError, Code: utils.ErrCodeDatabase}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := &stubGateway{outcome: tt.outcome}
			r := gin.New()
			r.POST("/reports", NewReportController(gateway, &stubStore{}).SubmitReport)

			w := perform(r, http.MethodPost, "/reports", validReport())

			assert.Equal(t, tt.status, w.Code)
			require.Len(t, gateway.submitted, 1)
			assert.Equal(t, 2, gateway.submitted[0].NumberOfAccidents)
		})
	}
}

func TestSubmitReport_MalformedBody(t *testing.T) {
	gateway := &stubGateway{}
	r := gin.New()
	r.POST("/reports", NewReportController(gateway, &stubStore{}).SubmitReport)

	req := httptest.NewRequest(http.MethodPost, "/reports", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, gateway.submitted)

	var payload models.ReportErrorPayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.False(t, payload.Success)
	assert.Equal(t, utils.ErrCodeValidation, payload.Code)
}

func TestGetReports(t *testing.T) {
	store := &stubStore{reports: []models.AccidentReport{{ID: primitive.NewObjectID()}, {ID: primitive.NewObjectID()}}}
	r := newRouter()
	r.GET("/reports", NewReportController(&stubGateway{}, store).GetReports)

	w := perform(r, http.MethodGet, "/reports", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 100, store.listLimit)

	w = perform(r, http.MethodGet, "/reports?limit=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, store.listLimit)
	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(2), resp.Meta.Total)

	for _, bad := range []string{"0", "-1", "ten"} {
		w = perform(r, http.MethodGet, "/reports?limit="+bad, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}

	store.err = utils.NewDatabaseError("list reports", errors.New("timeout"))
	w = perform(r, http.MethodGet, "/reports", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, utils.ErrCodeDatabase, resp.Error.Code)
}

func TestGetReport(t *testing.T) {
	id := primitive.NewObjectID()
	store := &stubStore{reports: []models.AccidentReport{{ID: id, NumberOfAccidents: 4}}}
	r := newRouter()
	r.GET("/reports/:id", NewReportController(&stubGateway{}, store).GetReport)

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/reports/"+id.Hex(), nil).Code)
	assert.Equal(t, http.StatusNotFound, perform(r, http.MethodGet, "/reports/"+primitive.NewObjectID().Hex(), nil).Code)

	// Raw driver errors are classified by the error handler.
	store.err = mongo.ErrNoDocuments
	w := perform(r, http.MethodGet, "/reports/"+id.Hex(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.ErrCodeNotFound, resp.Error.Code)
}

func TestVerifyReport(t *testing.T) {
	id := primitive.NewObjectID()
	store := &stubStore{reports: []models.AccidentReport{{ID: id}}}
	r := newRouter()
	r.PUT("/reports/:id/verify", func(c *gin.Context) {
		c.Set("userID", "u-1")
		c.Set("userName", "Dispatcher")
	}, NewReportController(&stubGateway{}, store).VerifyReport)

	w := perform(r, http.MethodPut, "/reports/"+id.Hex()+"/verify", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Dispatcher", store.verifiedBy)

	w = perform(r, http.MethodPut, "/reports/"+id.Hex()+"/verify", map[string]string{"verifiedBy": "Night shift"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Night shift", store.verifiedBy)

	w = perform(r, http.MethodPut, "/reports/"+primitive.NewObjectID().Hex()+"/verify", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type stubRefresher struct {
	directory *services.FacilityDirectory
	err       error
}

func (s stubRefresher) Refresh(context.Context) (*services.FacilitySnapshot, error) {
	if s.err != nil {
		return s.directory.Snapshot(), s.err
	}
	return s.directory.Replace([]models.Facility{
		{ID: "a1", Location: models.NewGeoPoint(31.2, 30.0), Capacity: 1, Role: models.FacilityRoleAmbulance},
	}, nil, "manual"), nil
}

func TestFacilityController(t *testing.T) {
	directory := services.NewFacilityDirectory()
	r := newRouter()
	ok := NewFacilityController(directory, stubRefresher{directory: directory})
	failing := NewFacilityController(directory, stubRefresher{directory: directory, err: errors.New("layer offline")})
	r.GET("/facilities", ok.GetFacilities)
	r.POST("/refresh", ok.RefreshFacilities)
	r.POST("/refresh-failing", failing.RefreshFacilities)

	w := perform(r, http.MethodPost, "/refresh", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = perform(r, http.MethodPost, "/refresh-failing", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = perform(r, http.MethodGet, "/facilities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data models.FacilitySnapshotView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Ambulances, 1)
	assert.Equal(t, "manual", resp.Data.Source)
}

func TestDispatchController_PreviewPlan(t *testing.T) {
	directory := services.NewFacilityDirectory()
	directory.Replace(
		[]models.Facility{{ID: "a1", Location: models.NewGeoPoint(31.25, 30.06), Capacity: 1, Role: models.FacilityRoleAmbulance}},
		[]models.Facility{{ID: "h1", Location: models.NewGeoPoint(31.30, 30.10), Capacity: 2, Role: models.FacilityRoleHospital}},
		"test",
	)
	planner := services.NewDispatchPlannerService(services.NewHaversineRouter(), 60)
	r := gin.New()
	r.POST("/dispatch/plan", NewDispatchController(planner, directory).PreviewPlan)

	var resp struct {
		Message string              `json:"message"`
		Data    models.DispatchPlan `json:"data"`
	}

	w := perform(r, http.MethodPost, "/dispatch/plan", validReport())
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Dispatch plan computed", resp.Message)
	require.NotNil(t, resp.Data.Hospital)
	assert.Equal(t, "h1", resp.Data.Hospital.Facility.ID)
	assert.Empty(t, resp.Data.ReportID)

	body := validReport()
	body["numberOfAccidents"] = 5
	w = perform(r, http.MethodPost, "/dispatch/plan", body)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Dispatch plan incomplete", resp.Message)
	require.NotNil(t, resp.Data.HospitalFailure)
	assert.Equal(t, models.DispatchInsufficientCapacity, resp.Data.HospitalFailure.Reason)
	assert.NotNil(t, resp.Data.Ambulance)

	w = perform(r, http.MethodPost, "/dispatch/plan", map[string]interface{}{"numberOfAccidents": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type stubHub struct{ observers int }

func (s stubHub) GetStats() models.WSHubStats { return models.WSHubStats{ActiveObservers: s.observers} }

type stubRefreshStats struct {
	stats models.FacilityRefreshStats
}

func (s stubRefreshStats) GetStats() models.FacilityRefreshStats { return s.stats }

func TestHealthCheck(t *testing.T) {
	directory := services.NewFacilityDirectory()
	healthy := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }
	refresh := stubRefreshStats{stats: models.FacilityRefreshStats{RefreshesSucceeded: 4, RefreshesFailed: 1, LastError: "layer offline"}}

	r := gin.New()
	r.GET("/ok", NewHealthController(HealthConfig{
		Checks:     map[string]HealthCheck{"mongodb": healthy, "redis": healthy},
		Optional:   map[string]HealthCheck{"amqp": down},
		Hub:        stubHub{observers: 3},
		Facilities: directory,
		Refresh:    refresh,
	}).HealthCheck)
	r.GET("/degraded", NewHealthController(HealthConfig{
		Checks:     map[string]HealthCheck{"mongodb": healthy, "redis": down},
		Hub:        stubHub{},
		Facilities: directory,
	}).HealthCheck)

	w := perform(r, http.MethodGet, "/ok", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var details HealthDetails
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &details))
	assert.Equal(t, "healthy", details.Status)
	assert.Equal(t, 3, details.Observers)
	// A broken optional sink is reported without failing the check.
	assert.Equal(t, "unhealthy", details.Optional["amqp"])
	require.NotNil(t, details.FacilityRefresh)
	assert.Equal(t, int64(4), details.FacilityRefresh.RefreshesSucceeded)
	assert.Equal(t, "layer offline", details.FacilityRefresh.LastError)

	w = perform(r, http.MethodGet, "/degraded", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	details = HealthDetails{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &details))
	assert.Equal(t, "unhealthy", details.Services["redis"])
	assert.Equal(t, "healthy", details.Services["mongodb"])
	assert.Nil(t, details.FacilityRefresh)
	assert.Empty(t, details.Optional)
}
