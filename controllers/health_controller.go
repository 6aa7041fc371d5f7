package controllers

import (
	"accidentwatch/models"
	"accidentwatch/services"
	"accidentwatch/utils"
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const healthCheckTimeout = 3 * time.Second

// HealthCheck reports an error when a dependency is unreachable.
type HealthCheck func(ctx context.Context) error

type HubStatsProvider interface {
	GetStats() models.WSHubStats
}

type RefreshStatsProvider interface {
	GetStats() models.FacilityRefreshStats
}

// HealthConfig wires the health endpoint. Optional checks are reported but
// never turn the service unhealthy.
type HealthConfig struct {
	Checks     map[string]HealthCheck
	Optional   map[string]HealthCheck
	Hub        HubStatsProvider
	Facilities services.FacilitySnapshots
	Refresh    RefreshStatsProvider
}

type HealthController struct {
	config    HealthConfig
	startTime time.Time
}

func NewHealthController(config HealthConfig) *HealthController {
	return &HealthController{
		config:    config,
		startTime: time.Now(),
	}
}

type HealthDetails struct {
	models.HealthResponse
	Optional            map[string]string            `json:"optional,omitempty"`
	Observers           int                          `json:"observers"`
	Ambulances          int                          `json:"ambulances"`
	Hospitals           int                          `json:"hospitals"`
	FacilitySnapshotAge float64                      `json:"facilitySnapshotAgeSeconds"`
	FacilityRefresh     *models.FacilityRefreshStats `json:"facilityRefresh,omitempty"`
}

// HealthCheck answers 503 when any dependency check fails.
func (hc *HealthController) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	snapshot := hc.config.Facilities.Snapshot()
	details := HealthDetails{
		HealthResponse:      utils.HealthCheckResponse(runChecks(ctx, hc.config.Checks), utils.FormatDuration(time.Since(hc.startTime))),
		Ambulances:          len(snapshot.Ambulances),
		Hospitals:           len(snapshot.Hospitals),
		FacilitySnapshotAge: snapshot.Age(time.Now()).Seconds(),
	}
	if len(hc.config.Optional) > 0 {
		details.Optional = runChecks(ctx, hc.config.Optional)
	}
	if hc.config.Hub != nil {
		details.Observers = hc.config.Hub.GetStats().ActiveObservers
	}
	if hc.config.Refresh != nil {
		stats := hc.config.Refresh.GetStats()
		details.FacilityRefresh = &stats
	}

	status := http.StatusOK
	if details.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, details)
}

func runChecks(ctx context.Context, checks map[string]HealthCheck) map[string]string {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	statuses := make(map[string]string, len(names))
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			logrus.Warnf("Health check %s failed: %v", name, err)
			statuses[name] = "unhealthy"
			continue
		}
		statuses[name] = "healthy"
	}
	return statuses
}
