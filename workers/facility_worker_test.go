package workers

import (
	"accidentwatch/models"
	"accidentwatch/services"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type switchableLoader struct {
	mu     sync.Mutex
	err    error
	loads  int
	layers map[models.FacilityRole][]models.Facility
}

func (l *switchableLoader) Load(_ context.Context, _ string, role models.FacilityRole) ([]models.Facility, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	if l.err != nil {
		return nil, l.err
	}
	return l.layers[role], nil
}

func (l *switchableLoader) fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

type memoryCache struct {
	mu   sync.Mutex
	view *models.FacilitySnapshotView
	ttl  time.Duration
	err  error
}

func (m *memoryCache) Get(context.Context) (*models.FacilitySnapshotView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view, m.err
}

func (m *memoryCache) Set(_ context.Context, view models.FacilitySnapshotView, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.view = &view
	m.ttl = ttl
	return m.err
}

func cairoLayers() map[models.FacilityRole][]models.Facility {
	return map[models.FacilityRole][]models.Facility{
		models.FacilityRoleAmbulance: {
			{ID: "a1", Location: models.NewGeoPoint(31.25, 30.06), Capacity: 1, Role: models.FacilityRoleAmbulance},
			{ID: "a2", Location: models.NewGeoPoint(31.30, 30.10), Capacity: 1, Role: models.FacilityRoleAmbulance},
		},
		models.FacilityRoleHospital: {
			{ID: "h1", Location: models.NewGeoPoint(31.22, 30.03), Capacity: 40, Role: models.FacilityRoleHospital},
		},
	}
}

func newTestWorker(loader *switchableLoader, cache SnapshotCache) (*FacilityWorker, *services.FacilityDirectory) {
	directory := services.NewFacilityDirectory()
	worker := NewFacilityWorker(loader, directory, cache, FacilityWorkerConfig{
		AmbulanceSource: "ambulances.geojson",
		HospitalSource:  "hospitals.geojson",
		RefreshInterval: time.Hour,
		LoadTimeout:     time.Second,
		CacheTTL:        30 * time.Minute,
	})
	return worker, directory
}

func TestFacilityWorker_RefreshInstallsAndCaches(t *testing.T) {
	cache := &memoryCache{}
	worker, directory := newTestWorker(&switchableLoader{layers: cairoLayers()}, cache)

	snapshot, err := worker.Refresh(context.Background())

	require.NoError(t, err)
	assert.Same(t, snapshot, directory.Snapshot())
	assert.Len(t, snapshot.Ambulances, 2)
	assert.Len(t, snapshot.Hospitals, 1)

	stats := worker.GetStats()
	assert.Equal(t, int64(1), stats.RefreshesSucceeded)
	assert.Equal(t, 2, stats.Ambulances)

	require.NotNil(t, cache.view)
	assert.Len(t, cache.view.Hospitals, 1)
	assert.Equal(t, 30*time.Minute, cache.ttl)
}

func TestFacilityWorker_FailedRefreshKeepsPreviousSnapshot(t *testing.T) {
	loader := &switchableLoader{layers: cairoLayers()}
	worker, directory := newTestWorker(loader, nil)

	good, err := worker.Refresh(context.Background())
	require.NoError(t, err)

	loader.fail(errors.New("FeatureServer returned 503"))
	snapshot, err := worker.Refresh(context.Background())

	require.Error(t, err)
	assert.Same(t, good, snapshot)
	assert.Same(t, good, directory.Snapshot())

	stats := worker.GetStats()
	assert.Equal(t, int64(1), stats.RefreshesFailed)
	assert.Contains(t, stats.LastError, "503")
}

func TestFacilityWorker_CacheFailureDoesNotFailRefresh(t *testing.T) {
	worker, _ := newTestWorker(&switchableLoader{layers: cairoLayers()}, &memoryCache{err: errors.New("redis down")})

	_, err := worker.Refresh(context.Background())
	assert.NoError(t, err)
}

func TestFacilityWorker_StartRestoresCacheThenRefreshes(t *testing.T) {
	loadedAt := time.Now().Add(-10 * time.Minute).UTC()
	cache := &memoryCache{view: &models.FacilitySnapshotView{
		Ambulances: []models.Facility{{ID: "cached", Location: models.NewGeoPoint(31.2, 30.0), Capacity: 1, Role: models.FacilityRoleAmbulance}},
		Source:     "cache",
		LoadedAt:   loadedAt,
	}}
	loader := &switchableLoader{err: errors.New("offline")}
	worker, directory := newTestWorker(loader, cache)

	require.NoError(t, worker.Start())
	defer worker.Stop()

	snapshot := directory.Snapshot()
	require.Len(t, snapshot.Ambulances, 1)
	assert.Equal(t, "cached", snapshot.Ambulances[0].ID)
	assert.True(t, snapshot.LoadedAt.Equal(loadedAt))

	// The first refresh fails and leaves the cached snapshot installed.
	assert.Eventually(t, func() bool {
		return worker.GetStats().RefreshesFailed == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "cached", directory.Snapshot().Ambulances[0].ID)
}

func TestFacilityWorker_StopIsIdempotent(t *testing.T) {
	worker, _ := newTestWorker(&switchableLoader{layers: cairoLayers()}, nil)

	require.NoError(t, worker.Start())
	require.NoError(t, worker.Start())
	require.NoError(t, worker.Stop())
	require.NoError(t, worker.Stop())
}
