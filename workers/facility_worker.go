package workers

import (
	"accidentwatch/interfaces"
	"accidentwatch/models"
	"accidentwatch/services"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SnapshotCache persists the last good facility snapshot between restarts.
type SnapshotCache interface {
	Get(ctx context.Context) (*models.FacilitySnapshotView, error)
	Set(ctx context.Context, view models.FacilitySnapshotView, ttl time.Duration) error
}

// FacilityWorker keeps the facility directory fresh. A failed refresh leaves
// the previous snapshot in place.
type FacilityWorker struct {
	loader    interfaces.FacilityLoader
	directory *services.FacilityDirectory
	cache     SnapshotCache

	config FacilityWorkerConfig

	// Serializes refreshes so two loads never race to install.
	refreshMutex sync.Mutex

	isRunning bool
	mutex     sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats      models.FacilityRefreshStats
	statsMutex sync.RWMutex
}

type FacilityWorkerConfig struct {
	AmbulanceSource string        `json:"ambulanceSource"`
	HospitalSource  string        `json:"hospitalSource"`
	RefreshInterval time.Duration `json:"refreshInterval"`
	LoadTimeout     time.Duration `json:"loadTimeout"`
	CacheTTL        time.Duration `json:"cacheTTL"`
}

func NewFacilityWorker(
	loader interfaces.FacilityLoader,
	directory *services.FacilityDirectory,
	cache SnapshotCache,
	config FacilityWorkerConfig,
) *FacilityWorker {
	ctx, cancel := context.WithCancel(context.Background())

	if config.RefreshInterval <= 0 {
		config.RefreshInterval = 15 * time.Minute
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = 30 * time.Second
	}

	return &FacilityWorker{
		loader:    loader,
		directory: directory,
		cache:     cache,
		config:    config,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (fw *FacilityWorker) Start() error {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()

	if fw.isRunning {
		return nil
	}
	fw.isRunning = true

	logrus.Infof("Starting Facility Worker (refresh every %s)", fw.config.RefreshInterval)

	fw.restoreFromCache()

	fw.wg.Add(1)
	go fw.refreshLoop()

	return nil
}

func (fw *FacilityWorker) Stop() error {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()

	if !fw.isRunning {
		return nil
	}

	logrus.Info("Stopping Facility Worker...")

	fw.cancel()
	fw.isRunning = false
	fw.wg.Wait()

	logrus.Info("Facility Worker stopped successfully")
	return nil
}

// Refresh loads both layers and installs them as one snapshot.
func (fw *FacilityWorker) Refresh(ctx context.Context) (*services.FacilitySnapshot, error) {
	fw.refreshMutex.Lock()
	defer fw.refreshMutex.Unlock()

	ctx, cancel := context.WithTimeout(ctx, fw.config.LoadTimeout)
	defer cancel()

	ambulances, hospitals, err := services.LoadFacilityLayers(ctx, fw.loader, fw.config.AmbulanceSource, fw.config.HospitalSource)
	if err != nil {
		fw.recordFailure(err)
		logrus.WithError(err).Warn("Facility refresh failed, keeping previous snapshot")
		return fw.directory.Snapshot(), fmt.Errorf("refresh facilities: %w", err)
	}

	source := fmt.Sprintf("%s | %s", fw.config.AmbulanceSource, fw.config.HospitalSource)
	snapshot := fw.directory.Replace(ambulances, hospitals, source)
	fw.recordSuccess(snapshot)

	logrus.Infof("🏥 Facility directory refreshed: %d ambulances, %d hospitals", len(snapshot.Ambulances), len(snapshot.Hospitals))

	if fw.cache != nil {
		if err := fw.cache.Set(ctx, snapshot.View(), fw.config.CacheTTL); err != nil {
			logrus.Warnf("Failed to cache facility snapshot: %v", err)
		}
	}
	return snapshot, nil
}

func (fw *FacilityWorker) refreshLoop() {
	defer fw.wg.Done()

	fw.Refresh(fw.ctx)

	ticker := time.NewTicker(fw.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fw.Refresh(fw.ctx)
		case <-fw.ctx.Done():
			return
		}
	}
}

func (fw *FacilityWorker) restoreFromCache() {
	if fw.cache == nil {
		return
	}

	ctx, cancel := context.WithTimeout(fw.ctx, 5*time.Second)
	defer cancel()

	view, err := fw.cache.Get(ctx)
	if err != nil {
		logrus.Warnf("Failed to read cached facility snapshot: %v", err)
		return
	}
	if view == nil {
		return
	}

	snapshot := fw.directory.Restore(*view)
	logrus.Infof("Restored cached facility snapshot from %s (%d ambulances, %d hospitals)",
		snapshot.LoadedAt.Format(time.RFC3339), len(snapshot.Ambulances), len(snapshot.Hospitals))
}

func (fw *FacilityWorker) recordSuccess(snapshot *services.FacilitySnapshot) {
	fw.statsMutex.Lock()
	defer fw.statsMutex.Unlock()

	fw.stats.RefreshesSucceeded++
	fw.stats.LastRefreshAt = snapshot.LoadedAt
	fw.stats.LastError = ""
	fw.stats.Ambulances = len(snapshot.Ambulances)
	fw.stats.Hospitals = len(snapshot.Hospitals)
}

func (fw *FacilityWorker) recordFailure(err error) {
	fw.statsMutex.Lock()
	defer fw.statsMutex.Unlock()

	fw.stats.RefreshesFailed++
	fw.stats.LastError = err.Error()
}

func (fw *FacilityWorker) GetStats() models.FacilityRefreshStats {
	fw.statsMutex.RLock()
	defer fw.statsMutex.RUnlock()
	return fw.stats
}
