package services

import (
	"accidentwatch/models"
	"sync/atomic"
	"time"
)

// FacilitySnapshot is an immutable point-in-time view of the facility layers.
// Callers must not modify the slices.
type FacilitySnapshot struct {
	Ambulances []models.Facility
	Hospitals  []models.Facility
	Source     string
	LoadedAt   time.Time
}

func (s *FacilitySnapshot) View() models.FacilitySnapshotView {
	return models.FacilitySnapshotView{
		Ambulances: s.Ambulances,
		Hospitals:  s.Hospitals,
		Source:     s.Source,
		LoadedAt:   s.LoadedAt,
	}
}

// Age is zero for a directory that was never loaded.
func (s *FacilitySnapshot) Age(now time.Time) time.Duration {
	if s.LoadedAt.IsZero() {
		return 0
	}
	return now.Sub(s.LoadedAt)
}

// FacilityDirectory holds the current snapshot. Reads are lock-free and a
// refresh swaps the whole snapshot at once.
type FacilityDirectory struct {
	current atomic.Pointer[FacilitySnapshot]
}

func NewFacilityDirectory() *FacilityDirectory {
	fd := &FacilityDirectory{}
	fd.current.Store(&FacilitySnapshot{
		Ambulances: []models.Facility{},
		Hospitals:  []models.Facility{},
	})
	return fd
}

func (fd *FacilityDirectory) Snapshot() *FacilitySnapshot {
	return fd.current.Load()
}

// Replace installs a new snapshot built from copies of the given layers.
func (fd *FacilityDirectory) Replace(ambulances, hospitals []models.Facility, source string) *FacilitySnapshot {
	return fd.install(&FacilitySnapshot{
		Ambulances: copyFacilities(ambulances),
		Hospitals:  copyFacilities(hospitals),
		Source:     source,
		LoadedAt:   time.Now(),
	})
}

// Restore installs a snapshot read back from the cache, keeping its original load time.
func (fd *FacilityDirectory) Restore(view models.FacilitySnapshotView) *FacilitySnapshot {
	return fd.install(&FacilitySnapshot{
		Ambulances: copyFacilities(view.Ambulances),
		Hospitals:  copyFacilities(view.Hospitals),
		Source:     view.Source,
		LoadedAt:   view.LoadedAt,
	})
}

func (fd *FacilityDirectory) install(snapshot *FacilitySnapshot) *FacilitySnapshot {
	fd.current.Store(snapshot)
	return snapshot
}

func copyFacilities(in []models.Facility) []models.Facility {
	out := make([]models.Facility, len(in))
	for i, f := range in {
		f.Location.Coordinates = append([]float64(nil), f.Location.Coordinates...)
		out[i] = f
	}
	return out
}
