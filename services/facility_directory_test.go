package services

import (
	"accidentwatch/models"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacilityDirectory_StartsEmpty(t *testing.T) {
	fd := NewFacilityDirectory()

	snapshot := fd.Snapshot()
	require.NotNil(t, snapshot)
	assert.Empty(t, snapshot.Ambulances)
	assert.Empty(t, snapshot.Hospitals)
	assert.Zero(t, snapshot.Age(time.Now()))
}

func TestFacilityDirectory_ReplaceCopiesLayers(t *testing.T) {
	fd := NewFacilityDirectory()
	ambulances := []models.Facility{ambulance("a1", 31.2, 30.0)}
	hospitals := []models.Facility{hospital("h1", 31.3, 30.1, 12)}

	fd.Replace(ambulances, hospitals, "test")
	ambulances[0].ID = "mutated"
	hospitals[0].Location.Coordinates[0] = 0

	snapshot := fd.Snapshot()
	assert.Equal(t, "a1", snapshot.Ambulances[0].ID)
	assert.Equal(t, 31.3, snapshot.Hospitals[0].Location.Longitude())
	assert.Equal(t, "test", snapshot.Source)
	assert.False(t, snapshot.LoadedAt.IsZero())
}

func TestFacilityDirectory_OldSnapshotSurvivesReplace(t *testing.T) {
	fd := NewFacilityDirectory()
	fd.Replace([]models.Facility{ambulance("a1", 31.2, 30.0)}, nil, "first")
	held := fd.Snapshot()

	fd.Replace([]models.Facility{ambulance("a2", 31.2, 30.0), ambulance("a3", 31.3, 30.0)}, nil, "second")

	assert.Len(t, held.Ambulances, 1)
	assert.Equal(t, "first", held.Source)
	assert.Len(t, fd.Snapshot().Ambulances, 2)
}

func TestFacilityDirectory_RestoreKeepsLoadTime(t *testing.T) {
	fd := NewFacilityDirectory()
	loadedAt := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	fd.Restore(models.FacilitySnapshotView{
		Ambulances: []models.Facility{ambulance("a1", 31.2, 30.0)},
		Hospitals:  []models.Facility{hospital("h1", 31.3, 30.1, 4)},
		Source:     "cache",
		LoadedAt:   loadedAt,
	})

	snapshot := fd.Snapshot()
	assert.Equal(t, loadedAt, snapshot.LoadedAt)
	assert.Equal(t, time.Hour, snapshot.Age(loadedAt.Add(time.Hour)))
	assert.Equal(t, "cache", snapshot.View().Source)
}

func TestFacilityDirectory_ReadersSeeWholeSnapshots(t *testing.T) {
	fd := NewFacilityDirectory()
	small := []models.Facility{ambulance("a1", 31.2, 30.0)}
	large := []models.Facility{ambulance("b1", 31.2, 30.0), ambulance("b2", 31.2, 30.0), ambulance("b3", 31.2, 30.0)}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				fd.Replace(small, small, "small")
			} else {
				fd.Replace(large, large, "large")
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		s := fd.Snapshot()
		assert.Equal(t, len(s.Ambulances), len(s.Hospitals))
	}
	close(stop)
	wg.Wait()
}
