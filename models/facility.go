// models/facility.go
package models

import "time"

type FacilityRole string

const (
	FacilityRoleAmbulance FacilityRole = "AMBULANCE"
	FacilityRoleHospital  FacilityRole = "HOSPITAL"
)

// Facility is a point resource. Capacity is the bed count for hospitals and 1 for ambulances.
type Facility struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Location GeoPoint     `json:"location"`
	Capacity int          `json:"capacity"`
	Role     FacilityRole `json:"role"`
}

type FacilitySnapshotView struct {
	Ambulances []Facility `json:"ambulances"`
	Hospitals  []Facility `json:"hospitals"`
	Source     string     `json:"source"`
	LoadedAt   time.Time  `json:"loadedAt"`
}

// FacilityRefreshStats tracks the background facility refresh.
type FacilityRefreshStats struct {
	RefreshesSucceeded int64     `json:"refreshesSucceeded"`
	RefreshesFailed    int64     `json:"refreshesFailed"`
	LastRefreshAt      time.Time `json:"lastRefreshAt"`
	LastError          string    `json:"lastError,omitempty"`
	Ambulances         int       `json:"ambulances"`
	Hospitals          int       `json:"hospitals"`
}
