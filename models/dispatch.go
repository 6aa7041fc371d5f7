// models/dispatch.go
package models

import "time"

type DispatchFailureReason string

const (
	DispatchNoAmbulanceAvailable DispatchFailureReason = "NoAmbulanceAvailable"
	DispatchInsufficientCapacity DispatchFailureReason = "InsufficientCapacity"
	DispatchNoHospitalRoute      DispatchFailureReason = "NoHospitalRoute"
	DispatchRoutingFailed        DispatchFailureReason = "RoutingFailed"
)

type DispatchFailure struct {
	Reason  DispatchFailureReason `json:"reason"`
	Message string                `json:"message"`
}

// DispatchLeg is one facility assignment. Kilometers and minutes are unrounded.
type DispatchLeg struct {
	Facility   Facility `json:"facility"`
	Kilometers float64  `json:"kilometers"`
	Minutes    float64  `json:"minutes"`
}

// DispatchPlan may be partial: a nil leg comes with a failure describing why.
type DispatchPlan struct {
	ReportID         string           `json:"reportId,omitempty"`
	RequiredBeds     int              `json:"requiredBeds"`
	Ambulance        *DispatchLeg     `json:"ambulance"`
	AmbulanceFailure *DispatchFailure `json:"ambulance_failure,omitempty"`
	Hospital         *DispatchLeg     `json:"hospital"`
	HospitalFailure  *DispatchFailure `json:"hospital_failure,omitempty"`
	TotalKilometers  float64          `json:"totalKilometers"`
	TotalMinutes     float64          `json:"totalMinutes"`
	PlannedAt        time.Time        `json:"plannedAt"`
}

func (p *DispatchPlan) Complete() bool {
	return p != nil && p.Ambulance != nil && p.Hospital != nil
}

type DispatchPreviewRequest struct {
	Geom              *GeoPoint `json:"geom" validate:"required"`
	NumberOfAccidents int       `json:"numberOfAccidents" validate:"gte=0"`
}
