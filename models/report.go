// models/report.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type LocationSource string

const (
	LocationSourceMapClick LocationSource = "map_click"
	LocationSourceGPS      LocationSource = "gps"
)

// GeoPoint is a GeoJSON point. Coordinates are [longitude, latitude] (WGS84).
type GeoPoint struct {
	Type        string    `json:"type" bson:"type" validate:"required,eq=Point"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates" validate:"required,len=2,geo_point"`
}

func NewGeoPoint(lon, lat float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{lon, lat}}
}

func (p GeoPoint) Longitude() float64 {
	if len(p.Coordinates) < 1 {
		return 0
	}
	return p.Coordinates[0]
}

func (p GeoPoint) Latitude() float64 {
	if len(p.Coordinates) < 2 {
		return 0
	}
	return p.Coordinates[1]
}

// ReportSubmission is the inbound payload of a newAccident event or POST /reports.
type ReportSubmission struct {
	Geom                *GeoPoint      `json:"geom" validate:"required"`
	NumberOfAccidents   int            `json:"numberOfAccidents" validate:"required,gte=1"`
	Description         string         `json:"description,omitempty" validate:"max=2000"`
	PictureURL          string         `json:"pictureURL,omitempty" validate:"omitempty,url"`
	UserID              *int           `json:"userId,omitempty"`
	Timestamp           string         `json:"timestamp,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	ResponseTimeSeconds *float64       `json:"response_time_seconds,omitempty" validate:"omitempty,gte=0"`
	LocationSource      LocationSource `json:"location_source,omitempty" validate:"omitempty,location_source"`
}

// AccidentReport is the persisted record. Fraud fields are written once at intake;
// verification fields are written later by an administrator.
type AccidentReport struct {
	ID                   primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Geom                 GeoPoint           `json:"geom" bson:"geom"`
	NumberOfAccidents    int                `json:"numberOfAccidents" bson:"numberOfAccidents"`
	Description          string             `json:"description" bson:"description"`
	PictureURL           string             `json:"pictureURL" bson:"pictureURL"`
	UserID               int                `json:"userId" bson:"userId"`
	Timestamp            time.Time          `json:"timestamp" bson:"timestamp"`
	LocationSource       LocationSource     `json:"location_source" bson:"locationSource"`
	ResponseTimeSeconds  float64            `json:"response_time_seconds" bson:"responseTimeSeconds"`
	FraudScore           *float64           `json:"fraudScore" bson:"fraudScore"`
	RiskLevel            RiskLevel          `json:"riskLevel" bson:"riskLevel"`
	RequiresVerification bool               `json:"requiresVerification" bson:"requiresVerification"`
	VerifiedAt           *time.Time         `json:"verifiedAt,omitempty" bson:"verifiedAt,omitempty"`
	VerifiedBy           string             `json:"verifiedBy,omitempty" bson:"verifiedBy,omitempty"`
	CreatedAt            time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt            time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// FraudCheck is the fraud summary attached to broadcast reports.
type FraudCheck struct {
	RiskLevel            RiskLevel `json:"risk_level"`
	FraudProbability     float64   `json:"fraud_probability"`
	RequiresVerification bool      `json:"requires_verification"`
}

// BroadcastReport is what observers receive for every accepted report.
type BroadcastReport struct {
	AccidentReport
	FraudCheck FraudCheck    `json:"fraud_check"`
	Dispatch   *DispatchPlan `json:"dispatch"`
}

type VerifyReportRequest struct {
	VerifiedBy string `json:"verifiedBy" validate:"omitempty,max=100"`
}
