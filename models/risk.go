// models/risk.go
package models

import "encoding/json"

type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
	RiskLevelUnknown  RiskLevel = "UNKNOWN"
)

// Valid reports whether the level is one of the five recognized values.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh, RiskLevelCritical, RiskLevelUnknown:
		return true
	}
	return false
}

// Blockable reports whether a block recommendation is allowed at this level.
func (l RiskLevel) Blockable() bool {
	return l == RiskLevelHigh || l == RiskLevelCritical
}

// RequiresVerification is true only for explicit HIGH/CRITICAL verdicts, never UNKNOWN.
func (l RiskLevel) RequiresVerification() bool {
	return l.Blockable()
}

const (
	ActionDispatchImmediately  = "DISPATCH_IMMEDIATELY"
	ActionFlagForReview        = "FLAG_FOR_REVIEW"
	ActionBlock                = "BLOCK"
	ActionVerifyBeforeDispatch = "VERIFY_BEFORE_DISPATCH"
	ActionBlockReport          = "BLOCK_REPORT"
)

type Recommendation struct {
	Action      string `json:"action"`
	Message     string `json:"message"`
	ShouldBlock bool   `json:"should_block"`
}

// RiskFactor keeps the scorer's factor object verbatim; Factor is the only
// field the service reads.
type RiskFactor struct {
	Factor   string
	Severity string
	raw      json.RawMessage
}

func (f RiskFactor) MarshalJSON() ([]byte, error) {
	if len(f.raw) > 0 {
		return f.raw, nil
	}
	out := map[string]string{"factor": f.Factor}
	if f.Severity != "" {
		out["severity"] = f.Severity
	}
	return json.Marshal(out)
}

func (f *RiskFactor) UnmarshalJSON(data []byte) error {
	var fields struct {
		Factor   string `json:"factor"`
		Severity string `json:"severity"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	f.Factor = fields.Factor
	f.Severity = fields.Severity
	f.raw = append(json.RawMessage(nil), data...)
	return nil
}

type RiskAssessment struct {
	IsFraud          int            `json:"is_fraud"`
	FraudProbability float64        `json:"fraud_probability"`
	RiskLevel        RiskLevel      `json:"risk_level"`
	RiskFactors      []RiskFactor   `json:"risk_factors"`
	Recommendation   Recommendation `json:"recommendation"`
	// Error carries the failure reason when the assessment was synthesized fail-open.
	Error string `json:"error,omitempty"`
}

func (a RiskAssessment) FailedOpen() bool {
	return a.RiskLevel == RiskLevelUnknown
}

// ScoringRequest is the single message written to the scorer process.
type ScoringRequest struct {
	NumberOfAccidents   int            `json:"numberOfAccidents"`
	HasPhoto            bool           `json:"has_photo"`
	ResponseTimeSeconds float64        `json:"response_time_seconds"`
	Timestamp           string         `json:"timestamp"`
	LocationSource      LocationSource `json:"location_source"`
	Geom                GeoPoint       `json:"geom"`
}

// ScoringResponse is the single message read back from the scorer process.
type ScoringResponse struct {
	Success    bool            `json:"success"`
	Prediction *RiskAssessment `json:"prediction,omitempty"`
	Error      string          `json:"error,omitempty"`
}
