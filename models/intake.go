// models/intake.go
package models

// IntakeOutcome is the single reply a submitter receives for one report.
// Type is one of reportAccepted, reportRejected or reportError.
type IntakeOutcome struct {
	Type             string
	Success          bool
	Message          string
	ReportID         string
	RiskLevel        RiskLevel
	FraudProbability float64
	RiskFactors      []RiskFactor
	Warning          string
	Code             string
	Details          interface{}
}

func (o IntakeOutcome) Accepted() bool { return o.Type == WSTypeReportAccepted }
func (o IntakeOutcome) Rejected() bool { return o.Type == WSTypeReportRejected }

type ReportAcceptedPayload struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	ReportID  string    `json:"reportId"`
	RiskLevel RiskLevel `json:"risk_level"`
	Warning   string    `json:"warning,omitempty"`
}

type ReportRejectedPayload struct {
	Success          bool         `json:"success"`
	Message          string       `json:"message"`
	RiskLevel        RiskLevel    `json:"risk_level"`
	FraudProbability float64      `json:"fraud_probability"`
	RiskFactors      []RiskFactor `json:"risk_factors"`
}

type ReportErrorPayload struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// Payload is the wire body for the outcome's event type.
func (o IntakeOutcome) Payload() interface{} {
	switch o.Type {
	case WSTypeReportAccepted:
		return ReportAcceptedPayload{
			Success:   true,
			Message:   o.Message,
			ReportID:  o.ReportID,
			RiskLevel: o.RiskLevel,
			Warning:   o.Warning,
		}
	case WSTypeReportRejected:
		factors := o.RiskFactors
		if factors == nil {
			factors = []RiskFactor{}
		}
		return ReportRejectedPayload{
			Success:          false,
			Message:          o.Message,
			RiskLevel:        o.RiskLevel,
			FraudProbability: o.FraudProbability,
			RiskFactors:      factors,
		}
	default:
		return ReportErrorPayload{
			Success: false,
			Message: o.Message,
			Code:    o.Code,
			Details: o.Details,
		}
	}
}
