// models/websocket.go
package models

import (
	"encoding/json"
	"time"
)

// WebSocket event types. Names match what the dashboards and the report form
// already listen for.
const (
	WSTypeNewAccident     = "newAccident"
	WSTypeGetAllAccidents = "getAllAccidents"
	WSTypeAllAccidents    = "allAccidents"
	WSTypeReportAccepted  = "reportAccepted"
	WSTypeReportRejected  = "reportRejected"
	WSTypeReportError     = "reportError"
	WSTypePing            = "ping"
	WSTypePong            = "pong"
	WSTypeError           = "error"
)

const (
	WSErrorInvalidMessage = "INVALID_MESSAGE"
	WSErrorRateLimit      = "RATE_LIMIT_EXCEEDED"
)

type WSMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"requestId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type WSRequest struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

type WSError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type WSHubStats struct {
	ActiveObservers   int           `json:"activeObservers"`
	TotalConnections  int64         `json:"totalConnections"`
	MessagesPublished int64         `json:"messagesPublished"`
	MessagesDropped   int64         `json:"messagesDropped"`
	ObserversEvicted  int64         `json:"observersEvicted"`
	Uptime            time.Duration `json:"uptime"`
}
