package realtime

import "encoding/json"

// Client-initiated operation types.
const (
	OpRegister     = "register"
	OpAlertSubmit  = "alert.submit"
	OpAlertAck     = "alert.ack"
	OpAlertResolve = "alert.resolve"
	OpPing         = "ping"
)

// Server-initiated event names.
const (
	EventRegistered        = "registered"
	EventAlertIncoming     = "alert.incoming"
	EventAlertSubmitAck    = "alert.submit_ack"
	EventAlertAcknowledged = "alert.acknowledged"
	EventAlertResolved     = "alert.resolved"
	EventAlertExpired      = "alert.expired"
	EventError             = "error"
	EventPong              = "pong"
)

// Message is the envelope for client-initiated operations. Ref correlates a
// request with its acknowledgment so callers can multiplex a single socket.
type Message struct {
	Op   string          `json:"op"`
	Ref  string          `json:"ref,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is the envelope for server-initiated pushes and operation replies.
type Event struct {
	Event string `json:"event"`
	Ref   string `json:"ref,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// RegisterRequest binds a socket to an authenticated user identity.
type RegisterRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

// SubmitRequest carries an alert over the realtime channel. The realtime path
// only fans out and reports presence; the durable record travels over the REST
// channel independently.
type SubmitRequest struct {
	AlertID         string   `json:"alert_id,omitempty"`
	OriginatorName  string   `json:"originator_name"`
	Location        string   `json:"location"`
	GPSLatitude     *float64 `json:"gps_latitude,omitempty"`
	GPSLongitude    *float64 `json:"gps_longitude,omitempty"`
	Description     string   `json:"description"`
	RecipientIDs    []string `json:"recipient_ids"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	ExtremeMode     bool     `json:"extreme_mode,omitempty"`
	ActivatedFrom   string   `json:"activated_from,omitempty"`
}

// SubmitAck reports the outcome of an alert.submit fan-out.
type SubmitAck struct {
	AlertID      string `json:"alert_id,omitempty"`
	Notified     int    `json:"notified"`
	Offline      int    `json:"offline"`
	TotalTargets int    `json:"total_targets"`
}

// AckRequest acknowledges an alert on behalf of the registered user.
type AckRequest struct {
	AlertID string `json:"alert_id"`
}

// ResolveRequest resolves an alert on behalf of the registered user.
type ResolveRequest struct {
	AlertID string `json:"alert_id"`
}

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
