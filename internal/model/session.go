// internal/model/session.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionState represents the lifecycle stage of a capture session
type SessionState string

const (
	SessionStateIdle         SessionState = "IDLE"
	SessionStateNegotiating  SessionState = "NEGOTIATING"
	SessionStateFailed       SessionState = "FAILED"
	SessionStateReady        SessionState = "READY"
	SessionStateCapturing    SessionState = "CAPTURING"
	SessionStateShuttingDown SessionState = "SHUTTING_DOWN"
	SessionStateTerminated   SessionState = "TERMINATED"
)

// sessionTransitions lists the states reachable from each state
var sessionTransitions = map[SessionState][]SessionState{
	SessionStateIdle:         {SessionStateNegotiating, SessionStateTerminated},
	SessionStateNegotiating:  {SessionStateFailed, SessionStateReady, SessionStateTerminated},
	SessionStateFailed:       {SessionStateTerminated},
	SessionStateReady:        {SessionStateCapturing, SessionStateShuttingDown},
	SessionStateCapturing:    {SessionStateShuttingDown},
	SessionStateShuttingDown: {SessionStateTerminated},
}

// CanTransition reports whether moving from s to next is a legal step
func (s SessionState) CanTransition(next SessionState) bool {
	for _, candidate := range sessionTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further operations are permitted
func (s SessionState) IsTerminal() bool {
	return s == SessionStateTerminated
}

// SessionEventType represents the type of a session event
type SessionEventType string

const (
	EventSessionStarted    SessionEventType = "SESSION_STARTED"
	EventStateChanged      SessionEventType = "STATE_CHANGED"
	EventBaudEstablished   SessionEventType = "BAUD_ESTABLISHED"
	EventCaptureStopped    SessionEventType = "CAPTURE_STOPPED"
	EventSessionTerminated SessionEventType = "SESSION_TERMINATED"
)

// SessionEvent represents a notable step in a session
type SessionEvent struct {
	SessionID uuid.UUID        `json:"session_id"`
	EventType SessionEventType `json:"event_type"`
	From      SessionState     `json:"from,omitempty"`
	To        SessionState     `json:"to,omitempty"`
	Detail    string           `json:"detail,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// CaptureSummary reports what the capture sink persisted
type CaptureSummary struct {
	OutputPath   string        `json:"output_path"`
	BytesWritten int64         `json:"bytes_written"`
	Writes       int64         `json:"writes"`
	Duration     time.Duration `json:"duration"`
}
