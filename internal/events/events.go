// Package events defines structured event types emitted by the assist
// and follow-up pipelines. The pipelines emit; the wiring layer decides
// sink and format.
package events

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Type represents the kind of event.
type Type string

const (
	AssistStarted    Type = "assist.started"
	AssistInferred   Type = "assist.inferred"
	AssistPersisted  Type = "assist.persisted"
	AssistCompleted  Type = "assist.completed"
	AssistDegraded   Type = "assist.degraded"
	FollowUpStarted  Type = "followup.started"
	FollowUpAnswered Type = "followup.answered"
	FollowUpSaved    Type = "followup.saved"
	FollowUpFailed   Type = "followup.failed"
)

// Event is a structured event emitted during pipeline execution.
type Event struct {
	Type      Type                   `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// New creates a new event for the given session.
func New(eventType Type, sessionID string) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: sessionID,
	}
}

// WithData adds a data field to the event and returns it for chaining.
func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// JSON returns the event serialized as JSON.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Emitter is the interface for event consumers.
type Emitter interface {
	Emit(event *Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

// Emit implements Emitter by discarding the event.
func (NoopEmitter) Emit(*Event) {}

// LogEmitter writes each event to a structured logger with the
// serialized payload attached.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates an emitter that logs events at debug level.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit logs the event.
func (l *LogEmitter) Emit(event *Event) {
	payload, err := event.JSON()
	if err != nil {
		l.logger.Warn("failed to serialize pipeline event", "type", event.Type, "error", err)
		return
	}
	l.logger.Debug("pipeline event",
		"type", string(event.Type),
		"session_id", event.SessionID,
		"event", string(payload))
}

// CollectorEmitter collects events in memory for testing.
type CollectorEmitter struct {
	Events []*Event
}

// Emit appends the event to the collector.
func (c *CollectorEmitter) Emit(event *Event) {
	c.Events = append(c.Events, event)
}
