package workflow

import (
	"sync"
	"time"
)

// EventType identifies a workflow lifecycle event
type EventType string

const (
	EventStarted          EventType = "started"
	EventAborted          EventType = "aborted"
	EventRecordingStarted EventType = "recording_started"
	EventFinished         EventType = "finished"
	EventFailed           EventType = "failed"
)

// Event describes a workflow state change
type Event struct {
	Type     EventType `json:"type"`
	RunID    string    `json:"run_id"`
	Workflow string    `json:"workflow"`
	URIs     []string  `json:"uris,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Error    string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}

// EventSink receives workflow events. Publish is called with the workflow
// locked and must not call back into the workflow.
type EventSink interface {
	Publish(e Event)
}

// EventFunc adapts a function to an EventSink
type EventFunc func(e Event)

func (f EventFunc) Publish(e Event) { f(e) }

// EventLog records every published event
type EventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *EventLog) Publish(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

// Events returns a copy of the recorded events
func (l *EventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// Types returns the recorded event types in order
func (l *EventLog) Types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	types := make([]EventType, len(l.events))
	for i, e := range l.events {
		types[i] = e.Type
	}
	return types
}
