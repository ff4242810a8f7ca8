package core

import (
	"context"
	"time"
)

// EventTypeName is a string alias for event type identifiers (e.g., "sync_now")
type EventTypeName string

const (
	// EventSyncNow requests an immediate sync cycle.
	EventSyncNow EventTypeName = "sync_now"
	// EventSyncCompleted is published after every cycle that reached the executor.
	EventSyncCompleted EventTypeName = "sync_completed"
	// EventSyncFailed is published when a cycle aborts or any action fails.
	EventSyncFailed EventTypeName = "notify_sync_failed"
	// EventTaskCreated is published for every task created in the destination.
	EventTaskCreated EventTypeName = "notify_task_created"
	// EventTaskClosed is published for every task closed in the destination.
	EventTaskClosed EventTypeName = "notify_task_closed"
)

// EventTypeDesc defines the "class" for an event type (registered dynamically)
type EventTypeDesc struct {
	Name        EventTypeName           // Unique ID, e.g., "sync_completed"
	Description string                  // Human-readable, e.g., "Fired when a sync cycle finishes"
	PayloadSpec map[string]PayloadField // Optional: Expected fields in event.Details (for validation/docs)
}

// PayloadField describes a field in the event payload
type PayloadField struct {
	Type        string // e.g., "string", "int", "map[string]interface{}"
	Description string
	Required    bool
}

// InternalEvent is the payload sent over the bus
type InternalEvent struct {
	Type      EventTypeName          `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"` // "timer", "webhook_trigger", "syncer", etc.
	Category  string                 `json:"category,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	String    string                 `json:"string,omitempty"`
}

// Listener is a handler func for subscribers
type Listener func(ctx context.Context, event InternalEvent)
