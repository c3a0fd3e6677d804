// Package storage defines the audit event store shared by tool providers.
//
// Providers record the outcome of provisioning, command execution, and
// deployments; the gateway serves recent events on a management route.
// Adapters exist for an in-memory bounded store (memory) and PostgreSQL
// (postgres). Recording is best effort: a store failure is logged by the
// caller and never surfaced to the tool caller.
package storage

import (
	"context"
	"time"
)

// EventType classifies an audit event.
type EventType string

const (
	EventProvision EventType = "provision"
	EventCommand   EventType = "command"
	EventDeploy    EventType = "deploy"
)

// Event is one recorded tool outcome.
type Event struct {
	// Type is the event classification.
	Type EventType `json:"type"`

	// Sandbox is the registry name of the sandbox involved, if any.
	Sandbox string `json:"sandbox,omitempty"`

	// Detail is a short human-readable description (command text,
	// repository URL, failure stage).
	Detail string `json:"detail,omitempty"`

	// Success reports whether the operation succeeded.
	Success bool `json:"success"`

	// CreatedAt is when the event was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// EventStore persists audit events.
type EventStore interface {
	// SaveEvent records one event.
	SaveEvent(ctx context.Context, ev *Event) error

	// ListEvents returns up to limit events, newest first.
	ListEvents(ctx context.Context, limit int) ([]*Event, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
