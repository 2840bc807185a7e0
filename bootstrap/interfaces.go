// Package bootstrap assembles the shell: it starts the remote loader, the
// route resolver and the HTTP front as managed services in dependency order.
package bootstrap

import (
	"context"
	"fmt"
	"time"
)

// Service represents a service that can be managed by the lifecycle manager
type Service interface {
	// Start starts the service. It must not block beyond startup.
	Start(ctx context.Context) error

	// Stop stops the service
	Stop(ctx context.Context) error

	// Health returns the health status of the service
	Health(ctx context.Context) (HealthStatus, error)

	// Name returns the service name
	Name() string
}

// HealthStatus represents the health status of a service
type HealthStatus struct {
	// State indicates whether the service is healthy
	State HealthState `json:"state"`

	// Message provides additional information about the health status
	Message string `json:"message,omitempty"`

	// LastCheck is the timestamp of the last health check
	LastCheck time.Time `json:"last_check,omitempty"`

	// Data contains additional health information
	Data map[string]interface{} `json:"data,omitempty"`
}

// HealthState represents the health state of a service
type HealthState string

const (
	HealthUnknown   HealthState = "unknown"
	HealthStarting  HealthState = "starting"
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
	HealthStopped   HealthState = "stopped"
)

// EventType names a lifecycle transition
type EventType string

const (
	EventRegistered  EventType = "service.registered"
	EventStarting    EventType = "service.starting"
	EventStarted     EventType = "service.started"
	EventStartFailed EventType = "service.start_failed"
	EventStopping    EventType = "service.stopping"
	EventStopped     EventType = "service.stopped"
	EventStopFailed  EventType = "service.stop_failed"
	EventAllStarted  EventType = "lifecycle.started"
	EventAllStopped  EventType = "lifecycle.stopped"
	EventRollingBack EventType = "lifecycle.rolling_back"
)

// LifecycleEvent represents an event in the service lifecycle
type LifecycleEvent struct {
	Type      EventType              `json:"type"`
	Service   string                 `json:"service,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Error     error                  `json:"error,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// ApplicationError represents an error that occurred during the shell lifecycle
type ApplicationError struct {
	Operation string
	Service   string
	Err       error
}

func (e *ApplicationError) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s failed for service %s: %v", e.Operation, e.Service, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
}

func (e *ApplicationError) Unwrap() error {
	return e.Err
}
