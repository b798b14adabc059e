package component

import "context"

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusDegraded  HealthStatus = "degraded"
)

// Health holds health information for a component.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Component is a lifecycle-managed part of the application.
type Component interface {
	// Name returns the unique name of the component for registration.
	Name() string

	// Start begins the component's work. It must not block for the
	// component's lifetime.
	Start(ctx context.Context) error

	// Stop shuts the component down and releases resources.
	Stop(ctx context.Context) error

	// Health returns the current health status of the component.
	Health(ctx context.Context) Health
}

// Description holds summary information for the startup display.
type Description struct {
	// Name is the display name. If empty, the component's Name() is used.
	Name string
	// Type categorizes the component, e.g. "client".
	Type string
	// Details is a one-liner shown in the startup summary,
	// e.g. "http://127.0.0.1:3000/ max_reloads=unlimited".
	Details string
}

// Describable is optionally implemented by Components to report what they
// are and how they're configured.
type Describable interface {
	Describe() Description
}
