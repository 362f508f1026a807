// Package services provides the interface for long-running components that
// are started by app.App.
package services

import "context"

// Service is an interface for all services that can be run in app.App.
type Service interface {
	// Run the Service until the given context.Context is done. A returned error
	// stops all other services.
	Run(ctx context.Context) error
}

// Func is an adapter to allow the use of ordinary functions as Service.
type Func func(ctx context.Context) error

// Run calls f(ctx).
func (f Func) Run(ctx context.Context) error {
	return f(ctx)
}
