// Package adapter defines the contract between SensorServer and the network
// front ends that expose the shared sensor resources to clients.
package adapter

import (
	"context"

	"github.com/marmos91/sensord/pkg/registry"
)

// Adapter is a network front end. All adapters of a process serve one
// registry, so a setting changed through one is visible through every other.
//
// SensorServer drives the lifecycle: SetRegistry once, then Serve in its own
// goroutine, then Stop on shutdown. Stop may run concurrently with Serve.
type Adapter interface {
	// Serve accepts and handles clients until ctx is cancelled or Stop is
	// called, and returns after its connections have drained. nil means a
	// clean shutdown. Returning early while ctx is live is treated as fatal
	// by SensorServer and stops the whole process.
	Serve(ctx context.Context) error

	// SetRegistry injects the shared user table, settings state and data
	// store. Called before Serve.
	SetRegistry(reg *registry.Registry)

	// Stop begins shutdown and waits until the connections are gone or ctx
	// is done. It must be idempotent.
	Stop(ctx context.Context) error

	// Protocol names the adapter in logs and metrics, e.g. "SENSOR".
	Protocol() string

	// Port is the bound TCP port once listening, the configured one before.
	Port() int
}
