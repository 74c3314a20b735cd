package srvchanged

import (
	"log/slog"

	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/scwatch/internal/ble"
)

// Discovery is the service discovery collaborator. Registering the same
// UUID twice is an error.
type Discovery interface {
	Register(uuid bluetooth.UUID) error
}

// Registry records whether the Generic Attribute service has been
// registered for discovery. Create one per process, before any Client,
// and share it between clients.
type Registry struct {
	discovery  Discovery
	registered bool
}

// NewRegistry creates a Registry that registers with d.
func NewRegistry(d Discovery) *Registry {
	return &Registry{discovery: d}
}

// Register registers the Generic Attribute service, which hosts the
// Service Changed characteristic, unless that already succeeded.
func (r *Registry) Register() error {
	if r.registered {
		return nil
	}
	if err := r.discovery.Register(ble.GenericAttributeUUID); err != nil {
		return err
	}
	r.registered = true
	slog.Debug("[SRVCHG] registered for discovery", "uuid", ble.GenericAttributeUUID.String())
	return nil
}

// Registered reports whether registration has succeeded.
func (r *Registry) Registered() bool {
	return r.registered
}
