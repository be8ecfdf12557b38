// Package service holds the dynamic service factory the control plane
// uses to instantiate microservices on a node without compile-time
// knowledge of them, and the provisioning request format exchanged
// between nodes.
package service

import (
	"github.com/funnelhq/funnel/share/fiber"
	"github.com/funnelhq/funnel/share/settings"
)

// Fixed service type identifiers. These are wire-visible and must never
// be renumbered.
const (
	TypeStreamListener  uint32 = 7
	TypeStreamForwarder uint32 = 8
)

// Service is one provisioned microservice instance bound to a demux.
type Service interface {
	// Start arms the service. Calling Start twice is undefined.
	Start() error
	// Stop releases the service's resources. It must be callable even
	// after a failed Start, and does not wait for in-flight work.
	Stop() error
	// ServiceTypeID returns the fixed factory identifier of this
	// service's type.
	ServiceTypeID() uint32
}

// Creator builds a service instance from a provisioning parameter bag.
// It returns an error, and no service, when the parameters are invalid.
type Creator func(demux fiber.Demux, params settings.Parameters) (Service, error)
