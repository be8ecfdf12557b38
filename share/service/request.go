package service

import (
	"encoding/json"
	"fmt"

	"github.com/funnelhq/funnel/share/settings"
)

// CreateServiceRequest asks a node to instantiate a microservice with
// the given parameters. It travels over the admin control plane.
type CreateServiceRequest struct {
	ServiceID uint32              `json:"service_id"`
	Params    settings.Parameters `json:"params"`
}

// NewCreateServiceRequest builds an empty request for a service type.
func NewCreateServiceRequest(serviceID uint32) *CreateServiceRequest {
	return &CreateServiceRequest{
		ServiceID: serviceID,
		Params:    settings.Parameters{},
	}
}

// AddParameter sets one string parameter, returning the request for
// chaining.
func (r *CreateServiceRequest) AddParameter(key, value string) *CreateServiceRequest {
	r.Params[key] = value
	return r
}

// Encode serializes the request for the wire.
func (r *CreateServiceRequest) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeRequest parses a wire-encoded provisioning request.
func DecodeRequest(b []byte) (*CreateServiceRequest, error) {
	r := &CreateServiceRequest{}
	if err := json.Unmarshal(b, r); err != nil {
		return nil, fmt.Errorf("invalid provisioning request: %w", err)
	}
	if r.Params == nil {
		r.Params = settings.Parameters{}
	}
	return r, nil
}
