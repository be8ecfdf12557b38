package service

import (
	"sync"

	"github.com/funnelhq/funnel/share/cio"
	"github.com/funnelhq/funnel/share/fiber"
)

// Factory maps service type identifiers to creators. It is populated
// once at startup and read thereafter, serving local and remote
// provisioning requests.
type Factory struct {
	*cio.Logger
	mu       sync.RWMutex
	creators map[uint32]Creator
}

// NewFactory creates an empty Factory.
func NewFactory(logger *cio.Logger) *Factory {
	return &Factory{
		Logger:   logger.Fork("factory"),
		creators: make(map[uint32]Creator),
	}
}

// RegisterCreator binds a creator to a service type id. Registering the
// same id twice is a programming error and is rejected.
func (f *Factory) RegisterCreator(id uint32, c Creator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.creators[id]; ok {
		return f.Errorf("service type %d already registered", id)
	}
	f.creators[id] = c
	return nil
}

// Create instantiates the service a provisioning request names. The
// request's parameters are validated by the creator; a failure creates
// nothing.
func (f *Factory) Create(demux fiber.Demux, req *CreateServiceRequest) (Service, error) {
	f.mu.RLock()
	c, ok := f.creators[req.ServiceID]
	f.mu.RUnlock()
	if !ok {
		return nil, f.Errorf("no creator for service type %d", req.ServiceID)
	}
	return c(demux, req.Params)
}
