package settings

import (
	"fmt"
	"strconv"
)

// Parameters is the string-keyed configuration bag a provisioning
// request carries. Values arrive untyped from the control plane and are
// validated by each service's constructor.
type Parameters map[string]string

// Has reports whether all the given keys are present.
func (p Parameters) Has(keys ...string) bool {
	for _, k := range keys {
		if _, ok := p[k]; !ok {
			return false
		}
	}
	return true
}

// Get returns the value for key, or "" if absent.
func (p Parameters) Get(key string) string {
	return p[key]
}

// GetUint32 parses the value for key as an unsigned integer.
func (p Parameters) GetUint32(key string) (uint32, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("missing parameter %q", key)
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parameter %q: %q is not a port number", key, v)
	}
	return uint32(n), nil
}
