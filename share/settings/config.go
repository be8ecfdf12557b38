package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServiceConfig is the static configuration of one microservice type on
// a node: whether it may be provisioned at all, and whether its
// listeners may bind to interfaces other than loopback.
type ServiceConfig struct {
	Enabled      bool `yaml:"enabled"`
	GatewayPorts bool `yaml:"gateway_ports"`
}

// Config is the per-node services configuration file.
type Config struct {
	StreamListener  ServiceConfig `yaml:"stream_listener"`
	StreamForwarder ServiceConfig `yaml:"stream_forwarder"`
}

// DefaultConfig enables every service with gateway ports off.
func DefaultConfig() *Config {
	return &Config{
		StreamListener:  ServiceConfig{Enabled: true},
		StreamForwarder: ServiceConfig{Enabled: true},
	}
}

// LoadConfig reads a YAML services configuration file. Missing keys keep
// their default values.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c := DefaultConfig()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}
