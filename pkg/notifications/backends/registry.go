package backends

import (
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// Config holds backend configuration from HCL
type Config struct {
	// Log backend configuration
	Log *LogConfig `hcl:"log,block"`

	// Kafka backend configuration
	Kafka *KafkaConfig `hcl:"kafka,block"`
}

// LogConfig configures the log backend
type LogConfig struct {
	Enabled bool `hcl:"enabled,optional"`
}

// KafkaConfig configures the kafka backend
type KafkaConfig struct {
	Enabled bool `hcl:"enabled,optional"`

	Brokers []string `hcl:"brokers,optional"`
	Topic   string   `hcl:"topic,optional"`
}

// Registry manages the active notification backends. The redis backend is
// always present; the rest are enabled by configuration.
type Registry struct {
	backends []Backend
	byName   map[string]Backend
}

// NewRegistry creates a new backend registry from configuration
func NewRegistry(cfg *Config, client Publisher, logger hclog.Logger) (*Registry, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	registry := &Registry{
		byName: make(map[string]Backend),
	}

	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	registry.Register(NewRedisBackend(client))

	if cfg == nil {
		return registry, nil
	}

	if cfg.Log != nil && cfg.Log.Enabled {
		registry.Register(NewLogBackend(logger))
		logger.Info("initialized log notification backend")
	}

	if cfg.Kafka != nil && cfg.Kafka.Enabled {
		backend, err := NewKafkaBackend(KafkaBackendConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("error initializing kafka backend: %w", err)
		}
		registry.Register(backend)
		logger.Info("initialized kafka notification backend",
			"brokers", cfg.Kafka.Brokers,
			"topic", backend.Topic(),
		)
	}

	return registry, nil
}

// Register adds a backend, replacing any backend with the same name.
func (r *Registry) Register(b Backend) {
	if r.byName == nil {
		r.byName = make(map[string]Backend)
	}
	if _, ok := r.byName[b.Name()]; ok {
		for i, existing := range r.backends {
			if existing.Name() == b.Name() {
				r.backends[i] = b
			}
		}
	} else {
		r.backends = append(r.backends, b)
	}
	r.byName[b.Name()] = b
}

// GetAll returns all registered backends in registration order
func (r *Registry) GetAll() []Backend {
	backends := make([]Backend, len(r.backends))
	copy(backends, r.backends)
	return backends
}

// GetBackendNames returns the names of all registered backends
func (r *Registry) GetBackendNames() []string {
	names := make([]string, 0, len(r.backends))
	for _, backend := range r.backends {
		names = append(names, backend.Name())
	}
	return names
}

// Close releases backends that hold connections.
func (r *Registry) Close() error {
	var result error
	for _, backend := range r.backends {
		if c, ok := backend.(io.Closer); ok {
			if err := c.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", backend.Name(), err))
			}
		}
	}
	return result
}
