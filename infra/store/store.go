// Package store implements the reading persistence backends: InfluxDB,
// PostgreSQL, a Redis last-reading cache and a log writer. Backends are
// built from configuration through a factory registry, wrapped in circuit
// breakers and fanned out by Multi.
package store

import (
	"errors"
	"fmt"
	"io"

	"github.com/kilianp07/irrigo/core/factory"
	corestore "github.com/kilianp07/irrigo/core/store"
	"github.com/kilianp07/irrigo/infra/logger"
)

// Config selects and configures the persistence backends.
type Config struct {
	Backends []factory.ModuleConfig `json:"backends"`
	Breaker  BreakerConfig          `json:"breaker"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if len(c.Backends) == 0 {
		c.Backends = []factory.ModuleConfig{{Type: "log"}}
	}
	c.Breaker.SetDefaults()
}

// Validate checks that every backend type is registered.
func (c Config) Validate() error {
	known := map[string]bool{}
	for _, t := range registry.Types() {
		known[t] = true
	}
	var errs []error
	for i, b := range c.Backends {
		if !known[b.Type] {
			errs = append(errs, fmt.Errorf("storage.backends[%d]: unknown type %q (known: %v)", i, b.Type, registry.Types()))
		}
	}
	return errors.Join(errs...)
}

var registry = factory.NewRegistry[corestore.ReadingStore]()

// RegisterBackend adds a backend factory identified by name.
func RegisterBackend(name string, f factory.Factory[corestore.ReadingStore]) error {
	return registry.Register(name, f)
}

func init() {
	_ = RegisterBackend("memory", func(map[string]any) (corestore.ReadingStore, error) {
		return corestore.NewMemoryStore(), nil
	})
	_ = RegisterBackend("log", func(map[string]any) (corestore.ReadingStore, error) {
		return NewLogStore(logger.New("reading_log")), nil
	})
	_ = RegisterBackend("influx", newInfluxFromConf)
	_ = RegisterBackend("postgres", newPostgresFromConf)
	_ = RegisterBackend("redis", newRedisFromConf)
}

// New builds every configured backend, wraps each one in a circuit breaker
// when enabled and returns them behind a Multi. Backends already built are
// closed when a later one fails.
func New(cfg Config, log logger.Logger) (*Multi, error) {
	if log == nil {
		log = logger.New("store")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Multi{log: log}
	for _, mc := range cfg.Backends {
		s, err := registry.Create(mc)
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("storage backend %s: %w", mc.Type, err)
		}
		if cfg.Breaker.Enabled {
			s = NewBreaker(mc.Type, s, cfg.Breaker, log)
		}
		m.add(mc.Type, s)
		log.Infof("storage backend %s enabled", mc.Type)
	}
	return m, nil
}

func closeStore(s corestore.ReadingStore) error {
	switch c := s.(type) {
	case io.Closer:
		return c.Close()
	case interface{ Close() }:
		c.Close()
	}
	return nil
}
