package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kilianp07/irrigo/core/model"
	corestore "github.com/kilianp07/irrigo/core/store"
	"github.com/kilianp07/irrigo/infra/logger"
)

type namedStore struct {
	name string
	corestore.ReadingStore
}

// Multi fans a reading out to several backends. A failing backend does not
// prevent the others from receiving the reading.
type Multi struct {
	log      logger.Logger
	backends []namedStore
}

// NewMulti creates a Multi writing to the given backends.
func NewMulti(log logger.Logger, backends map[string]corestore.ReadingStore) *Multi {
	if log == nil {
		log = logger.New("store")
	}
	m := &Multi{log: log}
	for name, s := range backends {
		m.add(name, s)
	}
	return m
}

func (m *Multi) add(name string, s corestore.ReadingStore) {
	m.backends = append(m.backends, namedStore{name: name, ReadingStore: s})
}

// Backends returns the configured backend names.
func (m *Multi) Backends() []string {
	out := make([]string, len(m.backends))
	for i, b := range m.backends {
		out[i] = b.name
	}
	return out
}

// Save writes r to every backend concurrently and joins their errors.
func (m *Multi) Save(ctx context.Context, r model.Reading) error {
	errs := make([]error, len(m.backends))
	var wg sync.WaitGroup
	for i, b := range m.backends {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					m.log.Errorf("storage backend %s panicked: %v", b.name, p)
					errs[i] = fmt.Errorf("%s: panic: %v", b.name, p)
				}
			}()
			if err := b.Save(ctx, r); err != nil {
				errs[i] = fmt.Errorf("%s: %w", b.name, err)
			}
		}()
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	return nil
}

// Close closes every backend that holds resources.
func (m *Multi) Close() error {
	var errs []error
	for _, b := range m.backends {
		if err := closeStore(b.ReadingStore); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", b.name, err))
		}
	}
	return errors.Join(errs...)
}
