package kvcache

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Registry maps names to drivers with a designated fallback.
// It is read-only after construction and safe for concurrent use.
type Registry struct {
	drivers  map[string]Driver
	fallback string
}

// NewRegistry registers drivers under their map keys. fallback names the
// driver returned for an empty name and must be registered.
func NewRegistry(drivers map[string]Driver, fallback string) (*Registry, error) {
	if _, ok := drivers[fallback]; !ok {
		return nil, &DriverNotFoundError{Name: fallback}
	}
	r := &Registry{drivers: make(map[string]Driver, len(drivers)), fallback: fallback}
	for name, d := range drivers {
		if d == nil {
			return nil, fmt.Errorf("kvcache: nil driver for [%s]", name)
		}
		r.drivers[name] = d
	}
	return r, nil
}

// Get returns the named driver, or the fallback when name is empty.
func (r *Registry) Get(name string) (Driver, error) {
	if name == "" {
		name = r.fallback
	}
	d, ok := r.drivers[name]
	if !ok {
		return nil, &DriverNotFoundError{Name: name}
	}
	return d, nil
}

// MustGet is like Get but panics with *DriverNotFoundError.
func (r *Registry) MustGet(name string) Driver {
	d, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return d
}

// Fallback returns the name of the fallback driver.
func (r *Registry) Fallback() string { return r.fallback }

// Names returns the registered names, sorted.
func (r *Registry) Names() []string { return sortedNames(r.drivers) }

// FlushAll flushes every driver concurrently and returns the first failure.
func (r *Registry) FlushAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for name, d := range r.drivers {
		g.Go(func() error {
			if err := d.Flush(gctx); err != nil {
				return fmt.Errorf("kvcache: flush [%s]: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close closes every driver and joins the failures.
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	for _, name := range r.Names() {
		if err := r.drivers[name].Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kvcache: close [%s]: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
