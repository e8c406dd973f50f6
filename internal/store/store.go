// Package store persists validated calculation results keyed by request.
package store

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aekmcb/Lunar-Stations/internal/lunar"
	"github.com/aekmcb/Lunar-Stations/internal/metrics"
)

// Store saves and loads results by key.
type Store interface {
	// Name identifies the store in logs and metrics.
	Name() string
	// Get returns the result for key, or false when absent.
	Get(ctx context.Context, key string) (*lunar.Result, bool, error)
	Put(ctx context.Context, key string, res *lunar.Result) error
	Close() error
}

// Tiered reads through its stores in order. The first hit wins and is copied
// back into the stores that missed. Writes go to every store.
type Tiered struct {
	stores []Store
	logger *slog.Logger
}

// NewTiered creates a Tiered store, fastest store first.
func NewTiered(logger *slog.Logger, stores ...Store) *Tiered {
	return &Tiered{stores: stores, logger: logger}
}

// Name returns "tiered".
func (t *Tiered) Name() string { return "tiered" }

// Get returns the first hit. A failing store is logged and skipped.
func (t *Tiered) Get(ctx context.Context, key string) (*lunar.Result, bool, error) {
	for i, s := range t.stores {
		res, ok, err := s.Get(ctx, key)
		if err != nil {
			t.logger.Warn("store lookup failed", "store", s.Name(), "key", key, "error", err)
			continue
		}
		metrics.IncStoreLookup(s.Name(), ok)
		if !ok {
			continue
		}
		for _, missed := range t.stores[:i] {
			if err := missed.Put(ctx, key, res); err != nil {
				t.logger.Warn("store back-fill failed", "store", missed.Name(), "key", key, "error", err)
			}
		}
		return res, true, nil
	}
	return nil, false, nil
}

// Put writes res to every store and joins their errors.
func (t *Tiered) Put(ctx context.Context, key string, res *lunar.Result) error {
	var errs []error
	for _, s := range t.stores {
		if err := s.Put(ctx, key, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every store.
func (t *Tiered) Close() error {
	var errs []error
	for _, s := range t.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
