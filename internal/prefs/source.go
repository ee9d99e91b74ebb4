package prefs

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/yiblet/clipkeep/internal/store"
)

// StoreSource reads and writes preferences in a store.ConfigStore.
type StoreSource struct {
	cfg    store.ConfigStore
	logger *slog.Logger
}

// NewStoreSource creates a source backed by cfg.
func NewStoreSource(cfg store.ConfigStore, logger *slog.Logger) *StoreSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSource{cfg: cfg, logger: logger}
}

// Policy implements Source. A config store that cannot be read yields the
// defaults.
func (s *StoreSource) Policy() Policy {
	values, err := s.cfg.List()
	if err != nil {
		s.logger.Warn("failed to read preferences, using defaults", "err", err)
		return Defaults()
	}
	p, invalid := FromValues(values)
	for _, key := range invalid {
		s.logger.Warn("ignoring invalid preference", "key", key, "value", values[key])
	}
	return p
}

// Get returns the effective value of key, falling back to its default.
func (s *StoreSource) Get(key string) (string, error) {
	if _, err := Defaults().Value(key); err != nil {
		return "", err
	}

	value, err := s.cfg.Get(key)
	if errors.Is(err, store.ErrNotFound) {
		return Defaults().Value(key)
	}
	if err != nil {
		return "", err
	}
	if normalized, err := Normalize(key, value); err == nil {
		return normalized, nil
	}
	return Defaults().Value(key)
}

// Set validates and stores value for key.
func (s *StoreSource) Set(key, value string) error {
	normalized, err := Normalize(key, value)
	if err != nil {
		return err
	}
	if err := s.cfg.Set(key, normalized); err != nil {
		return fmt.Errorf("failed to save preference %s: %w", key, err)
	}
	return nil
}

// Reset removes a stored value so the default applies again.
func (s *StoreSource) Reset(key string) error {
	if _, err := Defaults().Value(key); err != nil {
		return err
	}
	if err := s.cfg.Delete(key); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to reset preference %s: %w", key, err)
	}
	return nil
}

// List returns the effective value of every preference.
func (s *StoreSource) List() (map[string]string, error) {
	p := s.Policy()
	result := make(map[string]string, len(keys))
	for _, key := range Keys() {
		v, err := p.Value(key)
		if err != nil {
			return nil, err
		}
		result[key] = v
	}
	return result, nil
}
