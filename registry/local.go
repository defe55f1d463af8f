package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrExists is returned by Put when the name is already registered.
var ErrExists = errors.New("registry: generation already registered")

// Local keeps generation metadata in-process (default).
type Local struct {
	mu   sync.RWMutex
	gens map[string]Meta
}

var _ Registry = (*Local)(nil)

func NewLocal() *Local {
	return &Local{gens: make(map[string]Meta)}
}

func (s *Local) Names(_ context.Context) ([]string, error) {
	s.mu.RLock()
	out := make([]string, 0, len(s.gens))
	for name := range s.gens {
		out = append(out, name)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

func (s *Local) Get(_ context.Context, name string) (Meta, bool, error) {
	s.mu.RLock()
	m, ok := s.gens[name]
	s.mu.RUnlock()
	if !ok {
		return Meta{}, false, nil
	}
	return clone(m), true, nil
}

func (s *Local) Put(_ context.Context, m Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.gens[m.Name]; ok {
		return ErrExists
	}
	s.gens[m.Name] = clone(m)
	return nil
}

func (s *Local) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	delete(s.gens, name)
	s.mu.Unlock()
	return nil
}

func (s *Local) Close(_ context.Context) error { return nil }

// clone keeps callers from mutating the stored key slice.
func clone(m Meta) Meta {
	m.Keys = append([]string(nil), m.Keys...)
	return m
}
