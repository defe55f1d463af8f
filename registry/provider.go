package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/unkn0wn-root/offcache/codec"
	pr "github.com/unkn0wn-root/offcache/provider"
)

// InProvider keeps generation metadata in the same provider as the entries,
// so a persistent provider (sqlite, s3, minio) still knows its generations
// after a restart and can delete stale ones.
//
// The whole namespace is a single index value under
// "offcache:registry:<ns>", outside the entry keyspace. Updates are
// serialized within the process only; front servers sharing one provider
// should use Redis. Do not use it with evicting providers (bigcache,
// ristretto): an evicted index forgets every generation.
type InProvider struct {
	p     pr.Provider
	ns    string
	codec codec.Codec[[]Meta]

	mu sync.Mutex
}

var _ Registry = (*InProvider)(nil)

// NewInProvider creates a registry stored in p. A nil codec defaults to JSON.
// Close does not close p; its owner does.
func NewInProvider(p pr.Provider, namespace string, c codec.Codec[[]Meta]) *InProvider {
	if c == nil {
		c = codec.JSON[[]Meta]{}
	}
	return &InProvider{p: p, ns: namespace, codec: c}
}

func (s *InProvider) key() string { return "offcache:registry:" + s.ns }

func (s *InProvider) load(ctx context.Context) (map[string]Meta, error) {
	raw, ok, err := s.p.Get(ctx, s.key())
	if err != nil {
		return nil, err
	}
	gens := make(map[string]Meta)
	if !ok {
		return gens, nil
	}
	list, err := s.codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("registry index decode: %w", err)
	}
	for _, m := range list {
		gens[m.Name] = m
	}
	return gens, nil
}

func (s *InProvider) save(ctx context.Context, gens map[string]Meta) error {
	list := make([]Meta, 0, len(gens))
	for _, m := range gens {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	raw, err := s.codec.Encode(list)
	if err != nil {
		return err
	}
	ok, err := s.p.Set(ctx, s.key(), raw, int64(len(raw)), 0)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("registry: index write rejected by provider")
	}
	return nil
}

func (s *InProvider) Names(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gens, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(gens))
	for name := range gens {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *InProvider) Get(ctx context.Context, name string) (Meta, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gens, err := s.load(ctx)
	if err != nil {
		return Meta{}, false, err
	}
	m, ok := gens[name]
	if !ok {
		return Meta{}, false, nil
	}
	return clone(m), true, nil
}

func (s *InProvider) Put(ctx context.Context, m Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gens, err := s.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := gens[m.Name]; ok {
		return ErrExists
	}
	gens[m.Name] = clone(m)
	return s.save(ctx, gens)
}

func (s *InProvider) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gens, err := s.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := gens[name]; !ok {
		return nil
	}
	delete(gens, name)
	return s.save(ctx, gens)
}

func (s *InProvider) Close(context.Context) error { return nil }
