package offcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	c "github.com/unkn0wn-root/offcache/codec"
	"github.com/unkn0wn-root/offcache/internal/util"
	"github.com/unkn0wn-root/offcache/internal/wire"
	pr "github.com/unkn0wn-root/offcache/provider"
	"github.com/unkn0wn-root/offcache/registry"
)

// StorageOptions configure a Storage. Only Provider is required.
type StorageOptions struct {
	Namespace string // isolates keys in a shared provider; "" => "offcache"
	Provider  pr.Provider
	Registry  registry.Registry // nil => registry.NewLocal()
	Codec     c.Codec[Entry]    // nil => msgpack

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used
}

// lease counts lookups in flight against one generation. A doomed
// generation accepts no new lookups; drained is closed when the last
// in-flight lookup has finished.
type lease struct {
	n       int
	doomed  bool
	drained chan struct{}
}

// Storage is the store registry keyed by version string. A generation is
// written once by Populate, read by Match and removed by Delete; it is never
// modified in between.
type Storage struct {
	ns       string
	provider pr.Provider
	registry registry.Registry
	codec    c.Codec[Entry]
	log      Logger
	hooks    Hooks

	mu         sync.Mutex
	leases     map[string]*lease
	populating map[string]struct{}
	sealed     map[string]*sealedGen // positive cache of registry metadata
}

// sealedGen is what Match needs from a generation's registry entry.
type sealedGen struct {
	population string
	ids        map[string]struct{} // request identities
}

func NewStorage(opts StorageOptions) (*Storage, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("offcache: provider is required")
	}
	s := &Storage{
		ns:         coalesce(opts.Namespace, "offcache"),
		provider:   opts.Provider,
		registry:   opts.Registry,
		codec:      opts.Codec,
		leases:     make(map[string]*lease),
		populating: make(map[string]struct{}),
		sealed:     make(map[string]*sealedGen),
	}
	if s.registry == nil {
		s.registry = registry.NewLocal()
	}
	if s.codec == nil {
		s.codec = c.Msgpack[Entry]{}
	}
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	return s, nil
}

// Close closes the registry and the provider.
func (s *Storage) Close(ctx context.Context) error {
	return errors.Join(s.registry.Close(ctx), s.provider.Close(ctx))
}

// Keys returns the names of all registered generations, sorted. Generations
// whose deletion failed part-way are still listed so they can be retried.
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	return s.registry.Names(ctx)
}

// Has reports whether name is a sealed generation that still serves lookups.
func (s *Storage) Has(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	l := s.leases[name]
	s.mu.Unlock()
	if l != nil && l.doomed {
		return false, nil
	}
	_, ok, err := s.registry.Get(ctx, name)
	return ok, err
}

// Populate writes entries as generation name and seals it. Nothing becomes
// visible to Match until every entry is stored and the registry entry is
// written; on failure the entries written so far are removed.
// Populating a name that is already sealed fails with ErrGenerationExists.
//
// Each attempt writes under its own population id, so a writer racing
// another process for the same name never touches the keys of the
// generation that wins the seal.
func (s *Storage) Populate(ctx context.Context, name string, entries []Entry) error {
	if name == "" {
		return fmt.Errorf("offcache: generation name is required")
	}

	s.mu.Lock()
	if _, busy := s.populating[name]; busy {
		s.mu.Unlock()
		return ErrGenerationBusy
	}
	s.populating[name] = struct{}{}
	l := s.leases[name]
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.populating, name)
		s.mu.Unlock()
	}()

	// a half-deleted generation of the same name must be gone first
	if l != nil && l.doomed {
		if _, err := s.Delete(ctx, name); err != nil {
			return err
		}
	}

	if _, ok, err := s.registry.Get(ctx, name); err != nil {
		return err
	} else if ok {
		return ErrGenerationExists
	}

	ids := make(map[string]struct{}, len(entries))
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, dup := ids[e.URL]; dup {
			return fmt.Errorf("offcache: duplicate request %s in generation %q", e.URL, name)
		}
		ids[e.URL] = struct{}{}
		keys = append(keys, e.URL)
	}

	pop := uuid.NewString()
	written := make([]string, 0, len(entries))
	rollback := func() {
		rctx := context.WithoutCancel(ctx)
		for _, k := range written {
			_ = s.provider.Del(rctx, k)
		}
	}

	for i := range entries {
		e := &entries[i]
		payload, err := s.codec.Encode(*e)
		if err != nil {
			rollback()
			return fmt.Errorf("encode %s: %w", e.URL, err)
		}
		k := s.entryKey(name, pop, e.URL)
		wireb := wire.EncodeEntry(name, payload)
		ok, err := s.provider.Set(ctx, k, wireb, int64(len(wireb)), 0)
		if err != nil {
			rollback()
			return fmt.Errorf("store %s: %w", e.URL, err)
		}
		if !ok {
			s.hooks.ProviderSetRejected(k)
			rollback()
			return fmt.Errorf("store %s: rejected by provider", e.URL)
		}
		written = append(written, k)
	}

	err := s.registry.Put(ctx, registry.Meta{Name: name, ID: pop, Keys: keys, CreatedAt: time.Now().UTC()})
	if errors.Is(err, registry.ErrExists) {
		// sealed concurrently by another process under its own population
		rollback()
		return ErrGenerationExists
	}
	if err != nil {
		rollback()
		return fmt.Errorf("seal generation %q: %w", name, err)
	}

	s.mu.Lock()
	s.sealed[name] = &sealedGen{population: pop, ids: ids}
	s.mu.Unlock()
	s.log.Debug("generation sealed", Fields{"generation": name, "population": pop, "entries": len(entries)})
	return nil
}

// Match looks r up in generation name. r.URL must be absolute. A miss is
// (nil, false, nil); entries that cannot be served are dropped from the
// provider and reported as misses.
func (s *Storage) Match(ctx context.Context, name string, r *http.Request) (*Response, bool, error) {
	if !cacheable(r) {
		return nil, false, nil
	}
	if !s.acquire(name) {
		return nil, false, nil
	}
	defer s.release(name)

	gen, err := s.sealedGen(ctx, name)
	if err != nil || gen == nil {
		return nil, false, err
	}
	id := Identity(r.URL)
	if _, ok := gen.ids[id]; !ok {
		return nil, false, nil
	}

	k := s.entryKey(name, gen.population, id)
	raw, ok, err := s.provider.Get(ctx, k)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		s.hooks.EntrySelfHeal(k, "evicted")
		return nil, false, nil
	}
	owner, payload, err := wire.DecodeEntry(raw)
	if err != nil {
		s.selfHeal(ctx, k, "corrupt")
		return nil, false, nil
	}
	if owner != name {
		s.selfHeal(ctx, k, "foreign_generation")
		return nil, false, nil
	}
	e, err := s.codec.Decode(payload)
	if err != nil {
		s.selfHeal(ctx, k, "value_decode")
		return nil, false, nil
	}
	if e.URL != id || !varyMatches(&e, r.Header) {
		return nil, false, nil
	}
	return e.Response.Clone(), true, nil
}

// Delete removes generation name. New lookups miss immediately; Delete then
// waits for lookups already in flight to finish before removing entries, so
// a lookup never observes a half-deleted generation. If some entries cannot
// be removed the generation stays registered and a *DeletionError is
// returned; calling Delete again retries. deleted is false when name was not
// registered.
func (s *Storage) Delete(ctx context.Context, name string) (deleted bool, err error) {
	select {
	case <-s.doom(name):
	case <-ctx.Done():
		return false, ctx.Err()
	}

	m, ok, err := s.registry.Get(ctx, name)
	if err != nil {
		return false, err
	}
	if !ok {
		s.forget(name)
		return false, nil
	}

	var errs []error
	for _, id := range m.Keys {
		if err := s.provider.Del(ctx, s.entryKey(name, m.ID, id)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	if len(errs) == 0 {
		if err := s.registry.Delete(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("unregister: %w", err))
		}
	}
	if len(errs) > 0 {
		return false, &DeletionError{Name: name, Errs: errs}
	}
	s.forget(name)
	return true, nil
}

func (s *Storage) entryKey(name, population, id string) string {
	return util.EntryKey("entry:"+s.ns+":"+name+":"+population, id)
}

func (s *Storage) selfHeal(ctx context.Context, k, reason string) {
	_ = s.provider.Del(ctx, k)
	s.hooks.EntrySelfHeal(k, reason)
	s.log.Debug("dropped unusable entry", Fields{"key": k, "reason": reason})
}

// sealedGen returns the sealed generation name, or nil when it is not
// sealed. Positive results are cached: a sealed generation never changes.
func (s *Storage) sealedGen(ctx context.Context, name string) (*sealedGen, error) {
	s.mu.Lock()
	gen, ok := s.sealed[name]
	s.mu.Unlock()
	if ok {
		return gen, nil
	}
	m, ok, err := s.registry.Get(ctx, name)
	if err != nil || !ok {
		return nil, err
	}
	gen = &sealedGen{population: m.ID, ids: make(map[string]struct{}, len(m.Keys))}
	for _, id := range m.Keys {
		gen.ids[id] = struct{}{}
	}
	s.mu.Lock()
	if l := s.leases[name]; l == nil || !l.doomed {
		s.sealed[name] = gen
	}
	s.mu.Unlock()
	return gen, nil
}

func (s *Storage) acquire(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.leases[name]
	if l == nil {
		l = &lease{}
		s.leases[name] = l
	}
	if l.doomed {
		return false
	}
	l.n++
	return true
}

func (s *Storage) release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.leases[name]
	if l == nil {
		return
	}
	l.n--
	if l.n > 0 {
		return
	}
	if l.doomed {
		if l.drained != nil {
			close(l.drained)
			l.drained = nil
		}
		return
	}
	delete(s.leases, name)
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// doom stops new lookups against name and returns a channel closed once the
// lookups in flight have drained.
func (s *Storage) doom(name string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sealed, name)
	l := s.leases[name]
	if l == nil {
		l = &lease{}
		s.leases[name] = l
	}
	l.doomed = true
	if l.n == 0 {
		return closedCh
	}
	if l.drained == nil {
		l.drained = make(chan struct{})
	}
	return l.drained
}

// forget drops all in-process state of a deleted generation so its name can
// be populated again.
func (s *Storage) forget(name string) {
	s.mu.Lock()
	delete(s.leases, name)
	delete(s.sealed, name)
	s.mu.Unlock()
}
