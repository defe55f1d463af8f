package offcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	tracerName                = "github.com/unkn0wn-root/offcache"
	defaultInstallConcurrency = 8
)

var (
	errUnexpectedStatus = errors.New("response status is not ok")
	errPartialResponse  = errors.New("partial response cannot be cached")
	errVaryWildcard     = errors.New("response with Vary: * cannot be cached")
)

// Manager owns one cache generation. It is created per version string and
// moves through New -> Installing -> Waiting -> Activating -> Active ->
// Superseded; a failed install ends in Discarded.
type Manager struct {
	version     string
	scope       *url.URL
	resources   []string // absolute request identities, manifest order
	storage     *Storage
	fetcher     Fetcher
	concurrency int
	autoSkip    bool

	log    Logger
	hooks  Hooks
	tracer trace.Tracer

	mu            sync.Mutex
	state         State
	clients       *Clients
	skipWaiting   bool
	onSkipWaiting func()
	activated     chan struct{}
}

func newManager(opts Options) (*Manager, error) {
	if opts.Version == "" {
		return nil, fmt.Errorf("offcache: version is required")
	}
	if opts.Storage == nil {
		return nil, fmt.Errorf("offcache: storage is required")
	}
	scope, err := url.Parse(opts.Scope)
	if err != nil {
		return nil, fmt.Errorf("offcache: scope: %w", err)
	}
	if !scope.IsAbs() || scope.Host == "" {
		return nil, fmt.Errorf("offcache: scope must be an absolute URL, got %q", opts.Scope)
	}

	resources := make([]string, 0, len(opts.Manifest))
	seen := make(map[string]string, len(opts.Manifest))
	for _, p := range opts.Manifest {
		ref, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("offcache: manifest entry %q: %w", p, err)
		}
		id := Identity(scope.ResolveReference(ref))
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("offcache: manifest entries %q and %q name the same request %s", prev, p, id)
		}
		seen[id] = p
		resources = append(resources, id)
	}

	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	m := &Manager{
		version:     opts.Version,
		scope:       scope,
		resources:   resources,
		storage:     opts.Storage,
		fetcher:     opts.Fetcher,
		concurrency: opts.InstallConcurrency,
		autoSkip:    opts.SkipWaiting,
		clients:     opts.Clients,
		tracer:      tp.Tracer(tracerName),
		activated:   make(chan struct{}),
	}
	if m.fetcher == nil {
		m.fetcher = &HTTPFetcher{}
	}
	if m.concurrency <= 0 {
		m.concurrency = defaultInstallConcurrency
	}
	m.log = coalesce[Logger](opts.Logger, NopLogger{})
	m.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	return m, nil
}

func (m *Manager) Version() string { return m.version }

// Resources returns the absolute request identities of the manifest.
func (m *Manager) Resources() []string { return append([]string(nil), m.resources...) }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Activated is closed once activation has completed and the manager serves
// fetches.
func (m *Manager) Activated() <-chan struct{} { return m.activated }

// Install handles the install event: it fetches every manifest resource and
// stores them as a new generation named by the version. The generation is
// ready only if all resources were stored; otherwise the task fails with a
// *PopulationError, the manager is Discarded and no store is left under the
// version. A sealed generation with the same name is reused unchanged.
func (m *Manager) Install(ctx context.Context) *Task {
	m.mu.Lock()
	if m.state != StateNew {
		st := m.state
		m.mu.Unlock()
		return failedTask(fmt.Errorf("%w: install while %s", ErrInvalidState, st))
	}
	m.state = StateInstalling
	m.mu.Unlock()

	return runTask(ctx, func(ctx context.Context) error {
		ctx, span := m.tracer.Start(ctx, "offcache.install",
			trace.WithAttributes(
				attribute.String("offcache.version", m.version),
				attribute.Int("offcache.resources", len(m.resources)),
			))
		defer span.End()

		err := m.install(ctx)

		m.mu.Lock()
		if err != nil {
			m.state = StateDiscarded
		} else {
			m.state = StateWaiting
		}
		m.mu.Unlock()

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "install failed")
			m.hooks.InstallFailed(m.version, err)
			m.log.Error("install failed; generation discarded", Fields{"version": m.version, "err": err})
			return err
		}
		m.log.Info("generation installed", Fields{"version": m.version, "resources": len(m.resources)})
		if m.autoSkip {
			m.SkipWaiting()
		}
		return nil
	})
}

func (m *Manager) install(ctx context.Context) error {
	exists, err := m.storage.Has(ctx, m.version)
	if err != nil {
		return &PopulationError{Version: m.version, Err: err}
	}
	if exists {
		m.log.Info("generation already populated; reusing", Fields{"version": m.version})
		return nil
	}

	entries := make([]Entry, len(m.resources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, id := range m.resources {
		i, id := i, id
		g.Go(func() error {
			e, err := m.fetchResource(gctx, id)
			if err != nil {
				return err
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	err = m.storage.Populate(ctx, m.version, entries)
	if errors.Is(err, ErrGenerationExists) {
		// another installer sealed the same version first
		return nil
	}
	if err != nil {
		return &PopulationError{Version: m.version, Err: err}
	}
	return nil
}

func (m *Manager) fetchResource(ctx context.Context, id string) (Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, id, nil)
	if err != nil {
		return Entry{}, &PopulationError{Version: m.version, Resource: id, Err: err}
	}
	resp, err := m.fetcher.Fetch(ctx, req)
	if err != nil {
		return Entry{}, &PopulationError{Version: m.version, Resource: id, Err: err}
	}
	switch {
	case resp.Status == http.StatusPartialContent:
		return Entry{}, &PopulationError{Version: m.version, Resource: id, Status: resp.Status, Err: errPartialResponse}
	case resp.Status < 200 || resp.Status > 299:
		return Entry{}, &PopulationError{Version: m.version, Resource: id, Status: resp.Status, Err: errUnexpectedStatus}
	}
	if _, star := varyFields(resp.Header); star {
		return Entry{}, &PopulationError{Version: m.version, Resource: id, Status: resp.Status, Err: errVaryWildcard}
	}
	return Entry{
		URL:      id,
		Vary:     captureVary(resp.Header, req.Header),
		Response: *resp,
	}, nil
}

// SkipWaiting asks for activation without waiting for pages controlled by
// the previous generation to close. It may be called before install
// completes; the request is remembered.
func (m *Manager) SkipWaiting() {
	m.mu.Lock()
	m.skipWaiting = true
	fn := m.onSkipWaiting
	waiting := m.state == StateWaiting
	m.mu.Unlock()
	if fn != nil && waiting {
		fn()
	}
}

// Activate handles the activate event: every generation other than this
// version is deleted, then all open clients are claimed. Deleting stale
// generations is best-effort: failures are logged and reported to Hooks and
// the generation stays registered, so the next activation retries it.
// Activating an already active manager repeats the purge and claim.
func (m *Manager) Activate(ctx context.Context) *Task {
	m.mu.Lock()
	switch m.state {
	case StateWaiting:
		m.state = StateActivating
	case StateActive:
	default:
		st := m.state
		m.mu.Unlock()
		return failedTask(fmt.Errorf("%w: activate while %s", ErrInvalidState, st))
	}
	if m.clients == nil {
		m.clients = NewClients()
	}
	clients := m.clients
	m.mu.Unlock()

	return runTask(ctx, func(ctx context.Context) error {
		ctx, span := m.tracer.Start(ctx, "offcache.activate",
			trace.WithAttributes(attribute.String("offcache.version", m.version)))
		defer span.End()

		deleted, failed := m.purgeStale(ctx)
		span.SetAttributes(
			attribute.Int("offcache.deleted", deleted),
			attribute.Int("offcache.delete_failures", failed),
		)

		n := clients.Claim(m.version)
		m.hooks.ClientsClaimed(m.version, n)

		m.mu.Lock()
		first := m.state == StateActivating
		if first {
			m.state = StateActive
		}
		m.mu.Unlock()
		if first {
			close(m.activated)
		}
		m.log.Info("generation active", Fields{"version": m.version, "claimed": n, "deleted": deleted})
		return nil
	})
}

func (m *Manager) purgeStale(ctx context.Context) (deleted, failed int) {
	names, err := m.storage.Keys(ctx)
	if err != nil {
		m.hooks.StaleDeleteFailed("", err)
		m.log.Warn("listing generations failed; stale generations kept", Fields{"version": m.version, "err": err})
		return 0, 1
	}
	for _, name := range names {
		if name == m.version {
			continue
		}
		if _, err := m.storage.Delete(ctx, name); err != nil {
			failed++
			m.hooks.StaleDeleteFailed(name, err)
			m.log.Warn("stale generation not deleted; will retry on next activation",
				Fields{"generation": name, "err": err})
			continue
		}
		deleted++
		m.log.Info("stale generation deleted", Fields{"generation": name, "current": m.version})
	}
	return deleted, failed
}

// Fetch handles a fetch event: a request stored in the generation is
// answered from it without touching the network; anything else goes to the
// network and is not cached. Network errors are returned unchanged.
// A fetch that arrives while the manager is activating waits for activation
// to finish.
func (m *Manager) Fetch(ctx context.Context, r *http.Request) (*Response, error) {
	switch st := m.State(); st {
	case StateActive:
	case StateActivating:
		select {
		case <-m.activated:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	default:
		return nil, fmt.Errorf("%w (%s)", ErrNotActive, st)
	}

	ctx, span := m.tracer.Start(ctx, "offcache.fetch",
		trace.WithAttributes(attribute.String("offcache.version", m.version)))
	defer span.End()

	r = m.resolve(r)
	if cacheable(r) {
		resp, ok, err := m.storage.Match(ctx, m.version, r)
		switch {
		case err != nil:
			m.log.Warn("cache lookup failed; using network", Fields{"version": m.version, "url": r.URL.String(), "err": err})
		case ok:
			span.SetAttributes(attribute.Bool("offcache.hit", true))
			return resp, nil
		}
	}
	span.SetAttributes(attribute.Bool("offcache.hit", false))
	return m.fetcher.Fetch(ctx, r)
}

// resolve makes a relative request URL absolute against the scope.
func (m *Manager) resolve(r *http.Request) *http.Request {
	if r.URL.IsAbs() {
		return r
	}
	r2 := r.Clone(r.Context())
	r2.URL = m.scope.ResolveReference(r.URL)
	return r2
}

// bindClients attaches the host's registration set.
func (m *Manager) bindClients(c *Clients) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clients == nil {
		m.clients = c
		return nil
	}
	if m.clients != c {
		return fmt.Errorf("offcache: manager %q is bound to another client set", m.version)
	}
	return nil
}

func (m *Manager) skipRequested() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.skipWaiting
}

func (m *Manager) setOnSkipWaiting(fn func()) {
	m.mu.Lock()
	m.onSkipWaiting = fn
	m.mu.Unlock()
}

// supersede retires the manager. Its fetches return ErrNotActive afterwards.
func (m *Manager) supersede() {
	m.mu.Lock()
	if m.state == StateSuperseded || m.state == StateDiscarded {
		m.mu.Unlock()
		return
	}
	m.state = StateSuperseded
	m.onSkipWaiting = nil
	m.mu.Unlock()
	m.hooks.Superseded(m.version)
	m.log.Info("generation superseded", Fields{"version": m.version})
}
