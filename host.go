package offcache

import (
	"context"
	"errors"
	"net/http"
	"sync"
)

// HostOptions configure a Host. All fields are optional.
type HostOptions struct {
	Clients *Clients // nil => NewClients()
	Fetcher Fetcher  // network for uncontrolled clients; nil => &HTTPFetcher{}
	Logger  Logger
	Hooks   Hooks
}

// Host is the hosting environment of the managers: it delivers the install
// and activate events, decides when a waiting generation may take over and
// routes each client's fetches to the manager controlling it.
//
// At most one manager is active at a time. A freshly installed manager waits
// while pages controlled by the active one are open, unless it asked to skip
// waiting.
type Host struct {
	clients *Clients
	fetcher Fetcher
	log     Logger
	hooks   Hooks

	mu       sync.Mutex
	waiting  *Manager
	active   *Manager
	previous *Manager // active before the current one, until its successor has activated
}

func NewHost(opts HostOptions) *Host {
	h := &Host{
		clients: opts.Clients,
		fetcher: opts.Fetcher,
	}
	if h.clients == nil {
		h.clients = NewClients()
	}
	if h.fetcher == nil {
		h.fetcher = &HTTPFetcher{}
	}
	h.log = coalesce[Logger](opts.Logger, NopLogger{})
	h.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	return h
}

func (h *Host) Clients() *Clients { return h.clients }

func (h *Host) Active() *Manager {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

func (h *Host) Waiting() *Manager {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waiting
}

// Deploy delivers the install event to m and waits for it. On success m
// becomes the waiting manager (replacing an older waiting one) and is
// activated right away when nothing holds it back. The install error, a
// *PopulationError, is returned as is and leaves the current generation
// serving. If ctx ends before install completes, Deploy returns ctx.Err()
// and m is not adopted.
func (h *Host) Deploy(ctx context.Context, m *Manager) error {
	if err := m.bindClients(h.clients); err != nil {
		return err
	}
	if err := m.Install(ctx).Wait(ctx); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if old := h.waiting; old != nil && old != m {
		old.supersede()
	}
	h.waiting = m
	m.setOnSkipWaiting(h.promote)
	h.log.Debug("generation waiting", Fields{"version": m.Version(), "skip_waiting": m.skipRequested()})
	h.promoteLocked()
	return nil
}

// Connect registers an opened page. It is controlled by the active
// generation, if there is one.
func (h *Host) Connect(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	controller := ""
	if h.active != nil {
		controller = h.active.Version()
	}
	h.clients.Add(id, controller)
}

// Disconnect unregisters a closed page. Closing the last page of the active
// generation lets a waiting one take over.
func (h *Host) Disconnect(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients.Remove(id) {
		h.promoteLocked()
	}
}

// Fetch delivers a fetch event from client id to the manager controlling it.
// Unknown and uncontrolled clients go straight to the network.
func (h *Host) Fetch(ctx context.Context, id string, r *http.Request) (*Response, error) {
	// a manager retired between routing and handling is retried once
	for attempt := 0; attempt < 2; attempt++ {
		m := h.controllerOf(id)
		if m == nil {
			break
		}
		resp, err := m.Fetch(ctx, r)
		if errors.Is(err, ErrNotActive) {
			continue
		}
		return resp, err
	}
	return h.fetcher.Fetch(ctx, r)
}

func (h *Host) controllerOf(id string) *Manager {
	version, ok := h.clients.Controller(id)
	if !ok || version == "" {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.active != nil && h.active.Version() == version:
		return h.active
	case h.previous != nil && h.previous.Version() == version:
		return h.previous
	}
	return nil
}

func (h *Host) promote() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.promoteLocked()
}

func (h *Host) promoteLocked() {
	w := h.waiting
	if w == nil || w.State() != StateWaiting {
		return
	}
	if a := h.active; a != nil && !w.skipRequested() {
		if n := h.clients.ControlledBy(a.Version()); n > 0 {
			h.log.Debug("activation deferred; old generation still controls clients",
				Fields{"waiting": w.Version(), "active": a.Version(), "clients": n})
			return
		}
	}

	old := h.active
	h.previous, h.active, h.waiting = old, w, nil
	task := w.Activate(context.Background())
	go func() {
		if err := task.Wait(context.Background()); err != nil {
			h.log.Error("activation failed", Fields{"version": w.Version(), "err": err})
			return
		}
		h.mu.Lock()
		if h.previous == old {
			h.previous = nil
		}
		h.mu.Unlock()
		if old != nil && old != w {
			old.supersede()
		}
	}()
}
