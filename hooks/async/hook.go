// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SelfHealEvery: 10, // ~every 10th self-heal
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	st, _ := offcache.NewStorage(offcache.StorageOptions{
//	    Provider: memory.New(),
//	    Hooks:    hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/offcache"
)

// Hooks forwards events to inner on a small worker pool. Events that do not
// fit in the queue are dropped and counted.
type Hooks struct {
	inner   offcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ offcache.Hooks = (*Hooks)(nil)

func New(inner offcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events reported after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped returns how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// lost the race with Close
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) InstallFailed(v string, err error) { h.try(func() { h.inner.InstallFailed(v, err) }) }
func (h *Hooks) StaleDeleteFailed(n string, err error) {
	h.try(func() { h.inner.StaleDeleteFailed(n, err) })
}
func (h *Hooks) EntrySelfHeal(k, r string)      { h.try(func() { h.inner.EntrySelfHeal(k, r) }) }
func (h *Hooks) ProviderSetRejected(k string)   { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) ClientsClaimed(v string, n int) { h.try(func() { h.inner.ClientsClaimed(v, n) }) }
func (h *Hooks) Superseded(v string)            { h.try(func() { h.inner.Superseded(v) }) }
