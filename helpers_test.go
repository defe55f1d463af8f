package offcache

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/offcache/provider/memory"
)

const testScope = "https://app.test/"

var errNetDown = errors.New("dial tcp app.test:443: connect: network is unreachable")

type originFile struct {
	status int
	body   string
	header http.Header
}

// origin is a scripted network. Paths not listed answer 404.
type origin struct {
	mu    sync.Mutex
	files map[string]originFile
	hits  map[string]int
	down  bool
}

func newOrigin(files map[string]string) *origin {
	o := &origin{files: make(map[string]originFile), hits: make(map[string]int)}
	for p, body := range files {
		o.files[p] = originFile{status: http.StatusOK, body: body}
	}
	return o
}

func (o *origin) set(path string, f originFile) {
	o.mu.Lock()
	o.files[path] = f
	o.mu.Unlock()
}

func (o *origin) setDown(down bool) {
	o.mu.Lock()
	o.down = down
	o.mu.Unlock()
}

func (o *origin) Fetch(_ context.Context, r *http.Request) (*Response, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hits[r.URL.Path]++
	if o.down {
		return nil, errNetDown
	}
	f, ok := o.files[r.URL.Path]
	if !ok {
		return &Response{URL: r.URL.String(), Status: http.StatusNotFound, Body: []byte("not found")}, nil
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	h := f.header.Clone()
	if h == nil {
		h = http.Header{}
	}
	return &Response{URL: r.URL.String(), Status: status, Header: h, Body: []byte(f.body)}, nil
}

func (o *origin) calls(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[path]
}

func (o *origin) total() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.hits {
		n += c
	}
	return n
}

// faultyProvider wraps the memory provider with switchable failures.
type faultyProvider struct {
	*memory.Provider

	mu        sync.Mutex
	setBudget int // successful Sets left before failing; <0 => unlimited
	reject    bool
	delErr    error
	getGate   chan struct{} // when set, Get blocks until it is closed
	getInside chan struct{} // receives once per blocked Get
}

func newFaultyProvider() *faultyProvider {
	return &faultyProvider{Provider: memory.New(), setBudget: -1}
}

func (p *faultyProvider) Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	if p.reject {
		p.mu.Unlock()
		return false, nil
	}
	if p.setBudget == 0 {
		p.mu.Unlock()
		return false, errors.New("disk full")
	}
	if p.setBudget > 0 {
		p.setBudget--
	}
	p.mu.Unlock()
	return p.Provider.Set(ctx, key, value, cost, ttl)
}

func (p *faultyProvider) Del(ctx context.Context, key string) error {
	p.mu.Lock()
	err := p.delErr
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return p.Provider.Del(ctx, key)
}

func (p *faultyProvider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	gate, inside := p.getGate, p.getInside
	p.mu.Unlock()
	if gate != nil {
		inside <- struct{}{}
		<-gate
	}
	return p.Provider.Get(ctx, key)
}

type hookEvents struct {
	installFail []string
	staleFail   []string
	selfHeal    []string
	rejected    int
	claimed     map[string]int
	superseded  []string
}

// recordingHooks captures hook calls.
type recordingHooks struct {
	NopHooks

	mu sync.Mutex
	ev hookEvents
}

func (h *recordingHooks) InstallFailed(v string, _ error) {
	h.mu.Lock()
	h.ev.installFail = append(h.ev.installFail, v)
	h.mu.Unlock()
}

func (h *recordingHooks) StaleDeleteFailed(n string, _ error) {
	h.mu.Lock()
	h.ev.staleFail = append(h.ev.staleFail, n)
	h.mu.Unlock()
}

func (h *recordingHooks) EntrySelfHeal(_, reason string) {
	h.mu.Lock()
	h.ev.selfHeal = append(h.ev.selfHeal, reason)
	h.mu.Unlock()
}

func (h *recordingHooks) ProviderSetRejected(string) {
	h.mu.Lock()
	h.ev.rejected++
	h.mu.Unlock()
}

func (h *recordingHooks) ClientsClaimed(v string, n int) {
	h.mu.Lock()
	if h.ev.claimed == nil {
		h.ev.claimed = make(map[string]int)
	}
	h.ev.claimed[v] += n
	h.mu.Unlock()
}

func (h *recordingHooks) Superseded(v string) {
	h.mu.Lock()
	h.ev.superseded = append(h.ev.superseded, v)
	h.mu.Unlock()
}

func (h *recordingHooks) events() hookEvents {
	h.mu.Lock()
	defer h.mu.Unlock()
	claimed := make(map[string]int, len(h.ev.claimed))
	for k, v := range h.ev.claimed {
		claimed[k] = v
	}
	return hookEvents{
		installFail: append([]string(nil), h.ev.installFail...),
		staleFail:   append([]string(nil), h.ev.staleFail...),
		selfHeal:    append([]string(nil), h.ev.selfHeal...),
		rejected:    h.ev.rejected,
		claimed:     claimed,
		superseded:  append([]string(nil), h.ev.superseded...),
	}
}

func newTestStorage(t *testing.T, opts StorageOptions) *Storage {
	t.Helper()
	if opts.Provider == nil {
		opts.Provider = memory.New()
	}
	s, err := NewStorage(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func newTestManager(t *testing.T, s *Storage, o Fetcher, version string, paths ...string) *Manager {
	t.Helper()
	m, err := New(Options{
		Version:  version,
		Scope:    testScope,
		Storage:  s,
		Manifest: paths,
		Fetcher:  o,
	})
	require.NoError(t, err)
	return m
}

func get(t *testing.T, rawURL string) *http.Request {
	t.Helper()
	r, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	return r
}

func wait(t *testing.T, task *Task) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return task.Wait(ctx)
}

func entry(url, body string) Entry {
	return Entry{URL: url, Response: Response{URL: url, Status: http.StatusOK, Header: http.Header{}, Body: []byte(body)}}
}
