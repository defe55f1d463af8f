package offcache

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultCookieName    = "offcache_client"
	defaultClientIdle    = 30 * time.Minute
	defaultSweepInterval = time.Minute
)

// hop-by-hop headers are not replayed to the browser.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade", "Content-Length",
}

// HandlerOptions configure a Handler. Only Origin is required.
type HandlerOptions struct {
	Origin        string        // upstream base URL, e.g. "http://app:8080/"
	CookieName    string        // client id cookie; "" => "offcache_client"
	ClientIdle    time.Duration // disconnect clients idle this long; 0 => 30m
	SweepInterval time.Duration // 0 => 1m
	Logger        Logger
}

// Handler puts a Host in front of an origin server. Every incoming request
// becomes a fetch event of the browser session it came from; the session
// (identified by a cookie) plays the role of a page.
type Handler struct {
	host   *Host
	origin *url.URL
	cookie string
	idle   time.Duration
	log    Logger

	mu   sync.Mutex
	seen map[string]time.Time

	// background sweep of idle clients
	ticker    *time.Ticker
	stopCh    chan struct{}
	closeWg   sync.WaitGroup
	closeOnce sync.Once
}

func NewHandler(host *Host, opts HandlerOptions) (*Handler, error) {
	if host == nil {
		return nil, fmt.Errorf("offcache: host is required")
	}
	origin, err := url.Parse(opts.Origin)
	if err != nil {
		return nil, fmt.Errorf("offcache: origin: %w", err)
	}
	if !origin.IsAbs() || origin.Host == "" {
		return nil, fmt.Errorf("offcache: origin must be an absolute URL, got %q", opts.Origin)
	}

	h := &Handler{
		host:   host,
		origin: origin,
		cookie: coalesce(opts.CookieName, defaultCookieName),
		idle:   coalesce(opts.ClientIdle, defaultClientIdle),
		log:    coalesce[Logger](opts.Logger, NopLogger{}),
		seen:   make(map[string]time.Time),
	}

	h.ticker = time.NewTicker(coalesce(opts.SweepInterval, defaultSweepInterval))
	h.stopCh = make(chan struct{})
	h.closeWg.Add(1)
	go h.sweepLoop()
	return h, nil
}

// Close stops the idle sweep. Connected clients stay registered.
func (h *Handler) Close() {
	h.closeOnce.Do(func() {
		close(h.stopCh)
		h.closeWg.Wait()
		h.ticker.Stop()
	})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := h.client(w, r)

	out := r.Clone(r.Context())
	out.RequestURI = ""
	u := *h.origin
	// RawPath keeps escapes such as %2F that Path alone would decode
	u.Path = strings.TrimSuffix(h.origin.Path, "/") + r.URL.Path
	u.RawPath = strings.TrimSuffix(h.origin.EscapedPath(), "/") + r.URL.EscapedPath()
	u.RawQuery = r.URL.RawQuery
	out.URL = &u
	out.Host = u.Host

	resp, err := h.host.Fetch(r.Context(), id, out)
	if err != nil {
		h.log.Warn("fetch failed", Fields{"url": u.String(), "client": id, "err": err})
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}

	dst := w.Header()
	for k, vs := range resp.Header {
		dst[k] = append([]string(nil), vs...)
	}
	for _, k := range hopHeaders {
		dst.Del(k)
	}
	dst.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.Status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(resp.Body)
	}
}

// client returns the id of the session behind r, minting and connecting a
// new one when the cookie is missing or unknown.
func (h *Handler) client(w http.ResponseWriter, r *http.Request) string {
	now := time.Now()
	if ck, err := r.Cookie(h.cookie); err == nil && ck.Value != "" {
		h.mu.Lock()
		_, known := h.seen[ck.Value]
		h.seen[ck.Value] = now
		h.mu.Unlock()
		if !known {
			h.host.Connect(ck.Value)
		}
		return ck.Value
	}

	id := uuid.NewString()
	h.mu.Lock()
	h.seen[id] = now
	h.mu.Unlock()
	h.host.Connect(id)
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (h *Handler) sweepLoop() {
	defer h.closeWg.Done()
	for {
		select {
		case <-h.ticker.C:
			h.sweepIdle(h.idle)
		case <-h.stopCh:
			return
		}
	}
}

func (h *Handler) sweepIdle(idle time.Duration) {
	cutoff := time.Now().Add(-idle)
	var gone []string

	h.mu.Lock()
	for id, last := range h.seen {
		if last.Before(cutoff) {
			gone = append(gone, id)
			delete(h.seen, id)
		}
	}
	h.mu.Unlock()

	for _, id := range gone {
		h.host.Disconnect(id)
	}
	if len(gone) > 0 {
		h.log.Debug("idle clients disconnected", Fields{"removed": len(gone)})
	}
}
