package offcache

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFixture struct {
	origin  *httptest.Server
	hits    atomic.Int64
	host    *Host
	handler *Handler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := &handlerFixture{}
	mux := http.NewServeMux()
	mux.HandleFunc("/index.html", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html>animator</html>")
	})
	mux.HandleFunc("/api/frames", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"frames":`+r.URL.Query().Get("n")+`}`)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		_, _ = io.WriteString(w, r.URL.EscapedPath())
	})
	f.origin = httptest.NewServer(mux)
	t.Cleanup(f.origin.Close)

	fetcher := &HTTPFetcher{Client: f.origin.Client()}
	f.host = NewHost(HostOptions{Fetcher: fetcher})
	m, err := New(Options{
		Version:  "v1",
		Scope:    f.origin.URL + "/",
		Storage:  newTestStorage(t, StorageOptions{}),
		Manifest: []string{"./index.html"},
		Fetcher:  fetcher,
	})
	require.NoError(t, err)
	require.NoError(t, f.host.Deploy(context.Background(), m))
	awaitActive(t, m)

	f.handler, err = NewHandler(f.host, HandlerOptions{Origin: f.origin.URL})
	require.NoError(t, err)
	t.Cleanup(f.handler.Close)
	return f
}

func (f *handlerFixture) serve(method, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func clientCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == defaultCookieName {
			return c
		}
	}
	t.Fatal("no client cookie set")
	return nil
}

func TestHandlerServesCachedShell(t *testing.T) {
	f := newHandlerFixture(t)
	installHits := f.hits.Load()

	rec := f.serve(http.MethodGet, "/index.html")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>animator</html>", rec.Body.String())
	assert.Equal(t, "text/html", rec.Header().Get("Content-Type"))
	assert.Equal(t, installHits, f.hits.Load(), "served from the generation")

	ck := clientCookie(t, rec)
	v, ok := f.host.Clients().Controller(ck.Value)
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	// the same session is not registered twice
	rec = f.serve(http.MethodGet, "/index.html", ck)
	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, 1, f.host.Clients().Len())
}

func TestHandlerPassesMissesThrough(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.serve(http.MethodGet, "/api/frames?n=12")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"frames":12}`, rec.Body.String())

	rec = f.serve(http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerOffline(t *testing.T) {
	f := newHandlerFixture(t)
	f.origin.Close()

	rec := f.serve(http.MethodGet, "/index.html")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>animator</html>", rec.Body.String())

	rec = f.serve(http.MethodGet, "/api/frames?n=1")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandlerHead(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.serve(http.MethodHead, "/index.html")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestHandlerSweepsIdleClients(t *testing.T) {
	f := newHandlerFixture(t)
	ck := clientCookie(t, f.serve(http.MethodGet, "/index.html"))
	require.Equal(t, 1, f.host.Clients().Len())

	f.handler.sweepIdle(-1)
	assert.Zero(t, f.host.Clients().Len())

	// a returning session is registered again
	f.serve(http.MethodGet, "/index.html", ck)
	v, ok := f.host.Clients().Controller(ck.Value)
	require.True(t, ok)
	assert.Equal(t, "v1", v)
}

func TestNewHandlerValidates(t *testing.T) {
	h := NewHost(HostOptions{})
	_, err := NewHandler(nil, HandlerOptions{Origin: "http://x"})
	assert.Error(t, err)
	_, err = NewHandler(h, HandlerOptions{Origin: "/relative"})
	assert.Error(t, err)
}

func TestHandlerKeepsEscapedPath(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.serve(http.MethodGet, "/files/a%2Fb")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/files/a%2Fb", rec.Body.String())

	rec = f.serve(http.MethodGet, "/files/a/b")
	assert.Equal(t, "/files/a/b", rec.Body.String())
}
