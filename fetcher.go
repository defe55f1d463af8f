package offcache

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

// Fetcher performs a live network fetch. Errors are returned to the original
// requester unchanged, so implementations should not dress them up.
type Fetcher interface {
	Fetch(ctx context.Context, r *http.Request) (*Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, r *http.Request) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, r *http.Request) (*Response, error) { return f(ctx, r) }

// HTTPFetcher fetches over net/http and buffers the whole body.
type HTTPFetcher struct {
	Client *http.Client // nil => http.DefaultClient

	// Limiter, when set, throttles fetches (installs of large manifests
	// against a small origin).
	Limiter *rate.Limiter

	// MaxBodyBytes bounds the buffered body; 0 => unlimited.
	MaxBodyBytes int64
}

var _ Fetcher = (*HTTPFetcher)(nil)

func (f *HTTPFetcher) Fetch(ctx context.Context, r *http.Request) (*Response, error) {
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(r.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if f.MaxBodyBytes > 0 {
		body = io.LimitReader(resp.Body, f.MaxBodyBytes+1)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if f.MaxBodyBytes > 0 && int64(len(b)) > f.MaxBodyBytes {
		return nil, fmt.Errorf("offcache: response body of %s exceeds %d bytes", r.URL, f.MaxBodyBytes)
	}

	u := r.URL.String()
	if resp.Request != nil && resp.Request.URL != nil {
		u = resp.Request.URL.String() // after redirects
	}
	return &Response{
		URL:    u,
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   b,
	}, nil
}
