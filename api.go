package offcache

import (
	"go.opentelemetry.io/otel/trace"
)

// Options configure a Manager. Version, Scope and Storage are required;
// others have sensible defaults.
type Options struct {
	// Required
	Version string // generation name, e.g. "stop-motion-cache-v2"; bump to supersede
	Scope   string // absolute base URL the manifest paths resolve against
	Storage *Storage

	Manifest []string // relative resource paths that must be cached

	Clients            *Clients // nil => a Host binds its own set; standalone => NewClients()
	Fetcher            Fetcher  // nil => &HTTPFetcher{}
	SkipWaiting        bool     // activate without waiting for old clients to close
	InstallConcurrency int      // manifest fetches in flight; 0 => 8

	Logger         Logger              // if nil, NopLogger is used
	Hooks          Hooks               // if nil, NopHooks is used
	TracerProvider trace.TracerProvider // nil => otel global provider
}

func New(opts Options) (*Manager, error) {
	return newManager(opts)
}
