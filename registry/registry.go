// Package registry records which cache generations exist.
//
// A generation is visible only once its Meta has been Put: the registry entry
// is the commit point of an install. Entries themselves live in a
// provider.Provider; the registry holds only names and request keys.
package registry

import (
	"context"
	"time"
)

// Meta describes one sealed generation.
type Meta struct {
	Name      string    `json:"name" msgpack:"name"`
	ID        string    `json:"id" msgpack:"id"`     // population that wrote the entries; part of every entry key
	Keys      []string  `json:"keys" msgpack:"keys"` // request identities stored in the generation
	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`
}

// Registry abstracts where generation metadata lives.
// Use Local (default) for a single process with a process-local provider,
// InProvider for a persistent provider owned by one process, or Redis to share
// generations between front servers that share a provider.
type Registry interface {
	// Names returns every registered generation name, sorted.
	Names(ctx context.Context) ([]string, error)
	// Get returns the metadata of name; ok=false when it is not registered.
	Get(ctx context.Context, name string) (m Meta, ok bool, err error)
	// Put registers m. It fails with ErrExists if m.Name is already registered.
	Put(ctx context.Context, m Meta) error
	// Delete unregisters name. Deleting a missing name is not an error.
	Delete(ctx context.Context, name string) error
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
