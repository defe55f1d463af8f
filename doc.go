// Package offcache implements a versioned offline cache: the part of an
// offline-capable web app that decides which static resources are cached,
// when a new cache generation replaces the old one, and whether a request is
// answered from the cache or from the network.
//
// Components:
//   - Manager: one cache generation named by a version string. Populated on
//     install (all-or-nothing), made current on activate (every other
//     generation is deleted, open clients are claimed), then answers fetches
//     cache-first without revalidation.
//   - Storage: the store registry keyed by version. Entries live in a
//     provider.Provider, generation metadata in a registry.Registry.
//   - Host: the hosting environment. Delivers lifecycle events, keeps the
//     installing/waiting/active managers and routes each client's fetches to
//     the manager controlling it.
//   - Handler: an http.Handler that puts a Host in front of an origin server.
//
// Keys:
//
//	entry:<ns>:<version>:<population>:<hash> - one cached response of a generation
//
// population is a fresh id per Populate call, recorded in the registry when
// the generation is sealed.
//
// Lifecycle:
//
//	m, _ := offcache.New(offcache.Options{Version: "v2", Scope: origin, Manifest: paths, Storage: st})
//	err := host.Deploy(ctx, m) // install; waits, or activates right away
//	resp, err := host.Fetch(ctx, clientID, req)
package offcache
