package offcache

// Hooks lightweight callbacks for high-signal lifecycle events.
// Implementations MUST be cheap and non-blocking.
// Fetch interception calls EntrySelfHeal on the hot path.
type Hooks interface {
	// An install attempt failed and the generation was discarded.
	InstallFailed(version string, err error)

	// A stale generation could not be removed during activation.
	// The store stays registered and is retried on the next activation.
	StaleDeleteFailed(name string, err error)

	// A stored entry was dropped by the cache on read.
	// reason ∈ {"corrupt", "foreign_generation", "value_decode", "evicted"}
	EntrySelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set while populating a generation.
	ProviderSetRejected(storageKey string)

	// Activation moved n open clients under version.
	ClientsClaimed(version string, n int)

	// The manager serving version stopped serving.
	Superseded(version string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) InstallFailed(string, error)     {}
func (NopHooks) StaleDeleteFailed(string, error) {}
func (NopHooks) EntrySelfHeal(string, string)    {}
func (NopHooks) ProviderSetRejected(string)      {}
func (NopHooks) ClientsClaimed(string, int)      {}
func (NopHooks) Superseded(string)               {}
