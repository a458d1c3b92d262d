package querycache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; they run on fetch and write paths.
// Keys are passed in their String form.
type Hooks interface {
	// A network fetch was issued for key.
	FetchStarted(key string)

	// A caller attached to a fetch already in flight instead of issuing its own.
	FetchShared(key string)

	// A fetch resolved with an error (the entry now carries it).
	FetchFailed(key string, err error)

	// A fetch result was not written because the entry moved on while it was in flight.
	// reason ∈ {"invalidated", "removed"}
	FetchDiscarded(key, reason string)

	// Invalidate marked count entries under prefix stale.
	Invalidated(prefix string, count int)

	// An optimistic mutation failed and the snapshot was restored.
	MutationRolledBack(id, key string, err error)

	// The sweeper dropped an unused entry.
	EntryCollected(key string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) FetchStarted(string)                      {}
func (NopHooks) FetchShared(string)                       {}
func (NopHooks) FetchFailed(string, error)                {}
func (NopHooks) FetchDiscarded(string, string)            {}
func (NopHooks) Invalidated(string, int)                  {}
func (NopHooks) MutationRolledBack(string, string, error) {}
func (NopHooks) EntryCollected(string)                    {}

// MultiHooks fans every event out to each member in order.
type MultiHooks []Hooks

var _ Hooks = MultiHooks(nil)

func (m MultiHooks) FetchStarted(k string) {
	for _, h := range m {
		h.FetchStarted(k)
	}
}

func (m MultiHooks) FetchShared(k string) {
	for _, h := range m {
		h.FetchShared(k)
	}
}

func (m MultiHooks) FetchFailed(k string, err error) {
	for _, h := range m {
		h.FetchFailed(k, err)
	}
}

func (m MultiHooks) FetchDiscarded(k, reason string) {
	for _, h := range m {
		h.FetchDiscarded(k, reason)
	}
}

func (m MultiHooks) Invalidated(prefix string, n int) {
	for _, h := range m {
		h.Invalidated(prefix, n)
	}
}

func (m MultiHooks) MutationRolledBack(id, k string, err error) {
	for _, h := range m {
		h.MutationRolledBack(id, k, err)
	}
}

func (m MultiHooks) EntryCollected(k string) {
	for _, h := range m {
		h.EntryCollected(k)
	}
}
