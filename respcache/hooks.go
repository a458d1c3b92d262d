package respcache

// Hooks report response cache events. Implementations must be cheap.
type Hooks interface {
	// A stored frame was deleted on read. reason is one of the Reason* constants.
	SelfHeal(key, reason string)
	// The provider refused a write under pressure.
	SetRejected(key string)
}

type NopHooks struct{}

func (NopHooks) SelfHeal(string, string) {}
func (NopHooks) SetRejected(string)      {}

// MultiHooks fans out to each non-nil element.
type MultiHooks []Hooks

func (m MultiHooks) SelfHeal(key, reason string) {
	for _, h := range m {
		if h != nil {
			h.SelfHeal(key, reason)
		}
	}
}

func (m MultiHooks) SetRejected(key string) {
	for _, h := range m {
		if h != nil {
			h.SetRejected(key)
		}
	}
}
