package kvcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The driver calls them on hot paths.
type Hooks interface {
	// Stored bytes failed to decode. The read returned the raw string
	// (string destinations) or was treated as a miss.
	DecodeFailed(storageKey string, err error)

	// Remember missed and is about to invoke its producer.
	RememberMiss(storageKey string)

	// Put resolved an expiry that is already in the past.
	ExpiredOnWrite(storageKey string)

	// A store primitive failed; the error is returned to the caller as is.
	// op ∈ {"get", "put", "remove", "flush", "has", "incrby", "getmany", "prune"}
	StoreError(op, storageKey string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) DecodeFailed(string, error)       {}
func (NopHooks) RememberMiss(string)              {}
func (NopHooks) ExpiredOnWrite(string)            {}
func (NopHooks) StoreError(string, string, error) {}
