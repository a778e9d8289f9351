package comms

import "sync"

// ViewState describes the freshness of a cached server-state view.
type ViewState int

const (
	// ViewStale means the cached payload (if any) no longer reflects
	// server state. Views never fetched start out stale.
	ViewStale ViewState = iota
	// ViewRefetching means a fetch for this view is in flight.
	ViewRefetching
	// ViewFresh means the cached payload reflects the last known server state.
	ViewFresh
)

type view struct {
	state   ViewState
	seq     uint64
	payload interface{}
}

// ViewCache tracks the freshness of list views (channels, messages of a
// channel, search results). Each view carries a monotonically increasing
// request sequence; a fetch that completes after a newer fetch began for
// the same view is dropped rather than installed. The server is the source
// of truth: a completed refetch fully replaces the cached payload, never
// merges into it.
type ViewCache struct {
	mu    sync.Mutex
	views map[string]*view
}

// NewViewCache creates an empty view cache.
func NewViewCache() *ViewCache {
	return &ViewCache{views: make(map[string]*view)}
}

func (c *ViewCache) get(key string) *view {
	v, ok := c.views[key]
	if !ok {
		v = &view{state: ViewStale}
		c.views[key] = v
	}
	return v
}

// State returns the current state of a view. Unknown views are stale.
func (c *ViewCache) State(key string) ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(key).state
}

// Get returns the cached payload when the view is fresh.
func (c *ViewCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.get(key)
	if v.state != ViewFresh {
		return nil, false
	}
	return v.payload, true
}

// MarkStale flags views as no longer reflecting server state. Called after
// every successful mutation for each view the mutation affects; failed
// mutations stale nothing. An in-flight fetch for a staled view is
// superseded, since its response predates the mutation.
func (c *ViewCache) MarkStale(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		v := c.get(key)
		v.seq++
		v.state = ViewStale
	}
}

// Begin registers a fetch for the view and returns its sequence number.
// Any fetch begun earlier for the same view is superseded from this point.
func (c *ViewCache) Begin(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.get(key)
	v.seq++
	v.state = ViewRefetching
	return v.seq
}

// Complete installs the fetched payload if seq still identifies the newest
// fetch for the view. Late responses from superseded fetches are dropped
// and Complete reports false.
func (c *ViewCache) Complete(key string, seq uint64, payload interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.get(key)
	if v.seq != seq {
		return false
	}
	v.payload = payload
	v.state = ViewFresh
	return true
}

// Fail returns the view to stale when the failed fetch is still the newest
// one. The cached payload is left untouched.
func (c *ViewCache) Fail(key string, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.get(key)
	if v.seq != seq {
		return
	}
	v.state = ViewStale
}

// View keys. A view's identity is the operation plus its stable parameters;
// fetch arguments like page or query string vary within one view, so a
// rapid sequence of searches contends on a single key and only the newest
// response wins.
const KeyChannels = "channels"

// KeyMessages returns the view key for a channel's message list.
func KeyMessages(channelID string) string {
	return "messages:" + channelID
}

// KeySearch is the view key for search results across all channels.
const KeySearch = "search"
