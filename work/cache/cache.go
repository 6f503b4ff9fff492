package cache

import (
	"strings"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/puzpuzpuz/xsync/v3"

	"stream-renamer/work/types"
)

// Lookup results reported by Load.
const (
	ResultHit    = "hit"    // served from a fresh cache record
	ResultMiss   = "miss"   // this caller ran the loader
	ResultShared = "shared" // waited on another caller's in-flight load
)

// Key identifies a cached reply. Source is the normalized upstream manifest URL
// and so carries its query string. Device is empty unless replies are
// partitioned by device class.
type Key struct {
	Type   string
	ID     string
	Source string
	Device string
}

// String returns the flat form used as the map key.
func (k Key) String() string {
	return strings.Join([]string{k.Type, k.ID, k.Source, k.Device}, "|")
}

// record is a cached reply with its creation time.
type record struct {
	value     *types.StreamResponse
	createdAt time.Time
}

// call is an in-flight load other callers can wait on.
type call struct {
	done  chan struct{}
	value *types.StreamResponse
}

// Cache is the in-process reply cache. Records older than the TTL are treated
// as absent; otter additionally evicts them in the background and bounds the
// total number of records.
type Cache struct {
	store    *otter.Cache[string, record]
	inflight *xsync.MapOf[string, *call]
	ttl      time.Duration
	now      func() time.Time
}

// New creates a cache holding at most maxEntries records for ttl each.
func New(ttl time.Duration, maxEntries int) *Cache {
	store := otter.Must(&otter.Options[string, record]{
		MaximumSize:      maxEntries,
		ExpiryCalculator: otter.ExpiryWriting[string, record](ttl),
	})

	return &Cache{
		store:    store,
		inflight: xsync.NewMapOf[string, *call](),
		ttl:      ttl,
		now:      time.Now,
	}
}

// SetClock replaces the time source of TTL checks. It must be called before
// the cache is shared.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// Get returns the stored reply for key when it is younger than the TTL. A hit
// returns the identical pointer that was stored.
func (c *Cache) Get(key Key) (*types.StreamResponse, bool) {
	k := key.String()

	rec, ok := c.store.GetIfPresent(k)
	if !ok {
		return nil, false
	}

	if c.now().Sub(rec.createdAt) >= c.ttl {
		c.store.Invalidate(k)
		return nil, false
	}

	return rec.value, true
}

// Put stores value under key, replacing any older record.
func (c *Cache) Put(key Key, value *types.StreamResponse) {
	c.store.Set(key.String(), record{value: value, createdAt: c.now()})
}

// Load returns the cached reply for key or runs load to produce it. Concurrent
// callers for the same key share one load; callers for different keys never
// wait on each other. The loaded value is stored only when load reports it as
// cacheable.
func (c *Cache) Load(key Key, load func() (*types.StreamResponse, bool)) (*types.StreamResponse, string) {
	if v, ok := c.Get(key); ok {
		return v, ResultHit
	}

	k := key.String()
	mine := &call{done: make(chan struct{})}

	existing, loaded := c.inflight.LoadOrStore(k, mine)
	if loaded {
		<-existing.done
		return existing.value, ResultShared
	}

	defer func() {
		c.inflight.Delete(k)
		close(mine.done)
	}()

	// a load may have finished between the first lookup and claiming the key
	if v, ok := c.Get(key); ok {
		mine.value = v
		return v, ResultHit
	}

	value, cacheable := load()
	mine.value = value
	if cacheable && value != nil {
		c.Put(key, value)
	}

	return value, ResultMiss
}

// Flush drops every record.
func (c *Cache) Flush() {
	c.store.InvalidateAll()
}

// Len returns the approximate number of stored records.
func (c *Cache) Len() int {
	return c.store.EstimatedSize()
}

// InFlight returns the number of loads currently running.
func (c *Cache) InFlight() int {
	return c.inflight.Size()
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}
