// Package cache memoizes extraction outcomes per title and source for a
// short window. Entries expire; nothing is persisted.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/lonelymovie/lonelymovie/internal/models"
	"github.com/lonelymovie/lonelymovie/internal/util"
)

// Key identifies one extraction target
type Key struct {
	TitleID   string
	SourceID  string
	MediaType models.MediaType
	Season    int
	Episode   int
}

// KeyFor builds the cache key of a title on a source
func KeyFor(ref models.TitleRef, source string) Key {
	return Key{
		TitleID:   ref.ID,
		SourceID:  source,
		MediaType: ref.Type,
		Season:    ref.Season,
		Episode:   ref.Episode,
	}
}

func (k Key) String() string {
	if k.MediaType == models.MediaTypeEpisode {
		return fmt.Sprintf("%s/%s/s%de%d", k.SourceID, k.TitleID, k.Season, k.Episode)
	}
	return k.SourceID + "/" + k.TitleID
}

// Entry is a cached outcome: a descriptor, or a negative marker with the
// reason extraction failed.
type Entry struct {
	Descriptor models.StreamDescriptor
	Negative   bool
	Reason     string
	Created    time.Time
	Expires    time.Time
}

// Expired reports whether the entry may no longer be served at now
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.Expires)
}

// Config bounds entry lifetimes. Negative outcomes always expire sooner
// than positive ones.
type Config struct {
	PositiveTTL time.Duration
	NegativeTTL time.Duration
	MaxTTL      time.Duration
	MaxEntries  int
}

// DefaultConfig returns the lifetimes used when nothing is configured
func DefaultConfig() Config {
	return Config{
		PositiveTTL: 10 * time.Minute,
		NegativeTTL: 2 * time.Minute,
		MaxTTL:      time.Hour,
		MaxEntries:  5000,
	}
}

// Validate checks the TTL ordering
func (c Config) Validate() error {
	switch {
	case c.PositiveTTL <= 0 || c.NegativeTTL <= 0:
		return errors.New("cache: ttls must be positive")
	case c.NegativeTTL >= c.PositiveTTL:
		return fmt.Errorf("cache: negative ttl %s must be shorter than positive ttl %s", c.NegativeTTL, c.PositiveTTL)
	case c.MaxTTL < c.PositiveTTL:
		return fmt.Errorf("cache: max ttl %s below positive ttl %s", c.MaxTTL, c.PositiveTTL)
	case c.MaxEntries < 1:
		return errors.New("cache: max entries must be >= 1")
	}
	return nil
}

// Cache is safe for concurrent use. Concurrent puts for one key resolve
// last-writer-wins.
type Cache struct {
	cfg     Config
	now     func() time.Time
	entries *xsync.MapOf[Key, Entry]

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Cache
type Option func(*Cache)

// WithClock replaces time.Now, for simulated time in tests
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache
func New(cfg Config, opts ...Option) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Cache{
		cfg:     cfg,
		now:     time.Now,
		entries: xsync.NewMapOf[Key, Entry](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the lifetimes in use
func (c *Cache) Config() Config { return c.cfg }

// Get returns the live entry for key. Expired entries are removed and
// reported as a miss.
func (c *Cache) Get(key Key) (Entry, bool) {
	now := c.now()
	e, ok := c.entries.Load(key)
	if ok && !e.Expired(now) {
		c.hits.Add(1)
		return e, true
	}
	if ok {
		c.deleteIfExpired(key, now)
	}
	c.misses.Add(1)
	return Entry{}, false
}

// Put stores a descriptor for ttl, clamped to the configured maximum.
// A zero ttl uses the positive TTL; a non-playable descriptor is stored as
// a negative entry.
func (c *Cache) Put(key Key, d models.StreamDescriptor, ttl time.Duration) Entry {
	if !d.Playable() {
		return c.PutNegative(key, "no stream", ttl)
	}
	if ttl <= 0 {
		ttl = c.cfg.PositiveTTL
	}
	return c.store(key, Entry{Descriptor: d}, ttl)
}

// PutNegative stores a negative marker. A zero ttl uses the negative TTL,
// and the lifetime never exceeds it.
func (c *Cache) PutNegative(key Key, reason string, ttl time.Duration) Entry {
	if ttl <= 0 || ttl > c.cfg.NegativeTTL {
		ttl = c.cfg.NegativeTTL
	}
	return c.store(key, Entry{
		Descriptor: models.NoStream(key.SourceID),
		Negative:   true,
		Reason:     reason,
	}, ttl)
}

func (c *Cache) store(key Key, e Entry, ttl time.Duration) Entry {
	if ttl > c.cfg.MaxTTL {
		ttl = c.cfg.MaxTTL
	}
	now := c.now()
	e.Created = now
	e.Expires = now.Add(ttl)
	c.entries.Store(key, e)

	if c.entries.Size() > c.cfg.MaxEntries {
		c.evict(now)
	}
	return e
}

// Delete drops an entry
func (c *Cache) Delete(key Key) {
	c.entries.Delete(key)
}

func (c *Cache) deleteIfExpired(key Key, now time.Time) {
	c.entries.Compute(key, func(old Entry, loaded bool) (Entry, bool) {
		// a fresh entry written since the Load stays
		return old, !loaded || old.Expired(now)
	})
}

// evict removes expired entries, then the oldest ones until within bounds
func (c *Cache) evict(now time.Time) {
	removed := c.Sweep()
	for c.entries.Size() > c.cfg.MaxEntries {
		var oldestKey Key
		var oldest time.Time
		first := true
		c.entries.Range(func(k Key, e Entry) bool {
			if first || e.Created.Before(oldest) {
				oldestKey, oldest, first = k, e.Created, false
			}
			return true
		})
		if first {
			break
		}
		c.entries.Delete(oldestKey)
		removed++
	}
	util.Debug("Cache eviction", "removed", removed, "at", now.Format(time.RFC3339))
}

// Sweep removes every expired entry and returns how many were dropped
func (c *Cache) Sweep() int {
	now := c.now()
	var expired []Key
	c.entries.Range(func(k Key, e Entry) bool {
		if e.Expired(now) {
			expired = append(expired, k)
		}
		return true
	})
	for _, k := range expired {
		c.deleteIfExpired(k, now)
	}
	return len(expired)
}

// Run sweeps expired entries every interval until ctx ends
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				util.Debug("Cache sweep", "expired", n)
			}
		}
	}
}

// Stats is a snapshot of cache usage
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Stats returns usage counters
func (c *Cache) Stats() Stats {
	return Stats{
		Entries: c.entries.Size(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
