// Package util provides logging, styling and the shared HTTP clients
package util

import (
	"container/list"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"
)

// DefaultUserAgent is sent by the HTTP adapters (title search, manifest probe)
// when no captured browser user-agent is available.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// clientSpec sizes one pooled client
type clientSpec struct {
	total   time.Duration
	dial    time.Duration
	idle    int
	perHost int
}

var (
	// title lookups: IMDb pages are slow but worth waiting for
	searchSpec = clientSpec{total: 30 * time.Second, dial: 5 * time.Second, idle: 100, perHost: 30}
	// autocomplete and manifest probes: a late answer is useless
	probeSpec = clientSpec{total: 10 * time.Second, dial: 3 * time.Second, idle: 50, perHost: 20}

	searchClient = sync.OnceValue(func() *http.Client { return searchSpec.build() })
	probeClient  = sync.OnceValue(func() *http.Client { return probeSpec.build() })
)

func (s clientSpec) build() *http.Client {
	dialer := &net.Dialer{Timeout: s.dial, KeepAlive: 30 * time.Second}
	return &http.Client{
		Timeout: s.total,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			MaxIdleConns:        s.idle,
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     s.perHost,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			ForceAttemptHTTP2:   true,
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}
}

// GetSharedClient returns the pooled client for title-search adapters
func GetSharedClient() *http.Client { return searchClient() }

// GetFastClient returns the pooled client for autocomplete and manifest
// probes.
func GetFastClient() *http.Client { return probeClient() }

// ResponseCache keeps decoded upstream answers for a while. Past maxSize the
// least recently used entry goes.
type ResponseCache struct {
	mu      sync.Mutex
	order   *list.List
	index   map[string]*list.Element
	maxAge  time.Duration
	maxSize int
	now     func() time.Time
}

type cached struct {
	key    string
	value  any
	stored time.Time
}

// NewResponseCache creates a cache holding at most maxSize entries for maxAge
func NewResponseCache(maxAge time.Duration, maxSize int) *ResponseCache {
	return &ResponseCache{
		order:   list.New(),
		index:   make(map[string]*list.Element, maxSize),
		maxAge:  maxAge,
		maxSize: max(1, maxSize),
		now:     time.Now,
	}
}

// Get returns a live entry and marks it recently used
func (c *ResponseCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*cached)
	if c.now().Sub(e.stored) > c.maxAge {
		c.order.Remove(el)
		delete(c.index, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return e.value, true
}

// Set stores value under key
func (c *ResponseCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		el.Value = &cached{key: key, value: value, stored: c.now()}
		c.order.MoveToFront(el)
		return
	}
	c.index[key] = c.order.PushFront(&cached{key: key, value: value, stored: c.now()})
	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*cached).key)
	}
}

// Len returns the number of stored entries, expired ones included
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
