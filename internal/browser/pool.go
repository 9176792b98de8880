package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/lonelymovie/lonelymovie/internal/sources"
	"github.com/lonelymovie/lonelymovie/internal/util"
)

// Tenant describes who a lease is for. Sessions are only handed between
// tenants of different sources after a full reset.
type Tenant struct {
	SourceID string
	Stealth  sources.Stealth
}

// Handle is an exclusive lease on one session. It must be given back with
// Pool.Release or Pool.Discard exactly once; extra calls are no-ops.
type Handle struct {
	id       string
	session  Session
	tenant   Tenant
	leasedAt time.Time
	dirty    atomic.Bool
	done     atomic.Bool
}

// ID is the identity of this lease
func (h *Handle) ID() string { return h.id }

// Session returns the leased session
func (h *Handle) Session() Session { return h.session }

// MarkDirty records that the session was interrupted mid-navigation and
// must be reset before anyone else uses it.
func (h *Handle) MarkDirty() { h.dirty.Store(true) }

type idleSession struct {
	session  Session
	sourceID string
	dirty    bool
	since    time.Time
}

// Stats is a snapshot of pool occupancy
type Stats struct {
	Size    int `json:"size"`
	Live    int `json:"live"`
	Idle    int `json:"idle"`
	Leased  int `json:"leased"`
	Waiting int `json:"waiting"`
}

// Pool bounds the number of live browser sessions
type Pool struct {
	launcher Launcher
	size     int
	idleTTL  time.Duration
	slots    *semaphore.Weighted
	waiting  atomic.Int64
	now      func() time.Time

	mu     sync.Mutex
	idle   []*idleSession
	leased map[string]*Handle
	live   int
	closed bool
}

// PoolOption configures a Pool
type PoolOption func(*Pool)

// WithIdleTTL closes idle sessions unused for longer than ttl during Prune
func WithIdleTTL(ttl time.Duration) PoolOption {
	return func(p *Pool) { p.idleTTL = ttl }
}

// NewPool creates a pool of at most size live sessions
func NewPool(launcher Launcher, size int, opts ...PoolOption) (*Pool, error) {
	if launcher == nil {
		return nil, errors.New("browser pool: nil launcher")
	}
	if size < 1 {
		return nil, fmt.Errorf("browser pool: size must be >= 1, got %d", size)
	}
	p := &Pool{
		launcher: launcher,
		size:     size,
		idleTTL:  5 * time.Minute,
		slots:    semaphore.NewWeighted(int64(size)),
		now:      time.Now,
		leased:   make(map[string]*Handle, size),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Size returns the maximum number of live sessions
func (p *Pool) Size() int { return p.size }

// Acquire leases a session for tenant, waiting up to timeout for a free
// slot. It fails with ErrBusy when the wait times out, or with ctx.Err()
// when the caller's context ends first.
func (p *Pool) Acquire(ctx context.Context, tenant Tenant, timeout time.Duration) (*Handle, error) {
	if p.isClosed() {
		return nil, ErrClosed
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	p.waiting.Add(1)
	err := p.slots.Acquire(waitCtx, 1)
	p.waiting.Add(-1)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrBusy
	}

	h, err := p.checkout(ctx, tenant)
	if err != nil {
		p.slots.Release(1)
		return nil, err
	}
	util.Debug("Session leased", "lease", h.id, "session", h.session.ID(), "source", tenant.SourceID)
	return h, nil
}

func (p *Pool) checkout(ctx context.Context, tenant Tenant) (*Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}

	picked := p.takeIdleLocked(tenant)
	var evicted Session
	if picked == nil {
		if p.live >= p.size && len(p.idle) > 0 {
			evicted = p.idle[0].session
			p.idle = p.idle[1:]
			p.live--
		}
		p.live++ // reserved for the session launched below
	}
	p.mu.Unlock()

	if evicted != nil {
		closeQuietly(evicted)
	}

	var sess Session
	if picked != nil {
		sess = p.revive(ctx, picked, tenant)
	}
	if sess == nil {
		var err error
		sess, err = p.launcher.Launch(ctx, tenant.Stealth)
		if err != nil {
			p.mu.Lock()
			p.live--
			p.mu.Unlock()
			return nil, fmt.Errorf("launch session: %w", err)
		}
	}

	h := &Handle{
		id:       uuid.NewString(),
		session:  sess,
		tenant:   tenant,
		leasedAt: p.now(),
	}

	p.mu.Lock()
	p.leased[h.id] = h
	p.mu.Unlock()
	return h, nil
}

// takeIdleLocked removes and returns the best idle session for tenant:
// same stealth profile, preferring one last used by the same source.
func (p *Pool) takeIdleLocked(tenant Tenant) *idleSession {
	best := -1
	for i, s := range p.idle {
		if s.session.StealthID() != tenant.Stealth.ID {
			continue
		}
		if s.sourceID == tenant.SourceID && !s.dirty {
			best = i
			break
		}
		if best < 0 {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	picked := p.idle[best]
	p.idle = append(p.idle[:best], p.idle[best+1:]...)
	return picked
}

// revive prepares an idle session for tenant. It returns nil when the
// session is unusable; the caller then launches a replacement that takes
// over the dead session's live count.
func (p *Pool) revive(ctx context.Context, s *idleSession, tenant Tenant) Session {
	if !s.session.Alive() {
		util.Debug("Replacing dead session", "session", s.session.ID())
		closeQuietly(s.session)
		return nil
	}
	if s.dirty || s.sourceID != tenant.SourceID {
		if err := s.session.Reset(ctx); err != nil {
			util.Warn("Session reset failed, replacing", "session", s.session.ID(), "error", err)
			closeQuietly(s.session)
			return nil
		}
	}
	return s.session
}

// Release returns a lease. Dead sessions are closed instead of pooled.
func (p *Pool) Release(h *Handle) {
	if h == nil || !h.done.CompareAndSwap(false, true) {
		return
	}
	defer p.slots.Release(1)

	sess := h.session
	p.mu.Lock()
	delete(p.leased, h.id)
	if p.closed || !sess.Alive() {
		p.live--
		p.mu.Unlock()
		closeQuietly(sess)
		return
	}
	p.idle = append(p.idle, &idleSession{
		session:  sess,
		sourceID: h.tenant.SourceID,
		dirty:    h.dirty.Load(),
		since:    p.now(),
	})
	p.mu.Unlock()
	util.Debug("Session released", "lease", h.id, "dirty", h.dirty.Load())
}

// Discard ends a lease and closes its session, e.g. after an engine fault
func (p *Pool) Discard(h *Handle) {
	if h == nil || !h.done.CompareAndSwap(false, true) {
		return
	}
	defer p.slots.Release(1)

	p.mu.Lock()
	delete(p.leased, h.id)
	p.live--
	p.mu.Unlock()
	closeQuietly(h.session)
	util.Debug("Session discarded", "lease", h.id)
}

// Prune closes idle sessions that are dead or unused for longer than the idle TTL
func (p *Pool) Prune() int {
	now := p.now()
	var stale []Session

	p.mu.Lock()
	kept := p.idle[:0]
	for _, s := range p.idle {
		if !s.session.Alive() || now.Sub(s.since) > p.idleTTL {
			stale = append(stale, s.session)
			p.live--
			continue
		}
		kept = append(kept, s)
	}
	p.idle = kept
	p.mu.Unlock()

	for _, s := range stale {
		closeQuietly(s)
	}
	return len(stale)
}

// Run prunes idle sessions periodically until ctx ends
func (p *Pool) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.Prune(); n > 0 {
				util.Debug("Pruned idle sessions", "count", n)
			}
		}
	}
}

// Stats returns current occupancy
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Size:    p.size,
		Live:    p.live,
		Idle:    len(p.idle),
		Leased:  len(p.leased),
		Waiting: int(p.waiting.Load()),
	}
}

// Close closes idle sessions and the launcher. Leased sessions are closed
// when released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.live -= len(idle)
	p.mu.Unlock()

	for _, s := range idle {
		closeQuietly(s.session)
	}
	return p.launcher.Close()
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func closeQuietly(s Session) {
	if err := s.Close(); err != nil {
		util.Debug("Session close failed", "session", s.ID(), "error", err)
	}
}
