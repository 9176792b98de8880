// Package extract drives one extraction from cache lookup through browser
// navigation and network capture to a terminal outcome.
package extract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lonelymovie/lonelymovie/internal/browser"
	"github.com/lonelymovie/lonelymovie/internal/cache"
	"github.com/lonelymovie/lonelymovie/internal/capture"
	"github.com/lonelymovie/lonelymovie/internal/models"
	"github.com/lonelymovie/lonelymovie/internal/sources"
	"github.com/lonelymovie/lonelymovie/internal/util"
)

// Pool leases browser sessions. *browser.Pool implements it.
type Pool interface {
	Acquire(ctx context.Context, tenant browser.Tenant, timeout time.Duration) (*browser.Handle, error)
	Release(h *browser.Handle)
	Discard(h *browser.Handle)
}

// Verifier checks that a captured HLS manifest is really a playlist
type Verifier interface {
	Verify(ctx context.Context, d models.StreamDescriptor) error
}

// Reporter receives every terminal outcome, for metrics and health tracking
type Reporter interface {
	Report(ctx context.Context, out Outcome)
}

// Settings tunes the engine
type Settings struct {
	// AcquireTimeout bounds the wait for a free browser session
	AcquireTimeout time.Duration
	// NavigationTimeout bounds page load; the capture window keeps running
	// after it. Capped by the profile timeout.
	NavigationTimeout time.Duration
	// InteractDelay is how long to let the page settle before clicking play
	InteractDelay time.Duration
	// Lookahead keeps capturing after the first HLS hit to prefer a master
	// playlist. Zero returns the first hit.
	Lookahead time.Duration
	// VerifyManifests fetches HLS hits once to adjust confidence
	VerifyManifests bool
}

// DefaultSettings returns the settings used by the server
func DefaultSettings() Settings {
	return Settings{
		AcquireTimeout:    10 * time.Second,
		NavigationTimeout: 15 * time.Second,
		InteractDelay:     1500 * time.Millisecond,
	}
}

// Engine runs extractions. It is safe for concurrent use; concurrency is
// bounded by the pool.
type Engine struct {
	registry  *sources.Registry
	pool      Pool
	cache     *cache.Cache
	settings  Settings
	limiters  map[string]*rate.Limiter
	verifier  Verifier
	reporters []Reporter
	observers []Observer
	now       func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

func WithSettings(s Settings) Option {
	return func(e *Engine) { e.settings = s }
}

func WithVerifier(v Verifier) Option {
	return func(e *Engine) { e.verifier = v }
}

func WithReporter(r Reporter) Option {
	return func(e *Engine) { e.reporters = append(e.reporters, r) }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithClock replaces time.Now for submission and elapsed-time accounting.
// Capture windows always run on the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New wires an engine around an explicit registry, pool and cache
func New(registry *sources.Registry, pool Pool, c *cache.Cache, opts ...Option) (*Engine, error) {
	if registry == nil || pool == nil || c == nil {
		return nil, errors.New("extract: registry, pool and cache are required")
	}
	e := &Engine{
		registry: registry,
		pool:     pool,
		cache:    c,
		settings: DefaultSettings(),
		limiters: make(map[string]*rate.Limiter),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, p := range registry.All() {
		if p.RatePerMinute > 0 {
			burst := 1 + p.RatePerMinute/10
			e.limiters[p.ID] = rate.NewLimiter(rate.Every(time.Minute/time.Duration(p.RatePerMinute)), burst)
		}
	}
	return e, nil
}

// Registry returns the profile registry the engine resolves sources from
func (e *Engine) Registry() *sources.Registry { return e.registry }

// Extract runs req to a terminal state. On Completed the outcome carries a
// descriptor, possibly NoStream. On Failed it returns an *Error whose Kind
// says what went wrong; the outcome still carries the embed URL when the
// source is known.
func (e *Engine) Extract(ctx context.Context, req Request) (out Outcome, err error) {
	if req.Submitted.IsZero() {
		req.Submitted = e.now()
	}
	r := &run{
		engine: e,
		req:    req,
		out: Outcome{
			Request:    req,
			State:      StateQueued,
			Descriptor: models.NoStream(req.SourceID),
		},
	}
	defer func() {
		if p := recover(); p != nil {
			util.Error("Extraction panicked", "request", req.ID, "source", req.SourceID, "panic", p)
			out, err = r.fail(KindInternal, fmt.Errorf("panic: %v", p))
		}
		out.Elapsed = e.now().Sub(req.Submitted)
		e.report(ctx, out)
	}()
	return r.execute(ctx)
}

func (e *Engine) report(ctx context.Context, out Outcome) {
	if len(e.reporters) == 0 {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	for _, rep := range e.reporters {
		rep.Report(rctx, out)
	}
}

// run is the mutable state of one extraction
type run struct {
	engine *Engine
	req    Request
	out    Outcome
	key    cache.Key
}

func (r *run) transition(to State) {
	from := r.out.State
	r.out.State = to
	util.Debug("Extraction state", "request", r.req.ID, "source", r.req.SourceID, "from", from, "to", to)
	for _, obs := range r.engine.observers {
		obs(r.req, from, to)
	}
}

func (r *run) complete(d models.StreamDescriptor) (Outcome, error) {
	r.out.Descriptor = d
	r.transition(StateCompleted)
	return r.out, nil
}

func (r *run) fail(kind Kind, err error) (Outcome, error) {
	r.out.Reason = kind
	r.out.Descriptor = models.NoStream(r.req.SourceID)
	r.transition(StateFailed)
	return r.out, &Error{Kind: kind, Source: r.req.SourceID, Err: err}
}

// timeout fails on caller context expiry. Only an expired deadline during
// page work says something about the source; cancellation and waiting for
// capacity are not cached.
func (r *run) timeout(ctx context.Context, cacheable bool) (Outcome, error) {
	err := ctx.Err()
	if err == nil {
		err = context.DeadlineExceeded
	}
	if cacheable && errors.Is(err, context.DeadlineExceeded) {
		r.engine.cache.PutNegative(r.key, string(KindTimeout), 0)
	}
	return r.fail(KindTimeout, err)
}

func (r *run) execute(ctx context.Context) (Outcome, error) {
	e := r.engine

	profile, err := e.registry.Profile(r.req.SourceID)
	if err != nil {
		return r.fail(KindNotFound, err)
	}
	if err := r.req.Title.Validate(); err != nil {
		return r.fail(KindNotFound, err)
	}
	embedURL, err := profile.EmbedURL(r.req.Title)
	if err != nil {
		return r.fail(KindNotFound, err)
	}
	r.out.EmbedURL = embedURL
	r.key = cache.KeyFor(r.req.Title, profile.ID)

	r.transition(StateCacheCheck)
	if entry, ok := e.cache.Get(r.key); ok {
		r.out.Cached = true
		return r.complete(entry.Descriptor)
	}
	if ctx.Err() != nil {
		return r.timeout(ctx, false)
	}

	r.transition(StateSessionWait)
	if lim := e.limiters[profile.ID]; lim != nil {
		if err := lim.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return r.timeout(ctx, false)
			}
			return r.fail(KindPoolExhausted, fmt.Errorf("rate limited: %w", err))
		}
	}
	h, err := e.pool.Acquire(ctx, browser.Tenant{SourceID: profile.ID, Stealth: profile.Stealth}, e.settings.AcquireTimeout)
	switch {
	case err == nil:
	case errors.Is(err, browser.ErrBusy):
		return r.fail(KindPoolExhausted, err)
	case ctx.Err() != nil:
		return r.timeout(ctx, false)
	default:
		return r.fail(KindInternal, err)
	}
	return r.drive(ctx, h, profile)
}

// drive owns the lease. The session goes back to the pool on every exit,
// including panics, and is discarded when its state is unknown.
func (r *run) drive(ctx context.Context, h *browser.Handle, profile sources.Profile) (out Outcome, err error) {
	e := r.engine
	discard := false
	defer func() {
		if p := recover(); p != nil {
			e.pool.Discard(h)
			panic(p)
		}
		if discard {
			e.pool.Discard(h)
		} else {
			e.pool.Release(h)
		}
	}()

	attempts := max(1, profile.Attempts)
	for attempt := 1; attempt <= attempts; attempt++ {
		r.out.Attempts = attempt
		if attempt > 1 {
			util.Debug("Retrying extraction", "request", r.req.ID, "source", profile.ID, "attempt", attempt)
			if err := h.Session().Reset(ctx); err != nil {
				discard = true
				if ctx.Err() != nil {
					return r.timeout(ctx, true)
				}
				return r.fail(KindInternal, err)
			}
		}

		d, err := r.attempt(ctx, h, profile)
		if err == nil {
			if d.Playable() {
				d = r.verify(ctx, d)
				e.cache.Put(r.key, d, 0)
				return r.complete(d)
			}
			if attempt < attempts && ctx.Err() == nil {
				continue
			}
			e.cache.PutNegative(r.key, "no stream", 0)
			return r.complete(d)
		}

		switch kind := KindOf(err); kind {
		case KindNavigation:
			if attempt < attempts && ctx.Err() == nil {
				continue
			}
			e.cache.PutNegative(r.key, string(kind), 0)
			return r.fail(kind, errors.Unwrap(err))
		case KindTimeout:
			h.MarkDirty()
			return r.timeout(ctx, true)
		default:
			discard = true
			return r.fail(KindInternal, errors.Unwrap(err))
		}
	}
	// unreachable: the last attempt always returns
	return r.fail(KindInternal, errors.New("no attempt made"))
}

// attempt performs one navigation and capture on the leased session
func (r *run) attempt(ctx context.Context, h *browser.Handle, profile sources.Profile) (models.StreamDescriptor, error) {
	e := r.engine
	sess := h.Session()
	none := models.NoStream(profile.ID)

	feed := sess.Watch(browser.Scope{EmbedURL: r.out.EmbedURL, RelatedHosts: profile.RelatedHosts()})
	defer feed.Close()

	r.transition(StateNavigating)
	deadline := time.Now().Add(profile.Timeout)
	navTimeout := profile.Timeout
	if t := e.settings.NavigationTimeout; t > 0 && t < navTimeout {
		navTimeout = t
	}
	if err := sess.Navigate(ctx, r.out.EmbedURL, navTimeout); err != nil {
		if ctx.Err() != nil {
			return none, &Error{Kind: KindTimeout, Source: profile.ID, Err: ctx.Err()}
		}
		var navErr *browser.NavigationError
		if errors.As(err, &navErr) {
			util.Warn("Embed page failed to load", "source", profile.ID, "url", r.out.EmbedURL, "status", navErr.Status, "error", navErr.Err)
			return none, &Error{Kind: KindNavigation, Source: profile.ID, Err: err}
		}
		return none, &Error{Kind: KindInternal, Source: profile.ID, Err: err}
	}

	r.transition(StateCapturing)
	ictx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	// a panic while clicking is re-raised on this goroutine once the
	// interaction has stopped, so drive discards the session
	panicked := make(chan any, 1)
	if selectors := profile.PlaySelectors(); len(selectors) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					panicked <- p
				}
			}()
			select {
			case <-ictx.Done():
				return
			case <-time.After(e.settings.InteractDelay):
			}
			if err := sess.Interact(ictx, selectors); err != nil && ictx.Err() == nil {
				util.Debug("Play interaction failed", "source", profile.ID, "error", err)
			}
		}()
	}

	var opts []capture.Option
	if e.settings.Lookahead > 0 {
		opts = append(opts, capture.WithLookahead(e.settings.Lookahead))
	}
	d, err := capture.Capture(ctx, feed, profile, deadline, opts...)
	stop()
	wg.Wait()
	select {
	case p := <-panicked:
		panic(p)
	default:
	}

	if err != nil {
		if ctx.Err() != nil {
			return none, &Error{Kind: KindTimeout, Source: profile.ID, Err: ctx.Err()}
		}
		return none, &Error{Kind: KindInternal, Source: profile.ID, Err: err}
	}
	if !d.Playable() {
		return d, nil
	}
	if cookie, err := sess.Cookies(ctx, d.URL); err != nil {
		util.Debug("Reading cookies failed", "source", profile.ID, "error", err)
	} else if cookie != "" {
		d = d.WithHeader("Cookie", cookie)
	}
	return d, nil
}

// verify fetches an HLS hit once. A playlist raises confidence; a fetch
// that does not look like one lowers it. The descriptor is kept either way.
func (r *run) verify(ctx context.Context, d models.StreamDescriptor) models.StreamDescriptor {
	e := r.engine
	if !e.settings.VerifyManifests || e.verifier == nil || d.Subtype != models.SubtypeHLS {
		return d
	}
	if err := e.verifier.Verify(ctx, d); err != nil {
		util.Debug("Manifest check failed", "source", d.Source, "url", d.URL, "error", err)
		return d.WithConfidence(models.ConfidenceLow)
	}
	return d.WithConfidence(models.ConfidenceHigh)
}
