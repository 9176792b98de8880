package browser

import (
	"context"
	"errors"
	"sync"

	"github.com/lonelymovie/lonelymovie/internal/models"
)

// ErrFeedClosed is returned by Next once a closed feed is drained
var ErrFeedClosed = errors.New("exchange feed closed")

// Feed is the ordered sequence of exchanges one navigation produces.
// Engines Push from their event hooks; a single consumer calls Next. The
// buffer is unbounded so a slow consumer never loses an exchange.
type Feed struct {
	scope Scope

	mu     sync.Mutex
	items  []models.Exchange
	closed bool
	seq    uint64
	notify chan struct{}
}

// NewFeed creates an open feed for a navigation scope
func NewFeed(scope Scope) *Feed {
	return &Feed{
		scope:  scope,
		notify: make(chan struct{}, 1),
	}
}

// Scope returns the navigation the feed observes
func (f *Feed) Scope() Scope {
	return f.scope
}

// Push appends an exchange in arrival order. It returns false when the feed
// is closed.
func (f *Feed) Push(ex models.Exchange) bool {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return false
	}
	f.seq++
	ex.Seq = f.seq
	f.items = append(f.items, ex)
	f.mu.Unlock()

	f.signal()
	return true
}

// Next blocks until an exchange is available, the feed is closed and
// drained, or ctx ends.
func (f *Feed) Next(ctx context.Context) (models.Exchange, error) {
	for {
		f.mu.Lock()
		if len(f.items) > 0 {
			ex := f.items[0]
			f.items[0] = models.Exchange{}
			f.items = f.items[1:]
			f.mu.Unlock()
			return ex, nil
		}
		closed := f.closed
		f.mu.Unlock()
		if closed {
			return models.Exchange{}, ErrFeedClosed
		}

		select {
		case <-ctx.Done():
			return models.Exchange{}, ctx.Err()
		case <-f.notify:
		}
	}
}

// Close stops accepting exchanges and discards the unread ones
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.items = nil
	f.mu.Unlock()
	f.signal()
}

// Closed reports whether Close was called
func (f *Feed) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Feed) signal() {
	select {
	case f.notify <- struct{}{}:
	default:
	}
}
