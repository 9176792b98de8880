// Package browsertest provides a scripted browser engine for tests
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lonelymovie/lonelymovie/internal/browser"
	"github.com/lonelymovie/lonelymovie/internal/models"
	"github.com/lonelymovie/lonelymovie/internal/sources"
)

// Step is one exchange a scripted page emits after Delay
type Step struct {
	Delay    time.Duration
	Exchange models.Exchange
}

// Launcher creates scripted sessions. Script decides which exchanges a
// navigation to a URL produces; NavErr may fail a navigation.
type Launcher struct {
	Script    func(url string) []Step
	NavErr    func(url string) error
	NavDelay  time.Duration
	LaunchErr error
	Cookie    string
	// InteractPanic, when set, is raised by every play-button click
	InteractPanic any

	launched atomic.Int32
	closed   atomic.Bool

	mu       sync.Mutex
	sessions []*Session
}

// Launch implements browser.Launcher
func (l *Launcher) Launch(ctx context.Context, stealth sources.Stealth) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	n := l.launched.Add(1)
	s := &Session{
		id:        fmt.Sprintf("fake-%d", n),
		stealthID: stealth.ID,
		launcher:  l,
	}
	s.alive.Store(true)

	l.mu.Lock()
	l.sessions = append(l.sessions, s)
	l.mu.Unlock()
	return s, nil
}

// Close implements browser.Launcher
func (l *Launcher) Close() error {
	l.closed.Store(true)
	return nil
}

// Launched returns how many sessions were created
func (l *Launcher) Launched() int { return int(l.launched.Load()) }

// Closed reports whether Close was called
func (l *Launcher) Closed() bool { return l.closed.Load() }

// Sessions returns every session created so far
func (l *Launcher) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Session(nil), l.sessions...)
}

// Session is a scripted browser.Session
type Session struct {
	id        string
	stealthID string
	launcher  *Launcher

	feed        atomic.Pointer[browser.Feed]
	alive       atomic.Bool
	closed      atomic.Bool
	busy        atomic.Int32
	overlaps    atomic.Int32
	resets      atomic.Int32
	navigations atomic.Int32
	interacts   atomic.Int32
}

func (s *Session) ID() string        { return s.id }
func (s *Session) StealthID() string { return s.stealthID }

func (s *Session) Watch(scope browser.Scope) *browser.Feed {
	f := browser.NewFeed(scope)
	if old := s.feed.Swap(f); old != nil {
		old.Close()
	}
	return f
}

func (s *Session) Navigate(ctx context.Context, url string, _ time.Duration) error {
	if s.busy.Add(1) > 1 {
		s.overlaps.Add(1)
	}
	defer s.busy.Add(-1)
	s.navigations.Add(1)

	feed := s.feed.Load()
	if s.launcher.NavDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.launcher.NavDelay):
		}
	}
	if s.launcher.NavErr != nil {
		if err := s.launcher.NavErr(url); err != nil {
			return err
		}
	}
	if feed != nil && s.launcher.Script != nil {
		go emit(feed, s.launcher.Script(url))
	}
	return nil
}

func emit(feed *browser.Feed, steps []Step) {
	for _, st := range steps {
		if st.Delay > 0 {
			time.Sleep(st.Delay)
		}
		if feed.Closed() {
			return
		}
		feed.Push(st.Exchange)
	}
}

func (s *Session) Interact(context.Context, []string) error {
	s.interacts.Add(1)
	if p := s.launcher.InteractPanic; p != nil {
		panic(p)
	}
	return nil
}

func (s *Session) Cookies(context.Context, string) (string, error) {
	return s.launcher.Cookie, nil
}

func (s *Session) Reset(context.Context) error {
	s.resets.Add(1)
	if f := s.feed.Swap(nil); f != nil {
		f.Close()
	}
	return nil
}

func (s *Session) Alive() bool { return s.alive.Load() && !s.closed.Load() }

func (s *Session) Close() error {
	s.closed.Store(true)
	if f := s.feed.Swap(nil); f != nil {
		f.Close()
	}
	return nil
}

// Kill simulates a crashed browser process
func (s *Session) Kill() { s.alive.Store(false) }

// Resets returns how many times the session was reset
func (s *Session) Resets() int { return int(s.resets.Load()) }

// Navigations returns how many navigations ran on the session
func (s *Session) Navigations() int { return int(s.navigations.Load()) }

// Interactions returns how many play attempts ran on the session
func (s *Session) Interactions() int { return int(s.interacts.Load()) }

// Overlaps returns how many navigations started while another was running
func (s *Session) Overlaps() int { return int(s.overlaps.Load()) }

// IsClosed reports whether Close was called
func (s *Session) IsClosed() bool { return s.closed.Load() }
