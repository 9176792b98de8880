// Package browser manages the bounded pool of isolated browser automation
// sessions used to load embed pages and observe their network traffic.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lonelymovie/lonelymovie/internal/sources"
)

var (
	ErrBusy   = errors.New("no browser session available")
	ErrClosed = errors.New("browser pool closed")
)

// Session is one isolated automation context (cookies, storage, pages).
// A session is used by a single lease holder at a time.
type Session interface {
	ID() string
	// StealthID names the stealth profile the session was created with
	StealthID() string
	// Watch starts a new exchange feed scoped to one navigation. Any
	// previous feed is closed.
	Watch(scope Scope) *Feed
	// Navigate loads url. Pages that never finish loading are not an error;
	// DNS, TLS and non-2xx root documents yield a *NavigationError.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// Interact tries to start playback by clicking the first matching selector
	Interact(ctx context.Context, selectors []string) error
	// Cookies returns the Cookie header the session would send to url
	Cookies(ctx context.Context, url string) (string, error)
	// Reset clears cookies and storage and closes every page but one
	Reset(ctx context.Context) error
	Alive() bool
	Close() error
}

// Launcher creates sessions for a stealth profile
type Launcher interface {
	Launch(ctx context.Context, stealth sources.Stealth) (Session, error)
	Close() error
}

// NavigationError reports that the embed page itself failed to load
type NavigationError struct {
	URL    string
	Status int
	Err    error
}

func (e *NavigationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("navigate %s: root document status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("navigate %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }
