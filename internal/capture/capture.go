// Package capture mines a session's network exchanges for a playable
// manifest or media file using a source profile's ordered rules.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lonelymovie/lonelymovie/internal/models"
	"github.com/lonelymovie/lonelymovie/internal/sources"
	"github.com/lonelymovie/lonelymovie/internal/util"
)

// Feed yields exchanges in arrival order
type Feed interface {
	Next(ctx context.Context) (models.Exchange, error)
}

// Match is a rule hit on one exchange
type Match struct {
	Exchange models.Exchange
	Rule     sources.Rule
}

type options struct {
	lookahead time.Duration
	onMatch   func(Match)
}

// Option tunes a capture
type Option func(*options)

// WithLookahead keeps listening for window after the first match and
// prefers a higher ranked manifest of the same kind. Zero disables it.
func WithLookahead(window time.Duration) Option {
	return func(o *options) { o.lookahead = window }
}

// WithMatchHook is called for every rule hit, including ones look-ahead discards
func WithMatchHook(fn func(Match)) Option {
	return func(o *options) { o.onMatch = fn }
}

// Capture watches feed until an exchange satisfies one of the profile's
// rules or the deadline passes. The first qualifying exchange wins. When
// the deadline passes without a match it returns NoStream and no error.
// When ctx ends first it returns ctx.Err(). A feed that ends early yields
// its error wrapped.
func Capture(ctx context.Context, feed Feed, profile sources.Profile, deadline time.Time, opts ...Option) (models.StreamDescriptor, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	capCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	rules := profile.Rules()
	seen := 0
	for {
		ex, err := feed.Next(capCtx)
		if err != nil {
			return noMatch(ctx, profile, seen, err)
		}
		seen++

		m, ok := Evaluate(profile, rules, ex)
		if !ok {
			continue
		}
		if o.onMatch != nil {
			o.onMatch(m)
		}
		if o.lookahead > 0 && m.Rule.Subtype == models.SubtypeHLS {
			m = lookAhead(capCtx, feed, profile, rules, m, o)
		}

		d, err := Describe(profile.ID, m)
		if err != nil {
			util.Debug("Discarding unusable match", "source", profile.ID, "url", ex.URL, "error", err)
			continue
		}
		util.Debug("Stream captured", "source", profile.ID, "rule", m.Rule.String(), "after", seen, "url", d.URL)
		return d, nil
	}
}

func noMatch(ctx context.Context, profile sources.Profile, seen int, err error) (models.StreamDescriptor, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return models.NoStream(profile.ID), ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		util.Debug("Capture deadline reached", "source", profile.ID, "exchanges", seen)
		return models.NoStream(profile.ID), nil
	}
	return models.NoStream(profile.ID), fmt.Errorf("capture %s: %w", profile.ID, err)
}

// Evaluate applies the rejection filters and then the rules in declared
// order. It returns the first rule that matches.
func Evaluate(profile sources.Profile, rules []sources.Rule, ex models.Exchange) (Match, bool) {
	if ex.URL == "" || ex.Failed() || profile.Rejects(ex.URL) {
		return Match{}, false
	}
	for _, r := range rules {
		if r.Match(ex) {
			return Match{Exchange: ex, Rule: r}, true
		}
	}
	return Match{}, false
}

// lookAhead drains the feed for the configured window and returns the
// best ranked HLS match, the first one on ties.
func lookAhead(ctx context.Context, feed Feed, profile sources.Profile, rules []sources.Rule, first Match, o options) Match {
	winCtx, cancel := context.WithTimeout(ctx, o.lookahead)
	defer cancel()

	best, bestRank := first, Rank(first.Exchange.URL)
	for {
		ex, err := feed.Next(winCtx)
		if err != nil {
			return best
		}
		m, ok := Evaluate(profile, rules, ex)
		if !ok || m.Rule.Subtype != first.Rule.Subtype {
			continue
		}
		if o.onMatch != nil {
			o.onMatch(m)
		}
		if r := Rank(ex.URL); r > bestRank {
			best, bestRank = m, r
		}
	}
}
