// Package tracking keeps a small SQLite ledger of per-source extraction
// health, so operators can see which embed sources currently work.
package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/lonelymovie/lonelymovie/internal/extract"
	"github.com/lonelymovie/lonelymovie/internal/util"
)

var (
	ErrCgoDisabled     = errors.New("CGO disabled: sqlite tracking not available")
	ErrLedgerNotOpened = errors.New("ledger not opened")
)

// Result is how one extraction ended from the source's point of view
type Result int

const (
	ResultSuccess Result = iota
	ResultNoStream
	ResultFailure
)

// SourceHealth is the accumulated record for one source
type SourceHealth struct {
	SourceID    string    `json:"source"`
	Attempts    int64     `json:"attempts"`
	Successes   int64     `json:"successes"`
	NoStream    int64     `json:"no_stream"`
	Failures    int64     `json:"failures"`
	LastSuccess time.Time `json:"last_success,omitzero"`
	LastFailure string    `json:"last_failure,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SuccessRate is successes over attempts, zero before the first attempt
func (h SourceHealth) SuccessRate() float64 {
	if h.Attempts == 0 {
		return 0
	}
	return float64(h.Successes) / float64(h.Attempts)
}

// classify maps an outcome to a ledger row. Outcomes that say nothing about
// the source (cache hits, unknown sources, pool pressure, cancellation) are
// skipped.
func classify(out extract.Outcome) (Result, string, bool) {
	if out.Cached {
		return 0, "", false
	}
	switch out.State {
	case extract.StateCompleted:
		if out.Descriptor.Playable() {
			return ResultSuccess, "", true
		}
		return ResultNoStream, "", true
	case extract.StateFailed:
		switch out.Reason {
		case extract.KindNavigation, extract.KindInternal:
			return ResultFailure, string(out.Reason), true
		case extract.KindTimeout:
			if out.Attempts > 0 {
				return ResultFailure, string(out.Reason), true
			}
		}
	}
	return 0, "", false
}

// Report implements extract.Reporter
func (l *Ledger) Report(ctx context.Context, out extract.Outcome) {
	res, reason, ok := classify(out)
	if !ok || l == nil {
		return
	}
	if err := l.Record(ctx, out.Request.SourceID, res, reason, time.Now()); err != nil {
		util.Debug("Recording source health failed", "source", out.Request.SourceID, "error", err)
	}
}
