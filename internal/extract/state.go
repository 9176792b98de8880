package extract

import (
	"time"

	"github.com/google/uuid"

	"github.com/lonelymovie/lonelymovie/internal/models"
)

// State is a step of one extraction
type State string

const (
	StateQueued      State = "queued"
	StateCacheCheck  State = "cache_check"
	StateSessionWait State = "session_wait"
	StateNavigating  State = "navigating"
	StateCapturing   State = "capturing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Terminal reports whether no transition leaves the state
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Request is one inbound extraction. Its deadline travels in the context
// passed to Engine.Extract.
type Request struct {
	ID        string
	Title     models.TitleRef
	SourceID  string
	Submitted time.Time
}

// NewRequest stamps a request with an id and submission time
func NewRequest(title models.TitleRef, sourceID string) Request {
	return Request{
		ID:        uuid.NewString(),
		Title:     title,
		SourceID:  sourceID,
		Submitted: time.Now(),
	}
}

// Outcome is the terminal result of an extraction
type Outcome struct {
	Request    Request
	State      State
	Reason     Kind // set when State is StateFailed
	Descriptor models.StreamDescriptor
	EmbedURL   string
	Cached     bool
	Attempts   int
	Elapsed    time.Duration
}

// Fallback reports whether the caller should embed the source page in an
// iframe instead of playing a stream directly.
func (o Outcome) Fallback() bool {
	return !o.Descriptor.Playable()
}

// Observer is told about every state transition
type Observer func(req Request, from, to State)
