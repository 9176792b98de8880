package models

import (
	"mime"
	"strings"
	"time"
)

// Exchange is one observed request/response pair of a browser session.
// Exchanges are owned by the session that produced them and are discarded
// once that session's feed is closed.
type Exchange struct {
	Seq            uint64 // arrival order within one feed
	URL            string
	Method         string
	ContentType    string
	Status         int
	SizeHint       int64 // content-length when the server sent one, -1 otherwise
	Tab            int   // 0 for the embed page, >0 for an attributed popup
	Navigation     bool  // the request navigated a frame
	RequestHeaders map[string]string
	ObservedAt     time.Time
}

// MediaType returns the content type without parameters, lower-cased
func (e Exchange) MediaType() string {
	if e.ContentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(e.ContentType)
	if err != nil {
		mt, _, _ = strings.Cut(e.ContentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// Failed reports whether the response status marks the exchange as unusable
func (e Exchange) Failed() bool {
	return e.Status >= 400
}
