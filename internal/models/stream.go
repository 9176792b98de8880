package models

import (
	"errors"
	"fmt"
	"net/url"
)

// StreamKind classifies an extraction result
type StreamKind string

const (
	StreamKindManifest StreamKind = "manifest"
	StreamKindFile     StreamKind = "file"
	StreamKindNone     StreamKind = "none"
)

// StreamSubtype is the container/protocol of a captured stream
type StreamSubtype string

const (
	SubtypeHLS StreamSubtype = "hls"
	SubtypeMP4 StreamSubtype = "mp4"
)

// Kind returns the descriptor kind a subtype implies
func (s StreamSubtype) Kind() StreamKind {
	switch s {
	case SubtypeHLS:
		return StreamKindManifest
	case SubtypeMP4:
		return StreamKindFile
	default:
		return StreamKindNone
	}
}

// Format returns the public "type" value of the HTTP surface
func (s StreamSubtype) Format() string {
	if s == SubtypeHLS {
		return "m3u8"
	}
	return string(s)
}

// Confidence grades how sure the capture is that the URL plays
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

var ErrInvalidDescriptor = errors.New("invalid stream descriptor")

// StreamDescriptor is the outcome of an extraction. Values are immutable
// once built; use NewStreamDescriptor or NoStream.
type StreamDescriptor struct {
	Kind       StreamKind        `json:"kind"`
	URL        string            `json:"url,omitempty"`
	Subtype    StreamSubtype     `json:"subtype,omitempty"`
	Confidence Confidence        `json:"confidence,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Source     string            `json:"source,omitempty"`
}

// NoStream is the "none" descriptor for a source
func NoStream(source string) StreamDescriptor {
	return StreamDescriptor{Kind: StreamKindNone, Source: source}
}

// NewStreamDescriptor builds a playable descriptor. The URL must be absolute.
func NewStreamDescriptor(source, rawURL string, subtype StreamSubtype, confidence Confidence, headers map[string]string) (StreamDescriptor, error) {
	kind := subtype.Kind()
	if kind == StreamKindNone {
		return StreamDescriptor{}, fmt.Errorf("%w: unknown subtype %q", ErrInvalidDescriptor, subtype)
	}
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return StreamDescriptor{}, fmt.Errorf("%w: url %q is not absolute", ErrInvalidDescriptor, rawURL)
	}
	if confidence == "" {
		confidence = ConfidenceMedium
	}

	var hdrs map[string]string
	if len(headers) > 0 {
		hdrs = make(map[string]string, len(headers))
		for k, v := range headers {
			hdrs[k] = v
		}
	}

	return StreamDescriptor{
		Kind:       kind,
		URL:        rawURL,
		Subtype:    subtype,
		Confidence: confidence,
		Headers:    hdrs,
		Source:     source,
	}, nil
}

// Playable reports whether the descriptor carries a stream
func (d StreamDescriptor) Playable() bool {
	return d.Kind != StreamKindNone && d.Kind != "" && d.URL != ""
}

// WithConfidence returns a copy with a different confidence
func (d StreamDescriptor) WithConfidence(c Confidence) StreamDescriptor {
	d.Headers = cloneHeaders(d.Headers)
	d.Confidence = c
	return d
}

// HeaderCopy returns a copy of the fetch headers
func (d StreamDescriptor) HeaderCopy() map[string]string {
	return cloneHeaders(d.Headers)
}

func cloneHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// WithHeader returns a copy carrying one more fetch header
func (d StreamDescriptor) WithHeader(key, value string) StreamDescriptor {
	h := cloneHeaders(d.Headers)
	if h == nil {
		h = make(map[string]string, 1)
	}
	h[key] = value
	d.Headers = h
	return d
}
