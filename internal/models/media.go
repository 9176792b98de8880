// Package models contains data structures shared across the extraction engine
package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MediaType represents the type of media content an embed page plays
type MediaType string

const (
	MediaTypeMovie   MediaType = "movie"
	MediaTypeEpisode MediaType = "episode"
)

var (
	ErrInvalidTitle     = errors.New("invalid title reference")
	ErrInvalidMediaType = errors.New("invalid media type")
)

var imdbIDPattern = regexp.MustCompile(`^tt\d+$`)

// IsIMDBID reports whether id looks like an IMDb title id (tt1375666)
func IsIMDBID(id string) bool {
	return imdbIDPattern.MatchString(id)
}

// ParseMediaType maps the public "type" query value onto a MediaType.
// "tv" and "episode" both select an episode; empty means movie.
func ParseMediaType(s string) (MediaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "movie":
		return MediaTypeMovie, nil
	case "tv", "episode", "series":
		return MediaTypeEpisode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMediaType, s)
	}
}

// PublicName returns the name the HTTP surface uses for the media type
func (m MediaType) PublicName() string {
	if m == MediaTypeEpisode {
		return "tv"
	}
	return "movie"
}

// TitleRef identifies what to play on a source: a title id plus episode
// coordinates when the media type is an episode.
type TitleRef struct {
	ID      string
	Type    MediaType
	Season  int
	Episode int
}

// Validate checks the reference and clears coordinates a movie cannot carry
func (t *TitleRef) Validate() error {
	t.ID = strings.TrimSpace(t.ID)
	if t.ID == "" {
		return fmt.Errorf("%w: empty title id", ErrInvalidTitle)
	}
	switch t.Type {
	case "":
		t.Type = MediaTypeMovie
		fallthrough
	case MediaTypeMovie:
		t.Season, t.Episode = 0, 0
	case MediaTypeEpisode:
		if t.Season < 1 || t.Episode < 1 {
			return fmt.Errorf("%w: episode %s needs season and episode >= 1", ErrInvalidTitle, t.ID)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMediaType, t.Type)
	}
	return nil
}

func (t TitleRef) String() string {
	if t.Type == MediaTypeEpisode {
		return fmt.Sprintf("%s S%02dE%02d", t.ID, t.Season, t.Episode)
	}
	return t.ID
}
