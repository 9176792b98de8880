package sources

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lonelymovie/lonelymovie/internal/models"
)

var (
	ErrNotFound    = errors.New("source not found")
	ErrUnsupported = errors.New("media type not supported by source")
)

// Profile describes how to extract streams from one third-party source.
// Profiles are built once by the Registry and never mutated; slice
// accessors return copies.
type Profile struct {
	ID              string
	Name            string
	MovieTemplate   string
	EpisodeTemplate string
	Stealth         Stealth
	Timeout         time.Duration
	RatePerMinute   int
	Attempts        int

	rules         []Rule
	reject        []string
	playSelectors []string
	relatedHosts  []string
}

// Rules returns the matching rules in declared order
func (p Profile) Rules() []Rule {
	return slices.Clone(p.rules)
}

// PlaySelectors returns the CSS selectors tried to start playback
func (p Profile) PlaySelectors() []string {
	return slices.Clone(p.playSelectors)
}

// RelatedHosts returns hosts whose popups belong to the same navigation
func (p Profile) RelatedHosts() []string {
	return slices.Clone(p.relatedHosts)
}

// Rejects reports whether a URL is noise that must never match a rule
func (p Profile) Rejects(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	if strings.HasPrefix(lower, "blob:") || strings.HasPrefix(lower, "data:") {
		return true
	}
	for _, pattern := range p.reject {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// Supports reports whether the source has an embed page for the media type
func (p Profile) Supports(t models.MediaType) bool {
	if t == models.MediaTypeEpisode {
		return p.EpisodeTemplate != ""
	}
	return p.MovieTemplate != ""
}

// EmbedURL renders the embed page URL for a title
func (p Profile) EmbedURL(ref models.TitleRef) (string, error) {
	tmpl := p.MovieTemplate
	if ref.Type == models.MediaTypeEpisode {
		tmpl = p.EpisodeTemplate
	}
	if tmpl == "" {
		return "", fmt.Errorf("%w: %s has no %s template", ErrUnsupported, p.ID, ref.Type)
	}

	r := strings.NewReplacer(
		"{id}", url.PathEscape(ref.ID),
		"{season}", strconv.Itoa(ref.Season),
		"{episode}", strconv.Itoa(ref.Episode),
	)
	return r.Replace(tmpl), nil
}
