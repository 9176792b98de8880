package capture

import (
	"net/http"
	"strings"

	"github.com/lonelymovie/lonelymovie/internal/models"
)

var hlsContentTypes = map[string]bool{
	"application/vnd.apple.mpegurl": true,
	"application/x-mpegurl":         true,
	"application/mpegurl":           true,
	"audio/mpegurl":                 true,
	"audio/x-mpegurl":               true,
}

var mp4ContentTypes = map[string]bool{
	"video/mp4":       true,
	"application/mp4": true,
}

// forwarded request headers a player needs to fetch the stream later
var forwarded = []string{"Referer", "Origin", "User-Agent"}

// Describe builds the descriptor for a match
func Describe(source string, m Match) (models.StreamDescriptor, error) {
	return models.NewStreamDescriptor(source, m.Exchange.URL, m.Rule.Subtype, confidence(m), fetchHeaders(m.Exchange))
}

// confidence grades a match: content-type evidence is strongest, a URL
// pattern alone is medium, and a content type contradicting the URL is low.
func confidence(m Match) models.Confidence {
	if m.Rule.MatchesContentType() {
		return models.ConfidenceHigh
	}
	mt := m.Exchange.MediaType()
	switch {
	case confirms(m.Rule.Subtype, mt):
		return models.ConfidenceHigh
	case mt == "" || mt == "application/octet-stream" || mt == "binary/octet-stream":
		return models.ConfidenceMedium
	case strings.HasPrefix(mt, "text/html"):
		return models.ConfidenceLow
	default:
		return models.ConfidenceMedium
	}
}

func confirms(subtype models.StreamSubtype, mediaType string) bool {
	switch subtype {
	case models.SubtypeHLS:
		return hlsContentTypes[mediaType]
	case models.SubtypeMP4:
		return mp4ContentTypes[mediaType]
	}
	return false
}

func fetchHeaders(ex models.Exchange) map[string]string {
	if len(ex.RequestHeaders) == 0 {
		return nil
	}
	out := make(map[string]string, len(forwarded))
	for k, v := range ex.RequestHeaders {
		canon := http.CanonicalHeaderKey(k)
		for _, want := range forwarded {
			if canon == want && v != "" {
				out[want] = v
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Rank scores a stream URL by quality hints; higher is better
func Rank(rawURL string) int {
	u := strings.ToLower(rawURL)
	score := 0
	switch {
	case strings.Contains(u, ".m3u8"):
		score += 100
		if strings.Contains(u, "master") || strings.Contains(u, "playlist") {
			score += 50
		}
		switch {
		case strings.Contains(u, "1080") || strings.Contains(u, "fhd"):
			score += 30
		case strings.Contains(u, "720") || strings.Contains(u, "hd"):
			score += 20
		case strings.Contains(u, "480"):
			score += 10
		}
	case strings.Contains(u, ".mp4"):
		score += 80
	}
	for _, cdn := range []string{"cdn", "stream", "video", "media"} {
		if strings.Contains(u, cdn) {
			score += 20
			break
		}
	}
	if len(u) > 100 {
		score += 10
	}
	return score
}
