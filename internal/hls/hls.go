// Package hls fetches and inspects HLS playlists so captured manifests can
// be checked before they are handed to a player.
package hls

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/lonelymovie/lonelymovie/internal/models"
	"github.com/lonelymovie/lonelymovie/internal/util"
)

// playlists are small; anything bigger is not a manifest
const maxPlaylistBytes = 2 << 20

var (
	ErrNotPlaylist = errors.New("response is not an HLS playlist")
	ErrNoVariants  = errors.New("master playlist lists no variants")

	bandwidthRe  = regexp.MustCompile(`BANDWIDTH=(\d+)`)
	resolutionRe = regexp.MustCompile(`RESOLUTION=(\d+x\d+)`)
)

// Variant is one rendition listed by a master playlist
type Variant struct {
	URL        string
	Bandwidth  int
	Resolution string
}

// Playlist is the parsed shape of an HLS playlist
type Playlist struct {
	URL            string
	Master         bool
	Variants       []Variant
	Version        string
	TargetDuration float64
	Segments       int
	EndList        bool
}

// Best returns the highest bandwidth variant, the first one on ties
func (p *Playlist) Best() (Variant, bool) {
	if len(p.Variants) == 0 {
		return Variant{}, false
	}
	best := p.Variants[0]
	for _, v := range p.Variants[1:] {
		if v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	return best, true
}

// Client fetches playlists
type Client struct {
	http *http.Client
}

// NewClient uses hc, or the shared fast client when hc is nil
func NewClient(hc *http.Client) *Client {
	if hc == nil {
		hc = util.GetFastClient()
	}
	return &Client{http: hc}
}

// Fetch downloads and parses the playlist at rawURL with the given headers
func (c *Client) Fetch(ctx context.Context, rawURL string, headers map[string]string) (*Playlist, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", util.DefaultUserAgent)
	}

	resp, err := c.http.Do(req) // #nosec G704
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return Parse(io.LimitReader(resp.Body, maxPlaylistBytes), rawURL)
}

// Verify checks that a descriptor's URL serves a usable playlist
func (c *Client) Verify(ctx context.Context, d models.StreamDescriptor) error {
	p, err := c.Fetch(ctx, d.URL, d.Headers)
	if err != nil {
		return err
	}
	if p.Master && len(p.Variants) == 0 {
		return ErrNoVariants
	}
	util.Debug("Manifest verified", "url", d.URL, "master", p.Master, "variants", len(p.Variants), "segments", p.Segments)
	return nil
}

// Parse reads a playlist. Relative variant URLs are resolved against base.
func Parse(r io.Reader, base string) (*Playlist, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("playlist base url: %w", err)
	}

	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 || !strings.HasPrefix(strings.TrimPrefix(lines[0], "\ufeff"), "#EXTM3U") {
		return nil, ErrNotPlaylist
	}

	p := &Playlist{URL: base}
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			p.Master = true
			if i+1 >= len(lines) || strings.HasPrefix(lines[i+1], "#") {
				continue
			}
			v := Variant{URL: resolve(baseURL, lines[i+1])}
			if m := bandwidthRe.FindStringSubmatch(line); len(m) > 1 {
				v.Bandwidth, _ = strconv.Atoi(m[1])
			}
			if m := resolutionRe.FindStringSubmatch(line); len(m) > 1 {
				v.Resolution = m[1]
			}
			p.Variants = append(p.Variants, v)
		case strings.HasPrefix(line, "#EXT-X-VERSION:"):
			p.Version = strings.TrimPrefix(line, "#EXT-X-VERSION:")
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			if d, err := strconv.ParseFloat(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"), 64); err == nil {
				p.TargetDuration = d
			}
		case strings.HasPrefix(line, "#EXTINF:"):
			p.Segments++
		case strings.HasPrefix(line, "#EXT-X-ENDLIST"):
			p.EndList = true
		}
	}
	return p, nil
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
