package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/lonelymovie/lonelymovie/internal/extract"
	"github.com/lonelymovie/lonelymovie/internal/models"
	"github.com/lonelymovie/lonelymovie/internal/tracking"
	"github.com/lonelymovie/lonelymovie/internal/util"
	"github.com/lonelymovie/lonelymovie/internal/version"
)

const (
	defaultSearchLimit  = 10
	defaultSuggestLimit = 5
	maxLimit            = 50
	// the IMDb info endpoint points at 2embed when it is configured
	imdbInfoSource = "2embed.cc"
)

// streamResponse is the extract-stream body. StreamURL is null when the
// client should fall back to embedding EmbedURL in an iframe.
type streamResponse struct {
	StreamURL  *string           `json:"stream_url"`
	Type       string            `json:"type"`
	Source     string            `json:"source"`
	Confidence models.Confidence `json:"confidence,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	EmbedURL   string            `json:"embed_url"`
	Cached     bool              `json:"cached"`
	Message    string            `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		util.Debug("Writing response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func limitParam(r *http.Request, def int) int {
	n, err := queryInt(r, "limit", def)
	if err != nil || n < 1 {
		return def
	}
	return min(n, maxLimit)
}

// parseTitle validates the path and query of an extract-stream request
func parseTitle(r *http.Request) (models.TitleRef, error) {
	id := mux.Vars(r)["titleId"]
	if !models.IsIMDBID(id) {
		return models.TitleRef{}, errors.New("invalid IMDb id format, expected something like 'tt1234567'")
	}
	q := r.URL.Query()
	mt, err := models.ParseMediaType(q.Get("type"))
	if err != nil {
		return models.TitleRef{}, err
	}
	ref := models.TitleRef{ID: id, Type: mt}
	if mt == models.MediaTypeEpisode {
		if ref.Season, err = queryInt(r, "season", 0); err != nil {
			return models.TitleRef{}, errors.New("season must be a number")
		}
		if ref.Episode, err = queryInt(r, "episode", 0); err != nil {
			return models.TitleRef{}, errors.New("episode must be a number")
		}
	}
	if err := ref.Validate(); err != nil {
		return models.TitleRef{}, err
	}
	return ref, nil
}

func (s *Server) handleExtractStream(w http.ResponseWriter, r *http.Request) {
	ref, err := parseTitle(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		source = s.registry.Default()
	}
	if _, err := s.registry.Profile(source); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()
	out, err := s.engine.Extract(ctx, extract.NewRequest(ref, source))
	if err != nil {
		s.renderFailure(w, out, err)
		return
	}

	if out.Fallback() {
		writeJSON(w, http.StatusOK, iframe(out, "No stream detected, embed the source page instead"))
		return
	}
	d := out.Descriptor
	url := d.URL
	writeJSON(w, http.StatusOK, streamResponse{
		StreamURL:  &url,
		Type:       d.Subtype.Format(),
		Source:     d.Source,
		Confidence: d.Confidence,
		Headers:    d.HeaderCopy(),
		EmbedURL:   out.EmbedURL,
		Cached:     out.Cached,
	})
}

func iframe(out extract.Outcome, message string) streamResponse {
	return streamResponse{
		Type:     "iframe",
		Source:   out.Request.SourceID,
		EmbedURL: out.EmbedURL,
		Cached:   out.Cached,
		Message:  message,
	}
}

func (s *Server) renderFailure(w http.ResponseWriter, out extract.Outcome, err error) {
	switch kind := extract.KindOf(err); kind {
	case extract.KindNavigation:
		writeJSON(w, http.StatusOK, iframe(out, "Source page failed to load"))
	case extract.KindTimeout:
		writeJSON(w, http.StatusOK, iframe(out, "Extraction timed out"))
	case extract.KindNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case extract.KindPoolExhausted:
		secs := max(1, int(s.retryAfter/time.Second))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeError(w, http.StatusServiceUnavailable, "all browser sessions are busy, retry shortly")
	default:
		util.Error("Extraction failed", "source", out.Request.SourceID, "title", out.Request.Title.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "extraction failed")
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := mux.Vars(r)["query"]
	results := []models.TitleCandidate{}
	if s.titles != nil {
		results = s.titles.Search(r.Context(), query, limitParam(r, defaultSearchLimit))
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "query": query})
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	query := mux.Vars(r)["query"]
	suggestions := []models.Suggestion{}
	if s.titles != nil {
		suggestions = s.titles.Autocomplete(r.Context(), query, limitParam(r, defaultSuggestLimit))
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions, "query": query})
}

func (s *Server) handleIMDb(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["imdbId"]
	if !models.IsIMDBID(id) {
		writeError(w, http.StatusBadRequest, "invalid IMDb id format, expected something like 'tt1234567'")
		return
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		source = imdbInfoSource
		if _, err := s.registry.Profile(source); err != nil {
			source = s.registry.Default()
		}
	}
	profile, err := s.registry.Profile(source)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	embed, err := profile.EmbedURL(models.TitleRef{ID: id, Type: models.MediaTypeMovie})
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	info := map[string]any{
		"imdb_id":   id,
		"embed_url": embed,
		"imdb_url":  "https://www.imdb.com/title/" + id + "/",
		"source":    profile.ID,
	}
	if s.titles != nil {
		if c := s.titles.Lookup(r.Context(), id); c.Title != "" {
			info["title"] = c.Title
			info["year"] = c.Year
			info["type"] = c.Type
		}
	}
	writeJSON(w, http.StatusOK, info)
}

type sourceInfo struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Types    []string               `json:"types"`
	Timeout  string                 `json:"timeout"`
	Attempts int                    `json:"attempts"`
	Health   *tracking.SourceHealth `json:"health,omitempty"`
	Rate     *float64               `json:"success_rate,omitempty"`
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	byID := map[string]tracking.SourceHealth{}
	if s.health != nil {
		all, err := s.health.All(r.Context())
		if err != nil {
			util.Debug("Source health unavailable", "error", err)
		}
		for _, h := range all {
			byID[h.SourceID] = h
		}
	}

	list := make([]sourceInfo, 0, len(s.registry.IDs()))
	for _, p := range s.registry.All() {
		info := sourceInfo{
			ID:       p.ID,
			Name:     p.Name,
			Timeout:  p.Timeout.String(),
			Attempts: p.Attempts,
		}
		for _, mt := range []models.MediaType{models.MediaTypeMovie, models.MediaTypeEpisode} {
			if p.Supports(mt) {
				info.Types = append(info.Types, mt.PublicName())
			}
		}
		if h, ok := byID[p.ID]; ok {
			rate := h.SuccessRate()
			info.Health, info.Rate = &h, &rate
		}
		list = append(list, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"default": s.registry.Default(), "sources": list})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "healthy"}
	if s.poolStats != nil {
		body["pool"] = s.poolStats()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "LonelyMovie API",
		"version": version.Version,
		"endpoints": map[string]string{
			"extract":      "/api/extract-stream/{titleId}?source=&type=movie|tv&season=&episode=",
			"search":       "/api/search/{query}",
			"autocomplete": "/api/autocomplete/{query}",
			"imdb":         "/api/imdb/{imdbId}",
			"sources":      "/api/sources",
			"health":       "/health",
		},
	})
}
