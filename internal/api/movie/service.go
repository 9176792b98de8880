package movie

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/lonelymovie/lonelymovie/internal/models"
	"github.com/lonelymovie/lonelymovie/internal/util"
)

// MinAutocompleteQuery is the shortest query autocomplete answers
const MinAutocompleteQuery = 2

// Service answers title searches with IMDb first and OMDb as fallback, and
// autocomplete with TMDB when configured. Responses are cached briefly.
type Service struct {
	imdb  *IMDbClient
	tmdb  *TMDBClient
	omdb  *OMDbClient
	cache *util.ResponseCache
}

// NewService wires the adapters; any of them may be nil
func NewService(imdb *IMDbClient, tmdb *TMDBClient, omdb *OMDbClient) *Service {
	return &Service{
		imdb:  imdb,
		tmdb:  tmdb,
		omdb:  omdb,
		cache: util.NewResponseCache(10*time.Minute, 500),
	}
}

// Search returns title candidates. Upstream failures degrade to an empty
// list, they never fail the caller.
func (s *Service) Search(ctx context.Context, query string, limit int) []models.TitleCandidate {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.TitleCandidate{}
	}
	key := "search:" + strconv.Itoa(limit) + ":" + strings.ToLower(query)
	var out []models.TitleCandidate
	if cached(s, key, &out) {
		return out
	}

	if s.imdb != nil {
		res, err := s.imdb.Search(ctx, query, limit)
		if err != nil {
			util.Warn("IMDb search failed", "query", query, "error", err)
		}
		out = res
	}
	if len(out) == 0 && s.omdb != nil {
		res, err := s.omdb.SearchByTitle(ctx, query, "")
		if err != nil {
			util.Warn("OMDb search failed", "query", query, "error", err)
		} else {
			for _, m := range res.Search {
				if limit > 0 && len(out) == limit {
					break
				}
				if m.Type == "movie" || m.Type == "series" {
					out = append(out, m.Candidate())
				}
			}
		}
	}
	if out == nil {
		return []models.TitleCandidate{}
	}
	s.store(key, out)
	return out
}

// Autocomplete returns up to limit suggestions for a partial title
func (s *Service) Autocomplete(ctx context.Context, query string, limit int) []models.Suggestion {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinAutocompleteQuery {
		return []models.Suggestion{}
	}
	key := "suggest:" + strconv.Itoa(limit) + ":" + strings.ToLower(query)
	var out []models.Suggestion
	if cached(s, key, &out) {
		return out
	}

	switch {
	case s.tmdb != nil && s.tmdb.IsConfigured():
		res, err := s.tmdb.Suggest(ctx, query, limit)
		if err != nil {
			util.Warn("TMDB autocomplete failed", "query", query, "error", err)
			return []models.Suggestion{}
		}
		out = res
	case s.omdb != nil:
		res, err := s.omdb.SearchByTitle(ctx, query, "")
		if err != nil {
			util.Warn("OMDb autocomplete failed", "query", query, "error", err)
			return []models.Suggestion{}
		}
		for _, m := range res.Search {
			if len(out) == limit {
				break
			}
			c := m.Candidate()
			out = append(out, models.Suggestion{Title: c.Title, Year: c.Year, Type: c.Type})
		}
	}
	if out == nil {
		out = []models.Suggestion{}
	}
	s.store(key, out)
	return out
}

// Lookup resolves an IMDb id to its display title when TMDB is configured.
// It returns a zero candidate otherwise.
func (s *Service) Lookup(ctx context.Context, imdbID string) models.TitleCandidate {
	c := models.TitleCandidate{IMDBID: imdbID, URL: imdbTitleURL(imdbID)}
	if s.tmdb == nil || !s.tmdb.IsConfigured() {
		return c
	}
	m, err := s.tmdb.FindByIMDBID(ctx, imdbID)
	if err != nil {
		util.Debug("TMDB lookup failed", "imdb_id", imdbID, "error", err)
		return c
	}
	c.Title = m.GetDisplayTitle()
	c.Year = m.GetReleaseYear()
	c.Type = m.MediaType
	return c
}

// cached copies a stored answer into dst, which must point at the type store
// was given.
func cached[T any](s *Service, key string, dst *T) bool {
	v, ok := s.cache.Get(key)
	if !ok {
		return false
	}
	t, ok := v.(T)
	if ok {
		*dst = t
	}
	return ok
}

func (s *Service) store(key string, v any) {
	s.cache.Set(key, v)
}
