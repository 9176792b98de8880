// Package movie resolves titles against IMDb, TMDB and OMDb
package movie

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/lonelymovie/lonelymovie/internal/models"
	"github.com/lonelymovie/lonelymovie/internal/util"
)

// TMDBBaseURL is the TMDB v3 API root
const TMDBBaseURL = "https://api.themoviedb.org/3"

// TMDBClient handles interactions with TMDB API
type TMDBClient struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

// NewTMDBClient creates a TMDB client. Without an API key every call
// fails fast; get a free key at https://www.themoviedb.org/settings/api
func NewTMDBClient(apiKey string, opts ...ClientOption) *TMDBClient {
	if apiKey == "" {
		util.Debug("TMDB API key not set, autocomplete falls back to OMDb")
	}
	o := applyOptions(TMDBBaseURL, opts)
	return &TMDBClient{
		client:  o.client,
		apiKey:  apiKey,
		baseURL: o.baseURL,
	}
}

// IsConfigured returns true if the TMDB API key is configured
func (c *TMDBClient) IsConfigured() bool {
	return c.apiKey != ""
}

// SearchMulti searches movies and TV shows together. People are dropped.
func (c *TMDBClient) SearchMulti(ctx context.Context, query string) (*models.TMDBSearchResult, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("include_adult", "false")
	params.Set("language", "en-US")
	params.Set("page", "1")

	body, err := c.makeRequest(ctx, "/search/multi", params)
	if err != nil {
		return nil, errors.Wrap(err, "TMDB search failed")
	}

	var result models.TMDBSearchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.Wrap(err, "failed to parse TMDB response")
	}

	filtered := result.Results[:0]
	for _, item := range result.Results {
		if item.MediaType == "movie" || item.MediaType == "tv" {
			filtered = append(filtered, item)
		}
	}
	result.Results = filtered
	return &result, nil
}

// Suggest returns up to limit autocomplete suggestions
func (c *TMDBClient) Suggest(ctx context.Context, query string, limit int) ([]models.Suggestion, error) {
	result, err := c.SearchMulti(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]models.Suggestion, 0, min(limit, len(result.Results)))
	for _, item := range result.Results {
		if len(out) == limit {
			break
		}
		out = append(out, models.Suggestion{
			Title:  item.GetDisplayTitle(),
			Year:   item.GetReleaseYear(),
			Type:   item.MediaType,
			TMDBID: item.ID,
		})
	}
	return out, nil
}

// FindByIMDBID finds a movie or TV show by IMDb id
func (c *TMDBClient) FindByIMDBID(ctx context.Context, imdbID string) (*models.TMDBMedia, error) {
	params := url.Values{}
	params.Set("external_source", "imdb_id")

	body, err := c.makeRequest(ctx, "/find/"+url.PathEscape(imdbID), params)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find by IMDb id")
	}

	var result struct {
		MovieResults []models.TMDBMedia `json:"movie_results"`
		TVResults    []models.TMDBMedia `json:"tv_results"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.Wrap(err, "failed to parse find response")
	}

	if len(result.MovieResults) > 0 {
		result.MovieResults[0].MediaType = "movie"
		return &result.MovieResults[0], nil
	}
	if len(result.TVResults) > 0 {
		result.TVResults[0].MediaType = "tv"
		return &result.TVResults[0], nil
	}
	return nil, errors.Wrapf(ErrNoResults, "IMDb id %s", imdbID)
}

// makeRequest performs an authenticated request to TMDB API
func (c *TMDBClient) makeRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	params.Set("api_key", c.apiKey)
	endpoint := strings.TrimRight(c.baseURL, "/") + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req) // #nosec G704
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TMDB API returned status: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
