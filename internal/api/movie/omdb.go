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
)

const (
	// OMDbBaseURL is the OMDb API root
	OMDbBaseURL = "https://www.omdbapi.com"
	// omdbDemoKey is OMDb's public demo key, limited to 1000 requests per day
	omdbDemoKey = "trilogy"
)

// OMDbSearchResult represents a search result from OMDb
type OMDbSearchResult struct {
	Search       []OMDbMedia `json:"Search"`
	TotalResults string      `json:"totalResults"`
	Response     string      `json:"Response"`
	Error        string      `json:"Error"`
}

// OMDbMedia represents a movie or series from OMDb
type OMDbMedia struct {
	Title  string `json:"Title"`
	Year   string `json:"Year"`
	IMDBID string `json:"imdbID"`
	Type   string `json:"Type"` // "movie", "series", "episode"
}

// Candidate converts the record to a title candidate
func (m OMDbMedia) Candidate() models.TitleCandidate {
	typ := "movie"
	if m.Type == "series" {
		typ = "tv"
	}
	// series years come as ranges like "2008–2013"
	year := m.Year
	if len(year) > 4 {
		year = year[:4]
	}
	return models.TitleCandidate{
		Title:  m.Title,
		IMDBID: m.IMDBID,
		Year:   year,
		URL:    imdbTitleURL(m.IMDBID),
		Type:   typ,
	}
}

// OMDbClient handles interactions with OMDb API
type OMDbClient struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

// NewOMDbClient creates an OMDb client; an empty key uses the demo key
func NewOMDbClient(apiKey string, opts ...ClientOption) *OMDbClient {
	if apiKey == "" {
		apiKey = omdbDemoKey
	}
	o := applyOptions(OMDbBaseURL, opts)
	return &OMDbClient{client: o.client, apiKey: apiKey, baseURL: o.baseURL}
}

// SearchByTitle searches for movies/series by title. mediaType may be
// "movie", "series" or empty.
func (c *OMDbClient) SearchByTitle(ctx context.Context, title, mediaType string) (*OMDbSearchResult, error) {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("s", title)
	if mediaType != "" {
		params.Set("type", mediaType)
	}

	body, err := c.makeRequest(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "OMDb search failed")
	}

	var result OMDbSearchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.Wrap(err, "failed to parse OMDb response")
	}
	if result.Response == "False" {
		if strings.Contains(strings.ToLower(result.Error), "not found") {
			return &OMDbSearchResult{Response: "False"}, nil
		}
		return nil, errors.Errorf("OMDb error: %s", result.Error)
	}
	return &result, nil
}

// makeRequest performs an HTTP request to OMDb API
func (c *OMDbClient) makeRequest(ctx context.Context, params url.Values) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/?%s", strings.TrimRight(c.baseURL, "/"), params.Encode())
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
		return nil, fmt.Errorf("OMDb API returned status: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
