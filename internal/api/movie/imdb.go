package movie

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"github.com/lonelymovie/lonelymovie/internal/models"
	"github.com/lonelymovie/lonelymovie/internal/util"
)

// IMDbBaseURL is where title pages and the find page live
const IMDbBaseURL = "https://www.imdb.com"

// title types IMDb uses for episodic content
var tvTitleTypes = map[string]bool{
	"tvSeries":     true,
	"tvMiniSeries": true,
	"tvSpecial":    true,
}

// IMDbClient scrapes the IMDb find page. The page is a Next.js app whose
// results live in the __NEXT_DATA__ script.
type IMDbClient struct {
	client  *http.Client
	baseURL string
}

// NewIMDbClient creates an IMDb scraper
func NewIMDbClient(opts ...ClientOption) *IMDbClient {
	o := applyOptions(IMDbBaseURL, opts)
	return &IMDbClient{client: o.client, baseURL: o.baseURL}
}

type nextData struct {
	Props struct {
		PageProps struct {
			TitleResults struct {
				Results []struct {
					Index    string `json:"index"`
					ListItem struct {
						TitleText         string      `json:"titleText"`
						OriginalTitleText string      `json:"originalTitleText"`
						ReleaseYear       json.Number `json:"releaseYear"`
						TitleType         struct {
							ID string `json:"id"`
						} `json:"titleType"`
					} `json:"listItem"`
				} `json:"results"`
			} `json:"titleResults"`
		} `json:"pageProps"`
	} `json:"props"`
}

// Search returns up to limit title candidates for query
func (c *IMDbClient) Search(ctx context.Context, query string, limit int) ([]models.TitleCandidate, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("s", "tt")
	params.Set("ttype", "ft")
	params.Set("ref_", "fn_ft")
	endpoint := strings.TrimRight(c.baseURL, "/") + "/find/?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", util.DefaultUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := c.client.Do(req) // #nosec G704
	if err != nil {
		return nil, errors.Wrap(err, "failed to perform search request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("search failed, IMDb returned: %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse response")
	}
	return ParseFindPage(doc, limit)
}

// ParseFindPage extracts candidates from a find page document
func ParseFindPage(doc *goquery.Document, limit int) ([]models.TitleCandidate, error) {
	script := doc.Find(`script#__NEXT_DATA__`).First()
	if script.Length() == 0 {
		util.Debug("IMDb find page has no __NEXT_DATA__ script")
		return nil, nil
	}

	var data nextData
	if err := json.Unmarshal([]byte(script.Text()), &data); err != nil {
		return nil, errors.Wrap(err, "failed to decode __NEXT_DATA__")
	}

	var out []models.TitleCandidate
	for _, item := range data.Props.PageProps.TitleResults.Results {
		if limit > 0 && len(out) == limit {
			break
		}
		li := item.ListItem
		title := li.TitleText
		if title == "" {
			title = li.OriginalTitleText
		}
		if title == "" || !models.IsIMDBID(item.Index) {
			continue
		}
		typ := "movie"
		if tvTitleTypes[li.TitleType.ID] {
			typ = "tv"
		}
		year := ""
		if n, err := li.ReleaseYear.Int64(); err == nil && n > 0 {
			year = strconv.FormatInt(n, 10)
		}
		out = append(out, models.TitleCandidate{
			Title:  title,
			IMDBID: item.Index,
			Year:   year,
			URL:    imdbTitleURL(item.Index),
			Type:   typ,
		})
	}
	return out, nil
}

func imdbTitleURL(id string) string {
	return IMDbBaseURL + "/title/" + id + "/"
}
