package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lonelymovie/lonelymovie/internal/browser"
	"github.com/lonelymovie/lonelymovie/internal/browser/browsertest"
	"github.com/lonelymovie/lonelymovie/internal/cache"
	"github.com/lonelymovie/lonelymovie/internal/extract"
	"github.com/lonelymovie/lonelymovie/internal/models"
	"github.com/lonelymovie/lonelymovie/internal/sources"
	"github.com/lonelymovie/lonelymovie/internal/tracking"
)

// =============================================================================
// Mocks
// =============================================================================

type mockExtractor struct{ mock.Mock }

func (m *mockExtractor) Extract(ctx context.Context, req extract.Request) (extract.Outcome, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(extract.Outcome), args.Error(1)
}

type mockTitles struct{ mock.Mock }

func (m *mockTitles) Search(ctx context.Context, query string, limit int) []models.TitleCandidate {
	return m.Called(ctx, query, limit).Get(0).([]models.TitleCandidate)
}

func (m *mockTitles) Autocomplete(ctx context.Context, query string, limit int) []models.Suggestion {
	return m.Called(ctx, query, limit).Get(0).([]models.Suggestion)
}

func (m *mockTitles) Lookup(ctx context.Context, imdbID string) models.TitleCandidate {
	return m.Called(ctx, imdbID).Get(0).(models.TitleCandidate)
}

type staticHealth []tracking.SourceHealth

func (h staticHealth) All(context.Context) ([]tracking.SourceHealth, error) { return h, nil }

func builtin(t *testing.T) *sources.Registry {
	t.Helper()
	reg, err := sources.Builtin()
	require.NoError(t, err)
	return reg
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func matchReq(source, id string, mt models.MediaType) any {
	return mock.MatchedBy(func(r extract.Request) bool {
		return r.SourceID == source && r.Title.ID == id && r.Title.Type == mt
	})
}

// =============================================================================
// extract-stream
// =============================================================================

func TestExtractStreamSuccess(t *testing.T) {
	t.Parallel()

	d, err := models.NewStreamDescriptor("vidsrc.me", "https://cdn.example/master.m3u8", models.SubtypeHLS,
		models.ConfidenceHigh, map[string]string{"Referer": "https://vidsrc.me/"})
	require.NoError(t, err)

	ex := &mockExtractor{}
	ex.On("Extract", mock.Anything, matchReq("vidsrc.me", "tt0111161", models.MediaTypeMovie)).
		Return(extract.Outcome{State: extract.StateCompleted, Descriptor: d, EmbedURL: "https://vidsrc.me/embed/movie?imdb=tt0111161"}, nil)

	rec, body := get(t, New(ex, builtin(t)).Handler(), "/api/extract-stream/tt0111161")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://cdn.example/master.m3u8", body["stream_url"])
	assert.Equal(t, "m3u8", body["type"])
	assert.Equal(t, "vidsrc.me", body["source"])
	assert.Equal(t, "high", body["confidence"])
	assert.Equal(t, "https://vidsrc.me/", body["headers"].(map[string]any)["Referer"])
	assert.Equal(t, "https://vidsrc.me/embed/movie?imdb=tt0111161", body["embed_url"])
	ex.AssertExpectations(t)
}

func TestExtractStreamEpisodeParams(t *testing.T) {
	t.Parallel()

	ex := &mockExtractor{}
	ex.On("Extract", mock.Anything, mock.MatchedBy(func(r extract.Request) bool {
		return r.Title.Type == models.MediaTypeEpisode && r.Title.Season == 2 && r.Title.Episode == 5 && r.SourceID == "vidsrc.to"
	})).Return(extract.Outcome{State: extract.StateCompleted, Descriptor: models.NoStream("vidsrc.to")}, nil)

	rec, body := get(t, New(ex, builtin(t)).Handler(), "/api/extract-stream/tt0903747?source=vidsrc.to&type=tv&season=2&episode=5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "iframe", body["type"])
	ex.AssertExpectations(t)
}

func TestExtractStreamDegradesToIframe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		out  extract.Outcome
		err  error
	}{
		{"no stream", extract.Outcome{State: extract.StateCompleted, Descriptor: models.NoStream("vidsrc.me")}, nil},
		{"navigation", extract.Outcome{State: extract.StateFailed}, &extract.Error{Kind: extract.KindNavigation, Source: "vidsrc.me"}},
		{"timeout", extract.Outcome{State: extract.StateFailed}, &extract.Error{Kind: extract.KindTimeout, Source: "vidsrc.me", Err: context.DeadlineExceeded}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.out.Request = extract.Request{SourceID: "vidsrc.me"}
			tt.out.EmbedURL = "https://vidsrc.me/embed/movie?imdb=tt1"
			ex := &mockExtractor{}
			ex.On("Extract", mock.Anything, mock.Anything).Return(tt.out, tt.err)

			rec, body := get(t, New(ex, builtin(t)).Handler(), "/api/extract-stream/tt1")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Nil(t, body["stream_url"])
			assert.Contains(t, body, "stream_url")
			assert.Equal(t, "iframe", body["type"])
			assert.Equal(t, "vidsrc.me", body["source"])
			assert.Equal(t, "https://vidsrc.me/embed/movie?imdb=tt1", body["embed_url"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestExtractStreamErrorStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target string
		err    error
		status int
	}{
		{"bad id", "/api/extract-stream/abc", nil, http.StatusBadRequest},
		{"bad type", "/api/extract-stream/tt1?type=anime", nil, http.StatusBadRequest},
		{"tv without season", "/api/extract-stream/tt1?type=tv&episode=2", nil, http.StatusBadRequest},
		{"tv non numeric", "/api/extract-stream/tt1?type=tv&season=x&episode=2", nil, http.StatusBadRequest},
		{"unknown source", "/api/extract-stream/tt1?source=nope", nil, http.StatusNotFound},
		{"pool exhausted", "/api/extract-stream/tt1", &extract.Error{Kind: extract.KindPoolExhausted, Err: browser.ErrBusy}, http.StatusServiceUnavailable},
		{"internal", "/api/extract-stream/tt1", &extract.Error{Kind: extract.KindInternal, Err: errors.New("boom")}, http.StatusInternalServerError},
		{"unsupported type", "/api/extract-stream/tt1", &extract.Error{Kind: extract.KindNotFound, Err: sources.ErrUnsupported}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ex := &mockExtractor{}
			if tt.err != nil {
				ex.On("Extract", mock.Anything, mock.Anything).
					Return(extract.Outcome{State: extract.StateFailed, Request: extract.Request{SourceID: "vidsrc.me"}}, tt.err)
			}

			rec, body := get(t, New(ex, builtin(t), WithRetryAfter(7*time.Second)).Handler(), tt.target)
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, body["detail"])
			if tt.status == http.StatusServiceUnavailable {
				assert.Equal(t, "7", rec.Header().Get("Retry-After"))
			}
			if tt.err == nil {
				ex.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
			}
		})
	}
}

// The no-stream scenario end to end: a real engine over a scripted browser
// that never emits a manifest renders as an iframe fallback.
func TestExtractStreamNoManifestEndToEnd(t *testing.T) {
	t.Parallel()

	reg, err := sources.Parse(`
[stealth.s]
user_agents = ["UA"]
[[source]]
id = "quiet"
movie_url = "https://quiet.example/embed/{id}"
stealth = "s"
timeout = "150ms"
  [[source.rule]]
  kind = "url_suffix"
  value = ".m3u8"
  subtype = "hls"
`)
	require.NoError(t, err)
	launcher := &browsertest.Launcher{Script: func(string) []browsertest.Step {
		return []browsertest.Step{{Exchange: models.Exchange{URL: "https://quiet.example/app.js", Status: 200}}}
	}}
	pool, err := browser.NewPool(launcher, 1)
	require.NoError(t, err)
	defer pool.Close()
	c, err := cache.New(cache.DefaultConfig())
	require.NoError(t, err)
	engine, err := extract.New(reg, pool, c)
	require.NoError(t, err)

	rec, body := get(t, New(engine, reg).Handler(), "/api/extract-stream/tt0000001")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, body["stream_url"])
	assert.Equal(t, "iframe", body["type"])
	assert.Equal(t, "https://quiet.example/embed/tt0000001", body["embed_url"])
	assert.Equal(t, false, body["cached"])

	_, again := get(t, New(engine, reg).Handler(), "/api/extract-stream/tt0000001")
	assert.Equal(t, "iframe", again["type"])
	assert.Equal(t, true, again["cached"])
}

// =============================================================================
// Supplementary endpoints
// =============================================================================

func TestSearchAndAutocomplete(t *testing.T) {
	t.Parallel()

	titles := &mockTitles{}
	titles.On("Search", mock.Anything, "the matrix", 3).
		Return([]models.TitleCandidate{{Title: "The Matrix", IMDBID: "tt0133093", Type: "movie"}})
	titles.On("Autocomplete", mock.Anything, "mat", 5).
		Return([]models.Suggestion{{Title: "The Matrix", Year: "1999", Type: "movie", TMDBID: 603}})
	h := New(&mockExtractor{}, builtin(t), WithTitles(titles)).Handler()

	rec, body := get(t, h, "/api/search/the%20matrix?limit=3")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "the matrix", body["query"])
	require.Len(t, body["results"], 1)

	_, body = get(t, h, "/api/autocomplete/mat")
	require.Len(t, body["suggestions"], 1)
	titles.AssertExpectations(t)
}

func TestSearchWithoutTitlesReturnsEmpty(t *testing.T) {
	t.Parallel()

	_, body := get(t, New(&mockExtractor{}, builtin(t)).Handler(), "/api/search/anything")
	assert.Equal(t, []any{}, body["results"])
}

func TestIMDbInfo(t *testing.T) {
	t.Parallel()

	titles := &mockTitles{}
	titles.On("Lookup", mock.Anything, "tt0133093").Return(models.TitleCandidate{Title: "The Matrix", Year: "1999", Type: "movie"})
	h := New(&mockExtractor{}, builtin(t), WithTitles(titles)).Handler()

	rec, body := get(t, h, "/api/imdb/tt0133093")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://www.2embed.cc/embed/tt0133093", body["embed_url"])
	assert.Equal(t, "https://www.imdb.com/title/tt0133093/", body["imdb_url"])
	assert.Equal(t, "The Matrix", body["title"])

	rec, _ = get(t, h, "/api/imdb/matrix")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSourcesListsProfilesWithHealth(t *testing.T) {
	t.Parallel()

	health := staticHealth{{SourceID: "vidsrc.me", Attempts: 4, Successes: 3}}
	_, body := get(t, New(&mockExtractor{}, builtin(t), WithHealth(health)).Handler(), "/api/sources")

	assert.Equal(t, "vidsrc.me", body["default"])
	list := body["sources"].([]any)
	require.Len(t, list, 5)
	first := list[0].(map[string]any)
	assert.Equal(t, "vidsrc.me", first["id"])
	assert.Equal(t, []any{"movie", "tv"}, first["types"])
	assert.InDelta(t, 0.75, first["success_rate"], 1e-9)
	assert.NotContains(t, list[1].(map[string]any), "health")
}

func TestHealthIndexAndNotFound(t *testing.T) {
	t.Parallel()

	h := New(&mockExtractor{}, builtin(t), WithPoolStats(func() browser.Stats { return browser.Stats{Size: 3} })).Handler()

	rec, body := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, 3.0, body["pool"].(map[string]any)["size"])

	_, body = get(t, h, "/api")
	assert.Equal(t, "LonelyMovie API", body["message"])

	rec, body = get(t, h, "/api/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "API endpoint not found", body["detail"])
}

// =============================================================================
// Middleware and static files
// =============================================================================

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	h := New(&mockExtractor{}, builtin(t)).Handler()
	req := httptest.NewRequest(http.MethodOptions, "/api/extract-stream/tt1", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "GET")
}

func TestRecoverRendersJSON(t *testing.T) {
	t.Parallel()

	ex := &mockExtractor{}
	ex.On("Extract", mock.Anything, mock.Anything).Run(func(mock.Arguments) { panic("kaboom") })

	rec, body := get(t, New(ex, builtin(t)).Handler(), "/api/extract-stream/tt1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", body["detail"])
}

func TestStaticSPA(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o644))
	h := New(&mockExtractor{}, builtin(t), WithStaticDir(dir)).Handler()

	rec, _ := get(t, h, "/watch/tt0133093")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "app")

	rec, _ = get(t, h, "/assets/app.js")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "console.log")

	rec, _ = get(t, h, "/api/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
