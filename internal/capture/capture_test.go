package capture

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lonelymovie/lonelymovie/internal/browser"
	"github.com/lonelymovie/lonelymovie/internal/models"
	"github.com/lonelymovie/lonelymovie/internal/sources"
)

// sliceFeed replays fixed exchanges and then blocks until ctx ends
type sliceFeed struct {
	items []models.Exchange
	pos   int
}

func (f *sliceFeed) Next(ctx context.Context) (models.Exchange, error) {
	if f.pos < len(f.items) {
		ex := f.items[f.pos]
		f.pos++
		return ex, nil
	}
	<-ctx.Done()
	return models.Exchange{}, ctx.Err()
}

func testProfile(t *testing.T, id string) sources.Profile {
	t.Helper()
	reg, err := sources.Builtin()
	require.NoError(t, err)
	p, err := reg.Profile(id)
	require.NoError(t, err)
	return p
}

func noise(n int) []models.Exchange {
	out := make([]models.Exchange, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Exchange{
			URL:         fmt.Sprintf("https://vidsrc.me/assets/img-%d.png", i),
			ContentType: "image/png",
			Status:      200,
		})
	}
	return out
}

// =============================================================================
// Determinism
// =============================================================================

func TestCaptureIsDeterministicRegardlessOfNoise(t *testing.T) {
	t.Parallel()

	profile := testProfile(t, "vidsrc.me")
	match := models.Exchange{
		URL:            "https://tmstr.example.net/pl/H4sI/master.m3u8",
		ContentType:    "application/vnd.apple.mpegurl",
		Status:         200,
		RequestHeaders: map[string]string{"referer": "https://vidsrc.me/", "accept": "*/*"},
	}
	later := models.Exchange{URL: "https://tmstr.example.net/pl/H4sI/1080/index.m3u8", Status: 200}

	var want models.StreamDescriptor
	for n := 0; n <= 25; n += 5 {
		items := append(noise(n), match, later)
		got, err := Capture(context.Background(), &sliceFeed{items: items}, profile, time.Now().Add(time.Second))
		require.NoError(t, err)
		if n == 0 {
			want = got
			continue
		}
		assert.Equal(t, want, got, "noise=%d", n)
	}

	assert.Equal(t, models.StreamKindManifest, want.Kind)
	assert.Equal(t, models.SubtypeHLS, want.Subtype)
	assert.Equal(t, match.URL, want.URL)
	assert.Equal(t, models.ConfidenceHigh, want.Confidence)
	assert.Equal(t, map[string]string{"Referer": "https://vidsrc.me/"}, want.Headers)
	assert.Equal(t, "vidsrc.me", want.Source)
}

func TestCaptureFirstExchangeWinsOverBetterRule(t *testing.T) {
	t.Parallel()

	profile := testProfile(t, "vidsrc.me")
	items := []models.Exchange{
		{URL: "https://cdn.example/movie.mp4", Status: 206},
		{URL: "https://cdn.example/master.m3u8", ContentType: "application/vnd.apple.mpegurl", Status: 200},
	}

	got, err := Capture(context.Background(), &sliceFeed{items: items}, profile, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, models.StreamKindFile, got.Kind)
	assert.Equal(t, models.SubtypeMP4, got.Subtype)
	assert.Equal(t, "https://cdn.example/movie.mp4", got.URL)
	assert.Equal(t, models.ConfidenceMedium, got.Confidence)
}

func TestCaptureSkipsRejectedAndFailedExchanges(t *testing.T) {
	t.Parallel()

	profile := testProfile(t, "vidsrc.me")
	items := []models.Exchange{
		{URL: "blob:https://vidsrc.me/1b2c", ContentType: "application/vnd.apple.mpegurl", Status: 200},
		{URL: "https://www.google-analytics.com/collect?u=index.m3u8", Status: 200},
		{URL: "https://cdn.example/gone.m3u8", Status: 404},
		{URL: "https://cdn.example/ok.m3u8", Status: 200},
	}

	got, err := Capture(context.Background(), &sliceFeed{items: items}, profile, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/ok.m3u8", got.URL)
}

func TestCaptureRedirectHopMatches(t *testing.T) {
	t.Parallel()

	profile := testProfile(t, "vidsrc.me")
	items := []models.Exchange{
		{URL: "https://vidsrc.me/embed/movie?imdb=tt1375666", Status: 200, Navigation: true},
		{URL: "https://r.example/go/stream.m3u8", Status: 302},
	}

	got, err := Capture(context.Background(), &sliceFeed{items: items}, profile, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "https://r.example/go/stream.m3u8", got.URL)
}

// =============================================================================
// Deadlines
// =============================================================================

func TestCaptureDeadlineYieldsNone(t *testing.T) {
	t.Parallel()

	profile := testProfile(t, "vidsrc.me")
	start := time.Now()
	got, err := Capture(context.Background(), &sliceFeed{items: noise(3)}, profile, start.Add(50*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, models.NoStream("vidsrc.me"), got)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestCaptureCallerCancellationIsAnError(t *testing.T) {
	t.Parallel()

	profile := testProfile(t, "vidsrc.me")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	got, err := Capture(ctx, &sliceFeed{}, profile, time.Now().Add(time.Minute))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, got.Playable())
}

func TestCaptureClosedFeed(t *testing.T) {
	t.Parallel()

	profile := testProfile(t, "vidsrc.me")
	feed := browser.NewFeed(browser.Scope{})
	feed.Close()

	_, err := Capture(context.Background(), feed, profile, time.Now().Add(time.Second))
	assert.ErrorIs(t, err, browser.ErrFeedClosed)
}

func TestCaptureFromLiveFeed(t *testing.T) {
	t.Parallel()

	profile := testProfile(t, "embed.su")
	feed := browser.NewFeed(browser.Scope{EmbedURL: "https://embed.su/embed/movie/tt1375666"})
	go func() {
		feed.Push(models.Exchange{URL: "https://embed.su/embed/movie/tt1375666", ContentType: "text/html", Status: 200})
		time.Sleep(10 * time.Millisecond)
		feed.Push(models.Exchange{URL: "https://hls.example/v/index.m3u8?t=1", ContentType: "text/plain", Status: 200})
	}()

	got, err := Capture(context.Background(), feed, profile, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "https://hls.example/v/index.m3u8?t=1", got.URL)
	assert.Equal(t, models.ConfidenceMedium, got.Confidence)
}

// =============================================================================
// Look-ahead
// =============================================================================

func TestCaptureLookaheadPrefersMaster(t *testing.T) {
	t.Parallel()

	profile := testProfile(t, "vidsrc.me")
	items := []models.Exchange{
		{URL: "https://cdn.example/hls/480/index.m3u8", Status: 200},
		{URL: "https://cdn.example/hls/master.m3u8", Status: 200},
		{URL: "https://cdn.example/movie.mp4", Status: 200},
	}

	var hits int
	got, err := Capture(context.Background(), &sliceFeed{items: items}, profile, time.Now().Add(time.Second),
		WithLookahead(30*time.Millisecond), WithMatchHook(func(Match) { hits++ }))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/hls/master.m3u8", got.URL)
	assert.Equal(t, 2, hits)
}

func TestRank(t *testing.T) {
	t.Parallel()

	assert.Greater(t, Rank("https://x/master.m3u8"), Rank("https://x/index.m3u8"))
	assert.Greater(t, Rank("https://x/1080/index.m3u8"), Rank("https://x/480/index.m3u8"))
	assert.Greater(t, Rank("https://x/index.m3u8"), Rank("https://x/movie.mp4"))
}
