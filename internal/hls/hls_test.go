package hls

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lonelymovie/lonelymovie/internal/models"
)

const masterPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=854x480
480p/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1920x1080
/abs/1080p/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1400000,RESOLUTION=1280x720
https://other.example/720p.m3u8
`

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXTINF:9.009,
seg0.ts
#EXTINF:9.009,
seg1.ts
#EXT-X-ENDLIST
`

func TestParseMasterPlaylist(t *testing.T) {
	t.Parallel()

	p, err := Parse(strings.NewReader(masterPlaylist), "https://cdn.example/hls/master.m3u8")
	require.NoError(t, err)

	assert.True(t, p.Master)
	assert.Equal(t, "3", p.Version)
	require.Len(t, p.Variants, 3)
	assert.Equal(t, "https://cdn.example/hls/480p/index.m3u8", p.Variants[0].URL)
	assert.Equal(t, "https://cdn.example/abs/1080p/index.m3u8", p.Variants[1].URL)
	assert.Equal(t, "https://other.example/720p.m3u8", p.Variants[2].URL)

	best, ok := p.Best()
	require.True(t, ok)
	assert.Equal(t, 2800000, best.Bandwidth)
	assert.Equal(t, "1920x1080", best.Resolution)
}

func TestParseMediaPlaylist(t *testing.T) {
	t.Parallel()

	p, err := Parse(strings.NewReader(mediaPlaylist), "https://cdn.example/v/index.m3u8")
	require.NoError(t, err)

	assert.False(t, p.Master)
	assert.Equal(t, 2, p.Segments)
	assert.Equal(t, 10.0, p.TargetDuration)
	assert.True(t, p.EndList)
	_, ok := p.Best()
	assert.False(t, ok)
}

func TestParseRejectsNonPlaylist(t *testing.T) {
	t.Parallel()

	for _, body := range []string{"", "<html><body>blocked</body></html>", "\n\n"} {
		_, err := Parse(strings.NewReader(body), "https://cdn.example/x.m3u8")
		assert.ErrorIs(t, err, ErrNotPlaylist, "body %q", body)
	}
}

func TestVerifyForwardsHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") != "https://embed.example/" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = w.Write([]byte(masterPlaylist))
	}))
	defer srv.Close()

	c := NewClient(srv.Client())
	ctx := context.Background()

	d, err := models.NewStreamDescriptor("alpha", srv.URL+"/master.m3u8", models.SubtypeHLS, "",
		map[string]string{"Referer": "https://embed.example/"})
	require.NoError(t, err)
	assert.NoError(t, c.Verify(ctx, d))

	bare, err := models.NewStreamDescriptor("alpha", srv.URL+"/master.m3u8", models.SubtypeHLS, "", nil)
	require.NoError(t, err)
	err = c.Verify(ctx, bare)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestVerifyMasterWithoutVariants(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\n"))
	}))
	defer srv.Close()

	d, err := models.NewStreamDescriptor("alpha", srv.URL+"/m.m3u8", models.SubtypeHLS, "", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, NewClient(srv.Client()).Verify(context.Background(), d), ErrNoVariants)
}
