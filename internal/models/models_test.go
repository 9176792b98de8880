package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMediaType(t *testing.T) {
	for in, want := range map[string]MediaType{
		"":        MediaTypeMovie,
		"movie":   MediaTypeMovie,
		"TV":      MediaTypeEpisode,
		"episode": MediaTypeEpisode,
		" series": MediaTypeEpisode,
	} {
		got, err := ParseMediaType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMediaType("anime")
	assert.ErrorIs(t, err, ErrInvalidMediaType)
}

func TestTitleRefValidate(t *testing.T) {
	movie := TitleRef{ID: " tt0111161 ", Season: 3, Episode: 4}
	require.NoError(t, movie.Validate())
	assert.Equal(t, TitleRef{ID: "tt0111161", Type: MediaTypeMovie}, movie)

	ep := TitleRef{ID: "tt0903747", Type: MediaTypeEpisode, Season: 1, Episode: 2}
	require.NoError(t, ep.Validate())
	assert.Equal(t, "tt0903747 S01E02", ep.String())

	missing := TitleRef{ID: "tt0903747", Type: MediaTypeEpisode, Season: 1}
	assert.ErrorIs(t, missing.Validate(), ErrInvalidTitle)

	empty := TitleRef{}
	assert.ErrorIs(t, empty.Validate(), ErrInvalidTitle)
}

func TestIsIMDBID(t *testing.T) {
	assert.True(t, IsIMDBID("tt1375666"))
	assert.False(t, IsIMDBID("1375666"))
	assert.False(t, IsIMDBID("tt13x"))
}

func TestStreamDescriptor(t *testing.T) {
	headers := map[string]string{"Referer": "https://vidsrc.me/"}
	d, err := NewStreamDescriptor("vidsrc.me", "https://cdn.example/a.m3u8", SubtypeHLS, "", headers)
	require.NoError(t, err)
	assert.Equal(t, StreamKindManifest, d.Kind)
	assert.Equal(t, ConfidenceMedium, d.Confidence)
	assert.True(t, d.Playable())
	assert.Equal(t, "m3u8", d.Subtype.Format())

	// the descriptor owns its headers
	headers["Referer"] = "changed"
	assert.Equal(t, "https://vidsrc.me/", d.Headers["Referer"])

	withCookie := d.WithHeader("Cookie", "a=1")
	assert.Equal(t, "a=1", withCookie.Headers["Cookie"])
	assert.NotContains(t, d.Headers, "Cookie")

	low := d.WithConfidence(ConfidenceLow)
	assert.Equal(t, ConfidenceLow, low.Confidence)
	assert.Equal(t, ConfidenceMedium, d.Confidence)

	_, err = NewStreamDescriptor("x", "/relative.mp4", SubtypeMP4, ConfidenceHigh, nil)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
	_, err = NewStreamDescriptor("x", "https://cdn.example/a", StreamSubtype("dash"), ConfidenceHigh, nil)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	none := NoStream("x")
	assert.False(t, none.Playable())
	assert.Equal(t, StreamKindNone, none.Kind)
}

func TestExchangeMediaType(t *testing.T) {
	assert.Equal(t, "application/vnd.apple.mpegurl", Exchange{ContentType: "Application/vnd.apple.mpegURL; charset=utf-8"}.MediaType())
	assert.Equal(t, "video/mp4", Exchange{ContentType: "video/mp4;;bad"}.MediaType())
	assert.Empty(t, Exchange{}.MediaType())
	assert.True(t, Exchange{Status: 404}.Failed())
	assert.False(t, Exchange{Status: 206}.Failed())
}
