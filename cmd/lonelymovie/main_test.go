package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lonelymovie/lonelymovie/internal/extract"
	"github.com/lonelymovie/lonelymovie/internal/models"
)

func newExtractFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "extract"}
	extractFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestTitleFromFlags(t *testing.T) {
	ref, err := titleFromFlags(newExtractFlags(t, "--type", "tv", "--season", "1", "-e", "3"), "tt0903747")
	require.NoError(t, err)
	assert.Equal(t, models.TitleRef{ID: "tt0903747", Type: models.MediaTypeEpisode, Season: 1, Episode: 3}, ref)

	_, err = titleFromFlags(newExtractFlags(t), "breaking-bad")
	assert.Error(t, err)

	_, err = titleFromFlags(newExtractFlags(t, "--type", "tv"), "tt0903747")
	assert.ErrorIs(t, err, models.ErrInvalidTitle)
}

func TestPrintOutcome(t *testing.T) {
	d, err := models.NewStreamDescriptor("vidsrc.me", "https://cdn.example/a.m3u8", models.SubtypeHLS, models.ConfidenceHigh, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printOutcome(&buf, extract.Outcome{State: extract.StateCompleted, Descriptor: d}, nil))
	assert.Contains(t, buf.String(), "https://cdn.example/a.m3u8")

	buf.Reset()
	navErr := &extract.Error{Kind: extract.KindNavigation, Source: "vidsrc.me"}
	require.NoError(t, printOutcome(&buf, extract.Outcome{EmbedURL: "https://vidsrc.me/embed"}, navErr))
	assert.Contains(t, buf.String(), "https://vidsrc.me/embed")

	internal := &extract.Error{Kind: extract.KindInternal, Err: errors.New("boom")}
	assert.ErrorIs(t, printOutcome(&buf, extract.Outcome{}, internal), internal)
}
