package sources

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lonelymovie/lonelymovie/internal/models"
)

// =============================================================================
// Registry Tests
// =============================================================================

func TestBuiltinRegistryProfiles(t *testing.T) {
	t.Parallel()

	reg, err := Builtin()
	require.NoError(t, err)

	ids := reg.IDs()
	assert.Equal(t, []string{"vidsrc.me", "vidsrc.to", "embed.su", "2embed.cc", "smashystream"}, ids)
	assert.Equal(t, "vidsrc.me", reg.Default())

	for _, id := range ids {
		p, err := reg.Profile(id)
		require.NoError(t, err, id)
		assert.Equal(t, id, p.ID)
		assert.NotEmpty(t, p.Rules(), "profile %s must have rules", id)
		assert.Positive(t, p.Timeout)
		assert.NotEmpty(t, p.Stealth.UserAgent())
		assert.NotEmpty(t, p.PlaySelectors())
	}
}

func TestRegistryRuleOrderIsDeclarationOrder(t *testing.T) {
	t.Parallel()

	reg, err := Builtin()
	require.NoError(t, err)

	p, err := reg.Profile("vidsrc.me")
	require.NoError(t, err)

	rules := p.Rules()
	require.Len(t, rules, 6)
	assert.Equal(t, RuleContentType, rules[0].Kind)
	assert.Equal(t, "application/vnd.apple.mpegurl", rules[0].Value)
	assert.Equal(t, RuleURLSuffix, rules[2].Kind)
	assert.Equal(t, models.SubtypeMP4, rules[5].Subtype)

	// Mutating the returned slice must not leak into the registry
	rules[0] = Rule{}
	again, _ := reg.Profile("vidsrc.me")
	assert.Equal(t, RuleContentType, again.Rules()[0].Kind)
}

func TestRegistryUnknownSource(t *testing.T) {
	t.Parallel()

	reg, err := Builtin()
	require.NoError(t, err)

	_, err = reg.Profile("nope.example")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "nope.example")
}

func TestEmbedURLRendering(t *testing.T) {
	t.Parallel()

	reg, err := Builtin()
	require.NoError(t, err)

	tests := []struct {
		source string
		ref    models.TitleRef
		want   string
	}{
		{"vidsrc.me", models.TitleRef{ID: "tt1375666", Type: models.MediaTypeMovie}, "https://vidsrc.me/embed/movie?imdb=tt1375666"},
		{"vidsrc.to", models.TitleRef{ID: "tt1375666", Type: models.MediaTypeMovie}, "https://vidsrc.to/embed/movie/tt1375666"},
		{"vidsrc.to", models.TitleRef{ID: "tt0903747", Type: models.MediaTypeEpisode, Season: 2, Episode: 5}, "https://vidsrc.to/embed/tv/tt0903747/2/5"},
		{"2embed.cc", models.TitleRef{ID: "tt0903747", Type: models.MediaTypeEpisode, Season: 1, Episode: 1}, "https://www.2embed.cc/embedtv/tt0903747&s=1&e=1"},
		{"smashystream", models.TitleRef{ID: "tt1375666", Type: models.MediaTypeMovie}, "https://player.smashy.stream/movie/tt1375666"},
	}

	for _, tt := range tests {
		t.Run(tt.source+"/"+tt.ref.String(), func(t *testing.T) {
			p, err := reg.Profile(tt.source)
			require.NoError(t, err)
			got, err := p.EmbedURL(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRejectsInvalidTables(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "no sources",
			data:    `default_source = "x"`,
			wantErr: "no sources",
		},
		{
			name: "unknown key",
			data: `
[stealth.s]
[[source]]
id = "a"
movie_url = "https://a/{id}"
stealth = "s"
colour = "blue"
  [[source.rule]]
  kind = "url_contains"
  value = ".m3u8"
  subtype = "hls"
`,
			wantErr: "unknown keys",
		},
		{
			name: "no rules",
			data: `
[stealth.s]
[[source]]
id = "a"
movie_url = "https://a/{id}"
stealth = "s"
`,
			wantErr: "no matching rules",
		},
		{
			name: "bad regex",
			data: `
[stealth.s]
[[source]]
id = "a"
movie_url = "https://a/{id}"
stealth = "s"
  [[source.rule]]
  kind = "url_regex"
  value = "(["
  subtype = "hls"
`,
			wantErr: "rule 1",
		},
		{
			name: "unknown stealth",
			data: `
[[source]]
id = "a"
movie_url = "https://a/{id}"
stealth = "ghost"
  [[source.rule]]
  kind = "url_contains"
  value = ".m3u8"
  subtype = "hls"
`,
			wantErr: "unknown stealth",
		},
		{
			name: "duplicate ids",
			data: `
[stealth.s]
[[source]]
id = "a"
movie_url = "https://a/{id}"
stealth = "s"
  [[source.rule]]
  kind = "url_contains"
  value = ".m3u8"
  subtype = "hls"
[[source]]
id = "a"
movie_url = "https://a/{id}"
stealth = "s"
  [[source.rule]]
  kind = "url_contains"
  value = ".m3u8"
  subtype = "hls"
`,
			wantErr: "duplicate ids",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	t.Parallel()

	reg, err := Parse(`
[defaults]
timeout = "7s"
attempts = 3
reject = ["/Track"]

[stealth.s]
user_agents = ["UA-1"]

[[source]]
id = "a"
movie_url = "https://a.example/{id}"
stealth = "s"
  [[source.rule]]
  kind = "url_contains"
  value = ".M3U8"
  subtype = "hls"
`)
	require.NoError(t, err)

	p, err := reg.Profile("a")
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, p.Timeout)
	assert.Equal(t, 3, p.Attempts)
	assert.Equal(t, "a", p.Name)
	assert.Equal(t, "a", reg.Default())
	assert.Equal(t, "UA-1", p.Stealth.UserAgent())
	assert.Equal(t, 1920, p.Stealth.Viewport.Width)
	assert.True(t, p.Rejects("https://a.example/track/pixel"))
	assert.False(t, p.Supports(models.MediaTypeEpisode))

	_, err = p.EmbedURL(models.TitleRef{ID: "tt1", Type: models.MediaTypeEpisode, Season: 1, Episode: 1})
	assert.ErrorIs(t, err, ErrUnsupported)
}
