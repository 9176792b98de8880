package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadIn(t *testing.T, dir, file string) (Settings, error) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return Load(New(), file)
}

func TestLoadDefaults(t *testing.T) {
	s, err := loadIn(t, t.TempDir(), "")
	require.NoError(t, err)

	assert.Equal(t, ":8000", s.Addr)
	assert.Equal(t, 3, s.Pool.Size)
	assert.True(t, s.Pool.Headless)
	assert.Equal(t, 10*time.Minute, s.Cache.PositiveTTL)
	assert.Equal(t, 2*time.Minute, s.Cache.NegativeTTL)
	assert.Equal(t, 45*time.Second, s.Extraction.RequestTimeout)
	assert.Zero(t, s.Extraction.Lookahead)
	assert.Equal(t, "health.db", filepath.Base(s.TrackingDB))
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
addr = "127.0.0.1:9000"

[pool]
size = 6
acquire_timeout = "3s"

[cache]
negative_ttl = "30s"

[extraction]
lookahead = "750ms"
verify_manifests = true
`), 0o600))

	t.Setenv("LONELYMOVIE_POOL_SIZE", "8")
	t.Setenv("TMDB_API_KEY", "from-env")

	s, err := loadIn(t, dir, file)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", s.Addr)
	assert.Equal(t, 8, s.Pool.Size, "env wins over file")
	assert.Equal(t, 3*time.Second, s.Pool.AcquireTimeout)
	assert.Equal(t, 30*time.Second, s.Cache.NegativeTTL)
	assert.Equal(t, "from-env", s.TMDBAPIKey)

	es := s.EngineSettings()
	assert.Equal(t, 750*time.Millisecond, es.Lookahead)
	assert.True(t, es.VerifyManifests)
	assert.Equal(t, 3*time.Second, es.AcquireTimeout)
	assert.Equal(t, 30*time.Second, s.CacheConfig().NegativeTTL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := loadIn(t, t.TempDir(), "does-not-exist.toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
[pool]
size = 0
[cache]
positive_ttl = "1m"
negative_ttl = "5m"
`), 0o600))

	_, err := loadIn(t, dir, file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool.size")
	assert.Contains(t, err.Error(), "negative ttl")
}

func TestValidate(t *testing.T) {
	base, err := loadIn(t, t.TempDir(), "")
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"empty addr", func(s *Settings) { s.Addr = "" }, "addr"},
		{"zero acquire", func(s *Settings) { s.Pool.AcquireTimeout = 0 }, "acquire_timeout"},
		{"no request timeout", func(s *Settings) { s.Extraction.RequestTimeout = 0 }, "request_timeout"},
		{"negative lookahead", func(s *Settings) { s.Extraction.Lookahead = -time.Second }, "lookahead"},
		{"max below positive", func(s *Settings) { s.Cache.MaxTTL = time.Minute }, "max ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
