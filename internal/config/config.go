// Package config loads server settings from defaults, an optional config
// file, LONELYMOVIE_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lonelymovie/lonelymovie/internal/cache"
	"github.com/lonelymovie/lonelymovie/internal/extract"
)

const (
	Name      = "lonelymovie"
	EnvPrefix = "LONELYMOVIE"
)

// PoolSettings sizes the browser session pool
type PoolSettings struct {
	Size            int           `mapstructure:"size"`
	AcquireTimeout  time.Duration `mapstructure:"acquire_timeout"`
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	PruneInterval   time.Duration `mapstructure:"prune_interval"`
	Headless        bool          `mapstructure:"headless"`
	InstallBrowsers bool          `mapstructure:"install_browsers"`
}

// CacheSettings bounds the result cache
type CacheSettings struct {
	PositiveTTL   time.Duration `mapstructure:"positive_ttl"`
	NegativeTTL   time.Duration `mapstructure:"negative_ttl"`
	MaxTTL        time.Duration `mapstructure:"max_ttl"`
	MaxEntries    int           `mapstructure:"max_entries"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ExtractionSettings tunes a single extraction
type ExtractionSettings struct {
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	InteractDelay     time.Duration `mapstructure:"interact_delay"`
	Lookahead         time.Duration `mapstructure:"lookahead"`
	VerifyManifests   bool          `mapstructure:"verify_manifests"`
}

// Settings is the full server configuration
type Settings struct {
	Addr         string `mapstructure:"addr"`
	Debug        bool   `mapstructure:"debug"`
	StaticDir    string `mapstructure:"static_dir"`
	ProfilesFile string `mapstructure:"profiles_file"`
	TrackingDB   string `mapstructure:"tracking_db"`
	TMDBAPIKey   string `mapstructure:"tmdb_api_key"`
	OMDbAPIKey   string `mapstructure:"omdb_api_key"`

	Pool       PoolSettings       `mapstructure:"pool"`
	Cache      CacheSettings      `mapstructure:"cache"`
	Extraction ExtractionSettings `mapstructure:"extraction"`
}

// Defaults are the built-in values, keyed the way the config file is
func Defaults() map[string]any {
	c := cache.DefaultConfig()
	e := extract.DefaultSettings()
	return map[string]any{
		"addr":          ":8000",
		"debug":         false,
		"static_dir":    "",
		"profiles_file": "",
		"tracking_db":   defaultTrackingDB(),
		"tmdb_api_key":  "",
		"omdb_api_key":  "",

		"pool.size":             3,
		"pool.acquire_timeout":  e.AcquireTimeout,
		"pool.idle_ttl":         5 * time.Minute,
		"pool.prune_interval":   time.Minute,
		"pool.headless":         true,
		"pool.install_browsers": false,

		"cache.positive_ttl":   c.PositiveTTL,
		"cache.negative_ttl":   c.NegativeTTL,
		"cache.max_ttl":        c.MaxTTL,
		"cache.max_entries":    c.MaxEntries,
		"cache.sweep_interval": time.Minute,

		"extraction.request_timeout":    45 * time.Second,
		"extraction.navigation_timeout": e.NavigationTimeout,
		"extraction.interact_delay":     e.InteractDelay,
		"extraction.lookahead":          time.Duration(0),
		"extraction.verify_manifests":   false,
	}
}

func defaultTrackingDB() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, Name, "health.db")
}

// New returns a viper instance with defaults and environment bindings
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}
	// the API keys are also honoured under their conventional names
	_ = v.BindEnv("tmdb_api_key", EnvPrefix+"_TMDB_API_KEY", "TMDB_API_KEY")
	_ = v.BindEnv("omdb_api_key", EnvPrefix+"_OMDB_API_KEY", "OMDB_API_KEY")
	return v
}

// Load reads file, or lonelymovie.{toml,yaml,json} from the working and
// user config directories when file is empty, and decodes the result.
func Load(v *viper.Viper, file string) (Settings, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(Name)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, Name))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks ranges and the TTL ordering
func (s Settings) Validate() error {
	var errs []error
	if s.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if s.Pool.Size < 1 {
		errs = append(errs, fmt.Errorf("pool.size must be >= 1, got %d", s.Pool.Size))
	}
	if s.Pool.AcquireTimeout <= 0 {
		errs = append(errs, errors.New("pool.acquire_timeout must be positive"))
	}
	if err := s.CacheConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if s.Extraction.RequestTimeout <= 0 {
		errs = append(errs, errors.New("extraction.request_timeout must be positive"))
	}
	if s.Extraction.Lookahead < 0 {
		errs = append(errs, errors.New("extraction.lookahead must not be negative"))
	}
	return errors.Join(errs...)
}

// CacheConfig maps the cache section
func (s Settings) CacheConfig() cache.Config {
	return cache.Config{
		PositiveTTL: s.Cache.PositiveTTL,
		NegativeTTL: s.Cache.NegativeTTL,
		MaxTTL:      s.Cache.MaxTTL,
		MaxEntries:  s.Cache.MaxEntries,
	}
}

// EngineSettings maps the extraction section
func (s Settings) EngineSettings() extract.Settings {
	return extract.Settings{
		AcquireTimeout:    s.Pool.AcquireTimeout,
		NavigationTimeout: s.Extraction.NavigationTimeout,
		InteractDelay:     s.Extraction.InteractDelay,
		Lookahead:         s.Extraction.Lookahead,
		VerifyManifests:   s.Extraction.VerifyManifests,
	}
}
