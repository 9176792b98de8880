// Package sources holds the static table of third-party embed sources and
// the heuristics used to find streams in their network traffic.
package sources

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"

	"github.com/lonelymovie/lonelymovie/internal/models"
)

//go:embed profiles.toml
var builtinProfiles string

const (
	defaultTimeout  = 25 * time.Second
	defaultAttempts = 1
)

// Registry is the read-only lookup of source profiles
type Registry struct {
	profiles  map[string]Profile
	order     []string
	defaultID string
}

type duration struct{ time.Duration }

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type profilesFile struct {
	DefaultSource string                 `toml:"default_source"`
	Defaults      defaultsFile           `toml:"defaults"`
	Stealth       map[string]stealthFile `toml:"stealth"`
	Sources       []sourceFile           `toml:"source"`
}

type defaultsFile struct {
	Timeout       duration `toml:"timeout"`
	Attempts      int      `toml:"attempts"`
	RatePerMinute int      `toml:"rate_per_minute"`
	PlaySelectors []string `toml:"play_selectors"`
	Reject        []string `toml:"reject"`
}

type stealthFile struct {
	UserAgents   []string `toml:"user_agents"`
	Args         []string `toml:"args"`
	Viewport     Viewport `toml:"viewport"`
	Locale       string   `toml:"locale"`
	Timezone     string   `toml:"timezone"`
	BlockPopups  bool     `toml:"block_popups"`
	BlockDomains []string `toml:"block_domains"`
	InitScript   string   `toml:"init_script"`
}

type sourceFile struct {
	ID            string     `toml:"id"`
	Name          string     `toml:"name"`
	MovieURL      string     `toml:"movie_url"`
	EpisodeURL    string     `toml:"episode_url"`
	Stealth       string     `toml:"stealth"`
	Timeout       duration   `toml:"timeout"`
	Attempts      int        `toml:"attempts"`
	RatePerMinute int        `toml:"rate_per_minute"`
	RelatedHosts  []string   `toml:"related_hosts"`
	PlaySelectors []string   `toml:"play_selectors"`
	Reject        []string   `toml:"reject"`
	Rules         []ruleFile `toml:"rule"`
}

type ruleFile struct {
	Kind    string `toml:"kind"`
	Value   string `toml:"value"`
	Subtype string `toml:"subtype"`
}

// Builtin returns the registry compiled from the embedded profile table
func Builtin() (*Registry, error) {
	return Parse(builtinProfiles)
}

// Load reads a profile table from path, or the embedded table when path is empty
func Load(path string) (*Registry, error) {
	if path == "" {
		return Builtin()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source profiles: %w", err)
	}
	return Parse(string(data))
}

// Parse decodes and validates a TOML profile table
func Parse(data string) (*Registry, error) {
	var f profilesFile
	md, err := toml.Decode(data, &f)
	if err != nil {
		return nil, fmt.Errorf("decode source profiles: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := lo.Map(undecoded, func(k toml.Key, _ int) string { return k.String() })
		return nil, fmt.Errorf("unknown keys in source profiles: %s", strings.Join(keys, ", "))
	}
	return build(f)
}

func build(f profilesFile) (*Registry, error) {
	if len(f.Sources) == 0 {
		return nil, fmt.Errorf("source profiles: no sources declared")
	}
	ids := lo.Map(f.Sources, func(s sourceFile, _ int) string { return s.ID })
	if dups := lo.FindDuplicates(ids); len(dups) > 0 {
		return nil, fmt.Errorf("source profiles: duplicate ids %v", dups)
	}

	stealth := make(map[string]Stealth, len(f.Stealth))
	for id, sf := range f.Stealth {
		stealth[id] = newStealth(id, sf)
	}

	reg := &Registry{
		profiles: make(map[string]Profile, len(f.Sources)),
		order:    make([]string, 0, len(f.Sources)),
	}
	for _, sf := range f.Sources {
		p, err := buildProfile(sf, f.Defaults, stealth)
		if err != nil {
			return nil, err
		}
		reg.profiles[p.ID] = p
		reg.order = append(reg.order, p.ID)
	}

	reg.defaultID = f.DefaultSource
	if reg.defaultID == "" {
		reg.defaultID = reg.order[0]
	}
	if _, ok := reg.profiles[reg.defaultID]; !ok {
		return nil, fmt.Errorf("source profiles: default source %q is not declared", reg.defaultID)
	}
	return reg, nil
}

func buildProfile(sf sourceFile, defs defaultsFile, stealth map[string]Stealth) (Profile, error) {
	if sf.ID == "" {
		return Profile{}, fmt.Errorf("source profiles: source without id")
	}
	if !strings.Contains(sf.MovieURL, "{id}") && !strings.Contains(sf.EpisodeURL, "{id}") {
		return Profile{}, fmt.Errorf("source %s: url templates must contain {id}", sf.ID)
	}
	if len(sf.Rules) == 0 {
		return Profile{}, fmt.Errorf("source %s: no matching rules", sf.ID)
	}

	st, ok := stealth[sf.Stealth]
	if !ok {
		return Profile{}, fmt.Errorf("source %s: unknown stealth profile %q", sf.ID, sf.Stealth)
	}

	p := Profile{
		ID:              sf.ID,
		Name:            lo.CoalesceOrEmpty(sf.Name, sf.ID),
		MovieTemplate:   sf.MovieURL,
		EpisodeTemplate: sf.EpisodeURL,
		Stealth:         st,
		Timeout:         lo.CoalesceOrEmpty(sf.Timeout.Duration, defs.Timeout.Duration, defaultTimeout),
		Attempts:        lo.CoalesceOrEmpty(sf.Attempts, defs.Attempts, defaultAttempts),
		RatePerMinute:   lo.CoalesceOrEmpty(sf.RatePerMinute, defs.RatePerMinute),
		playSelectors:   lo.CoalesceSliceOrEmpty(sf.PlaySelectors, defs.PlaySelectors),
		reject:          lowerAll(lo.CoalesceSliceOrEmpty(sf.Reject, defs.Reject)),
		relatedHosts:    lowerAll(sf.RelatedHosts),
	}

	for i, rf := range sf.Rules {
		rule, err := NewRule(RuleKind(rf.Kind), rf.Value, models.StreamSubtype(rf.Subtype))
		if err != nil {
			return Profile{}, fmt.Errorf("source %s rule %d: %w", sf.ID, i+1, err)
		}
		p.rules = append(p.rules, rule)
	}
	return p, nil
}

func lowerAll(in []string) []string {
	return lo.Map(in, func(s string, _ int) string { return strings.ToLower(strings.TrimSpace(s)) })
}

// Profile looks up a source by id
func (r *Registry) Profile(id string) (Profile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return p, nil
}

// IDs returns source ids in declaration order
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// All returns every profile in declaration order
func (r *Registry) All() []Profile {
	return lo.Map(r.order, func(id string, _ int) Profile { return r.profiles[id] })
}

// Default returns the id used when a request names no source
func (r *Registry) Default() string {
	return r.defaultID
}
