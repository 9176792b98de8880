package sources

import (
	"math/rand/v2"
	"slices"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Viewport is the emulated browser window size
type Viewport struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

// Stealth is the set of browser-automation choices that make a session look
// like a regular visitor.
type Stealth struct {
	ID          string
	Args        []string
	Viewport    Viewport
	Locale      string
	Timezone    string
	BlockPopups bool
	InitScript  string

	userAgents   []string
	blockDomains map[string]struct{}
}

// UserAgent picks one of the configured user agents at random
func (s Stealth) UserAgent() string {
	if len(s.userAgents) == 0 {
		return ""
	}
	return s.userAgents[rand.IntN(len(s.userAgents))]
}

// UserAgents returns a copy of the configured user agents
func (s Stealth) UserAgents() []string {
	return slices.Clone(s.userAgents)
}

// Blocks reports whether requests to host should be aborted. The host and
// its registrable domain are both checked against the block list.
func (s Stealth) Blocks(host string) bool {
	if len(s.blockDomains) == 0 || host == "" {
		return false
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if _, ok := s.blockDomains[host]; ok {
		return true
	}
	if base, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		_, ok := s.blockDomains[base]
		return ok
	}
	return false
}

func newStealth(id string, f stealthFile) Stealth {
	s := Stealth{
		ID:          id,
		Args:        slices.Clone(f.Args),
		Viewport:    f.Viewport,
		Locale:      f.Locale,
		Timezone:    f.Timezone,
		BlockPopups: f.BlockPopups,
		InitScript:  strings.TrimSpace(f.InitScript),
		userAgents:  slices.Clone(f.UserAgents),
	}
	if s.Viewport.Width == 0 || s.Viewport.Height == 0 {
		s.Viewport = Viewport{Width: 1920, Height: 1080}
	}
	if len(f.BlockDomains) > 0 {
		s.blockDomains = make(map[string]struct{}, len(f.BlockDomains))
		for _, d := range f.BlockDomains {
			s.blockDomains[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
		}
	}
	return s
}
