package browser

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Scope identifies one logical navigation. Popups whose host shares a
// registrable domain with the embed page or a related host belong to it.
type Scope struct {
	EmbedURL     string
	RelatedHosts []string
}

// Attributes reports whether traffic loaded in a popup at rawURL belongs to
// the navigation.
func (s Scope) Attributes(rawURL string) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	domain := registrableDomain(host)
	if embed := hostOf(s.EmbedURL); embed != "" && registrableDomain(embed) == domain {
		return true
	}
	for _, h := range s.RelatedHosts {
		if registrableDomain(h) == domain {
			return true
		}
	}
	return false
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func registrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}
