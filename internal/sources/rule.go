package sources

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/lonelymovie/lonelymovie/internal/models"
)

// RuleKind tags the predicate a Rule applies
type RuleKind string

const (
	RuleURLContains       RuleKind = "url_contains"
	RuleURLSuffix         RuleKind = "url_suffix"
	RuleURLRegex          RuleKind = "url_regex"
	RuleContentType       RuleKind = "content_type"
	RuleContentTypePrefix RuleKind = "content_type_prefix"
)

// Rule is one matching predicate over an exchange's URL or content type,
// tagged with the stream subtype a match implies.
type Rule struct {
	Kind    RuleKind
	Value   string
	Subtype models.StreamSubtype

	re *regexp.Regexp
}

// NewRule validates and compiles a rule
func NewRule(kind RuleKind, value string, subtype models.StreamSubtype) (Rule, error) {
	if value == "" {
		return Rule{}, fmt.Errorf("rule %s: empty value", kind)
	}
	if subtype.Kind() == models.StreamKindNone {
		return Rule{}, fmt.Errorf("rule %s %q: unknown subtype %q", kind, value, subtype)
	}

	r := Rule{Kind: kind, Subtype: subtype}
	switch kind {
	case RuleURLContains, RuleURLSuffix, RuleContentType, RuleContentTypePrefix:
		r.Value = strings.ToLower(value)
	case RuleURLRegex:
		re, err := regexp.Compile(value)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %s %q: %w", kind, value, err)
		}
		r.Value = value
		r.re = re
	default:
		return Rule{}, fmt.Errorf("unknown rule kind %q", kind)
	}
	return r, nil
}

// Match evaluates the rule against an exchange
func (r Rule) Match(ex models.Exchange) bool {
	switch r.Kind {
	case RuleURLContains:
		return strings.Contains(strings.ToLower(ex.URL), r.Value)
	case RuleURLSuffix:
		return strings.HasSuffix(strings.ToLower(urlPath(ex.URL)), r.Value)
	case RuleURLRegex:
		return r.re != nil && r.re.MatchString(ex.URL)
	case RuleContentType:
		return ex.MediaType() == r.Value
	case RuleContentTypePrefix:
		mt := ex.MediaType()
		return mt != "" && strings.HasPrefix(mt, r.Value)
	}
	return false
}

// MatchesContentType reports whether the rule inspects content types
func (r Rule) MatchesContentType() bool {
	return r.Kind == RuleContentType || r.Kind == RuleContentTypePrefix
}

func (r Rule) String() string {
	return fmt.Sprintf("%s(%s)->%s", r.Kind, r.Value, r.Subtype)
}

// urlPath returns the path of a URL without query or fragment
func urlPath(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return u.Path
	}
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}
