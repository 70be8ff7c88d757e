// Package lang provides the closed set of languages the translation
// service understands. Languages are looked up, never constructed
// freely — a free-form string that doesn't match the table is rejected
// with errs.UnknownLanguage, per the session configuration's invariant
// that every language is drawn from a closed enumeration.
package lang

import (
	"strings"

	"golang.org/x/text/language"

	"go.palabra.dev/client/errs"
)

// Language is one entry in the closed tag set. Comparison is by Code,
// case-insensitively.
type Language struct {
	// Code is the canonical tag, e.g. "en-us".
	Code string
	// Subtag is the primary language subtag, e.g. "en".
	Subtag string
	// Label is the human-readable name, e.g. "English (US)".
	Label string
}

// byCode and bySubtag are built once from table at init time. bySubtag
// maps to the first table entry for that subtag, used as the fallback
// match when a canonical-code lookup misses.
var (
	byCode   map[string]Language
	bySubtag map[string]Language
)

func init() {
	byCode = make(map[string]Language, len(table))
	bySubtag = make(map[string]Language, len(table))
	for _, l := range table {
		byCode[l.Code] = l
		if _, ok := bySubtag[l.Subtag]; !ok {
			bySubtag[l.Subtag] = l
		}
	}
}

// Resolve looks up a free-form language string against the closed table.
// It first tries an exact canonical-code match (case-insensitive), then
// falls back to a primary-subtag match, per the router's language
// resolution rule. golang.org/x/text/language normalizes the input tag
// (e.g. "EN_US" -> "en-US") before either comparison so callers don't
// need to pre-canonicalize.
func Resolve(s string) (Language, error) {
	norm := normalize(s)
	if l, ok := byCode[norm]; ok {
		return l, nil
	}
	subtag := norm
	if i := strings.IndexByte(norm, '-'); i >= 0 {
		subtag = norm[:i]
	}
	if l, ok := bySubtag[subtag]; ok {
		return l, nil
	}
	return Language{}, errs.New(errs.UnknownLanguage, "lang.Resolve", nil)
}

// normalize lower-cases s and, where it parses as a valid BCP-47 tag,
// rewrites it to the form "primary-region" (lowercase) used by the table.
// Inputs that don't parse as a BCP-47 tag are still lower-cased and
// passed through, so exact-match lookups against the table still work
// for codes table entries without x/text coverage.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	tag, err := language.Parse(s)
	if err != nil {
		return s
	}
	base, conf := tag.Base()
	if conf == language.No {
		return s
	}
	region, regionConf := tag.Region()
	if regionConf == language.Exact && region.String() != "" {
		return strings.ToLower(base.String() + "-" + region.String())
	}
	return strings.ToLower(base.String())
}

// Equal reports whether two canonical codes name the same language,
// case-insensitively.
func Equal(a, b string) bool {
	return strings.EqualFold(a, b)
}

// All returns a copy of the closed language table.
func All() []Language {
	out := make([]Language, len(table))
	copy(out, table)
	return out
}
