// Package faq holds the static FAQ rule table and the keyword matcher that
// turns free-text input into a canned response.
//
// Matching is deliberately simple: the input is lower-cased and the first
// rule (in table order) with any pattern occurring as a substring wins. No
// tokenization, stemming, or fuzzy scoring is applied. The matcher is pure
// and safe for concurrent use; tables are never mutated after construction.
package faq

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NowPlaceholder is replaced with the current date and time when a response
// is rendered for delivery.
const NowPlaceholder = "{now}"

// Rule maps a set of keyword patterns to a single response.
type Rule struct {
	Category string   `yaml:"category" json:"category"`
	Patterns []string `yaml:"patterns" json:"patterns"`
	Response string   `yaml:"response" json:"response"`
}

// Table is an ordered rule list plus the response used when nothing matches.
type Table struct {
	Rules    []Rule `yaml:"rules"    json:"rules"`
	Fallback string `yaml:"fallback" json:"fallback"`
}

// Match returns the response of the first rule matching text, or the
// table's fallback when no rule matches.
func Match(text string, t Table) string {
	if r, ok := MatchRule(text, t); ok {
		return r.Response
	}
	return t.Fallback
}

// MatchRule returns the first rule for which any pattern is a substring of
// the lower-cased text. Leading and trailing whitespace is kept as is.
func MatchRule(text string, t Table) (Rule, bool) {
	lower := normalize(text)
	for _, r := range t.Rules {
		for _, p := range r.Patterns {
			if strings.Contains(lower, p) {
				return r, true
			}
		}
	}
	return Rule{}, false
}

// Expand renders the {now} placeholder in a response using now.
func Expand(response string, now time.Time) string {
	if !strings.Contains(response, NowPlaceholder) {
		return response
	}
	return strings.ReplaceAll(response, NowPlaceholder, now.Format("1/2/2006, 3:04:05 PM"))
}

// normalize lower-cases s with locale-neutral Unicode rules. A Caser is
// stateful, so one is built per call.
func normalize(s string) string {
	return cases.Lower(language.Und).String(s)
}
