package faq

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFallback is returned when no rule matches.
const DefaultFallback = "Sorry, I didn't understand that. Can you please rephrase? 🤔"

// DefaultTable returns the built-in FAQ rules.
func DefaultTable() Table {
	return Table{
		Rules: []Rule{
			{
				Category: "greetings",
				Patterns: []string{"hi", "hello", "how are you", "hey"},
				Response: "Hello! How can I help you today? 😊",
			},
			{
				Category: "weather",
				Patterns: []string{"weather", "temperature", "forecast"},
				Response: "Today's weather is sunny with mild temperatures!",
			},
			{
				Category: "time",
				Patterns: []string{"time", "date", "day"},
				Response: "The current date and time is " + NowPlaceholder + ".",
			},
			{
				Category: "help",
				Patterns: []string{"help", "support", "contact"},
				Response: "Sure! You can contact support at support@example.com.",
			},
			{
				Category: "company",
				Patterns: []string{"about", "services", "pricing"},
				Response: "We offer web design, development, and hosting at competitive prices.",
			},
		},
		Fallback: DefaultFallback,
	}
}

// ErrInvalidTable is wrapped by every validation failure of a loaded table.
var ErrInvalidTable = errors.New("invalid faq table")

// LoadFile reads a rule table from a YAML (or JSON) file. An empty path
// yields DefaultTable.
func LoadFile(path string) (Table, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTable(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Table{}, err
	}
	return Parse(b)
}

// Parse decodes and validates a rule table. Patterns are lower-cased and
// trimmed so that matching against normalized input stays case-insensitive;
// a missing fallback defaults to DefaultFallback.
func Parse(b []byte) (Table, error) {
	var t Table
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return Table{}, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	if len(t.Rules) == 0 {
		return Table{}, fmt.Errorf("%w: no rules", ErrInvalidTable)
	}
	for i := range t.Rules {
		r := &t.Rules[i]
		if strings.TrimSpace(r.Response) == "" {
			return Table{}, fmt.Errorf("%w: rule %d has an empty response", ErrInvalidTable, i)
		}
		pats := make([]string, 0, len(r.Patterns))
		for _, p := range r.Patterns {
			p = normalize(strings.TrimSpace(p))
			if p != "" {
				pats = append(pats, p)
			}
		}
		if len(pats) == 0 {
			return Table{}, fmt.Errorf("%w: rule %d has no patterns", ErrInvalidTable, i)
		}
		r.Patterns = pats
	}
	if strings.TrimSpace(t.Fallback) == "" {
		t.Fallback = DefaultFallback
	}
	return t, nil
}
