package faq

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParse_YAML_NormalizesPatterns(t *testing.T) {
	src := []byte(`
rules:
  - category: shipping
    patterns: ["  Shipping ", "DELIVERY", ""]
    response: "Orders ship in 2 days."
`)
	tbl, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tbl.Fallback != DefaultFallback {
		t.Fatalf("expected default fallback, got %q", tbl.Fallback)
	}
	got := tbl.Rules[0].Patterns
	if len(got) != 2 || got[0] != "shipping" || got[1] != "delivery" {
		t.Fatalf("patterns not normalized: %#v", got)
	}
	if Match("Where is my Delivery?", tbl) != "Orders ship in 2 days." {
		t.Fatalf("loaded table did not match")
	}
}

func TestParse_JSONIsAccepted(t *testing.T) {
	src := []byte(`{"rules":[{"category":"x","patterns":["ping"],"response":"pong"}],"fallback":"?"}`)
	tbl, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if Match("ping", tbl) != "pong" || Match("nope", tbl) != "?" {
		t.Fatalf("unexpected table: %+v", tbl)
	}
}

func TestParse_Invalid(t *testing.T) {
	bad := map[string]string{
		"no rules":       `rules: []`,
		"empty response": `rules: [{patterns: ["a"], response: " "}]`,
		"blank patterns": `rules: [{patterns: [" "], response: "r"}]`,
		"unknown field":  `rulez: []`,
		"not yaml":       `rules: [`,
	}
	for name, src := range bad {
		if _, err := Parse([]byte(src)); !errors.Is(err, ErrInvalidTable) {
			t.Fatalf("%s: expected ErrInvalidTable, got %v", name, err)
		}
	}
}

func TestLoadFile(t *testing.T) {
	tbl, err := LoadFile("")
	if err != nil || len(tbl.Rules) != len(DefaultTable().Rules) {
		t.Fatalf("empty path should give default table: %v", err)
	}

	p := filepath.Join(t.TempDir(), "faq.yaml")
	if err := os.WriteFile(p, []byte("rules: [{patterns: [a], response: b}]\nfallback: c\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	tbl, err = LoadFile(p)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if tbl.Fallback != "c" || len(tbl.Rules) != 1 {
		t.Fatalf("unexpected table %+v", tbl)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
