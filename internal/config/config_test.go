package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	for _, k := range []string{"PORT", "LOG_LEVEL", "DB_PATH", "GIN_MODE", "TIME_LOCATION"} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

func containsErr(err error, want string) bool {
	return err != nil && strings.Contains(err.Error(), want)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TIME_LOCATION", "UTC")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("server defaults: %+v", cfg)
	}
	if cfg.DBPath != "app.db" || cfg.FAQPath != "" || cfg.ReplyDelay != time.Second ||
		cfg.DefaultMode != "single" || cfg.MaxTextRunes != 0 {
		t.Fatalf("chat defaults: %+v", cfg)
	}
	if cfg.RateRPS != 5 || cfg.RateBurst != 10 || cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("limits: %+v", cfg)
	}
	if cfg.CORS.AllowedOrigins != nil {
		t.Fatalf("origins should be nil by default, got %#v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_Overrides(t *testing.T) {
	env := map[string]string{
		"PORT":                        "8088",
		"READ_TIMEOUT":                "2s",
		"READ_HEADER_TIMEOUT":         "1s",
		"WRITE_TIMEOUT":               "3s",
		"IDLE_TIMEOUT":                "4s",
		"MAX_HEADER_BYTES":            "8192",
		"GIN_MODE":                    "weird",
		"LOG_LEVEL":                   "WARNING",
		"LOG_PRETTY":                  "yes",
		"SWAGGER_ENABLED":             "on",
		"API_BASE_PATH":               "api/v2/",
		"DB_PATH":                     "db.sqlite",
		"FAQ_PATH":                    "faq.yaml",
		"REPLY_DELAY":                 "250ms",
		"DEFAULT_MODE":                " Multi ",
		"TIME_LOCATION":               "UTC",
		"MAX_TEXT_RUNES":              "500",
		"RATE_RPS":                    "2.5",
		"RATE_BURST":                  "4",
		"CORS_ALLOWED_ORIGINS":        " https://a.com , , http://b ",
		"ENABLE_HSTS":                 "TRUE",
		"HSTS_MAX_AGE":                "24h",
		"IDEMPOTENCY_TTL":             "48h",
		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "otel:4317",
		"OTEL_EXPORTER_OTLP_INSECURE": "0",
		"OTEL_SERVICE_NAME":           "svc",
		"OTEL_TRACES_SAMPLER_ARG":     "0.75",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8088" || cfg.ReadTimeout != 2*time.Second || cfg.ReadHeaderTimeout != time.Second ||
		cfg.WriteTimeout != 3*time.Second || cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 || cfg.GinMode != "release" {
		t.Fatalf("server: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v2" {
		t.Fatalf("logging/docs: %+v", cfg)
	}
	if cfg.DBPath != "db.sqlite" || cfg.FAQPath != "faq.yaml" || cfg.ReplyDelay != 250*time.Millisecond ||
		cfg.DefaultMode != "multi" || cfg.MaxTextRunes != 500 || cfg.TimeLocation.String() != "UTC" {
		t.Fatalf("chat: %+v", cfg)
	}
	if cfg.RateRPS != 2.5 || cfg.RateBurst != 4 {
		t.Fatalf("rate: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("origins: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour || cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("security/idempotency: %+v", cfg)
	}
	want := OTELConfig{Enabled: true, Endpoint: "otel:4317", Insecure: false, ServiceName: "svc", SampleRatio: 0.75}
	if cfg.OTEL != want {
		t.Fatalf("otel: %+v", cfg.OTEL)
	}
}

func TestLoad_ParseErrorsAreReported(t *testing.T) {
	t.Setenv("RATE_RPS", "x")
	t.Setenv("RATE_BURST", "nope")
	t.Setenv("REPLY_DELAY", "soon")
	t.Setenv("LOG_PRETTY", "maybe")

	cfg, err := Load()
	if err == nil {
		t.Fatalf("expected parse errors")
	}
	for _, want := range []string{`RATE_RPS: "x"`, `RATE_BURST: "nope"`, `REPLY_DELAY: "soon"`, `LOG_PRETTY: "maybe"`} {
		if !containsErr(err, want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
	// Fields still hold their defaults.
	if cfg.RateRPS != 5 || cfg.RateBurst != 10 || cfg.ReplyDelay != time.Second || cfg.LogPretty {
		t.Fatalf("defaults not kept: %+v", cfg)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		key, val, want string
	}{
		{"LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"PORT", "   ", "PORT must not be empty"},
		{"READ_TIMEOUT", "0s", "timeouts must be positive"},
		{"MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"DB_PATH", "   ", "DB_PATH must not be empty"},
		{"REPLY_DELAY", "-1s", "REPLY_DELAY"},
		{"DEFAULT_MODE", "group", "DEFAULT_MODE"},
		{"MAX_TEXT_RUNES", "-5", "MAX_TEXT_RUNES"},
		{"TIME_LOCATION", "Mars/Olympus_Mons", "TIME_LOCATION"},
		{"RATE_RPS", "-1", "RATE_RPS"},
		{"RATE_BURST", "0", "RATE_BURST"},
		{"HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"IDEMPOTENCY_TTL", "0s", "IDEMPOTENCY_TTL"},
		{"OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); !containsErr(err, tc.want) {
				t.Fatalf("%s=%q: got %v, want error containing %q", tc.key, tc.val, err, tc.want)
			}
		})
	}
}

func TestLoad_CollectsAllProblems(t *testing.T) {
	t.Setenv("RATE_BURST", "0")
	t.Setenv("DEFAULT_MODE", "group")
	_, err := Load()
	if !containsErr(err, "RATE_BURST") || !containsErr(err, "DEFAULT_MODE") {
		t.Fatalf("expected both problems, got %v", err)
	}
}

func TestLoad_BadLocationFallsBackToUTC(t *testing.T) {
	t.Setenv("TIME_LOCATION", "Nowhere/Special")
	cfg, err := Load()
	if err == nil || cfg.TimeLocation != time.UTC {
		t.Fatalf("got loc=%v err=%v", cfg.TimeLocation, err)
	}
}

func TestMustLoad(t *testing.T) {
	t.Run("panics", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "verbose")
		defer func() {
			if recover() == nil {
				t.Fatalf("MustLoad should panic on invalid config")
			}
		}()
		_ = MustLoad()
	})
	t.Run("defaults", func(t *testing.T) {
		if cfg := MustLoad(); cfg.APIBasePath == "" {
			t.Fatalf("empty config from MustLoad")
		}
	})
}

func TestEnv_Boolean(t *testing.T) {
	var e env
	for _, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on"} {
		t.Setenv("B", v)
		if !e.boolean("B", false) {
			t.Fatalf("boolean(%q) = false", v)
		}
	}
	for _, v := range []string{"0", "false", " no ", "N", "Off"} {
		t.Setenv("B", v)
		if e.boolean("B", true) {
			t.Fatalf("boolean(%q) = true", v)
		}
	}
	t.Setenv("B", "")
	if !e.boolean("B", true) {
		t.Fatalf("empty should keep default")
	}
	if len(e.errs) != 0 {
		t.Fatalf("unexpected errors: %v", e.errs)
	}
}

func TestSplitCSV_NormalizeBasePath(t *testing.T) {
	if splitCSV("") != nil || splitCSV(" , ") != nil {
		t.Fatalf("blank input should yield nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV: %#v", got)
	}
	for in, want := range map[string]string{"": "/", " / ": "/", "v1": "/v1", "/v1/": "/v1", "api//v1//": "/api//v1"} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
