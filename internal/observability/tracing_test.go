package observability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tbourn/go-faq-chatbot/internal/config"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	expF, resF := newExporter, newResource
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
		newExporter, newResource = expF, resF
	})
}

func enabled(name string) config.OTELConfig {
	return config.OTELConfig{Enabled: true, Insecure: true, Endpoint: "localhost:4317", ServiceName: name, SampleRatio: 1}
}

func TestSetupTracing_DisabledLeavesGlobals(t *testing.T) {
	restoreGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := SetupTracing(context.Background(), config.OTELConfig{Endpoint: "ignored:4317"}, "v0")
	if err != nil || shutdown == nil {
		t.Fatalf("SetupTracing = %v, %v", shutdown, err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("disabled tracing replaced the provider")
	}
}

func TestSetupTracing_ExportsSpansWithServiceResource(t *testing.T) {
	restoreGlobals(t)
	exp := tracetest.NewInMemoryExporter()
	newExporter = func(context.Context, config.OTELConfig) (sdktrace.SpanExporter, error) { return exp, nil }

	shutdown, err := SetupTracing(context.Background(), enabled("faq-bot"), "v1.2.3")
	if err != nil {
		t.Fatalf("SetupTracing: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "Send")
	span.End()

	// The in-memory exporter drops its spans on shutdown; flush and read first.
	if tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("provider is %T", otel.GetTracerProvider())
	} else if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "Send" {
		t.Fatalf("exported spans = %+v", spans)
	}
	attrs := spans[0].Resource.String()
	if !strings.Contains(attrs, "service.name=faq-bot") || !strings.Contains(attrs, "service.version=v1.2.3") {
		t.Fatalf("resource = %s", attrs)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupTracing_InstallsW3CPropagation(t *testing.T) {
	restoreGlobals(t)
	newExporter = func(context.Context, config.OTELConfig) (sdktrace.SpanExporter, error) {
		return tracetest.NewInMemoryExporter(), nil
	}
	shutdown, err := SetupTracing(context.Background(), enabled("svc"), "v1")
	if err != nil {
		t.Fatalf("SetupTracing: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	ctx, span := otel.Tracer("test").Start(context.Background(), "root")
	defer span.End()
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if !strings.Contains(carrier.Get("traceparent"), span.SpanContext().TraceID().String()) {
		t.Fatalf("traceparent not injected: %v", carrier)
	}
}

func TestSetupTracing_RealExporterIsLazy(t *testing.T) {
	restoreGlobals(t)
	for _, insecure := range []bool{true, false} {
		cfg := enabled("svc")
		cfg.Insecure = insecure
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		shutdown, err := SetupTracing(ctx, cfg, "v1")
		if err != nil {
			t.Fatalf("insecure=%v: %v", insecure, err)
		}
		_ = shutdown(context.Background())
	}
}

func TestSetupTracing_ErrorsLeaveGlobalsIntact(t *testing.T) {
	cases := map[string]func(){
		"exporter": func() {
			newExporter = func(context.Context, config.OTELConfig) (sdktrace.SpanExporter, error) {
				return nil, errors.New("boom-exporter")
			}
		},
		"resource": func() {
			newExporter = func(context.Context, config.OTELConfig) (sdktrace.SpanExporter, error) {
				return tracetest.NewInMemoryExporter(), nil
			}
			newResource = func(context.Context, string, string) (*resource.Resource, error) {
				return nil, errors.New("boom-resource")
			}
		},
	}
	for name, arrange := range cases {
		t.Run(name, func(t *testing.T) {
			restoreGlobals(t)
			arrange()
			tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
			if _, err := SetupTracing(context.Background(), enabled("svc"), "v0"); err == nil || !strings.Contains(err.Error(), "boom-"+name) {
				t.Fatalf("err = %v", err)
			}
			if otel.GetTracerProvider() != tp || otel.GetTextMapPropagator() != prop {
				t.Fatalf("globals changed on failure")
			}
		})
	}
}

func TestSamplerFor(t *testing.T) {
	for ratio, want := range map[float64]string{
		2:   "AlwaysOnSampler",
		1:   "AlwaysOnSampler",
		0.5: "TraceIDRatioBased{0.5}",
		0:   "AlwaysOffSampler",
		-1:  "AlwaysOffSampler",
	} {
		desc := samplerFor(ratio).Description()
		if !strings.HasPrefix(desc, "ParentBased") || !strings.Contains(desc, want) {
			t.Fatalf("samplerFor(%v) = %q, want ParentBased root %s", ratio, desc, want)
		}
	}
}
