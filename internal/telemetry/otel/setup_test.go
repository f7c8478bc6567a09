package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		providers, err := NewProviders(ctx, Options{Endpoint: endpoint, ServiceName: "test-service"})
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
			t.Fatal("providers should be non-nil")
		}
		if err := providers.Shutdown(ctx); err != nil {
			t.Errorf("shutdown should be no-op for empty endpoint, got error: %v", err)
		}
	}
}

func TestParseEndpoint(t *testing.T) {
	testCases := []struct {
		name     string
		endpoint string
		override bool
		want     Target
	}{
		{"host port", "localhost:4317", false, Target{Host: "localhost:4317", Insecure: true}},
		{"http", "http://collector:4317", false, Target{Host: "collector:4317", Insecure: true}},
		{"https", "https://collector:4317", false, Target{Host: "collector:4317", Insecure: false}},
		{"https override", "https://collector:4317", true, Target{Host: "collector:4317", Insecure: true}},
		{"path dropped", "http://collector:4317/v1/traces", false, Target{Host: "collector:4317", Insecure: true}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseEndpoint(tc.endpoint, tc.override)
			if err != nil {
				t.Fatalf("ParseEndpoint: %v", err)
			}
			if got != tc.want {
				t.Errorf("ParseEndpoint = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseEndpoint_Invalid(t *testing.T) {
	for _, endpoint := range []string{"://invalid", "http://[invalid", "http://"} {
		if _, err := ParseEndpoint(endpoint, false); err == nil {
			t.Errorf("ParseEndpoint(%q) should return error", endpoint)
		}
	}
}

func TestSetGlobal_WithProviders(t *testing.T) {
	providers, err := NewProviders(context.Background(), Options{ServiceName: "test-service"})
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	oldTracer := otel.GetTracerProvider()
	providers.SetGlobal()
	if otel.GetTracerProvider() == oldTracer {
		t.Error("TracerProvider should be updated")
	}
	otel.SetTracerProvider(oldTracer)
}
