package telemetry

import (
	"context"
	"testing"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	t.Setenv("STATECRAFT_OTEL_ENDPOINT", "")
	t.Setenv("STATECRAFT_OTEL_ENABLED", "")

	shutdown, err := Setup(context.Background(), "statecraft-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_NoopWhenExplicitlyDisabled(t *testing.T) {
	t.Setenv("STATECRAFT_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("STATECRAFT_OTEL_ENABLED", "FALSE")

	shutdown, err := Setup(context.Background(), "statecraft-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable address; nothing is exported before shutdown.
	t.Setenv("STATECRAFT_OTEL_ENDPOINT", "http://192.0.2.1:4318")
	t.Setenv("STATECRAFT_OTEL_ENABLED", "")
	t.Setenv("STATECRAFT_OTEL_SAMPLE_RATIO", "0.5")

	shutdown, err := Setup(context.Background(), "statecraft-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_RejectsBadRatio(t *testing.T) {
	t.Setenv("STATECRAFT_OTEL_ENDPOINT", "http://192.0.2.1:4318")
	t.Setenv("STATECRAFT_OTEL_SAMPLE_RATIO", "half")

	if _, err := Setup(context.Background(), "statecraft-test"); err == nil {
		t.Fatalf("expected parse error")
	}
}
