package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"statecraft.ai/internal/oracle"
	"statecraft.ai/internal/sim/catalogs"
	"statecraft.ai/internal/sim/tuning"
	"statecraft.ai/internal/sim/world"
)

// The shipped configs and script must run clean from start to finish.
func TestShippedScenario(t *testing.T) {
	dir := filepath.Join("..", "..", "configs")
	tune, err := tuning.Load(filepath.Join(dir, "simulation.yaml"))
	if err != nil {
		t.Fatalf("tuning: %v", err)
	}
	cats, err := catalogs.Load(dir)
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	script, err := oracle.LoadScript(filepath.Join(dir, "script.yaml"))
	if err != nil {
		t.Fatalf("script: %v", err)
	}
	if script.Rounds() != tune.Rounds {
		t.Fatalf("script rounds=%d tuning rounds=%d", script.Rounds(), tune.Rounds)
	}

	w, err := world.New(world.ConfigFromTuning("shipped", tune, nil), cats, script)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	var buf bytes.Buffer
	report := newConsoleReport(&buf)
	w.SetRoundLogger(report)
	w.SetFaultLogger(report)

	if err := w.Run(context.Background(), tune.Rounds); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m := w.Metrics(); m.Faults != 0 {
		t.Fatalf("faults=%d want 0\n%s", m.Faults, buf.String())
	}

	rel := w.Relations()
	for _, tc := range []struct {
		a, b string
		want int
	}{
		{"FRA", "ENG", 0},
		{"FRA", "BUR", 1},
		{"ENG", "BUR", 1},
		{"ENG", "CAS", 1},
		{"BUR", "OTT", -1},
		{"CAS", "OTT", -1},
	} {
		got, _ := rel.Get(tc.a, tc.b)
		if int(got) != tc.want {
			t.Fatalf("%s-%s=%d want %d", tc.a, tc.b, got, tc.want)
		}
	}
	if !strings.Contains(buf.String(), "=== Round 5 ===") || !strings.Contains(buf.String(), "MSE: ") {
		t.Fatalf("report:\n%s", buf.String())
	}
}
