package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "simulation.yaml")
	if err := os.WriteFile(p, []byte("rounds: 12\nuse_full_identity: true\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.Rounds != 12 || !tu.UseFullIdentity {
		t.Fatalf("explicit values lost: %+v", tu)
	}
	if tu.HistoryDepth != 3 || tu.MaxChangePct != 10 || tu.AttackAction != "military attack" {
		t.Fatalf("defaults not applied: %+v", tu)
	}
	if len(tu.TargetExemptActions) != 3 {
		t.Fatalf("target exempt defaults: %v", tu.TargetExemptActions)
	}
}

func TestLoad_RejectsExemptAttack(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "simulation.yaml")
	body := "attack_action: raid\ntarget_exempt_actions: [raid]\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoad_EmptyExemptListIsKept(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "simulation.yaml")
	if err := os.WriteFile(p, []byte("target_exempt_actions: []\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.TargetExemptActions == nil || len(tu.TargetExemptActions) != 0 {
		t.Fatalf("explicit empty list should be kept: %v", tu.TargetExemptActions)
	}
}

func TestLoad_RejectsChangeAboveCeiling(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "simulation.yaml")
	if err := os.WriteFile(p, []byte("max_change_pct: 50\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected max_change_pct 50 rejected")
	}

	if err := os.WriteFile(p, []byte("max_change_pct: 5\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.MaxChangePct != 5 {
		t.Fatalf("max_change_pct got=%v want=5", tu.MaxChangePct)
	}
}
