package main

import (
	"context"
	"strings"
	"testing"

	"statecraft.ai/internal/oracle"
	persistlog "statecraft.ai/internal/persistence/log"
	"statecraft.ai/internal/persistence/snapshot"
	"statecraft.ai/internal/sim/catalogs"
	"statecraft.ai/internal/sim/relations"
	"statecraft.ai/internal/sim/tuning"
	"statecraft.ai/internal/sim/world"
)

const script = `
rounds:
  - round: 1
    messages:
      A:
        - {to: B, type: Propose alliance, content: join us}
        - {to: PUBLIC, type: Declare war, content: beware, target: C}
      B:
        - {to: A, type: Accept alliance, content: agreed}
    actions:
      A: {action: military attack, object: C}
      B: {action: military attack, object: C}
      C: {action: recruitment}
    updates:
      - {agent: A, military: 4.5, economic: 2}
      - {agent: C, military: -25, economic: -7.25}
  - round: 2
    messages:
      C:
        - {to: A, type: Offer truce, content: stop}
    actions:
      C: {action: trade agreement, object: B}
    updates:
      - {agent: B, military: 3.3, economic: 9.9}
  - round: 3
    messages:
      A:
        - {to: C, type: Accept truce, content: fine}
    updates:
      - {agent: A, military: -1, economic: 1}
`

func testCatalogs() *catalogs.Catalogs {
	c := &catalogs.Catalogs{}
	c.Roster.ByID = map[string]catalogs.AgentDef{}
	for _, a := range []string{"A", "B", "C"} {
		d := catalogs.AgentDef{
			Alias:            a,
			Name:             "Nation " + a,
			Type:             "nation",
			Identity:         "a nation, Christian",
			AvailableActions: []string{"military attack", "recruitment", "trade agreement"},
			MilitaryPower:    30,
			EconomicPower:    40,
		}
		c.Roster.Agents = append(c.Roster.Agents, d)
		c.Roster.ByID[a] = d
	}
	c.Start.Matrix = relations.New([]string{"A", "B", "C"})
	c.ActionEffects.Raw = []byte(`{}`)
	return c
}

// recordRun plays the script and returns the run dir plus the snapshot taken
// after round 1.
func recordRun(t *testing.T) (string, snapshot.SnapshotV1) {
	t.Helper()
	p, err := oracle.ParseScript([]byte(script))
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	w, err := world.New(world.ConfigFromTuning("run-x", tuning.Defaults(), nil), testCatalogs(), p)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	runDir := t.TempDir()
	rl := persistlog.NewRoundLogger(runDir)
	defer rl.Close()
	w.SetRoundLogger(rl)

	var snap snapshot.SnapshotV1
	for i := 0; i < 3; i++ {
		if _, err := w.RunRound(context.Background()); err != nil {
			t.Fatalf("RunRound: %v", err)
		}
		if w.Round() == 1 {
			snap = w.ExportSnapshot()
		}
	}
	return runDir, snap
}

func TestVerifyRounds_FromStart(t *testing.T) {
	runDir, _ := recordRun(t)
	entries, err := loadRounds(runDir)
	if err != nil {
		t.Fatalf("loadRounds: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries=%d want 3", len(entries))
	}
	n, err := verifyRounds(testCatalogs(), tuning.Defaults(), nil, entries, 0)
	if err != nil {
		t.Fatalf("verifyRounds: %v", err)
	}
	if n != 3 {
		t.Fatalf("checked=%d want 3", n)
	}
}

func TestVerifyRounds_FromSnapshotAndToRound(t *testing.T) {
	runDir, snap := recordRun(t)
	entries, err := loadRounds(runDir)
	if err != nil {
		t.Fatalf("loadRounds: %v", err)
	}
	n, err := verifyRounds(testCatalogs(), tuning.Defaults(), &snap, entries, 2)
	if err != nil {
		t.Fatalf("verifyRounds: %v", err)
	}
	if n != 1 {
		t.Fatalf("checked=%d want 1", n)
	}
}

func TestVerifyRounds_DetectsTampering(t *testing.T) {
	runDir, _ := recordRun(t)
	entries, err := loadRounds(runDir)
	if err != nil {
		t.Fatalf("loadRounds: %v", err)
	}
	entries[1].Updates = nil
	_, err = verifyRounds(testCatalogs(), tuning.Defaults(), nil, entries, 0)
	if err == nil || !strings.Contains(err.Error(), "digest mismatch at round 2") {
		t.Fatalf("err=%v want digest mismatch at round 2", err)
	}
}

func TestVerifyRounds_RejectsGap(t *testing.T) {
	runDir, _ := recordRun(t)
	entries, err := loadRounds(runDir)
	if err != nil {
		t.Fatalf("loadRounds: %v", err)
	}
	_, err = verifyRounds(testCatalogs(), tuning.Defaults(), nil, entries[1:], 0)
	if err == nil || !strings.Contains(err.Error(), "round gap") {
		t.Fatalf("err=%v want round gap", err)
	}
}

func TestLogOracle_DefaultsToNone(t *testing.T) {
	o := newLogOracle(nil)
	req := oracle.ActionRequest{Round: 7}
	req.Agent.Alias = "A"
	act, err := o.ProposeAction(context.Background(), req)
	if err != nil || act.Action != "NONE" || act.Subject != "A" {
		t.Fatalf("act=%+v err=%v", act, err)
	}
}
