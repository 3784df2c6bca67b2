package catalogs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"statecraft.ai/internal/sim/relations"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

const testRoster = `[
  {"alias":"A","name":"Alpha","type":"kingdom","identity":"a northern kingdom, Catholic","available_actions":["military attack","recruitment"],"military_power":100,"economic_power":80,"goal":"expand"},
  {"alias":"B","name":"Beta","type":"empire","identity":"a southern empire, Orthodox","available_actions":["military attack"],"military_power":90,"economic_power":120,"goal":"survive"}
]`

const testRelations = `{"relations":{"A":{"relations":{"B":0}},"B":{"relations":{"A":0}}}}`

func TestLoad_RequiredAndOptionalFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "agents.json", testRoster)
	writeFile(t, dir, "relations_start.json", testRelations)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := strings.Join(c.Aliases(), ","); got != "A,B" {
		t.Fatalf("aliases=%s", got)
	}
	if c.End.Matrix != nil {
		t.Fatalf("missing relations_end.json should leave End nil")
	}
	if string(c.ActionEffects.Raw) != `{}` {
		t.Fatalf("default action effects=%s", c.ActionEffects.Raw)
	}
	if c.Roster.Digest == "" || c.Start.Digest == "" {
		t.Fatalf("expected digests")
	}
	if r, _ := c.Start.Matrix.Get("A", "B"); r != relations.Neutral {
		t.Fatalf("A-B=%d", r)
	}
}

func TestLoad_RejectsMismatchedRoster(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "agents.json", testRoster)
	writeFile(t, dir, "relations_start.json", `{"relations":{"A":{"relations":{"C":0}},"C":{"relations":{"A":0}}}}`)
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestLoad_RejectsDuplicateAlias(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "agents.json", `[{"alias":"A"},{"alias":"A"}]`)
	writeFile(t, dir, "relations_start.json", `{"relations":{"A":{"relations":{}}}}`)
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("got=%v want duplicate alias error", err)
	}
}
