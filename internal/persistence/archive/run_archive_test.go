package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"statecraft.ai/internal/persistence/snapshot"
)

func TestArchiveRunSnapshot_CopiesFinalSnapshot(t *testing.T) {
	dataDir := t.TempDir()
	src := filepath.Join(dataDir, "runs", "r1", "snapshots", "5.snap.zst")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("mkdir snapshots: %v", err)
	}
	want := []byte("dummy")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: 1, RunID: "r1", Round: 5},
		Agents: []snapshot.AgentV1{{Alias: "A"}, {Alias: "B"}},
	}
	archivedPath, ok, err := ArchiveRunSnapshot(dataDir, src, snap, 5)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !ok {
		t.Fatalf("expected archived=true")
	}
	if archivedPath != filepath.Join(dataDir, "archives", "r1", "round_005.snap.zst") {
		t.Fatalf("path=%s", archivedPath)
	}
	got, err := os.ReadFile(archivedPath)
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("archived content mismatch: got=%q want=%q", string(got), string(want))
	}

	b, err := os.ReadFile(filepath.Join(filepath.Dir(archivedPath), "meta.json"))
	if err != nil {
		t.Fatalf("expected meta.json to exist: %v", err)
	}
	var meta RunArchiveMeta
	if err := json.Unmarshal(b, &meta); err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta.RunID != "r1" || meta.FinalRound != 5 || meta.Agents != 2 {
		t.Fatalf("meta=%+v", meta)
	}
}

func TestArchiveRunSnapshot_SkipsIntermediateSnapshots(t *testing.T) {
	snap := snapshot.SnapshotV1{Header: snapshot.Header{Version: 1, RunID: "r1", Round: 3}}
	_, ok, err := ArchiveRunSnapshot(t.TempDir(), "/does/not/matter", snap, 5)
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v want skip", ok, err)
	}
}
