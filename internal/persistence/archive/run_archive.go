package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"statecraft.ai/internal/persistence/snapshot"
)

type RunArchiveMeta struct {
	RunID         string `json:"run_id"`
	FinalRound    int    `json:"final_round"`
	Agents        int    `json:"agents"`
	Snapshot      string `json:"snapshot"`
	CatalogDigest string `json:"catalog_digest,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// ArchiveRunSnapshot copies an end-of-run snapshot into `dataDir/archives/<run_id>/`.
// Snapshots taken before lastRound are not archived; it returns archived=false for them.
func ArchiveRunSnapshot(dataDir, snapshotPath string, snap snapshot.SnapshotV1, lastRound int) (archivedPath string, archived bool, err error) {
	if lastRound <= 0 || snap.Header.Round != lastRound {
		return "", false, nil
	}
	runID := snap.Header.RunID
	if runID == "" {
		runID = "unnamed"
	}

	archiveDir := filepath.Join(dataDir, "archives", runID)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, fmt.Sprintf("round_%03d.snap.zst", snap.Header.Round))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := RunArchiveMeta{
		RunID:         runID,
		FinalRound:    snap.Header.Round,
		Agents:        len(snap.Agents),
		Snapshot:      filepath.Base(dst),
		CatalogDigest: snap.CatalogDigest,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
