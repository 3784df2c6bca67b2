package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"statecraft.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "fork":
			forkCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "run id (optional; lists its snapshots)")
	_ = fs.Parse(args)

	if *runID != "" {
		for _, s := range listSnapshots(filepath.Join(*dataDir, "runs", *runID)) {
			h, err := snapshot.ReadHeader(s.path)
			if err != nil {
				fmt.Printf("%s\tunreadable: %v\n", filepath.Base(s.path), err)
				continue
			}
			fmt.Printf("%s\tround=%d version=%d\n", filepath.Base(s.path), h.Round, h.Version)
		}
		return
	}

	entries, err := os.ReadDir(filepath.Join(*dataDir, "runs"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

// forkCmd copies a run's snapshot at a given round into a new run, so that
// `sim -resume <new run>` continues from that point without touching the
// original run's logs.
func forkCmd(args []string) {
	fs := flag.NewFlagSet("fork", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "source run id")
	round := fs.Int("round", 0, "round to fork from (optional; defaults to latest snapshot)")
	newRun := fs.String("new_run", "", "new run id (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*runID) == "" || strings.TrimSpace(*newRun) == "" {
		fmt.Fprintln(os.Stderr, "missing -run or -new_run")
		os.Exit(2)
	}
	out, snap, err := forkRun(*dataDir, *runID, *round, *newRun)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fork:", err)
		os.Exit(1)
	}
	fmt.Printf("fork ok: run=%s round=%d new_run=%s out=%s\n", *runID, snap.Header.Round, *newRun, out)
}

func forkRun(dataDir, runID string, round int, newRun string) (string, snapshot.SnapshotV1, error) {
	if runID == newRun {
		return "", snapshot.SnapshotV1{}, fmt.Errorf("new run id must differ from %s", runID)
	}
	snaps := listSnapshots(filepath.Join(dataDir, "runs", runID))
	if len(snaps) == 0 {
		return "", snapshot.SnapshotV1{}, fmt.Errorf("no snapshots for run %s", runID)
	}
	src := snaps[len(snaps)-1].path
	if round > 0 {
		src = ""
		for _, s := range snaps {
			if s.round == round {
				src = s.path
			}
		}
		if src == "" {
			return "", snapshot.SnapshotV1{}, fmt.Errorf("run %s has no snapshot for round %d", runID, round)
		}
	}

	snap, err := snapshot.ReadSnapshot(src)
	if err != nil {
		return "", snapshot.SnapshotV1{}, err
	}
	snap.Header.RunID = newRun

	newDir := filepath.Join(dataDir, "runs", newRun)
	if _, err := os.Stat(newDir); err == nil {
		return "", snapshot.SnapshotV1{}, fmt.Errorf("run %s already exists", newRun)
	}
	out := filepath.Join(newDir, "snapshots", filepath.Base(src))
	if err := snapshot.WriteSnapshot(out, snap); err != nil {
		return "", snapshot.SnapshotV1{}, err
	}
	return out, snap, nil
}

type snapFile struct {
	round int
	path  string
}

// listSnapshots returns round_NNNNNN.snap.zst files in round order.
func listSnapshots(runDir string) []snapFile {
	dir := filepath.Join(runDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []snapFile
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "round_") || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "round_"), ".snap.zst"))
		if err != nil {
			continue
		}
		out = append(out, snapFile{round: n, path: filepath.Join(dir, name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].round < out[j].round })
	return out
}
