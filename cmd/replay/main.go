package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	persistlog "statecraft.ai/internal/persistence/log"
	"statecraft.ai/internal/persistence/snapshot"
	"statecraft.ai/internal/sim/catalogs"
	"statecraft.ai/internal/sim/tuning"
	"statecraft.ai/internal/sim/world"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (optional; replay starts from round 0 without it)")
		runDir     = flag.String("run", "", "run dir containing rounds/rounds-*.jsonl.zst (optional)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to simulation.yaml (default: <configs>/simulation.yaml)")
		verify     = flag.Bool("verify", false, "re-execute logged rounds and compare state digests")
		toRound    = flag.Int("to_round", 0, "stop at round (inclusive, optional)")
	)
	flag.Parse()

	if *snapPath == "" && *runDir == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot or -run")
		os.Exit(2)
	}

	var snap *snapshot.SnapshotV1
	if *snapPath != "" {
		s, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		snap = &s
		printSnapshot(s)
	}
	if *runDir == "" {
		return
	}

	entries, err := loadRounds(*runDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read rounds:", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no round logs found in", *runDir)
		os.Exit(1)
	}

	if !*verify {
		for _, e := range entries {
			if *toRound != 0 && e.Round > *toRound {
				break
			}
			printRound(e)
		}
		return
	}

	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "simulation.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tuning:", err)
		os.Exit(1)
	}
	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	checked, err := verifyRounds(cats, tune, snap, entries, *toRound)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	from := 0
	if snap != nil {
		from = snap.Header.Round
	}
	fmt.Printf("replay ok: checked=%d rounds (from round %d)\n", checked, from)
}

// loadRounds reads every round entry under runDir. When a run was resumed from
// an older snapshot a round can appear twice; the later entry wins.
func loadRounds(runDir string) ([]world.RoundLogEntry, error) {
	byRound := map[int]world.RoundLogEntry{}
	err := persistlog.ReadRounds(runDir, func(e world.RoundLogEntry) error {
		byRound[e.Round] = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]world.RoundLogEntry, 0, len(byRound))
	for _, e := range byRound {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Round < out[j].Round })
	return out, nil
}

// verifyRounds rebuilds the world, feeds it the logged decisions and checks
// that every round lands on the logged digest.
func verifyRounds(cats *catalogs.Catalogs, tune tuning.Tuning, snap *snapshot.SnapshotV1, entries []world.RoundLogEntry, toRound int) (int, error) {
	provider := newLogOracle(entries)
	runID := ""
	if snap != nil {
		runID = snap.Header.RunID
	}
	w, err := world.New(world.ConfigFromTuning(runID, tune, nil), cats, provider)
	if err != nil {
		return 0, fmt.Errorf("world: %w", err)
	}
	if snap != nil {
		if err := w.ImportSnapshot(*snap); err != nil {
			return 0, fmt.Errorf("import snapshot: %w", err)
		}
	}

	checked := 0
	ctx := context.Background()
	for _, e := range entries {
		if e.Round <= w.Round() {
			continue
		}
		if toRound != 0 && e.Round > toRound {
			break
		}
		if e.Round != w.Round()+1 {
			return checked, fmt.Errorf("round gap: want=%d got=%d", w.Round()+1, e.Round)
		}
		got, err := w.RunRound(ctx)
		if err != nil {
			return checked, fmt.Errorf("round %d: %w", e.Round, err)
		}
		checked++
		if got.Digest != e.Digest {
			return checked, fmt.Errorf("digest mismatch at round %d: got=%s want=%s", e.Round, got.Digest, e.Digest)
		}
	}
	return checked, nil
}

func printSnapshot(s snapshot.SnapshotV1) {
	fmt.Printf("snapshot v%d run=%s round=%d agents=%d history=%d private=%d public=%d\n",
		s.Header.Version, s.Header.RunID, s.Header.Round, len(s.Agents), len(s.History),
		countPrivate(s.Mailbox.Private), len(s.Mailbox.Public))
	for _, a := range s.Agents {
		fmt.Printf("  %s (%s): military=%.1f economic=%.1f\n", a.Alias, a.Name, a.MilitaryPower, a.EconomicPower)
	}
}

func countPrivate(m map[string][]snapshot.MessageV1) int {
	n := 0
	for _, msgs := range m {
		n += len(msgs)
	}
	return n
}

func printRound(e world.RoundLogEntry) {
	attacks := 0
	for _, o := range e.Outcomes {
		attacks += len(o.Attackers)
	}
	var faults []string
	for _, f := range e.Faults {
		faults = append(faults, f.Code)
	}
	fmt.Printf("round=%d messages=%d public=%d actions=%d attacks=%d faults=[%s] digest=%s\n",
		e.Round, len(e.Messages), len(e.Public), len(e.Actions), attacks, strings.Join(faults, ","), e.Digest)
}
