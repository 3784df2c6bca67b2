package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"statecraft.ai/internal/oracle"
	"statecraft.ai/internal/persistence/archive"
	"statecraft.ai/internal/persistence/indexdb"
	persistlog "statecraft.ai/internal/persistence/log"
	"statecraft.ai/internal/persistence/mirror"
	"statecraft.ai/internal/persistence/snapshot"
	"statecraft.ai/internal/sim/catalogs"
	"statecraft.ai/internal/sim/tuning"
	"statecraft.ai/internal/sim/world"
	"statecraft.ai/internal/telemetry"
	"statecraft.ai/internal/transport/observer"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to simulation.yaml (default: <configs>/simulation.yaml)")
		rounds     = flag.Int("rounds", 0, "total rounds to reach (default: tuning rounds)")
		runIDFlag  = flag.String("run_id", "", "run id (default: random uuid)")
		resumeRun  = flag.String("resume", "", "resume the given run id from its latest snapshot")
		snapPath   = flag.String("snapshot", "", "resume from this snapshot path")
		addr       = flag.String("addr", "", "http listen address for health, metrics and observer (empty to disable)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite run index")
		quiet      = flag.Bool("quiet", false, "do not print the per-round report")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[sim] ", log.LstdFlags|log.Lmicroseconds)

	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "simulation.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("tuning: %v", err)
	}
	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("catalogs: %v", err)
	}

	envCfg, err := oracle.LoadEnvConfig()
	if err != nil {
		logger.Fatalf("oracle env: %v", err)
	}
	provider, kind, err := newProvider(envCfg, *configDir)
	if err != nil {
		logger.Fatalf("oracle: %v", err)
	}

	var snap *snapshot.SnapshotV1
	path := *snapPath
	if path == "" && *resumeRun != "" {
		path = latestSnapshot(filepath.Join(*dataDir, "runs", *resumeRun))
		if path == "" {
			logger.Fatalf("resume %s: no snapshot found", *resumeRun)
		}
	}
	if path != "" {
		s, err := snapshot.ReadSnapshot(path)
		if err != nil {
			logger.Fatalf("load snapshot: %v", err)
		}
		snap = &s
		logger.Printf("loaded snapshot run=%s round=%d from %s", s.Header.RunID, s.Header.Round, path)
	}

	runID := *runIDFlag
	switch {
	case snap != nil && snap.Header.RunID != "":
		runID = snap.Header.RunID
	case runID == "":
		runID = uuid.NewString()
	}

	w, err := world.New(world.ConfigFromTuning(runID, tune, logger), cats, provider)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	resumedFrom := 0
	if snap != nil {
		if err := w.ImportSnapshot(*snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		resumedFrom = w.Round()
	}

	lastRound := tune.Rounds
	if *rounds > 0 {
		lastRound = *rounds
	}
	if lastRound <= w.Round() {
		logger.Printf("run %s already at round %d (target %d); nothing to do", runID, w.Round(), lastRound)
		return 0
	}

	ctx, cancel := signalContext()
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, "statecraft-sim")
	if err != nil {
		logger.Fatalf("telemetry: %v", err)
	}
	defer func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		if err := shutdownTracing(ctx2); err != nil {
			logger.Printf("telemetry shutdown: %v", err)
		}
	}()

	runDir := filepath.Join(*dataDir, "runs", runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		logger.Fatalf("mkdir run dir: %v", err)
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.sqlite"))
		if err != nil {
			logger.Fatalf("index db: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index catalogs: %v", err)
		}
		if err := idx.RecordRun(indexdb.RunInfo{
			RunID:       runID,
			StartedAt:   time.Now(),
			Rounds:      lastRound,
			Agents:      w.Aliases(),
			Oracle:      kind,
			ResumedFrom: resumedFrom,
		}); err != nil {
			logger.Printf("index run: %v", err)
		}
	}

	mirrorCfg, err := mirror.LoadConfig()
	if err != nil {
		logger.Fatalf("mirror env: %v", err)
	}
	mir, err := mirror.New(mirrorCfg, *dataDir, log.New(os.Stdout, "[mirror] ", log.LstdFlags))
	if err != nil {
		logger.Fatalf("mirror: %v", err)
	}
	defer mir.Close()

	roundLog := persistlog.NewRoundLogger(runDir)
	faultLog := persistlog.NewFaultLogger(runDir)
	defer roundLog.Close()
	defer faultLog.Close()

	obs := observer.NewServer(runID, w, logger)
	defer obs.Close()

	rl := multiRoundLogger{roundLog, obs}
	fl := multiFaultLogger{faultLog}
	if idx != nil {
		rl = append(rl, idx)
		fl = append(fl, idx)
	}
	if !*quiet {
		report := newConsoleReport(os.Stdout)
		order := w.Aliases()
		report.Intro(cats.Roster.Agents, order, w.Relations().ToMatrix(order))
		rl = append(rl, report)
		fl = append(fl, report)
	}
	w.SetRoundLogger(rl)
	w.SetFaultLogger(fl)

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		for s := range snapCh {
			writeSnapshot(logger, *dataDir, runDir, s, lastRound, idx, mir)
		}
	}()

	var srv *http.Server
	if *addr != "" {
		srv = &http.Server{
			Addr:              *addr,
			Handler:           newMux(runID, w, idx, obs, mir),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Printf("listening on %s", *addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("ListenAndServe: %v", err)
			}
		}()
	}

	logger.Printf("run %s: oracle=%s agents=%d rounds %d..%d", runID, kind, len(w.Aliases()), w.Round()+1, lastRound)
	runErr := w.Run(ctx, lastRound)

	// The final state is always snapshotted so the run can be archived or resumed.
	if every := w.Config().SnapshotEveryRounds; runErr == nil && (every <= 0 || w.Round()%every != 0) {
		snapCh <- w.ExportSnapshot()
	}
	close(snapCh)
	<-snapDone

	if err := roundLog.Close(); err != nil {
		logger.Printf("close round log: %v", err)
	}
	if err := faultLog.Close(); err != nil {
		logger.Printf("close fault log: %v", err)
	}
	mirrorLogs(mir, runDir)

	if srv != nil {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(ctx2)
		cancel2()
	}

	switch {
	case runErr == nil:
		logger.Printf("run %s finished at round %d", runID, w.Round())
	case errors.Is(runErr, context.Canceled):
		logger.Printf("run %s interrupted after round %d; resume with -resume %s", runID, w.Round(), runID)
	default:
		var f world.Fault
		if errors.As(runErr, &f) {
			logger.Printf("run %s stopped: round %d agent %q: %s (%s)", runID, f.Round, f.Agent, f.Detail, f.Code)
		} else {
			logger.Printf("run %s stopped: %v", runID, runErr)
		}
		return 1
	}
	return 0
}

func newProvider(cfg oracle.EnvConfig, configDir string) (oracle.Provider, string, error) {
	switch cfg.Kind {
	case "", "llm":
		p, err := oracle.NewLLM(cfg.LLMConfig())
		if err != nil {
			return nil, "", err
		}
		return p, "llm", nil
	case "script":
		path := cfg.ScriptPath
		if path == "" {
			path = filepath.Join(configDir, "script.yaml")
		}
		p, err := oracle.LoadScript(path)
		if err != nil {
			return nil, "", err
		}
		return p, "script:" + filepath.Base(path), nil
	default:
		return nil, "", fmt.Errorf("unknown oracle kind %q (want llm or script)", cfg.Kind)
	}
}

func writeSnapshot(logger *log.Logger, dataDir, runDir string, s snapshot.SnapshotV1, lastRound int, idx *indexdb.SQLiteIndex, mir *mirror.Mirror) {
	path := filepath.Join(runDir, "snapshots", fmt.Sprintf("round_%06d.snap.zst", s.Header.Round))
	if err := snapshot.WriteSnapshot(path, s); err != nil {
		logger.Printf("snapshot write: %v", err)
		return
	}
	idx.RecordSnapshot(path, s)
	mir.Enqueue(path)

	archivedPath, ok, err := archive.ArchiveRunSnapshot(dataDir, path, s, lastRound)
	if err != nil {
		logger.Printf("archive run snapshot: %v", err)
		return
	}
	if ok {
		idx.RecordArchive(s.Header.RunID, s.Header.Round, archivedPath)
		mir.Enqueue(archivedPath)
		mir.Enqueue(filepath.Join(filepath.Dir(archivedPath), "meta.json"))
		logger.Printf("archived run %s at %s", s.Header.RunID, archivedPath)
	}
}

// mirrorLogs queues the closed round and fault logs of a run.
func mirrorLogs(mir *mirror.Mirror, runDir string) {
	if mir == nil {
		return
	}
	for _, kind := range []string{"rounds", "faults"} {
		files, _ := persistlog.ListFiles(filepath.Join(runDir, kind), kind)
		for _, f := range files {
			mir.Enqueue(f)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(runDir string) string {
	dir := filepath.Join(runDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.zst") {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1])
}
