// Package indexdb maintains a queryable SQLite read model of runs. The JSONL
// round logs stay the source of truth; the index may drop rows under load.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"statecraft.ai/internal/persistence/snapshot"
	"statecraft.ai/internal/sim/catalogs"
	"statecraft.ai/internal/sim/tuning"
	"statecraft.ai/internal/sim/world"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
	runID  atomic.Value // string; set by RecordRun

	dropRound    atomic.Uint64
	dropFault    atomic.Uint64
	dropSnapshot atomic.Uint64
	dropArchive  atomic.Uint64

	commitEvery time.Duration
}

type reqKind int

const (
	reqRound reqKind = iota + 1
	reqFault
	reqSnapshot
	reqArchive
)

type req struct {
	kind  reqKind
	runID string

	round    world.RoundLogEntry
	fault    world.Fault
	snapshot snapshotRow
	archive  archiveRow
}

type snapshotRow struct {
	Round  int
	Path   string
	Agents int
}

type archiveRow struct {
	FinalRound int
	Path       string
	RecordedAt string
}

// RunInfo describes a run when it starts (or resumes).
type RunInfo struct {
	RunID       string
	StartedAt   time.Time
	Rounds      int
	Agents      []string
	Oracle      string
	ResumedFrom int
}

// QueueStats reports write-queue pressure.
type QueueStats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropRoundTotal    uint64 `json:"drop_round_total"`
	DropFaultTotal    uint64 `json:"drop_fault_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	DropArchiveTotal  uint64 `json:"drop_archive_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:          db,
		ch:          make(chan req, 4096),
		commitEvery: 500 * time.Millisecond,
	}
	s.runID.Store("")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			rounds_planned INTEGER NOT NULL,
			agents TEXT NOT NULL,
			oracle TEXT NOT NULL,
			resumed_from INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS rounds (
			run_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			digest TEXT NOT NULL,
			messages INTEGER NOT NULL,
			public INTEGER NOT NULL,
			actions INTEGER NOT NULL,
			faults INTEGER NOT NULL,
			duration_ms REAL NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, round)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			run_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			sender TEXT NOT NULL,
			recipient TEXT NOT NULL,
			message_type TEXT NOT NULL,
			target TEXT,
			content TEXT NOT NULL,
			PRIMARY KEY (run_id, round, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(run_id, sender, round);`,
		`CREATE TABLE IF NOT EXISTS actions (
			run_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			subject TEXT NOT NULL,
			object TEXT,
			action TEXT NOT NULL,
			PRIMARY KEY (run_id, round, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_subject ON actions(run_id, subject, round);`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			run_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			defender TEXT NOT NULL,
			attackers TEXT NOT NULL,
			result TEXT NOT NULL,
			military_change REAL NOT NULL,
			economic_change REAL NOT NULL,
			PRIMARY KEY (run_id, round, defender)
		);`,
		`CREATE TABLE IF NOT EXISTS powers (
			run_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			alias TEXT NOT NULL,
			military REAL NOT NULL,
			economic REAL NOT NULL,
			PRIMARY KEY (run_id, round, alias)
		);`,
		`CREATE TABLE IF NOT EXISTS relations (
			run_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			a TEXT NOT NULL,
			b TEXT NOT NULL,
			value INTEGER NOT NULL,
			PRIMARY KEY (run_id, round, a, b)
		);`,
		`CREATE TABLE IF NOT EXISTS analytics (
			run_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			name TEXT NOT NULL,
			value REAL,
			PRIMARY KEY (run_id, round, name)
		);`,
		`CREATE TABLE IF NOT EXISTS faults (
			run_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			phase TEXT NOT NULL,
			agent TEXT,
			code TEXT NOT NULL,
			detail TEXT NOT NULL,
			PRIMARY KEY (run_id, round, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_faults_code ON faults(code);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			path TEXT NOT NULL,
			agents INTEGER NOT NULL,
			PRIMARY KEY (run_id, round)
		);`,
		`CREATE TABLE IF NOT EXISTS archives (
			run_id TEXT PRIMARY KEY,
			final_round INTEGER NOT NULL,
			snapshot_path TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// DB exposes the underlying handle for read queries.
func (s *SQLiteIndex) DB() *sql.DB { return s.db }

func (s *SQLiteIndex) Stats() QueueStats {
	if s == nil {
		return QueueStats{}
	}
	return QueueStats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropRoundTotal:    s.dropRound.Load(),
		DropFaultTotal:    s.dropFault.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropArchiveTotal:  s.dropArchive.Load(),
	}
}

func (s *SQLiteIndex) currentRun() string {
	v, _ := s.runID.Load().(string)
	return v
}

// RecordRun registers a run synchronously and makes it the target of
// subsequent fault rows.
func (s *SQLiteIndex) RecordRun(info RunInfo) error {
	if s == nil {
		return nil
	}
	if info.RunID == "" {
		return fmt.Errorf("empty run id")
	}
	s.runID.Store(info.RunID)
	_, err := s.db.Exec(
		`INSERT INTO runs(run_id,started_at,rounds_planned,agents,oracle,resumed_from) VALUES(?,?,?,?,?,?)
		 ON CONFLICT(run_id) DO UPDATE SET rounds_planned=excluded.rounds_planned, oracle=excluded.oracle, resumed_from=excluded.resumed_from`,
		info.RunID,
		info.StartedAt.UTC().Format(time.RFC3339Nano),
		info.Rounds,
		strings.Join(info.Agents, ","),
		info.Oracle,
		info.ResumedFrom,
	)
	return err
}

func (s *SQLiteIndex) WriteRound(entry world.RoundLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqRound, runID: entry.RunID, round: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropRound.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteFault(f world.Fault) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqFault, runID: s.currentRun(), fault: f}:
	default:
		s.dropFault.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{Round: snap.Header.Round, Path: path, Agents: len(snap.Agents)}
	select {
	case s.ch <- req{kind: reqSnapshot, runID: snap.Header.RunID, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

func (s *SQLiteIndex) RecordArchive(runID string, finalRound int, archivedSnapshotPath string) {
	if s == nil || s.closed.Load() {
		return
	}
	if runID == "" || archivedSnapshotPath == "" {
		return
	}
	r := archiveRow{
		FinalRound: finalRound,
		Path:       archivedSnapshotPath,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqArchive, runID: runID, archive: r}:
	default:
		s.dropArchive.Add(1)
	}
}

// UpsertCatalogs stores the raw configuration files and the applied tuning.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	read := func(name, file, digest string) {
		if configDir == "" || digest == "" {
			return
		}
		b, err := os.ReadFile(filepath.Join(configDir, file))
		if err != nil {
			return
		}
		rows = append(rows, kv{name: name, digest: digest, json: b})
	}
	read("agents", "agents.json", cats.Roster.Digest)
	read("relations_start", "relations_start.json", cats.Start.Digest)
	read("relations_end", "relations_end.json", cats.End.Digest)
	read("action_effects", "action_effects.json", cats.ActionEffects.Digest)
	read("messages", "messages.json", cats.Messages.Digest)

	// Tuning: store the values we actually apply (canonical JSON).
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()
	w := newWriter(s.db)
	defer w.close()

	var (
		tx      *sql.Tx
		pending int
	)
	begin := func() bool {
		if tx != nil {
			return true
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return false
		}
		tx = txx
		return true
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		pending = 0
	}

	ticker := time.NewTicker(s.commitEvery)
	defer ticker.Stop()

	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			if !begin() {
				continue
			}
			if err := w.apply(tx, r); err != nil {
				// A failed request discards the open batch; the JSONL logs remain authoritative.
				_ = tx.Rollback()
				tx = nil
				pending = 0
				continue
			}
			pending++
			if pending >= 256 {
				commit()
			}
		case <-ticker.C:
			commit()
		}
	}
}
