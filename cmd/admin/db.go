package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// roundQueries are per-run tables filtered by an optional round.
var roundQueries = map[string]string{
	"rounds":    `SELECT round,digest,messages,public,actions,faults,duration_ms FROM rounds WHERE run_id=? AND (?=0 OR round=?) ORDER BY round DESC LIMIT ?`,
	"messages":  `SELECT round,seq,sender,recipient,message_type,target,content FROM messages WHERE run_id=? AND (?=0 OR round=?) ORDER BY round DESC, seq LIMIT ?`,
	"actions":   `SELECT round,seq,subject,object,action FROM actions WHERE run_id=? AND (?=0 OR round=?) ORDER BY round DESC, seq LIMIT ?`,
	"outcomes":  `SELECT round,defender,attackers,result,military_change,economic_change FROM outcomes WHERE run_id=? AND (?=0 OR round=?) ORDER BY round DESC, defender LIMIT ?`,
	"powers":    `SELECT round,alias,military,economic FROM powers WHERE run_id=? AND (?=0 OR round=?) ORDER BY round DESC, alias LIMIT ?`,
	"relations": `SELECT round,a,b,value FROM relations WHERE run_id=? AND (?=0 OR round=?) ORDER BY round DESC, a, b LIMIT ?`,
	"analytics": `SELECT round,name,value FROM analytics WHERE run_id=? AND (?=0 OR round=?) ORDER BY round DESC, name LIMIT ?`,
	"faults":    `SELECT round,seq,phase,agent,code,detail FROM faults WHERE run_id=? AND (?=0 OR round=?) ORDER BY round DESC, seq LIMIT ?`,
	"snapshots": `SELECT round,path,agents FROM snapshots WHERE run_id=? AND (?=0 OR round=?) ORDER BY round DESC LIMIT ?`,
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index.sqlite)")
	runID := fs.String("run", "", "run id (optional; defaults to the latest run)")
	round := fs.Int("round", 0, "round filter (optional)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "runs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index.sqlite")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, q, *runID, *round, *limit, printJSON); err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

func runQuery(db *sql.DB, q, runID string, round, limit int, emit func(any)) error {
	if limit <= 0 {
		limit = 20
	}

	switch q {
	case "runs":
		rows, err := db.Query(`SELECT run_id,started_at,rounds_planned,agents,oracle,resumed_from FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				RunID       string `json:"run_id"`
				StartedAt   string `json:"started_at"`
				Rounds      int    `json:"rounds_planned"`
				Agents      string `json:"agents"`
				Oracle      string `json:"oracle"`
				ResumedFrom int    `json:"resumed_from"`
			}
			if err := rows.Scan(&r.RunID, &r.StartedAt, &r.Rounds, &r.Agents, &r.Oracle, &r.ResumedFrom); err != nil {
				return err
			}
			emit(r)
		}
		return rows.Err()

	case "archives":
		rows, err := db.Query(`SELECT run_id,final_round,snapshot_path,recorded_at FROM archives ORDER BY recorded_at DESC LIMIT ?`, limit)
		if err != nil {
			return err
		}
		return emitRows(rows, emit)
	}

	stmt, ok := roundQueries[q]
	if !ok {
		return fmt.Errorf("unknown query (want runs, archives, rounds, messages, actions, outcomes, powers, relations, analytics, faults or snapshots)")
	}
	if runID == "" {
		var err error
		if runID, err = latestRun(db); err != nil {
			return err
		}
	}
	rows, err := db.Query(stmt, runID, round, round, limit)
	if err != nil {
		return err
	}
	return emitRows(rows, emit)
}

// emitRows emits each row as a column-name keyed object. NULL stays null.
func emitRows(rows *sql.Rows, emit func(any)) error {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		r := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				r[c] = string(b)
				continue
			}
			r[c] = vals[i]
		}
		emit(r)
	}
	return rows.Err()
}

func latestRun(db *sql.DB) (string, error) {
	var id string
	err := db.QueryRow(`SELECT run_id FROM runs ORDER BY started_at DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no runs recorded")
	}
	return id, err
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
