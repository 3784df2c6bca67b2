package indexdb

import (
	"database/sql"
	"encoding/json"
	"math"
	"strings"

	"statecraft.ai/internal/protocol"
)

// writer holds the prepared statements used by the index loop.
type writer struct {
	round, message, action, outcome, power, relation, analytics, fault, snapshot, archive *sql.Stmt
	faultSeq                                                                              map[faultKey]int
}

type faultKey struct {
	run   string
	round int
}

func newWriter(db *sql.DB) *writer {
	prep := func(q string) *sql.Stmt {
		st, _ := db.Prepare(q)
		return st
	}
	return &writer{
		round:     prep(`INSERT OR REPLACE INTO rounds(run_id,round,digest,messages,public,actions,faults,duration_ms,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`),
		message:   prep(`INSERT OR REPLACE INTO messages(run_id,round,seq,sender,recipient,message_type,target,content) VALUES(?,?,?,?,?,?,?,?)`),
		action:    prep(`INSERT OR REPLACE INTO actions(run_id,round,seq,subject,object,action) VALUES(?,?,?,?,?,?)`),
		outcome:   prep(`INSERT OR REPLACE INTO outcomes(run_id,round,defender,attackers,result,military_change,economic_change) VALUES(?,?,?,?,?,?,?)`),
		power:     prep(`INSERT OR REPLACE INTO powers(run_id,round,alias,military,economic) VALUES(?,?,?,?,?)`),
		relation:  prep(`INSERT OR REPLACE INTO relations(run_id,round,a,b,value) VALUES(?,?,?,?,?)`),
		analytics: prep(`INSERT OR REPLACE INTO analytics(run_id,round,name,value) VALUES(?,?,?,?)`),
		fault:     prep(`INSERT OR REPLACE INTO faults(run_id,round,seq,phase,agent,code,detail) VALUES(?,?,?,?,?,?,?)`),
		snapshot:  prep(`INSERT OR REPLACE INTO snapshots(run_id,round,path,agents) VALUES(?,?,?,?)`),
		archive:   prep(`INSERT OR REPLACE INTO archives(run_id,final_round,snapshot_path,recorded_at) VALUES(?,?,?,?)`),
		faultSeq:  map[faultKey]int{},
	}
}

func (w *writer) close() {
	for _, st := range []*sql.Stmt{w.round, w.message, w.action, w.outcome, w.power, w.relation, w.analytics, w.fault, w.snapshot, w.archive} {
		if st != nil {
			_ = st.Close()
		}
	}
}

type execer struct {
	tx  *sql.Tx
	err error
}

func (e *execer) exec(st *sql.Stmt, args ...any) {
	if e.err != nil || st == nil {
		return
	}
	_, e.err = e.tx.Stmt(st).Exec(args...)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (w *writer) apply(tx *sql.Tx, r req) error {
	ex := &execer{tx: tx}
	switch r.kind {
	case reqRound:
		e := r.round
		raw, _ := json.Marshal(e)
		ex.exec(w.round, r.runID, e.Round, e.Digest, len(e.Messages), len(e.Public), len(e.Actions), len(e.Faults), e.DurationMS, string(raw))

		seq := 0
		for _, msgs := range [][]protocol.Message{e.Messages, e.Public} {
			for _, m := range msgs {
				ex.exec(w.message, r.runID, e.Round, seq, m.Sender, m.Recipient, string(m.MessageType), nullable(m.Target), m.Content)
				seq++
			}
		}
		for i, a := range e.Actions {
			ex.exec(w.action, r.runID, e.Round, i, a.Subject, nullable(a.Object), a.Action)
		}
		for _, o := range e.Outcomes {
			ex.exec(w.outcome, r.runID, e.Round, o.Defender, strings.Join(o.Attackers, ","), o.Result, o.MilitaryChange, o.EconomicChange)
		}
		for _, a := range e.Agents {
			ex.exec(w.power, r.runID, e.Round, a.Alias, a.MilitaryPower, a.EconomicPower)
		}
		// Relations are symmetric; store the upper triangle.
		for i := range e.Order {
			for j := i + 1; j < len(e.Order) && i < len(e.Relations) && j < len(e.Relations[i]); j++ {
				ex.exec(w.relation, r.runID, e.Round, e.Order[i], e.Order[j], e.Relations[i][j])
			}
		}
		for _, a := range e.Analytics {
			var v any
			if !math.IsNaN(a.Value) && !math.IsInf(a.Value, 0) {
				v = a.Value
			}
			ex.exec(w.analytics, r.runID, e.Round, a.Name, v)
		}

	case reqFault:
		f := r.fault
		key := faultKey{run: r.runID, round: f.Round}
		seq := w.faultSeq[key]
		w.faultSeq[key] = seq + 1
		ex.exec(w.fault, r.runID, f.Round, seq, f.Phase, nullable(f.Agent), f.Code, f.Detail)

	case reqSnapshot:
		ex.exec(w.snapshot, r.runID, r.snapshot.Round, r.snapshot.Path, r.snapshot.Agents)

	case reqArchive:
		ex.exec(w.archive, r.runID, r.archive.FinalRound, r.archive.Path, r.archive.RecordedAt)
	}
	return ex.err
}
