package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"statecraft.ai/internal/persistence/indexdb"
	"statecraft.ai/internal/persistence/mirror"
	"statecraft.ai/internal/sim/world"
	"statecraft.ai/internal/transport/observer"
)

type metricsSource interface {
	Metrics() world.WorldMetrics
}

func newMux(runID string, w metricsSource, idx *indexdb.SQLiteIndex, obs *observer.Server, mir *mirror.Mirror) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, runID, w.Metrics(), idx, obs, mir)
	})
	mux.HandleFunc("/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			RunID   string             `json:"run_id"`
			Metrics world.WorldMetrics `json:"metrics"`
		}{RunID: runID, Metrics: w.Metrics()}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	if obs != nil {
		mux.HandleFunc("/v1/observer/bootstrap", obs.BootstrapHandler())
		mux.HandleFunc("/v1/observer/ws", obs.WSHandler())
	}
	return mux
}

// writeMetrics renders a minimal Prometheus exposition.
func writeMetrics(out io.Writer, runID string, m world.WorldMetrics, idx *indexdb.SQLiteIndex, obs *observer.Server, mir *mirror.Mirror) {
	fmt.Fprintf(out, "# HELP statecraft_round Last completed round.\n")
	fmt.Fprintf(out, "# TYPE statecraft_round gauge\n")
	fmt.Fprintf(out, "statecraft_round{run=%q} %d\n", runID, m.Round)

	fmt.Fprintf(out, "# HELP statecraft_agents Number of agents in the run.\n")
	fmt.Fprintf(out, "# TYPE statecraft_agents gauge\n")
	fmt.Fprintf(out, "statecraft_agents{run=%q} %d\n", runID, m.Agents)

	fmt.Fprintf(out, "# HELP statecraft_events_total Cumulative round events.\n")
	fmt.Fprintf(out, "# TYPE statecraft_events_total counter\n")
	fmt.Fprintf(out, "statecraft_events_total{run=%q,kind=%q} %d\n", runID, "messages", m.MessagesSent)
	fmt.Fprintf(out, "statecraft_events_total{run=%q,kind=%q} %d\n", runID, "public_statements", m.PublicStatements)
	fmt.Fprintf(out, "statecraft_events_total{run=%q,kind=%q} %d\n", runID, "actions", m.ActionsTaken)
	fmt.Fprintf(out, "statecraft_events_total{run=%q,kind=%q} %d\n", runID, "attacks", m.Attacks)
	fmt.Fprintf(out, "statecraft_events_total{run=%q,kind=%q} %d\n", runID, "relation_changes", m.RelationChanges)
	fmt.Fprintf(out, "statecraft_events_total{run=%q,kind=%q} %d\n", runID, "faults", m.Faults)

	fmt.Fprintf(out, "# HELP statecraft_round_ms Last round duration in milliseconds.\n")
	fmt.Fprintf(out, "# TYPE statecraft_round_ms gauge\n")
	fmt.Fprintf(out, "statecraft_round_ms{run=%q} %.3f\n", runID, m.RoundMS)

	fmt.Fprintf(out, "# HELP statecraft_power_total Sum of agent power.\n")
	fmt.Fprintf(out, "# TYPE statecraft_power_total gauge\n")
	fmt.Fprintf(out, "statecraft_power_total{run=%q,kind=%q} %.3f\n", runID, "military", m.TotalMilitary)
	fmt.Fprintf(out, "statecraft_power_total{run=%q,kind=%q} %.3f\n", runID, "economic", m.TotalEconomic)

	if idx != nil {
		st := idx.Stats()
		fmt.Fprintf(out, "# HELP statecraft_index_queue_depth Index write queue depth.\n")
		fmt.Fprintf(out, "# TYPE statecraft_index_queue_depth gauge\n")
		fmt.Fprintf(out, "statecraft_index_queue_depth{run=%q} %d\n", runID, st.QueueDepth)
		fmt.Fprintf(out, "# HELP statecraft_index_dropped_total Index writes dropped on a full queue.\n")
		fmt.Fprintf(out, "# TYPE statecraft_index_dropped_total counter\n")
		fmt.Fprintf(out, "statecraft_index_dropped_total{run=%q,kind=%q} %d\n", runID, "round", st.DropRoundTotal)
		fmt.Fprintf(out, "statecraft_index_dropped_total{run=%q,kind=%q} %d\n", runID, "fault", st.DropFaultTotal)
		fmt.Fprintf(out, "statecraft_index_dropped_total{run=%q,kind=%q} %d\n", runID, "snapshot", st.DropSnapshotTotal)
		fmt.Fprintf(out, "statecraft_index_dropped_total{run=%q,kind=%q} %d\n", runID, "archive", st.DropArchiveTotal)
	}
	if obs != nil {
		fmt.Fprintf(out, "# HELP statecraft_observer_sessions Connected observers.\n")
		fmt.Fprintf(out, "# TYPE statecraft_observer_sessions gauge\n")
		fmt.Fprintf(out, "statecraft_observer_sessions{run=%q} %d\n", runID, obs.Sessions())
		fmt.Fprintf(out, "# HELP statecraft_observer_dropped_total Round messages dropped for slow observers.\n")
		fmt.Fprintf(out, "# TYPE statecraft_observer_dropped_total counter\n")
		fmt.Fprintf(out, "statecraft_observer_dropped_total{run=%q} %d\n", runID, obs.Dropped())
	}
	if mir != nil {
		st := mir.Stats()
		fmt.Fprintf(out, "# HELP statecraft_mirror_queue_depth Files waiting for upload.\n")
		fmt.Fprintf(out, "# TYPE statecraft_mirror_queue_depth gauge\n")
		fmt.Fprintf(out, "statecraft_mirror_queue_depth{run=%q} %d\n", runID, st.QueueDepth)
		fmt.Fprintf(out, "# HELP statecraft_mirror_uploads_total Finished uploads by result.\n")
		fmt.Fprintf(out, "# TYPE statecraft_mirror_uploads_total counter\n")
		fmt.Fprintf(out, "statecraft_mirror_uploads_total{run=%q,result=%q} %d\n", runID, "ok", st.UploadSuccessTotal)
		fmt.Fprintf(out, "statecraft_mirror_uploads_total{run=%q,result=%q} %d\n", runID, "fail", st.UploadFailTotal)
		fmt.Fprintf(out, "statecraft_mirror_uploads_total{run=%q,result=%q} %d\n", runID, "dropped", st.DroppedTotal)
	}
}
