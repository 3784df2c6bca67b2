// Package world is the arbitration engine: it owns agents, relations, the
// mailbox and the bounded history, and advances them one round at a time.
package world

import (
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"

	"statecraft.ai/internal/oracle"
	"statecraft.ai/internal/persistence/snapshot"
	"statecraft.ai/internal/protocol"
	"statecraft.ai/internal/sim/analytics"
	"statecraft.ai/internal/sim/catalogs"
	"statecraft.ai/internal/sim/mailbox"
	"statecraft.ai/internal/sim/relations"
)

var tracer = otel.Tracer("statecraft.ai/internal/sim/world")

// World is driven by a single goroutine calling RunRound. Oracle calls fan out
// per phase, but every engine mutation happens on the calling goroutine.
type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs
	oracle   oracle.Provider

	order     []string
	agents    map[string]*Agent
	relations *relations.Matrix
	mail      *mailbox.Mailbox
	history   []protocol.StateRecord

	// round is the number of completed rounds.
	round int

	comparator *analytics.Comparator

	// Optional sinks (may be nil).
	roundLogger  RoundLogger
	faultLogger  FaultLogger
	snapshotSink chan<- snapshot.SnapshotV1

	stats   runStats
	metrics atomic.Value
}

func New(cfg WorldConfig, cats *catalogs.Catalogs, provider oracle.Provider) (*World, error) {
	if cats == nil || cats.Start.Matrix == nil {
		return nil, fmt.Errorf("world: catalogs with a start relations matrix are required")
	}
	if provider == nil {
		return nil, fmt.Errorf("world: oracle provider is required")
	}
	cfg.applyDefaults()

	w := &World{
		cfg:       cfg,
		catalogs:  cats,
		oracle:    provider,
		agents:    make(map[string]*Agent, len(cats.Roster.Agents)),
		relations: cats.Start.Matrix.Clone(),
		mail:      mailbox.New(),
	}
	for _, def := range cats.Roster.Agents {
		w.order = append(w.order, def.Alias)
		w.agents[def.Alias] = newAgent(def)
	}
	for _, alias := range w.order {
		if !w.relations.Has(alias) {
			return nil, fmt.Errorf("world: agent %s missing from start relations", alias)
		}
	}
	w.buildSystemPrompts()

	if cats.End.Matrix != nil {
		w.comparator = analytics.NewComparator(cats.End.Matrix.ToMatrix(w.order), nil)
	}
	w.metrics.Store(WorldMetrics{Agents: len(w.order)})
	return w, nil
}

func (w *World) buildSystemPrompts() {
	for _, alias := range w.order {
		a := w.agents[alias]
		known := make([]oracle.KnownEntity, 0, len(w.order)-1)
		for _, other := range w.order {
			if other == alias {
				continue
			}
			o := w.agents[other]
			known = append(known, oracle.KnownEntity{Alias: o.Alias, Name: o.Name, Identity: o.Identity})
		}
		a.systemPrompt = oracle.BuildSystemPrompt(a.profile(), known, w.cfg.UseFullIdentity)
	}
}

func (w *World) SetRoundLogger(l RoundLogger) { w.roundLogger = l }
func (w *World) SetFaultLogger(l FaultLogger) { w.faultLogger = l }

// SetSnapshotSink registers a channel that receives snapshots every
// SnapshotEveryRounds rounds. Sends never block; a full sink drops the snapshot.
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

// Round returns the number of completed rounds.
func (w *World) Round() int { return w.round }

// Aliases returns the roster order.
func (w *World) Aliases() []string { return append([]string(nil), w.order...) }

func (w *World) Agent(alias string) (AgentState, bool) {
	a, ok := w.agents[alias]
	if !ok {
		return AgentState{}, false
	}
	return a.State(), true
}

func (w *World) Agents() []AgentState {
	out := make([]AgentState, 0, len(w.order))
	for _, alias := range w.order {
		out = append(out, w.agents[alias].State())
	}
	return out
}

// Relations returns a copy of the relations matrix.
func (w *World) Relations() *relations.Matrix { return w.relations.Clone() }

// History returns a deep copy of the bounded state history, oldest first.
func (w *World) History() []protocol.StateRecord {
	out := make([]protocol.StateRecord, len(w.history))
	for i, r := range w.history {
		out[i] = cloneRecord(r)
	}
	return out
}

func (w *World) Mailbox() *mailbox.Mailbox { return w.mail }

func (w *World) Catalogs() *catalogs.Catalogs { return w.catalogs }

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) recordFault(f Fault) {
	w.cfg.Logger.Printf("fault: %v", f)
	if w.faultLogger != nil {
		if err := w.faultLogger.WriteFault(f); err != nil {
			w.cfg.Logger.Printf("fault logger: %v", err)
		}
	}
}

func cloneRecord(r protocol.StateRecord) protocol.StateRecord {
	out := protocol.StateRecord{
		Round:            r.Round,
		Actions:          make(map[string][]protocol.Action, len(r.Actions)),
		MilitaryStrength: make(map[string]float64, len(r.MilitaryStrength)),
		EconomicStrength: make(map[string]float64, len(r.EconomicStrength)),
		Relations:        make(map[string]map[string]int, len(r.Relations)),
	}
	for k, v := range r.Actions {
		out.Actions[k] = append([]protocol.Action{}, v...)
	}
	for k, v := range r.MilitaryStrength {
		out.MilitaryStrength[k] = v
	}
	for k, v := range r.EconomicStrength {
		out.EconomicStrength[k] = v
	}
	for a, row := range r.Relations {
		cp := make(map[string]int, len(row))
		for b, v := range row {
			cp[b] = v
		}
		out.Relations[a] = cp
	}
	return out
}
