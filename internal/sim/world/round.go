package world

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"statecraft.ai/internal/protocol"
)

// RunRound executes one round:
//
//  1. record the current state in the bounded history
//  2. collect messages from every agent (concurrently)
//  3. commit the mailbox
//  4. collect one action per agent (concurrently)
//  5. apply private message transitions
//  6. apply public statement transitions
//  7. compute attack outcomes
//  8. ask for power updates
//  9. clamp and apply the updates
//
// Validation and oracle failures are recorded as faults and the round goes on.
// A fatal fault (an update naming an unknown agent) is returned as the error;
// the round is then not counted and the run must stop. By then the history
// entry, the mailbox commit and the relation changes of the round are already
// in place, so the World must not run further rounds: resume a fresh World from
// a snapshot instead. The same holds if ctx is cancelled mid-round.
func (w *World) RunRound(ctx context.Context) (RoundLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return RoundLogEntry{}, err
	}
	round := w.round + 1
	start := time.Now()

	ctx, span := tracer.Start(ctx, "world.round", trace.WithAttributes(
		attribute.String("run.id", w.cfg.ID),
		attribute.Int("round", round),
	))
	defer span.End()

	entry := RoundLogEntry{RunID: w.cfg.ID, Round: round}
	fault := func(fs ...Fault) {
		for _, f := range fs {
			w.recordFault(f)
			w.stats.faults++
			entry.Faults = append(entry.Faults, f)
		}
	}

	w.recordState(round)

	fault(w.messagePhase(ctx, round)...)
	if err := ctx.Err(); err != nil {
		return entry, err
	}
	span.AddEvent("messages")

	batch := w.mail.Finalize()
	entry.Messages = batch.Private
	entry.Public = batch.Public
	w.stats.publicStatements += uint64(len(batch.Public))

	actions, faults := w.actionPhase(ctx, round)
	fault(faults...)
	if err := ctx.Err(); err != nil {
		return entry, err
	}
	entry.Actions = actions
	w.stats.actionsTaken += uint64(len(actions))
	span.AddEvent("actions")

	changed := applyPrivate(w.relations, batch.Private)
	changed += applyPublic(w.relations, batch.Public)
	w.stats.relationChanges += uint64(changed)

	military := make(map[string]float64, len(w.order))
	for _, alias := range w.order {
		military[alias] = w.agents[alias].MilitaryPower
	}
	entry.Outcomes = ComputeOutcomes(w.cfg.AttackAction, actions, military)
	for _, o := range entry.Outcomes {
		w.stats.attacks += uint64(len(o.Attackers))
	}

	list, err := w.proposeUpdates(ctx, round, actions, entry.Outcomes)
	if err != nil {
		if f, ok := oracleFault(round, PhaseUpdates, "", err); ok {
			fault(f)
		}
		list = protocol.UpdateList{}
	}
	applied, err := w.ApplyUpdates(list)
	if err != nil {
		if f, ok := err.(Fault); ok {
			fault(f)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return entry, err
	}
	entry.Updates = applied
	span.AddEvent("updates")

	w.round = round
	entry.Agents = w.Agents()
	entry.Order = w.Aliases()
	entry.Relations = w.relations.ToMatrix(w.order)
	if w.comparator != nil {
		if res, err := w.comparator.Compare(entry.Relations); err == nil {
			entry.Analytics = res
		}
	}
	entry.Digest = w.stateDigest(round)
	entry.DurationMS = float64(time.Since(start).Microseconds()) / 1000

	w.publishMetrics(entry.DurationMS)
	if w.roundLogger != nil {
		if err := w.roundLogger.WriteRound(entry); err != nil {
			w.cfg.Logger.Printf("round logger: %v", err)
		}
	}
	w.offerSnapshot(round)
	return entry, nil
}

// Run executes rounds until lastRound rounds have completed. It stops at the
// first fatal fault or when ctx is done.
func (w *World) Run(ctx context.Context, lastRound int) error {
	for w.round < lastRound {
		if _, err := w.RunRound(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (w *World) recordState(round int) {
	rec := protocol.StateRecord{
		Round:            round,
		Actions:          make(map[string][]protocol.Action, len(w.order)),
		MilitaryStrength: make(map[string]float64, len(w.order)),
		EconomicStrength: make(map[string]float64, len(w.order)),
		Relations:        w.relations.Map(),
	}
	for _, alias := range w.order {
		a := w.agents[alias]
		rec.Actions[alias] = []protocol.Action{}
		rec.MilitaryStrength[alias] = a.MilitaryPower
		rec.EconomicStrength[alias] = a.EconomicPower
	}
	w.history = append(w.history, rec)
	if over := len(w.history) - w.cfg.HistoryDepth; over > 0 {
		w.history = append([]protocol.StateRecord(nil), w.history[over:]...)
	}
}

func (w *World) offerSnapshot(round int) {
	if w.snapshotSink == nil || w.cfg.SnapshotEveryRounds <= 0 || round%w.cfg.SnapshotEveryRounds != 0 {
		return
	}
	snap := w.ExportSnapshot()
	select {
	case w.snapshotSink <- snap:
	default:
		w.cfg.Logger.Printf("snapshot sink full; dropping round %d", round)
	}
}
