package world

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"statecraft.ai/internal/oracle"
	"statecraft.ai/internal/protocol"
)

// fanOut runs call once per agent index concurrently and waits for all of them,
// but never past the per-call timeout: a call still running at its deadline
// gets a timeout error and its late result is discarded. A panic in one call
// is reported as that call's error.
func fanOut[T any](ctx context.Context, timeout time.Duration, n int, call func(ctx context.Context, i int) (T, error)) ([]T, []error) {
	type result struct {
		v   T
		err error
	}
	out := make([]T, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan result, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- result{err: fmt.Errorf("%w: %v", errOraclePanic, r)}
					}
				}()
				v, err := call(cctx, i)
				done <- result{v: v, err: err}
			}()

			select {
			case r := <-done:
				out[i], errs[i] = r.v, r.err
			case <-cctx.Done():
				errs[i] = fmt.Errorf("oracle call abandoned after %s: %w", timeout, cctx.Err())
			}
		}(i)
	}
	wg.Wait()
	return out, errs
}

func (w *World) hints(alias string) oracle.Hints {
	self := w.agents[alias]
	h := oracle.Hints{
		PotentialAllies: w.relations.Neutrals(alias),
		Enemies:         w.relations.Enemies(alias),
	}
	for _, other := range h.PotentialAllies {
		if rel := w.agents[other].Religion(); rel != "" && rel == self.Religion() {
			h.SameReligionAllies = append(h.SameReligionAllies, other)
		}
	}
	return h
}

// messagePhase asks every agent for messages against the mail committed in
// earlier rounds and stages the valid ones in roster order.
func (w *World) messagePhase(ctx context.Context, round int) []Fault {
	state := w.history[len(w.history)-1]
	public := w.mail.ReadPublicStatements()

	reqs := make([]oracle.MessageRequest, len(w.order))
	for i, alias := range w.order {
		reqs[i] = oracle.MessageRequest{
			Round:            round,
			Agent:            w.agents[alias].profile(),
			WorldState:       cloneRecord(state),
			PersonalMessages: w.mail.Read(alias),
			PublicStatements: append([]protocol.Message(nil), public...),
			Relations:        w.relations.Map(),
			Hints:            w.hints(alias),
			MessageTypes:     w.catalogs.Messages.Descriptions,
		}
	}

	proposals, errs := fanOut(ctx, w.cfg.OracleTimeout, len(reqs), func(ctx context.Context, i int) ([]protocol.Message, error) {
		return w.oracle.ProposeMessages(ctx, reqs[i])
	})

	var faults []Fault
	for i, alias := range w.order {
		if errs[i] != nil {
			if f, ok := oracleFault(round, PhaseMessages, alias, errs[i]); ok {
				faults = append(faults, f)
			}
			continue
		}
		for _, m := range proposals[i] {
			msg, err := w.validateMessage(round, alias, m)
			var f Fault
			switch {
			case err == nil:
				w.mail.Send(msg)
				w.stats.messagesSent++
			case errors.As(err, &f):
				faults = append(faults, f)
			}
		}
	}
	return faults
}

// actionPhase asks every agent for one action against the freshly committed
// mail. Accepted actions are returned in roster order and recorded in the
// current history entry.
func (w *World) actionPhase(ctx context.Context, round int) ([]protocol.Action, []Fault) {
	cur := len(w.history) - 1
	state := w.history[cur]
	public := w.mail.ReadPublicStatements()

	reqs := make([]oracle.ActionRequest, len(w.order))
	for i, alias := range w.order {
		a := w.agents[alias]
		reqs[i] = oracle.ActionRequest{
			Round:            round,
			Agent:            a.profile(),
			WorldState:       cloneRecord(state),
			PersonalMessages: w.mail.Read(alias),
			PublicStatements: append([]protocol.Message(nil), public...),
			Options:          a.Options(),
		}
	}

	proposals, errs := fanOut(ctx, w.cfg.OracleTimeout, len(reqs), func(ctx context.Context, i int) (protocol.Action, error) {
		return w.oracle.ProposeAction(ctx, reqs[i])
	})

	var (
		actions []protocol.Action
		faults  []Fault
	)
	for i, alias := range w.order {
		if errs[i] != nil {
			if f, ok := oracleFault(round, PhaseActions, alias, errs[i]); ok {
				faults = append(faults, f)
			}
			continue
		}
		act, err := w.validateAction(round, alias, proposals[i])
		if err != nil {
			var f Fault
			if errors.As(err, &f) {
				faults = append(faults, f)
			}
			continue
		}
		actions = append(actions, act)
		w.history[cur].Actions[alias] = append(w.history[cur].Actions[alias], act)
	}
	return actions, faults
}

func (w *World) proposeUpdates(ctx context.Context, round int, actions []protocol.Action, outcomes []protocol.Outcome) (protocol.UpdateList, error) {
	req := oracle.UpdateRequest{
		Round:         round,
		Agents:        w.Aliases(),
		States:        w.History(),
		LatestActions: append([]protocol.Action(nil), actions...),
		Outcomes:      outcomes,
		ActionEffects: w.catalogs.ActionEffects.Raw,
		MaxChangePct:  w.cfg.MaxChangePct,
	}
	lists, errs := fanOut(ctx, w.cfg.OracleTimeout, 1, func(ctx context.Context, _ int) (protocol.UpdateList, error) {
		return w.oracle.ProposeUpdates(ctx, req)
	})
	return lists[0], errs[0]
}
