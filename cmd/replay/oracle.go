package main

import (
	"context"

	"statecraft.ai/internal/oracle"
	"statecraft.ai/internal/protocol"
	"statecraft.ai/internal/sim/world"
)

// logOracle answers every request with what was committed in the round log.
// It is read-only after construction.
type logOracle struct {
	rounds map[int]world.RoundLogEntry
}

func newLogOracle(entries []world.RoundLogEntry) *logOracle {
	o := &logOracle{rounds: make(map[int]world.RoundLogEntry, len(entries))}
	for _, e := range entries {
		o.rounds[e.Round] = e
	}
	return o
}

func (o *logOracle) ProposeMessages(ctx context.Context, req oracle.MessageRequest) ([]protocol.Message, error) {
	e, ok := o.rounds[req.Round]
	if !ok {
		return nil, nil
	}
	var out []protocol.Message
	for _, m := range e.Messages {
		if m.Sender == req.Agent.Alias {
			out = append(out, m)
		}
	}
	for _, m := range e.Public {
		if m.Sender == req.Agent.Alias {
			out = append(out, m)
		}
	}
	return out, nil
}

func (o *logOracle) ProposeAction(ctx context.Context, req oracle.ActionRequest) (protocol.Action, error) {
	if e, ok := o.rounds[req.Round]; ok {
		for _, a := range e.Actions {
			if a.Subject == req.Agent.Alias {
				return a, nil
			}
		}
	}
	return protocol.Action{Subject: req.Agent.Alias, Action: protocol.ActionNone}, nil
}

func (o *logOracle) ProposeUpdates(ctx context.Context, req oracle.UpdateRequest) (protocol.UpdateList, error) {
	e := o.rounds[req.Round]
	return protocol.UpdateList{Updates: append([]protocol.UpdateItem(nil), e.Updates...)}, nil
}
