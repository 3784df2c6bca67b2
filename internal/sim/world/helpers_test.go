package world

import (
	"context"
	"testing"

	"statecraft.ai/internal/oracle"
	"statecraft.ai/internal/protocol"
	"statecraft.ai/internal/sim/catalogs"
	"statecraft.ai/internal/sim/relations"
)

type fakeOracle struct {
	messages func(ctx context.Context, req oracle.MessageRequest) ([]protocol.Message, error)
	action   func(ctx context.Context, req oracle.ActionRequest) (protocol.Action, error)
	updates  func(ctx context.Context, req oracle.UpdateRequest) (protocol.UpdateList, error)
}

func (f *fakeOracle) ProposeMessages(ctx context.Context, req oracle.MessageRequest) ([]protocol.Message, error) {
	if f.messages == nil {
		return nil, nil
	}
	return f.messages(ctx, req)
}

func (f *fakeOracle) ProposeAction(ctx context.Context, req oracle.ActionRequest) (protocol.Action, error) {
	if f.action == nil {
		return protocol.Action{Subject: req.Agent.Alias, Action: protocol.ActionNone}, nil
	}
	return f.action(ctx, req)
}

func (f *fakeOracle) ProposeUpdates(ctx context.Context, req oracle.UpdateRequest) (protocol.UpdateList, error) {
	if f.updates == nil {
		return protocol.UpdateList{}, nil
	}
	return f.updates(ctx, req)
}

func agentDef(alias string, military, economic float64) catalogs.AgentDef {
	return catalogs.AgentDef{
		Alias:            alias,
		Name:             "Nation " + alias,
		Type:             "nation",
		Identity:         "a nation, Christian",
		Goal:             "prosper",
		AvailableActions: []string{"military attack", "recruitment", "trade agreement"},
		MilitaryPower:    military,
		EconomicPower:    economic,
	}
}

func testCatalogs(defs ...catalogs.AgentDef) *catalogs.Catalogs {
	c := &catalogs.Catalogs{}
	c.Roster.ByID = map[string]catalogs.AgentDef{}
	aliases := make([]string, 0, len(defs))
	for _, d := range defs {
		c.Roster.Agents = append(c.Roster.Agents, d)
		c.Roster.ByID[d.Alias] = d
		aliases = append(aliases, d.Alias)
	}
	c.Start.Matrix = relations.New(aliases)
	c.ActionEffects.Raw = []byte(`{}`)
	return c
}

func newTestWorld(t *testing.T, p oracle.Provider, defs ...catalogs.AgentDef) *World {
	t.Helper()
	if len(defs) == 0 {
		defs = []catalogs.AgentDef{agentDef("A", 100, 100), agentDef("B", 100, 100), agentDef("C", 100, 100)}
	}
	w, err := New(WorldConfig{ID: "test"}, testCatalogs(defs...), p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func mustRound(t *testing.T, w *World) RoundLogEntry {
	t.Helper()
	e, err := w.RunRound(context.Background())
	if err != nil {
		t.Fatalf("RunRound: %v", err)
	}
	return e
}

func rel(t *testing.T, w *World, a, b string) relations.Relation {
	t.Helper()
	r, ok := w.relations.Get(a, b)
	if !ok {
		t.Fatalf("no relation %s-%s", a, b)
	}
	return r
}

func faultCodes(fs []Fault) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Code)
	}
	return out
}

type roundSink func(RoundLogEntry)

func (f roundSink) WriteRound(e RoundLogEntry) error { f(e); return nil }

type faultSink func(Fault)

func (f faultSink) WriteFault(x Fault) error { f(x); return nil }
