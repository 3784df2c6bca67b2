package world

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"statecraft.ai/internal/oracle"
	"statecraft.ai/internal/persistence/snapshot"
	"statecraft.ai/internal/protocol"
	"statecraft.ai/internal/sim/relations"
)

const scenarioScript = `
rounds:
  - round: 1
    messages:
      A:
        - {to: B, type: Declare war, content: "Your days are numbered."}
    actions:
      C: {action: NONE}
  - round: 2
    actions:
      A: {action: military attack, object: B}
`

func TestEndToEnd_ThreeAgents(t *testing.T) {
	script, err := oracle.ParseScript([]byte(scenarioScript))
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	w := newTestWorld(t, script)

	e1 := mustRound(t, w)
	if got := rel(t, w, "A", "B"); got != relations.Hostile {
		t.Fatalf("round 1 relation(A,B) got=%v want=%v", got, relations.Hostile)
	}
	if got := rel(t, w, "B", "A"); got != relations.Hostile {
		t.Fatalf("round 1 relation(B,A) got=%v want=%v", got, relations.Hostile)
	}
	if len(e1.Messages) != 1 || len(e1.Outcomes) != 0 || len(e1.Faults) != 0 {
		t.Fatalf("round 1 entry=%+v", e1)
	}

	e2 := mustRound(t, w)
	want := []protocol.Outcome{{Defender: "B", Attackers: []string{"A"}, Result: protocol.ResultWin, MilitaryChange: 0, EconomicChange: 0}}
	if !reflect.DeepEqual(e2.Outcomes, want) {
		t.Fatalf("round 2 outcomes got=%+v want=%+v", e2.Outcomes, want)
	}
	for _, a := range w.Agents() {
		if a.MilitaryPower != 100 || a.EconomicPower != 100 {
			t.Fatalf("power %s got=%v/%v want=100/100", a.Alias, a.MilitaryPower, a.EconomicPower)
		}
	}
	wantRel := [][]int{{0, -1, 0}, {-1, 0, 0}, {0, 0, 0}}
	if !reflect.DeepEqual(e2.Relations, wantRel) {
		t.Fatalf("relations got=%v want=%v", e2.Relations, wantRel)
	}
	if w.Round() != 2 {
		t.Fatalf("round got=%d want=2", w.Round())
	}
}

func TestRunRound_MailVisibility(t *testing.T) {
	var sawInMessagePhase, sawInActionPhase atomic.Int32
	p := &fakeOracle{
		messages: func(ctx context.Context, req oracle.MessageRequest) ([]protocol.Message, error) {
			sawInMessagePhase.Add(int32(len(req.PersonalMessages)))
			if req.Agent.Alias == "A" {
				return []protocol.Message{{Recipient: "B", Content: "ally?", MessageType: protocol.MsgProposeAlliance}}, nil
			}
			return nil, nil
		},
		action: func(ctx context.Context, req oracle.ActionRequest) (protocol.Action, error) {
			if req.Agent.Alias == "B" {
				sawInActionPhase.Add(int32(len(req.PersonalMessages)))
			}
			return protocol.Action{Action: protocol.ActionNone}, nil
		},
	}
	w := newTestWorld(t, p)

	mustRound(t, w)
	if got := sawInMessagePhase.Load(); got != 0 {
		t.Fatalf("round 1 message phase saw %d messages, want 0", got)
	}
	if got := sawInActionPhase.Load(); got != 1 {
		t.Fatalf("round 1 action phase saw %d messages, want 1", got)
	}

	mustRound(t, w)
	// Round 2: B reads A's round-1 message in the message phase.
	if got := sawInMessagePhase.Load(); got != 1 {
		t.Fatalf("round 2 message phase saw %d messages, want 1", got)
	}
	if got := len(w.Mailbox().Read("B")); got != 2 {
		t.Fatalf("committed for B got=%d want=2", got)
	}
}

func TestRunRound_MessageValidation(t *testing.T) {
	p := &fakeOracle{
		messages: func(ctx context.Context, req oracle.MessageRequest) ([]protocol.Message, error) {
			if req.Agent.Alias != "A" {
				return nil, nil
			}
			return []protocol.Message{
				{Sender: "C", Recipient: "B", Content: "spoofed sender", MessageType: protocol.MsgAcceptAlliance},
				{Recipient: "Z", Content: "nobody", MessageType: protocol.MsgDeclareWar},
				{Recipient: "A", Content: "self", MessageType: protocol.MsgDeclareWar},
				{Recipient: "B", Content: "bad type", MessageType: "Threaten"},
				{Recipient: "B", MessageType: protocol.MsgNone},
				{Recipient: protocol.PublicRecipient, Content: "hello world", MessageType: protocol.MsgPublicStatement},
				{Recipient: protocol.PublicRecipient, Content: "x", MessageType: protocol.MsgDeclareWar, Target: "Q"},
			}, nil
		},
	}
	w := newTestWorld(t, p)
	e := mustRound(t, w)

	if len(e.Messages) != 1 || e.Messages[0].Sender != "A" || e.Messages[0].Recipient != "B" {
		t.Fatalf("private got=%+v", e.Messages)
	}
	if len(e.Public) != 1 || e.Public[0].Content != "hello world" {
		t.Fatalf("public got=%+v", e.Public)
	}
	wantCodes := []string{
		protocol.ErrInvalidRecipient,
		protocol.ErrInvalidRecipient,
		protocol.ErrInvalidMessageType,
		protocol.ErrInvalidTarget,
	}
	if got := faultCodes(e.Faults); !reflect.DeepEqual(got, wantCodes) {
		t.Fatalf("faults got=%v want=%v", got, wantCodes)
	}
	// The spoofed message still counts as A's acceptance.
	if got := rel(t, w, "A", "B"); got != relations.Allied {
		t.Fatalf("relation(A,B) got=%v want=%v", got, relations.Allied)
	}
	if got := rel(t, w, "C", "B"); got != relations.Neutral {
		t.Fatalf("relation(C,B) got=%v want=%v", got, relations.Neutral)
	}
}

func TestRunRound_ValidationIsolation(t *testing.T) {
	p := &fakeOracle{
		action: func(ctx context.Context, req oracle.ActionRequest) (protocol.Action, error) {
			switch req.Agent.Alias {
			case "A":
				return protocol.Action{Action: "military attack", Object: "Nowhere"}, nil
			case "B":
				return protocol.Action{Action: "military attack", Object: "C"}, nil
			default:
				return protocol.Action{Action: "nuclear strike", Object: "A"}, nil
			}
		},
	}
	w := newTestWorld(t, p)
	e := mustRound(t, w)

	want := []protocol.Action{{Subject: "B", Object: "C", Action: "military attack"}}
	if !reflect.DeepEqual(e.Actions, want) {
		t.Fatalf("actions got=%+v want=%+v", e.Actions, want)
	}
	if got := faultCodes(e.Faults); !reflect.DeepEqual(got, []string{protocol.ErrInvalidTarget, protocol.ErrNoPermission}) {
		t.Fatalf("faults got=%v", got)
	}
	hist := w.History()
	if got := hist[len(hist)-1].Actions["B"]; !reflect.DeepEqual(got, want) {
		t.Fatalf("history actions for B got=%+v", got)
	}
	if got := hist[len(hist)-1].Actions["A"]; len(got) != 0 {
		t.Fatalf("history actions for A got=%+v want none", got)
	}
}

func TestRunRound_TargetExemptActions(t *testing.T) {
	p := &fakeOracle{
		action: func(ctx context.Context, req oracle.ActionRequest) (protocol.Action, error) {
			if req.Agent.Alias == "A" {
				return protocol.Action{Action: "recruitment"}, nil
			}
			return protocol.Action{Action: protocol.ActionNone, Object: "A"}, nil
		},
	}
	w := newTestWorld(t, p)
	e := mustRound(t, w)
	if len(e.Faults) != 0 {
		t.Fatalf("faults=%v", e.Faults)
	}
	if len(e.Actions) != 3 || e.Actions[0].Action != "recruitment" || e.Actions[1].Object != "" {
		t.Fatalf("actions=%+v", e.Actions)
	}
}

func TestRunRound_OracleFailuresAreIsolated(t *testing.T) {
	p := &fakeOracle{
		action: func(ctx context.Context, req oracle.ActionRequest) (protocol.Action, error) {
			switch req.Agent.Alias {
			case "A":
				return protocol.Action{}, errors.New("connection reset")
			case "B":
				return protocol.Action{}, oracle.ErrMalformedResponse
			case "C":
				<-ctx.Done()
				return protocol.Action{}, ctx.Err()
			}
			return protocol.Action{Action: protocol.ActionNone}, nil
		},
	}
	cats := testCatalogs(agentDef("A", 1, 1), agentDef("B", 1, 1), agentDef("C", 1, 1), agentDef("D", 1, 1))
	w, err := New(WorldConfig{ID: "t", OracleTimeout: 20 * time.Millisecond}, cats, p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e := mustRound(t, w)
	if len(e.Actions) != 1 || e.Actions[0].Subject != "D" {
		t.Fatalf("actions=%+v", e.Actions)
	}
	want := []string{protocol.ErrOracle, protocol.ErrMalformedResponse, protocol.ErrTimeout}
	if got := faultCodes(e.Faults); !reflect.DeepEqual(got, want) {
		t.Fatalf("faults got=%v want=%v", got, want)
	}
	if !errors.Is(e.Faults[1], oracle.ErrMalformedResponse) {
		t.Fatalf("fault does not unwrap to ErrMalformedResponse")
	}
}

func TestRunRound_PanickingOracleIsContained(t *testing.T) {
	p := &fakeOracle{
		messages: func(ctx context.Context, req oracle.MessageRequest) ([]protocol.Message, error) {
			if req.Agent.Alias == "B" {
				panic("boom")
			}
			return nil, nil
		},
	}
	w := newTestWorld(t, p)
	e := mustRound(t, w)
	if got := faultCodes(e.Faults); !reflect.DeepEqual(got, []string{protocol.ErrInternal}) || e.Faults[0].Agent != "B" {
		t.Fatalf("faults=%+v", e.Faults)
	}
	if e.Faults[0].Fatal() {
		t.Fatalf("panic fault must not be fatal: %+v", e.Faults[0])
	}
}

func TestRunRound_SlowOracleIgnoringContextTimesOut(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	p := &fakeOracle{
		action: func(ctx context.Context, req oracle.ActionRequest) (protocol.Action, error) {
			if req.Agent.Alias == "A" {
				select {
				case <-release:
				case <-time.After(5 * time.Second):
				}
				return protocol.Action{Action: "recruitment"}, nil
			}
			return protocol.Action{Action: protocol.ActionNone}, nil
		},
		updates: func(ctx context.Context, req oracle.UpdateRequest) (protocol.UpdateList, error) {
			time.Sleep(time.Second)
			return protocol.UpdateList{Updates: []protocol.UpdateItem{{AgentName: "B", MilitaryChangePercentage: 5}}}, nil
		},
	}
	cats := testCatalogs(agentDef("A", 100, 100), agentDef("B", 100, 100))
	w, err := New(WorldConfig{ID: "t", OracleTimeout: 50 * time.Millisecond}, cats, p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	e := mustRound(t, w)
	if elapsed := time.Since(start); elapsed > 800*time.Millisecond {
		t.Fatalf("round held past the oracle timeout: elapsed=%v", elapsed)
	}
	if len(e.Actions) != 1 || e.Actions[0].Subject != "B" {
		t.Fatalf("actions=%+v", e.Actions)
	}
	want := []string{protocol.ErrTimeout, protocol.ErrTimeout}
	if got := faultCodes(e.Faults); !reflect.DeepEqual(got, want) {
		t.Fatalf("faults got=%v want=%v", got, want)
	}
	if e.Faults[0].Agent != "A" || e.Faults[1].Phase != PhaseUpdates {
		t.Fatalf("faults=%+v", e.Faults)
	}
	if len(e.Updates) != 0 {
		t.Fatalf("late updates applied: %+v", e.Updates)
	}
	if b, _ := w.Agent("B"); b.MilitaryPower != 100 {
		t.Fatalf("B military=%v want 100", b.MilitaryPower)
	}
}

func TestRunRound_UnknownAgentIsFatal(t *testing.T) {
	p := &fakeOracle{
		updates: func(ctx context.Context, req oracle.UpdateRequest) (protocol.UpdateList, error) {
			return protocol.UpdateList{Updates: []protocol.UpdateItem{
				{AgentName: "A", MilitaryChangePercentage: 5},
				{AgentName: "Ghost", MilitaryChangePercentage: 5},
			}}, nil
		},
	}
	w := newTestWorld(t, p)
	var faults []Fault
	w.SetFaultLogger(faultSink(func(f Fault) { faults = append(faults, f) }))

	_, err := w.RunRound(context.Background())
	if !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("err=%v want ErrUnknownAgent", err)
	}
	var f Fault
	if !errors.As(err, &f) || f.Round != 1 || f.Agent != "Ghost" || !f.Fatal() {
		t.Fatalf("fault=%+v", f)
	}
	if w.Round() != 0 {
		t.Fatalf("round counted after fatal fault: %d", w.Round())
	}
	if a, _ := w.Agent("A"); a.MilitaryPower != 100 {
		t.Fatalf("partial update applied: %v", a.MilitaryPower)
	}
	if len(faults) != 1 || faults[0].Code != protocol.ErrUnknownAgent {
		t.Fatalf("fault logger got=%+v", faults)
	}
	if err := w.Run(context.Background(), 3); !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("Run err=%v", err)
	}
}

func TestRunRound_UpdatesAreClamped(t *testing.T) {
	p := &fakeOracle{
		updates: func(ctx context.Context, req oracle.UpdateRequest) (protocol.UpdateList, error) {
			if req.MaxChangePct != 10 || len(req.States) == 0 {
				t.Errorf("request=%+v", req)
			}
			return protocol.UpdateList{Updates: []protocol.UpdateItem{
				{AgentName: "A", MilitaryChangePercentage: 50, EconomicChangePercentage: -80},
				{AgentName: "B", MilitaryChangePercentage: 2.5, EconomicChangePercentage: -3},
			}}, nil
		},
	}
	w := newTestWorld(t, p)
	e := mustRound(t, w)

	start := 100.0
	expect := func(pct float64) float64 { return math.Max(0, start*(1+pct/100)) }
	a, _ := w.Agent("A")
	if a.MilitaryPower != expect(10) || a.EconomicPower != expect(-10) {
		t.Fatalf("A got=%v/%v want=%v/%v", a.MilitaryPower, a.EconomicPower, expect(10), expect(-10))
	}
	b, _ := w.Agent("B")
	if b.MilitaryPower != expect(2.5) || b.EconomicPower != expect(-3) {
		t.Fatalf("B got=%v/%v want=%v/%v", b.MilitaryPower, b.EconomicPower, expect(2.5), expect(-3))
	}
	if e.Updates[0].MilitaryChangePercentage != 10 || e.Updates[0].EconomicChangePercentage != -10 {
		t.Fatalf("logged updates not clamped: %+v", e.Updates[0])
	}
}

func TestRunRound_UpdateOracleErrorSkipsUpdates(t *testing.T) {
	p := &fakeOracle{
		updates: func(ctx context.Context, req oracle.UpdateRequest) (protocol.UpdateList, error) {
			return protocol.UpdateList{}, oracle.ErrMalformedResponse
		},
	}
	w := newTestWorld(t, p)
	e := mustRound(t, w)
	if len(e.Updates) != 0 || w.Round() != 1 {
		t.Fatalf("entry=%+v round=%d", e, w.Round())
	}
	if got := faultCodes(e.Faults); !reflect.DeepEqual(got, []string{protocol.ErrMalformedResponse}) || e.Faults[0].Phase != PhaseUpdates {
		t.Fatalf("faults=%+v", e.Faults)
	}
}

func TestRunRound_HistoryIsBounded(t *testing.T) {
	w := newTestWorld(t, &fakeOracle{})
	if err := w.Run(context.Background(), 5); err != nil {
		t.Fatalf("Run: %v", err)
	}
	hist := w.History()
	if len(hist) != 3 {
		t.Fatalf("history len=%d want=3", len(hist))
	}
	for i, want := range []int{3, 4, 5} {
		if hist[i].Round != want {
			t.Fatalf("history[%d].Round=%d want=%d", i, hist[i].Round, want)
		}
	}
}

func TestRunRound_CancelledContext(t *testing.T) {
	w := newTestWorld(t, &fakeOracle{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.RunRound(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if w.Round() != 0 {
		t.Fatalf("round=%d", w.Round())
	}
}

func TestRunRound_LoggersMetricsAndAnalytics(t *testing.T) {
	cats := testCatalogs(agentDef("A", 100, 100), agentDef("B", 100, 100))
	end := relations.New([]string{"A", "B"})
	_ = end.Update("A", "B", relations.Hostile)
	cats.End.Matrix = end

	p := &fakeOracle{
		messages: func(ctx context.Context, req oracle.MessageRequest) ([]protocol.Message, error) {
			if req.Agent.Alias == "A" {
				return []protocol.Message{{Recipient: "B", MessageType: protocol.MsgDeclareWar, Content: "war"}}, nil
			}
			return nil, nil
		},
	}
	w, err := New(WorldConfig{ID: "run-x", SnapshotEveryRounds: 1}, cats, p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var entries []RoundLogEntry
	w.SetRoundLogger(roundSink(func(e RoundLogEntry) { entries = append(entries, e) }))
	snaps := make(chan snapshot.SnapshotV1, 1)
	w.SetSnapshotSink(snaps)

	mustRound(t, w)
	mustRound(t, w) // second snapshot is dropped: sink is full

	if len(entries) != 2 || entries[0].RunID != "run-x" || entries[1].Round != 2 {
		t.Fatalf("entries=%+v", entries)
	}
	var mse float64 = -1
	for _, r := range entries[0].Analytics {
		if r.Name == "MSE" {
			mse = r.Value
		}
	}
	if mse != 0 {
		t.Fatalf("MSE got=%v want=0 (relations reached target)", mse)
	}
	if len(entries[0].Digest) != 64 || entries[0].Digest == entries[1].Digest {
		t.Fatalf("digests=%q %q", entries[0].Digest, entries[1].Digest)
	}

	m := w.Metrics()
	if m.Round != 2 || m.MessagesSent != 2 || m.RelationChanges != 2 || m.Agents != 2 {
		t.Fatalf("metrics=%+v", m)
	}
	select {
	case s := <-snaps:
		if s.Header.Round != 1 || s.Header.RunID != "run-x" {
			t.Fatalf("snapshot header=%+v", s.Header)
		}
	default:
		t.Fatalf("expected snapshot")
	}
}
