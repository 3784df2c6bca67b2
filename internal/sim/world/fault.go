package world

import (
	"context"
	"errors"
	"fmt"

	"statecraft.ai/internal/oracle"
	"statecraft.ai/internal/protocol"
)

// ErrUnknownAgent is wrapped by the fault returned when an update names an alias
// outside the roster.
var ErrUnknownAgent = errors.New("unknown agent in updates")

var errOraclePanic = errors.New("oracle panic")

// Round phases, as recorded on faults.
const (
	PhaseMessages = "messages"
	PhaseActions  = "actions"
	PhaseUpdates  = "updates"
)

// Fault records a rejected oracle contribution. Faults with a fatal code abort
// the round; the rest only drop the offending contribution.
type Fault struct {
	Round  int    `json:"round"`
	Phase  string `json:"phase"`
	Agent  string `json:"agent,omitempty"`
	Code   string `json:"code"`
	Detail string `json:"detail"`

	err error
}

func (f Fault) Error() string {
	if f.Agent != "" {
		return fmt.Sprintf("round %d %s: %s: %s (%s)", f.Round, f.Phase, f.Agent, f.Detail, f.Code)
	}
	return fmt.Sprintf("round %d %s: %s (%s)", f.Round, f.Phase, f.Detail, f.Code)
}

func (f Fault) Unwrap() error { return f.err }

func (f Fault) Fatal() bool { return protocol.IsFatalCode(f.Code) }

func newFault(round int, phase, agent, code, detail string) Fault {
	return Fault{Round: round, Phase: phase, Agent: agent, Code: code, Detail: detail}
}

// oracleFault classifies a failed oracle call. ok is false when the provider
// simply declined.
func oracleFault(round int, phase, agent string, err error) (Fault, bool) {
	if errors.Is(err, oracle.ErrDeclined) {
		return Fault{}, false
	}
	code := protocol.ErrOracle
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = protocol.ErrTimeout
	case errors.Is(err, oracle.ErrMalformedResponse):
		code = protocol.ErrMalformedResponse
	case errors.Is(err, errOraclePanic):
		code = protocol.ErrInternal
	}
	f := newFault(round, phase, agent, code, err.Error())
	f.err = err
	return f, true
}
