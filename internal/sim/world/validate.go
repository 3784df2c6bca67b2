package world

import (
	"errors"
	"fmt"

	"statecraft.ai/internal/protocol"
)

// errNoContribution marks a proposal that is a deliberate no-op (a NONE message).
var errNoContribution = errors.New("no contribution")

// validateMessage checks one proposed message from sender. The sender field is
// always overwritten: agents can only speak for themselves.
func (w *World) validateMessage(round int, sender string, m protocol.Message) (protocol.Message, error) {
	m.Sender = sender
	if m.MessageType == protocol.MsgNone {
		return m, errNoContribution
	}
	if !m.MessageType.Valid() {
		return m, newFault(round, PhaseMessages, sender, protocol.ErrInvalidMessageType,
			fmt.Sprintf("message type %q is not allowed", string(m.MessageType)))
	}
	if m.IsPublic() {
		if m.Target != "" && !w.isOtherAgent(sender, m.Target) {
			return m, newFault(round, PhaseMessages, sender, protocol.ErrInvalidTarget,
				fmt.Sprintf("public statement target %q is not a known agent", m.Target))
		}
		return m, nil
	}
	if !w.isOtherAgent(sender, m.Recipient) {
		return m, newFault(round, PhaseMessages, sender, protocol.ErrInvalidRecipient,
			fmt.Sprintf("recipient %q is not a known agent or %s", m.Recipient, protocol.PublicRecipient))
	}
	m.Target = ""
	return m, nil
}

// validateAction checks one proposed action. An empty label counts as NONE.
func (w *World) validateAction(round int, subject string, a protocol.Action) (protocol.Action, error) {
	a.Subject = subject
	if a.Action == "" {
		a.Action = protocol.ActionNone
	}
	agent := w.agents[subject]
	if !agent.Permits(a.Action) {
		return a, newFault(round, PhaseActions, subject, protocol.ErrNoPermission,
			fmt.Sprintf("action %q is not available to %s", a.Action, subject))
	}
	if w.cfg.targetExempt(a.Action) {
		if a.Action == protocol.ActionNone || !w.isOtherAgent(subject, a.Object) {
			a.Object = ""
		}
		return a, nil
	}
	if !w.isOtherAgent(subject, a.Object) {
		return a, newFault(round, PhaseActions, subject, protocol.ErrInvalidTarget,
			fmt.Sprintf("invalid target %q for action %q", a.Object, a.Action))
	}
	return a, nil
}

func (w *World) isOtherAgent(self, alias string) bool {
	if alias == "" || alias == self {
		return false
	}
	_, ok := w.agents[alias]
	return ok
}
