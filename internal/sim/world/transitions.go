package world

import (
	"statecraft.ai/internal/protocol"
	"statecraft.ai/internal/sim/relations"
)

// transitions maps a message type to the relation it sets between sender and
// counterparty. Types absent from the table change nothing.
var transitions = map[protocol.MessageType]relations.Relation{
	protocol.MsgDeclareWar:      relations.Hostile,
	protocol.MsgProposeAlliance: relations.Neutral,
	protocol.MsgAcceptAlliance:  relations.Allied,
	protocol.MsgRejectAlliance:  relations.Hostile,
	protocol.MsgBreakAlliance:   relations.Hostile,
	protocol.MsgOfferTruce:      relations.Neutral,
	protocol.MsgAcceptTruce:     relations.Neutral,
	protocol.MsgRejectTruce:     relations.Hostile,
}

// Transition returns the relation a message type sets, if any.
func Transition(t protocol.MessageType) (relations.Relation, bool) {
	r, ok := transitions[t]
	return r, ok
}

// applyPrivate updates relations from private messages committed this round.
func applyPrivate(m *relations.Matrix, msgs []protocol.Message) int {
	n := 0
	for _, msg := range msgs {
		v, ok := Transition(msg.MessageType)
		if !ok {
			continue
		}
		if m.Update(msg.Sender, msg.Recipient, v) == nil {
			n++
		}
	}
	return n
}

// applyPublic updates relations from public statements committed this round.
// A public alliance proposal promotes a neutral pair straight to allied and
// leaves any other pair alone.
func applyPublic(m *relations.Matrix, msgs []protocol.Message) int {
	n := 0
	for _, msg := range msgs {
		target := msg.Counterparty()
		if target == "" {
			continue
		}
		if msg.MessageType == protocol.MsgProposeAlliance {
			cur, ok := m.Get(msg.Sender, target)
			if !ok || cur != relations.Neutral {
				continue
			}
			if m.Update(msg.Sender, target, relations.Allied) == nil {
				n++
			}
			continue
		}
		v, ok := Transition(msg.MessageType)
		if !ok {
			continue
		}
		if m.Update(msg.Sender, target, v) == nil {
			n++
		}
	}
	return n
}
