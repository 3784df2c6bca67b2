package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType is the closed set of diplomatic message kinds.
type MessageType string

const (
	MsgProposeAlliance MessageType = "Propose alliance"
	MsgAcceptAlliance  MessageType = "Accept alliance"
	MsgRejectAlliance  MessageType = "Reject alliance"
	MsgBreakAlliance   MessageType = "Break alliance"
	MsgDeclareWar      MessageType = "Declare war"
	MsgOfferTruce      MessageType = "Offer truce"
	MsgAcceptTruce     MessageType = "Accept truce"
	MsgRejectTruce     MessageType = "Reject truce"
	MsgPublicStatement MessageType = "Public statement"
	MsgNone            MessageType = "NONE"
)

// MessageTypes lists every valid message type in prompt order.
var MessageTypes = []MessageType{
	MsgProposeAlliance,
	MsgAcceptAlliance,
	MsgRejectAlliance,
	MsgBreakAlliance,
	MsgDeclareWar,
	MsgOfferTruce,
	MsgAcceptTruce,
	MsgRejectTruce,
	MsgPublicStatement,
	MsgNone,
}

var knownMessageTypes = func() map[MessageType]struct{} {
	m := make(map[MessageType]struct{}, len(MessageTypes))
	for _, t := range MessageTypes {
		m[t] = struct{}{}
	}
	return m
}()

func (t MessageType) Valid() bool {
	_, ok := knownMessageTypes[t]
	return ok
}

func ParseMessageType(s string) (MessageType, error) {
	t := MessageType(s)
	if !t.Valid() {
		return "", fmt.Errorf("invalid message type %q", s)
	}
	return t, nil
}

// UnmarshalJSON keeps unknown strings so validation can report them with a code.
func (t *MessageType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*t = MessageType(s)
	return nil
}

// Message is a diplomatic message. Recipient is an agent alias or PublicRecipient.
// Target names the counterparty of a public statement.
type Message struct {
	Sender      string      `json:"sender"`
	Recipient   string      `json:"recipient"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type"`
	Target      string      `json:"target,omitempty"`
}

func (m Message) IsPublic() bool { return m.Recipient == PublicRecipient }

// Counterparty is the alias whose relation with the sender this message affects.
func (m Message) Counterparty() string {
	if m.IsPublic() {
		return m.Target
	}
	return m.Recipient
}

// MessageList is the oracle's response shape for message decisions.
type MessageList struct {
	Messages []Message `json:"messages"`
}
