package protocol

import "encoding/json"

const Version = "1.0"

// PublicRecipient is the recipient alias for statements visible to every agent.
const PublicRecipient = "PUBLIC"

// Record kinds used on the observer stream and in round logs.
const (
	TypeRound     = "ROUND"
	TypeFault     = "FAULT"
	TypeBootstrap = "BOOTSTRAP"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
