package observerproto

import "statecraft.ai/internal/sim/world"

// Version is the observer protocol version (separate from the oracle protocol).
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeRound     = "ROUND"
)

// Client -> Server. First message on the observer WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// FromRound asks for buffered rounds with Round >= FromRound before live ones.
	// Zero means live rounds only.
	FromRound int `json:"from_round,omitempty"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	RunID           string      `json:"run_id"`
	Round           int         `json:"round"`
	Agents          []AgentInfo `json:"agents"`
	Order           []string    `json:"order"`
	Relations       [][]int     `json:"relations"`
	Digest          string      `json:"digest,omitempty"`
}

type AgentInfo struct {
	Alias         string  `json:"alias"`
	Name          string  `json:"name"`
	Type          string  `json:"type"`
	Identity      string  `json:"identity"`
	MilitaryPower float64 `json:"military_power"`
	EconomicPower float64 `json:"economic_power"`
}

// Server -> Client. Sent once per completed round.
type RoundMsg struct {
	Type            string              `json:"type"`
	ProtocolVersion string              `json:"protocol_version"`
	Entry           world.RoundLogEntry `json:"entry"`
}
