package world

import (
	"statecraft.ai/internal/protocol"
	"statecraft.ai/internal/sim/analytics"
)

// RoundLogger receives one entry per completed round.
type RoundLogger interface {
	WriteRound(entry RoundLogEntry) error
}

// FaultLogger receives every fault as it is recorded.
type FaultLogger interface {
	WriteFault(f Fault) error
}

type RoundLogEntry struct {
	RunID string `json:"run_id"`
	Round int    `json:"round"`

	// Messages and Public are the private and public messages committed this round.
	Messages []protocol.Message    `json:"messages"`
	Public   []protocol.Message    `json:"public"`
	Actions  []protocol.Action     `json:"actions"`
	Outcomes []protocol.Outcome    `json:"outcomes"`
	Updates  []protocol.UpdateItem `json:"updates"`
	Faults   []Fault               `json:"faults,omitempty"`

	// Agents carries power after the update step, in roster order.
	Agents []AgentState `json:"agents"`

	Order     []string           `json:"order"`
	Relations [][]int            `json:"relations"`
	Analytics []analytics.Result `json:"analytics,omitempty"`

	DurationMS float64 `json:"duration_ms"`
	Digest     string  `json:"digest"`
}
