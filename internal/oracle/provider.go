// Package oracle defines the decision boundary between the arbitration engine
// and an external decision service, plus two implementations: an LLM-backed
// client and a deterministic scripted provider.
package oracle

import (
	"context"
	"encoding/json"
	"errors"

	"statecraft.ai/internal/protocol"
)

var (
	// ErrMalformedResponse marks a response that does not fit the expected shape.
	ErrMalformedResponse = errors.New("malformed oracle response")
	// ErrDeclined is returned when a provider has no proposal for the request.
	ErrDeclined = errors.New("oracle declined")
)

// Provider proposes messages, actions and power updates. Implementations must be
// safe for concurrent use: the engine calls them from one goroutine per agent.
// Results are untrusted; the engine validates them.
type Provider interface {
	ProposeMessages(ctx context.Context, req MessageRequest) ([]protocol.Message, error)
	ProposeAction(ctx context.Context, req ActionRequest) (protocol.Action, error)
	ProposeUpdates(ctx context.Context, req UpdateRequest) (protocol.UpdateList, error)
}

// AgentProfile is the static identity of an agent plus its power at dispatch time.
type AgentProfile struct {
	Alias            string   `json:"alias"`
	Name             string   `json:"name"`
	Type             string   `json:"type"`
	Identity         string   `json:"identity"`
	Goal             string   `json:"goal"`
	AvailableActions []string `json:"available_actions"`
	MilitaryPower    float64  `json:"military_power"`
	EconomicPower    float64  `json:"economic_power"`

	// SystemPrompt is built once per agent and reused for every request.
	SystemPrompt string `json:"-"`
}

// Hints are relation-derived suggestions included in message requests.
type Hints struct {
	SameReligionAllies []string `json:"same_religion_allies"`
	PotentialAllies    []string `json:"potential_allies"`
	Enemies            []string `json:"enemies"`
}

type MessageRequest struct {
	Round            int                       `json:"round"`
	Agent            AgentProfile              `json:"agent"`
	WorldState       protocol.StateRecord      `json:"world_state"`
	PersonalMessages []protocol.Message        `json:"personal_messages"`
	PublicStatements []protocol.Message        `json:"public_statements"`
	Relations        map[string]map[string]int `json:"relations_matrix"`
	Hints            Hints                     `json:"hints"`
	MessageTypes     map[string]string         `json:"message_types,omitempty"`
}

type ActionRequest struct {
	Round            int                  `json:"round"`
	Agent            AgentProfile         `json:"agent"`
	WorldState       protocol.StateRecord `json:"world_state"`
	PersonalMessages []protocol.Message   `json:"personal_messages"`
	PublicStatements []protocol.Message   `json:"public_statements"`
	// Options are the action labels the agent may choose, NONE included.
	Options []string `json:"options"`
}

type UpdateRequest struct {
	Round         int                    `json:"round"`
	Agents        []string               `json:"agents"`
	States        []protocol.StateRecord `json:"states"`
	LatestActions []protocol.Action      `json:"latest_actions"`
	Outcomes      []protocol.Outcome     `json:"outcomes"`
	ActionEffects json.RawMessage        `json:"action_effects"`
	MaxChangePct  float64                `json:"max_change_pct"`
}
