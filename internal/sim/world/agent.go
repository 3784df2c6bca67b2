package world

import (
	"strings"

	"statecraft.ai/internal/oracle"
	"statecraft.ai/internal/protocol"
	"statecraft.ai/internal/sim/catalogs"
)

// Agent is one participant. Identity fields are fixed at construction; power is
// mutated only by the update step.
type Agent struct {
	Alias            string
	Name             string
	Type             string
	Identity         string
	Goal             string
	Description      string
	AvailableActions []string

	MilitaryPower float64
	EconomicPower float64

	systemPrompt string
	permitted    map[string]struct{}
}

// AgentState is the read-only view of an agent's power.
type AgentState struct {
	Alias         string  `json:"alias"`
	Name          string  `json:"name,omitempty"`
	MilitaryPower float64 `json:"military_power"`
	EconomicPower float64 `json:"economic_power"`
}

func newAgent(def catalogs.AgentDef) *Agent {
	a := &Agent{
		Alias:            def.Alias,
		Name:             def.Name,
		Type:             def.Type,
		Identity:         def.Identity,
		Goal:             def.Goal,
		Description:      def.Description,
		AvailableActions: append([]string(nil), def.AvailableActions...),
		MilitaryPower:    def.MilitaryPower,
		EconomicPower:    def.EconomicPower,
	}
	a.indexActions()
	return a
}

func (a *Agent) indexActions() {
	a.permitted = make(map[string]struct{}, len(a.AvailableActions)+1)
	for _, l := range a.AvailableActions {
		a.permitted[l] = struct{}{}
	}
	a.permitted[protocol.ActionNone] = struct{}{}
}

// Permits reports whether label is one of the agent's actions. NONE is always permitted.
func (a *Agent) Permits(label string) bool {
	_, ok := a.permitted[label]
	return ok
}

// Options lists the agent's action labels followed by NONE.
func (a *Agent) Options() []string {
	out := make([]string, 0, len(a.AvailableActions)+1)
	for _, l := range a.AvailableActions {
		if l != protocol.ActionNone {
			out = append(out, l)
		}
	}
	return append(out, protocol.ActionNone)
}

// Religion is the last word of the identity line.
func (a *Agent) Religion() string {
	f := strings.Fields(a.Identity)
	if len(f) == 0 {
		return ""
	}
	return strings.Trim(f[len(f)-1], ".,;")
}

func (a *Agent) State() AgentState {
	return AgentState{Alias: a.Alias, Name: a.Name, MilitaryPower: a.MilitaryPower, EconomicPower: a.EconomicPower}
}

func (a *Agent) profile() oracle.AgentProfile {
	return oracle.AgentProfile{
		Alias:            a.Alias,
		Name:             a.Name,
		Type:             a.Type,
		Identity:         a.Identity,
		Goal:             a.Goal,
		AvailableActions: a.Options(),
		MilitaryPower:    a.MilitaryPower,
		EconomicPower:    a.EconomicPower,
		SystemPrompt:     a.systemPrompt,
	}
}
