package protocol

// Well-known action labels.
const (
	ActionNone           = "NONE"
	ActionMilitaryAttack = "military attack"
)

// Action is a single agent's decision for one round. Object is empty for
// target-exempt actions.
type Action struct {
	Subject string `json:"subject"`
	Object  string `json:"object,omitempty"`
	Action  string `json:"action"`
}

// UpdateItem is a proposed percentage change of one agent's power.
type UpdateItem struct {
	AgentName                string  `json:"agent_name"`
	MilitaryChangePercentage float64 `json:"military_change_percentage"`
	EconomicChangePercentage float64 `json:"economic_change_percentage"`
}

// UpdateList is the oracle's response shape for power update decisions.
type UpdateList struct {
	Updates []UpdateItem `json:"updates"`
}

// Battle results.
const (
	ResultWin  = "win"
	ResultLoss = "loss"
)

// Outcome summarizes all attacks against one defender in a round.
type Outcome struct {
	Defender       string   `json:"defender"`
	Attackers      []string `json:"attackers"`
	Result         string   `json:"result"`
	MilitaryChange float64  `json:"military_change"`
	EconomicChange float64  `json:"economic_change"`
}

// StateRecord is one entry of the bounded world history.
type StateRecord struct {
	Round            int                       `json:"round"`
	Actions          map[string][]Action       `json:"actions"`
	MilitaryStrength map[string]float64        `json:"military_strength"`
	EconomicStrength map[string]float64        `json:"economic_strength"`
	Relations        map[string]map[string]int `json:"relations_matrix"`
}
