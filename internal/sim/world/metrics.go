package world

// WorldMetrics is a thread-safe read-only view of run progress. It is updated
// by the engine goroutine after each round and read from HTTP handlers/tests.
type WorldMetrics struct {
	Round  int `json:"round"`
	Agents int `json:"agents"`

	MessagesSent     uint64 `json:"messages_sent"`
	PublicStatements uint64 `json:"public_statements"`
	ActionsTaken     uint64 `json:"actions_taken"`
	Attacks          uint64 `json:"attacks"`
	RelationChanges  uint64 `json:"relation_changes"`
	Faults           uint64 `json:"faults"`

	RoundMS float64 `json:"round_ms"`

	TotalMilitary float64 `json:"total_military"`
	TotalEconomic float64 `json:"total_economic"`
}

// runStats are cumulative counters owned by the engine goroutine.
type runStats struct {
	messagesSent     uint64
	publicStatements uint64
	actionsTaken     uint64
	attacks          uint64
	relationChanges  uint64
	faults           uint64
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	m, _ := w.metrics.Load().(WorldMetrics)
	return m
}

func (w *World) publishMetrics(roundMS float64) {
	m := WorldMetrics{
		Round:            w.round,
		Agents:           len(w.order),
		MessagesSent:     w.stats.messagesSent,
		PublicStatements: w.stats.publicStatements,
		ActionsTaken:     w.stats.actionsTaken,
		Attacks:          w.stats.attacks,
		RelationChanges:  w.stats.relationChanges,
		Faults:           w.stats.faults,
		RoundMS:          roundMS,
	}
	for _, alias := range w.order {
		m.TotalMilitary += w.agents[alias].MilitaryPower
		m.TotalEconomic += w.agents[alias].EconomicPower
	}
	w.metrics.Store(m)
}
