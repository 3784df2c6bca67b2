package world

import (
	"fmt"
	"math"

	"statecraft.ai/internal/protocol"
)

// ClampPct bounds a percentage to [-limit, +limit]. NaN becomes zero.
func ClampPct(v, limit float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-limit, math.Min(limit, v))
}

// applyPct returns max(0, power*(1+pct/100)).
func applyPct(power, pct float64) float64 {
	return math.Max(0, power*(1+pct/100))
}

// ApplyUpdates clamps and applies an update list. The list is checked as a whole
// first: an unknown alias rejects it without touching any agent. Items naming the
// same agent apply in order. It returns the items as applied (clamped).
func (w *World) ApplyUpdates(list protocol.UpdateList) ([]protocol.UpdateItem, error) {
	for _, u := range list.Updates {
		if _, ok := w.agents[u.AgentName]; !ok {
			f := newFault(w.round+1, PhaseUpdates, u.AgentName, protocol.ErrUnknownAgent,
				fmt.Sprintf("update names unknown agent %q", u.AgentName))
			f.err = ErrUnknownAgent
			return nil, f
		}
	}

	applied := make([]protocol.UpdateItem, 0, len(list.Updates))
	for _, u := range list.Updates {
		a := w.agents[u.AgentName]
		item := protocol.UpdateItem{
			AgentName:                u.AgentName,
			MilitaryChangePercentage: ClampPct(u.MilitaryChangePercentage, w.cfg.MaxChangePct),
			EconomicChangePercentage: ClampPct(u.EconomicChangePercentage, w.cfg.MaxChangePct),
		}
		a.MilitaryPower = applyPct(a.MilitaryPower, item.MilitaryChangePercentage)
		a.EconomicPower = applyPct(a.EconomicPower, item.EconomicChangePercentage)
		applied = append(applied, item)
	}
	return applied, nil
}
