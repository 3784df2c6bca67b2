package world

import (
	"math"

	"statecraft.ai/internal/protocol"
)

// ComputeOutcomes groups attacks by defender and compares the defender's military
// power to the attackers' combined power. Defenders appear in order of their
// first attack. Outcomes are advisory; they inform the update decision only.
func ComputeOutcomes(attackAction string, actions []protocol.Action, military map[string]float64) []protocol.Outcome {
	var defenders []string
	attackers := map[string][]string{}
	for _, a := range actions {
		if a.Action != attackAction || a.Object == "" {
			continue
		}
		if _, ok := attackers[a.Object]; !ok {
			defenders = append(defenders, a.Object)
		}
		attackers[a.Object] = append(attackers[a.Object], a.Subject)
	}

	out := make([]protocol.Outcome, 0, len(defenders))
	for _, d := range defenders {
		var total float64
		for _, s := range attackers[d] {
			total += military[s]
		}
		diff := military[d] - total
		o := protocol.Outcome{
			Defender:       d,
			Attackers:      attackers[d],
			MilitaryChange: diff,
		}
		if total > military[d] {
			o.Result = protocol.ResultLoss
			o.EconomicChange = math.Floor(-math.Abs(diff) / 2)
		} else {
			o.Result = protocol.ResultWin
			o.EconomicChange = math.Floor(math.Abs(diff) / 2)
		}
		out = append(out, o)
	}
	return out
}
