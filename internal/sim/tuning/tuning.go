package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MaxChangeCeiling is the largest per-round power change, in percent, the
// engine ever applies. max_change_pct may tighten it but not loosen it.
const MaxChangeCeiling = 10.0

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	Rounds          int  `yaml:"rounds" json:"rounds"`
	UseFullIdentity bool `yaml:"use_full_identity" json:"use_full_identity"`
	HistoryDepth    int  `yaml:"history_depth" json:"history_depth"`

	// MaxChangePct bounds each per-round power change (percent, symmetric).
	MaxChangePct float64 `yaml:"max_change_pct" json:"max_change_pct"`

	AttackAction        string   `yaml:"attack_action" json:"attack_action"`
	TargetExemptActions []string `yaml:"target_exempt_actions" json:"target_exempt_actions"`

	OracleTimeoutMs     int `yaml:"oracle_timeout_ms" json:"oracle_timeout_ms"`
	SnapshotEveryRounds int `yaml:"snapshot_every_rounds" json:"snapshot_every_rounds"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:     "1.0",
		Rounds:              5,
		HistoryDepth:        3,
		MaxChangePct:        10,
		AttackAction:        "military attack",
		TargetExemptActions: []string{"recruitment", "propaganda", "NONE"},
		OracleTimeoutMs:     60000,
		SnapshotEveryRounds: 1,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("simulation.yaml: %w", err)
	}
	t.applyDefaults()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("simulation.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) applyDefaults() {
	d := Defaults()
	if t.Rounds <= 0 {
		t.Rounds = d.Rounds
	}
	if t.HistoryDepth <= 0 {
		t.HistoryDepth = d.HistoryDepth
	}
	if t.MaxChangePct <= 0 {
		t.MaxChangePct = d.MaxChangePct
	}
	if t.AttackAction == "" {
		t.AttackAction = d.AttackAction
	}
	if t.TargetExemptActions == nil {
		t.TargetExemptActions = d.TargetExemptActions
	}
	if t.OracleTimeoutMs <= 0 {
		t.OracleTimeoutMs = d.OracleTimeoutMs
	}
	if t.SnapshotEveryRounds <= 0 {
		t.SnapshotEveryRounds = d.SnapshotEveryRounds
	}
}

func (t Tuning) Validate() error {
	if t.MaxChangePct > MaxChangeCeiling {
		return fmt.Errorf("max_change_pct %.2f exceeds %.0f", t.MaxChangePct, MaxChangeCeiling)
	}
	for _, a := range t.TargetExemptActions {
		if a == t.AttackAction {
			return fmt.Errorf("attack action %q cannot be target-exempt", a)
		}
	}
	return nil
}
