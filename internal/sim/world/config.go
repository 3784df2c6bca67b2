package world

import (
	"io"
	"log"
	"time"

	"statecraft.ai/internal/protocol"
	"statecraft.ai/internal/sim/tuning"
)

type WorldConfig struct {
	// ID identifies the run; it is carried into logs and snapshots.
	ID string

	HistoryDepth        int
	MaxChangePct        float64
	AttackAction        string
	TargetExemptActions []string
	UseFullIdentity     bool

	// OracleTimeout bounds every single oracle call.
	OracleTimeout time.Duration

	// SnapshotEveryRounds controls how often a snapshot is offered to the sink (0 disables).
	SnapshotEveryRounds int

	Logger *log.Logger
}

// ConfigFromTuning maps the loaded tuning onto an engine config.
func ConfigFromTuning(id string, t tuning.Tuning, logger *log.Logger) WorldConfig {
	return WorldConfig{
		ID:                  id,
		HistoryDepth:        t.HistoryDepth,
		MaxChangePct:        t.MaxChangePct,
		AttackAction:        t.AttackAction,
		TargetExemptActions: append([]string(nil), t.TargetExemptActions...),
		UseFullIdentity:     t.UseFullIdentity,
		OracleTimeout:       time.Duration(t.OracleTimeoutMs) * time.Millisecond,
		SnapshotEveryRounds: t.SnapshotEveryRounds,
		Logger:              logger,
	}
}

func (c *WorldConfig) applyDefaults() {
	d := tuning.Defaults()
	if c.HistoryDepth <= 0 {
		c.HistoryDepth = d.HistoryDepth
	}
	if c.MaxChangePct <= 0 || c.MaxChangePct > tuning.MaxChangeCeiling {
		c.MaxChangePct = d.MaxChangePct
	}
	if c.AttackAction == "" {
		c.AttackAction = d.AttackAction
	}
	if c.TargetExemptActions == nil {
		c.TargetExemptActions = append([]string(nil), d.TargetExemptActions...)
	}
	if c.OracleTimeout <= 0 {
		c.OracleTimeout = time.Duration(d.OracleTimeoutMs) * time.Millisecond
	}
	if c.SnapshotEveryRounds < 0 {
		c.SnapshotEveryRounds = 0
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard, "", 0)
	}
}

func (c WorldConfig) targetExempt(label string) bool {
	if label == protocol.ActionNone {
		return true
	}
	for _, a := range c.TargetExemptActions {
		if a == label {
			return true
		}
	}
	return false
}
