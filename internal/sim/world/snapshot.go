package world

import (
	"fmt"

	"statecraft.ai/internal/persistence/snapshot"
	"statecraft.ai/internal/protocol"
	"statecraft.ai/internal/sim/relations"
)

// ExportSnapshot captures the state after the last completed round.
func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header:              snapshot.Header{Version: snapshot.Version, RunID: w.cfg.ID, Round: w.round},
		HistoryDepth:        w.cfg.HistoryDepth,
		MaxChangePct:        w.cfg.MaxChangePct,
		AttackAction:        w.cfg.AttackAction,
		TargetExemptActions: append([]string(nil), w.cfg.TargetExemptActions...),
		UseFullIdentity:     w.cfg.UseFullIdentity,
		CatalogDigest:       w.catalogs.Roster.Digest,
		Relations:           w.relations.Map(),
	}
	for _, alias := range w.order {
		a := w.agents[alias]
		s.Agents = append(s.Agents, snapshot.AgentV1{
			Alias:            a.Alias,
			Name:             a.Name,
			Type:             a.Type,
			Identity:         a.Identity,
			Goal:             a.Goal,
			Description:      a.Description,
			AvailableActions: append([]string(nil), a.AvailableActions...),
			MilitaryPower:    a.MilitaryPower,
			EconomicPower:    a.EconomicPower,
		})
	}
	for _, r := range w.history {
		rec := snapshot.StateRecordV1{
			Round:            r.Round,
			Actions:          make(map[string][]snapshot.ActionV1, len(r.Actions)),
			MilitaryStrength: make(map[string]float64, len(r.MilitaryStrength)),
			EconomicStrength: make(map[string]float64, len(r.EconomicStrength)),
			Relations:        cloneRecord(r).Relations,
		}
		for alias, acts := range r.Actions {
			out := make([]snapshot.ActionV1, 0, len(acts))
			for _, a := range acts {
				out = append(out, snapshot.ActionV1{Subject: a.Subject, Object: a.Object, Action: a.Action})
			}
			rec.Actions[alias] = out
		}
		for k, v := range r.MilitaryStrength {
			rec.MilitaryStrength[k] = v
		}
		for k, v := range r.EconomicStrength {
			rec.EconomicStrength[k] = v
		}
		s.History = append(s.History, rec)
	}

	priv, pub := w.mail.Committed()
	s.Mailbox.Private = make(map[string][]snapshot.MessageV1, len(priv))
	for alias, msgs := range priv {
		s.Mailbox.Private[alias] = messagesToV1(msgs)
	}
	s.Mailbox.Public = messagesToV1(pub)
	return s
}

// ImportSnapshot replaces run state with s. The snapshot roster must match the
// configured roster alias for alias; arbitration parameters come from s.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("import snapshot: unsupported version %d", s.Header.Version)
	}
	if len(s.Agents) != len(w.order) {
		return fmt.Errorf("import snapshot: roster size %d, configured %d", len(s.Agents), len(w.order))
	}
	for _, a := range s.Agents {
		if _, ok := w.agents[a.Alias]; !ok {
			return fmt.Errorf("import snapshot: %w: %s", ErrUnknownAgent, a.Alias)
		}
		if a.MilitaryPower < 0 || a.EconomicPower < 0 {
			return fmt.Errorf("import snapshot: negative power for %s", a.Alias)
		}
	}
	rel, err := relations.FromMap(s.Relations)
	if err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	for _, alias := range w.order {
		if !rel.Has(alias) {
			return fmt.Errorf("import snapshot: relations missing %s", alias)
		}
	}

	w.cfg.HistoryDepth = s.HistoryDepth
	w.cfg.MaxChangePct = s.MaxChangePct
	w.cfg.AttackAction = s.AttackAction
	w.cfg.TargetExemptActions = append([]string(nil), s.TargetExemptActions...)
	w.cfg.UseFullIdentity = s.UseFullIdentity
	if s.Header.RunID != "" {
		w.cfg.ID = s.Header.RunID
	}
	w.cfg.applyDefaults()

	for _, a := range s.Agents {
		ag := w.agents[a.Alias]
		ag.Name = a.Name
		ag.Type = a.Type
		ag.Identity = a.Identity
		ag.Goal = a.Goal
		ag.Description = a.Description
		ag.AvailableActions = append([]string(nil), a.AvailableActions...)
		ag.MilitaryPower = a.MilitaryPower
		ag.EconomicPower = a.EconomicPower
		ag.indexActions()
	}
	w.relations = rel

	w.history = w.history[:0]
	for _, r := range s.History {
		rec := protocol.StateRecord{
			Round:            r.Round,
			Actions:          make(map[string][]protocol.Action, len(r.Actions)),
			MilitaryStrength: r.MilitaryStrength,
			EconomicStrength: r.EconomicStrength,
			Relations:        r.Relations,
		}
		for alias, acts := range r.Actions {
			out := make([]protocol.Action, 0, len(acts))
			for _, a := range acts {
				out = append(out, protocol.Action{Subject: a.Subject, Object: a.Object, Action: a.Action})
			}
			rec.Actions[alias] = out
		}
		w.history = append(w.history, cloneRecord(rec))
	}

	priv := make(map[string][]protocol.Message, len(s.Mailbox.Private))
	for alias, msgs := range s.Mailbox.Private {
		priv[alias] = messagesFromV1(msgs)
	}
	w.mail.Restore(priv, messagesFromV1(s.Mailbox.Public))

	w.round = s.Header.Round
	w.buildSystemPrompts()
	w.publishMetrics(0)
	return nil
}

func messagesToV1(in []protocol.Message) []snapshot.MessageV1 {
	if len(in) == 0 {
		return nil
	}
	out := make([]snapshot.MessageV1, 0, len(in))
	for _, m := range in {
		out = append(out, snapshot.MessageV1{
			Sender:      m.Sender,
			Recipient:   m.Recipient,
			Content:     m.Content,
			MessageType: string(m.MessageType),
			Target:      m.Target,
		})
	}
	return out
}

func messagesFromV1(in []snapshot.MessageV1) []protocol.Message {
	if len(in) == 0 {
		return nil
	}
	out := make([]protocol.Message, 0, len(in))
	for _, m := range in {
		out = append(out, protocol.Message{
			Sender:      m.Sender,
			Recipient:   m.Recipient,
			Content:     m.Content,
			MessageType: protocol.MessageType(m.MessageType),
			Target:      m.Target,
		})
	}
	return out
}
