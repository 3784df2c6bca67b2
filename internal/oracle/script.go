package oracle

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"statecraft.ai/internal/protocol"
)

// Script is a deterministic Provider that replays decisions from a YAML file.
// Agents without a scripted entry send nothing and take NONE; rounds without
// updates leave power untouched.
type Script struct {
	rounds map[int]scriptRound
}

type scriptFile struct {
	Rounds []scriptRound `yaml:"rounds"`
}

type scriptRound struct {
	Round    int                        `yaml:"round"`
	Messages map[string][]scriptMessage `yaml:"messages"`
	Actions  map[string]scriptAction    `yaml:"actions"`
	Updates  []scriptUpdate             `yaml:"updates"`
}

type scriptMessage struct {
	To      string `yaml:"to"`
	Type    string `yaml:"type"`
	Content string `yaml:"content"`
	Target  string `yaml:"target"`
}

type scriptAction struct {
	Action string `yaml:"action"`
	Object string `yaml:"object"`
}

type scriptUpdate struct {
	Agent    string  `yaml:"agent"`
	Military float64 `yaml:"military"`
	Economic float64 `yaml:"economic"`
}

func LoadScript(path string) (*Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseScript(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func ParseScript(raw []byte) (*Script, error) {
	var f scriptFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	s := &Script{rounds: map[int]scriptRound{}}
	for _, r := range f.Rounds {
		if r.Round <= 0 {
			return nil, fmt.Errorf("script round must be >= 1, got %d", r.Round)
		}
		if _, dup := s.rounds[r.Round]; dup {
			return nil, fmt.Errorf("duplicate script round %d", r.Round)
		}
		s.rounds[r.Round] = r
	}
	return s, nil
}

// Rounds returns how many rounds the script defines entries for.
func (s *Script) Rounds() int { return len(s.rounds) }

func (s *Script) ProposeMessages(ctx context.Context, req MessageRequest) ([]protocol.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := s.rounds[req.Round]
	in := r.Messages[req.Agent.Alias]
	out := make([]protocol.Message, 0, len(in))
	for _, m := range in {
		out = append(out, protocol.Message{
			Sender:      req.Agent.Alias,
			Recipient:   m.To,
			Content:     m.Content,
			MessageType: protocol.MessageType(m.Type),
			Target:      m.Target,
		})
	}
	return out, nil
}

func (s *Script) ProposeAction(ctx context.Context, req ActionRequest) (protocol.Action, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Action{}, err
	}
	a, ok := s.rounds[req.Round].Actions[req.Agent.Alias]
	if !ok || a.Action == "" {
		return protocol.Action{Subject: req.Agent.Alias, Action: protocol.ActionNone}, nil
	}
	return protocol.Action{Subject: req.Agent.Alias, Object: a.Object, Action: a.Action}, nil
}

func (s *Script) ProposeUpdates(ctx context.Context, req UpdateRequest) (protocol.UpdateList, error) {
	if err := ctx.Err(); err != nil {
		return protocol.UpdateList{}, err
	}
	r := s.rounds[req.Round]
	out := protocol.UpdateList{Updates: make([]protocol.UpdateItem, 0, len(r.Updates))}
	for _, u := range r.Updates {
		out.Updates = append(out.Updates, protocol.UpdateItem{
			AgentName:                u.Agent,
			MilitaryChangePercentage: u.Military,
			EconomicChangePercentage: u.Economic,
		})
	}
	return out, nil
}
