package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"statecraft.ai/internal/sim/relations"
)

// Catalogs are the immutable inputs of a run, loaded once before the simulation starts.
type Catalogs struct {
	Roster        RosterCatalog
	Start         RelationsCatalog
	End           RelationsCatalog
	ActionEffects ActionEffectsCatalog
	Messages      MessageCatalog
}

type RosterCatalog struct {
	Agents []AgentDef
	ByID   map[string]AgentDef
	Digest string
}

type AgentDef struct {
	Alias            string   `json:"alias"`
	Name             string   `json:"name"`
	Type             string   `json:"type"`
	Identity         string   `json:"identity"`
	AvailableActions []string `json:"available_actions"`
	MilitaryPower    float64  `json:"military_power"`
	EconomicPower    float64  `json:"economic_power"`
	Goal             string   `json:"goal"`
	Description      string   `json:"description"`
}

type RelationsCatalog struct {
	// Matrix is nil when the file is optional and missing.
	Matrix *relations.Matrix
	Digest string
}

type ActionEffectsCatalog struct {
	// Raw is passed verbatim to power-update decisions.
	Raw    json.RawMessage
	Digest string
}

type MessageCatalog struct {
	// Descriptions maps message type to a prompt hint; optional.
	Descriptions map[string]string
	Digest       string
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadRoster(filepath.Join(configDir, "agents.json"), &c.Roster); err != nil {
		return nil, err
	}
	if err := loadRelations(filepath.Join(configDir, "relations_start.json"), true, &c.Start); err != nil {
		return nil, err
	}
	if err := loadRelations(filepath.Join(configDir, "relations_end.json"), false, &c.End); err != nil {
		return nil, err
	}
	if err := loadActionEffects(filepath.Join(configDir, "action_effects.json"), &c.ActionEffects); err != nil {
		return nil, err
	}
	if err := loadMessages(filepath.Join(configDir, "messages.json"), &c.Messages); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Aliases returns roster aliases in configuration order.
func (c *Catalogs) Aliases() []string {
	out := make([]string, 0, len(c.Roster.Agents))
	for _, a := range c.Roster.Agents {
		out = append(out, a.Alias)
	}
	return out
}

func (c *Catalogs) validate() error {
	for _, alias := range c.Start.Matrix.Aliases() {
		if _, ok := c.Roster.ByID[alias]; !ok {
			return fmt.Errorf("relations_start.json: alias %q not in agents.json", alias)
		}
	}
	for _, a := range c.Roster.Agents {
		if !c.Start.Matrix.Has(a.Alias) {
			return fmt.Errorf("relations_start.json: missing row for %q", a.Alias)
		}
	}
	if c.End.Matrix != nil {
		for _, a := range c.Roster.Agents {
			if !c.End.Matrix.Has(a.Alias) {
				return fmt.Errorf("relations_end.json: missing row for %q", a.Alias)
			}
		}
	}
	return nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadRoster(path string, out *RosterCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []AgentDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("agents.json: %w", err)
	}
	if len(defs) == 0 {
		return fmt.Errorf("agents.json: empty roster")
	}
	out.ByID = map[string]AgentDef{}
	for _, d := range defs {
		if d.Alias == "" {
			return fmt.Errorf("agents.json: empty alias")
		}
		if d.Alias == "PUBLIC" {
			return fmt.Errorf("agents.json: alias PUBLIC is reserved")
		}
		if _, dup := out.ByID[d.Alias]; dup {
			return fmt.Errorf("agents.json: duplicate alias %q", d.Alias)
		}
		if d.MilitaryPower < 0 || d.EconomicPower < 0 {
			return fmt.Errorf("agents.json: %s: negative power", d.Alias)
		}
		out.ByID[d.Alias] = d
		out.Agents = append(out.Agents, d)
	}
	return nil
}

func loadRelations(path string, required bool, out *RelationsCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !required && os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}
	out.Digest = sha256Hex(raw)
	m, err := relations.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	out.Matrix = m
	return nil
}

func loadActionEffects(path string, out *ActionEffectsCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		// Allow missing; update decisions then run without a reference table.
		if os.IsNotExist(err) {
			out.Raw = json.RawMessage(`{}`)
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}
	if !json.Valid(raw) {
		return fmt.Errorf("action_effects.json: invalid json")
	}
	out.Raw = json.RawMessage(raw)
	out.Digest = sha256Hex(raw)
	return nil
}

func loadMessages(path string, out *MessageCatalog) error {
	out.Descriptions = map[string]string{}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}
	out.Digest = sha256Hex(raw)
	if err := json.Unmarshal(raw, &out.Descriptions); err != nil {
		return fmt.Errorf("messages.json: %w", err)
	}
	return nil
}
