package oracle

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"statecraft.ai/internal/protocol"
)

// KnownEntity describes another agent as it appears in a system prompt.
type KnownEntity struct {
	Alias    string
	Name     string
	Identity string
}

// BuildSystemPrompt returns the static per-agent system prompt. Full names are
// shown only when useFullIdentity is set; otherwise agents know each other by alias.
func BuildSystemPrompt(p AgentProfile, known []KnownEntity, useFullIdentity bool) string {
	self := p.Alias
	if useFullIdentity && p.Name != "" {
		self = p.Name
	}

	var ents strings.Builder
	for _, e := range known {
		if useFullIdentity {
			fmt.Fprintf(&ents, "- Alias: %s | Full Name: %s | Description: %s\n", e.Alias, e.Name, e.Identity)
		} else {
			fmt.Fprintf(&ents, "- Alias: %s | Description: %s\n", e.Alias, e.Identity)
		}
	}

	return strings.TrimSpace(fmt.Sprintf(`
You are %s, a %s. You are %s

Your primary objective is:
- %s

You must always act according to your identity and objectives in all interactions.

Context of Known Entities and Their Aliases:
%s
Important Instructions:
- Refer to all entities by their alias in all communications and actions.
- Ensure any actions or messages are directed to one of the known entities.
- For actions such as defense or military attack, always specify a valid target entity.

Based on this, determine your next action and send necessary messages.`,
		self, p.Type, p.Identity, p.Goal, ents.String()))
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func messageTypeList() string {
	parts := make([]string, 0, len(protocol.MessageTypes))
	for _, t := range protocol.MessageTypes {
		parts = append(parts, fmt.Sprintf("%q", string(t)))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func messageUserPrompt(req MessageRequest) string {
	var typeNotes strings.Builder
	if len(req.MessageTypes) > 0 {
		keys := make([]string, 0, len(req.MessageTypes))
		for k := range req.MessageTypes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		typeNotes.WriteString("Message type meanings:\n")
		for _, k := range keys {
			fmt.Fprintf(&typeNotes, "- %s: %s\n", k, req.MessageTypes[k])
		}
	}

	return strings.TrimSpace(fmt.Sprintf(`
Round %d. Based on the current world state and the following information:
- World State: %s
- Personal Messages: %s
- Public Statements: %s
- Relations Matrix: %s

Decide if you need to send any messages to other agents to achieve your goal.

Consider the following preferences and constraints:
- Agents of the same religion are preferred for alliances.
- Avoid proposing alliances to agents you are already allied with or who are enemies (-1).
- You can declare war on any agent with whom you have negative (-1) relations.
- Use recipient "PUBLIC" for public statements; name the agent the statement concerns in "target".
- Specify a valid message type from the following options:
%s
%s
Potential Allies (same religion): %s
Potential Allies (neutral relations): %s
Enemies (negative relations): %s

Respond with JSON only, in the following format:
{"messages": [{"sender": "%s", "recipient": "<Recipient Alias or PUBLIC>", "content": "<Message Content>", "message_type": "<Message Type>", "target": "<Alias or null>"}]}
Return {"messages": []} to send nothing.`,
		req.Round,
		mustJSON(req.WorldState),
		mustJSON(req.PersonalMessages),
		mustJSON(req.PublicStatements),
		mustJSON(req.Relations),
		messageTypeList(),
		typeNotes.String(),
		mustJSON(req.Hints.SameReligionAllies),
		mustJSON(req.Hints.PotentialAllies),
		mustJSON(req.Hints.Enemies),
		req.Agent.Alias,
	))
}

func actionUserPrompt(req ActionRequest) string {
	return strings.TrimSpace(fmt.Sprintf(`
Round %d. Your military power is %.1f and your economic power is %.1f.
Your current goal is: %s.

Consider the following information:
- Personal Messages: %s
- Public Statements: %s
- World State: %s

Choose your next action from the following options:
%s

Remember:
- You must use only the aliases of known entities for any actions or messages.

Respond with JSON only, in the following format:
{"subject": "%s", "object": "<Target Alias or null>", "action": "<Action>"}`,
		req.Round,
		req.Agent.MilitaryPower,
		req.Agent.EconomicPower,
		req.Agent.Goal,
		mustJSON(req.PersonalMessages),
		mustJSON(req.PublicStatements),
		mustJSON(req.WorldState),
		strings.Join(req.Options, ", "),
		req.Agent.Alias,
	))
}

func updateSystemPrompt(req UpdateRequest) string {
	ctx := struct {
		States        []protocol.StateRecord `json:"states"`
		LatestActions []protocol.Action      `json:"latest_actions"`
		Outcomes      []protocol.Outcome     `json:"action_outcomes"`
		ActionEffects json.RawMessage        `json:"action_effects"`
	}{req.States, req.LatestActions, req.Outcomes, req.ActionEffects}
	if len(ctx.ActionEffects) == 0 {
		ctx.ActionEffects = json.RawMessage(`{}`)
	}

	return strings.TrimSpace(fmt.Sprintf(`
Based on the current and past states of the world and the latest actions by the agents:
%s

Important Guidelines:
- Calculate changes in military and economic power as a percentage of the current values.
- The percentage change should be within -%[2]g%% to +%[2]g%%.
- Military power and economic power must not be negative. If an agent's power is reduced below zero, adjust it to zero.
- Use a scaling factor based on the difference in strength between agents to determine the magnitude of changes.
- Only use these agent names: %[3]s

Determine how the military power and economic power should be updated for each agent.
Respond with JSON only, in the following format:
{"updates": [{"agent_name": "<Agent Alias>", "military_change_percentage": <number>, "economic_change_percentage": <number>}]}`,
		mustJSON(ctx), req.MaxChangePct, strings.Join(req.Agents, ", ")))
}
