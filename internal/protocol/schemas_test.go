package protocol_test

import (
	"testing"

	"statecraft.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	s, err := protocol.CompileSchemas()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	valid := map[string]string{
		protocol.SchemaAction:   `{"subject":"A","object":null,"action":"recruitment"}`,
		protocol.SchemaMessages: `{"messages":[{"sender":"A","recipient":"PUBLIC","content":"hi","message_type":"Public statement"}]}`,
		protocol.SchemaUpdates:  `{"updates":[{"agent_name":"A","military_change_percentage":-3.5,"economic_change_percentage":2}]}`,
	}
	for name, raw := range valid {
		if err := s.Validate(name, []byte(raw)); err != nil {
			t.Fatalf("%s: validate: %v", name, err)
		}
	}

	invalid := map[string]string{
		protocol.SchemaAction:   `{"subject":"A","object":"B"}`,
		protocol.SchemaMessages: `{"messages":{"recipient":"B"}}`,
		protocol.SchemaUpdates:  `{"updates":[{"agent_name":"A","military_change_percentage":"ten","economic_change_percentage":0}]}`,
	}
	for name, raw := range invalid {
		if err := s.Validate(name, []byte(raw)); err == nil {
			t.Fatalf("%s: expected validation error for %s", name, raw)
		}
	}

	if err := s.Validate(protocol.SchemaAction, []byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}
