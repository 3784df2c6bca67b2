package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaBaseURL = "https://statecraft.ai/schemas/"

const actionSchema = `{
  "type": "object",
  "required": ["subject", "action"],
  "properties": {
    "subject": {"type": "string", "minLength": 1},
    "object": {"type": ["string", "null"]},
    "action": {"type": "string", "minLength": 1}
  }
}`

const messagesSchema = `{
  "type": "object",
  "required": ["messages"],
  "properties": {
    "messages": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["recipient", "content", "message_type"],
        "properties": {
          "sender": {"type": "string"},
          "recipient": {"type": "string", "minLength": 1},
          "content": {"type": "string"},
          "message_type": {"type": "string"},
          "target": {"type": ["string", "null"]}
        }
      }
    }
  }
}`

const updatesSchema = `{
  "type": "object",
  "required": ["updates"],
  "properties": {
    "updates": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["agent_name", "military_change_percentage", "economic_change_percentage"],
        "properties": {
          "agent_name": {"type": "string", "minLength": 1},
          "military_change_percentage": {"type": "number"},
          "economic_change_percentage": {"type": "number"}
        }
      }
    }
  }
}`

// Schema names.
const (
	SchemaAction   = "action.schema.json"
	SchemaMessages = "messages.schema.json"
	SchemaUpdates  = "updates.schema.json"
)

var schemaSources = map[string]string{
	SchemaAction:   actionSchema,
	SchemaMessages: messagesSchema,
	SchemaUpdates:  updatesSchema,
}

// SchemaSource returns the raw JSON schema text, for prompts and docs.
func SchemaSource(name string) string { return schemaSources[name] }

// Schemas holds the compiled oracle response schemas.
type Schemas struct {
	byName map[string]*jsonschema.Schema
}

func CompileSchemas() (*Schemas, error) {
	out := &Schemas{byName: make(map[string]*jsonschema.Schema, len(schemaSources))}
	for name, src := range schemaSources {
		s, err := jsonschema.CompileString(schemaBaseURL+name, src)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		out.byName[name] = s
	}
	return out, nil
}

// Validate checks raw JSON against the named schema.
func (s *Schemas) Validate(name string, raw []byte) error {
	sch := s.byName[name]
	if sch == nil {
		return fmt.Errorf("unknown schema %q", name)
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
