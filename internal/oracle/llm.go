package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"statecraft.ai/internal/protocol"
)

var tracer = otel.Tracer("statecraft.ai/internal/oracle")

type LLMConfig struct {
	BaseURL     string
	APIKey      string
	AgentModel  string
	WorldModel  string
	Temperature float64
	HTTPTimeout time.Duration
	MaxRetries  int

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// LLM asks an OpenAI-compatible chat-completions endpoint for decisions and
// validates every response against the protocol schemas before decoding.
type LLM struct {
	cfg     LLMConfig
	http    *http.Client
	schemas *protocol.Schemas
}

func NewLLM(cfg LLMConfig) (*LLM, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("oracle: api key not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.AgentModel == "" {
		cfg.AgentModel = "gpt-4o-mini"
	}
	if cfg.WorldModel == "" {
		cfg.WorldModel = "gpt-4o"
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 120 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	schemas, err := protocol.CompileSchemas()
	if err != nil {
		return nil, err
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	return &LLM{cfg: cfg, http: hc, schemas: schemas}, nil
}

func (c *LLM) ProposeMessages(ctx context.Context, req MessageRequest) ([]protocol.Message, error) {
	content, err := c.chat(ctx, "messages", req.Agent.Alias, c.cfg.AgentModel, req.Agent.SystemPrompt, messageUserPrompt(req))
	if err != nil {
		return nil, err
	}
	var out protocol.MessageList
	if err := c.decode(protocol.SchemaMessages, content, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *LLM) ProposeAction(ctx context.Context, req ActionRequest) (protocol.Action, error) {
	content, err := c.chat(ctx, "action", req.Agent.Alias, c.cfg.AgentModel, req.Agent.SystemPrompt, actionUserPrompt(req))
	if err != nil {
		return protocol.Action{}, err
	}
	var out protocol.Action
	if err := c.decode(protocol.SchemaAction, content, &out); err != nil {
		return protocol.Action{}, err
	}
	return out, nil
}

func (c *LLM) ProposeUpdates(ctx context.Context, req UpdateRequest) (protocol.UpdateList, error) {
	content, err := c.chat(ctx, "updates", "", c.cfg.WorldModel, updateSystemPrompt(req), "")
	if err != nil {
		return protocol.UpdateList{}, err
	}
	var out protocol.UpdateList
	if err := c.decode(protocol.SchemaUpdates, content, &out); err != nil {
		return protocol.UpdateList{}, err
	}
	return out, nil
}

func (c *LLM) decode(schema, content string, out any) error {
	raw := []byte(stripCodeFence(content))
	if err := c.schemas.Validate(schema, raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature,omitempty"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string { return fmt.Sprintf("status %d: %s", e.code, e.body) }

func (c *LLM) chat(ctx context.Context, kind, agent, model, system, user string) (string, error) {
	ctx, span := tracer.Start(ctx, "oracle."+kind)
	defer span.End()
	span.SetAttributes(attribute.String("oracle.model", model), attribute.String("oracle.agent", agent))

	msgs := []chatMessage{{Role: "system", Content: system}}
	if user != "" {
		msgs = append(msgs, chatMessage{Role: "user", Content: user})
	}
	body, err := json.Marshal(chatRequest{
		Model:          model,
		Messages:       msgs,
		Temperature:    c.cfg.Temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	respBody, err := backoff.Retry(ctx, func() ([]byte, error) {
		return c.post(ctx, body)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(c.cfg.MaxRetries)+1))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("oracle %s: %w", kind, err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: chat response: %v", ErrMalformedResponse, err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrMalformedResponse)
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *LLM) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return b, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &statusError{code: resp.StatusCode, body: truncate(string(b), 200)}
	default:
		return nil, backoff.Permanent(&statusError{code: resp.StatusCode, body: truncate(string(b), 200)})
	}
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
