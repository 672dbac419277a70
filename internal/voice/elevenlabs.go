package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"callmind/internal/config"
	"callmind/pkg/logger"
)

const (
	agentsPath        = "/v1/convai/agents"
	outboundCallPath  = "/v1/convai/twilio/outbound-call"
	conversationsPath = "/v1/convai/conversations"

	apiKeyHeader = "xi-api-key"
)

// statusCallbackEvents is the lifecycle vocabulary we subscribe to.
// The classifier in internal/reconcile must understand every entry.
var statusCallbackEvents = []string{
	"call.initiated",
	"call.ringing",
	"call.answered",
	"call.completed",
	"call.ended",
	"call.initiation_failed",
	"call.busy",
	"call.no_answer",
	"call.failed",
	"call.canceled",
	"call.unreachable",
	"call.rejected",
}

// ElevenLabs is the HTTP adapter for the ElevenLabs conversational AI API.
type ElevenLabs struct {
	http *http.Client
	cfg  config.ElevenLabsConfig
}

func NewElevenLabs(cfg config.ElevenLabsConfig) *ElevenLabs {
	return &ElevenLabs{
		http: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:  cfg,
	}
}

func (c *ElevenLabs) Name() string { return "elevenlabs" }

// AgentID returns the configured default callout agent.
func (c *ElevenLabs) AgentID() string { return c.cfg.AgentID }

// AgentPhoneNumberID returns the configured outbound caller number id.
func (c *ElevenLabs) AgentPhoneNumberID() string { return c.cfg.AgentPhoneNumberID }

type agentCreatePayload struct {
	Name               string             `json:"name"`
	ConversationConfig conversationConfig `json:"conversation_config"`
}

type conversationConfig struct {
	Agent agentConfig `json:"agent"`
	TTS   ttsConfig   `json:"tts"`
}

type agentConfig struct {
	Prompt       promptConfig `json:"prompt"`
	FirstMessage string       `json:"first_message"`
	Language     string       `json:"language"`
}

type promptConfig struct {
	Prompt string `json:"prompt"`
}

type ttsConfig struct {
	VoiceID string `json:"voice_id"`
}

func (c *ElevenLabs) CreateAgent(ctx context.Context, req CreateAgentRequest) (CreateAgentResult, error) {
	payload := agentCreatePayload{
		Name: req.Name,
		ConversationConfig: conversationConfig{
			Agent: agentConfig{
				Prompt:       promptConfig{Prompt: req.SystemPrompt},
				FirstMessage: req.FirstMessage,
				Language:     firstNonEmpty(req.Language, c.cfg.Language),
			},
			TTS: ttsConfig{VoiceID: firstNonEmpty(req.VoiceID, c.cfg.VoiceID)},
		},
	}

	raw, err := c.post(ctx, agentsPath, payload)
	if err != nil {
		return CreateAgentResult{}, err
	}

	id := extractID(raw, "agent_id")
	logger.From(ctx).Info("provider agent created", "agent_id", id)
	return CreateAgentResult{AgentID: id, Raw: raw}, nil
}

func (c *ElevenLabs) DeleteAgent(ctx context.Context, agentID string) error {
	if agentID == "" {
		return fmt.Errorf("voice: agent id is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.cfg.BaseURL+agentsPath+"/"+agentID, nil)
	if err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}

type outboundCallPayload struct {
	AgentID              string         `json:"agent_id"`
	AgentPhoneNumberID   string         `json:"agent_phone_number_id"`
	ToNumber             string         `json:"to_number"`
	DynamicVariables     map[string]any `json:"dynamic_variables,omitempty"`
	StatusCallbackURL    string         `json:"status_callback_url,omitempty"`
	StatusCallbackEvents []string       `json:"status_callback_events,omitempty"`
}

func (c *ElevenLabs) CreateOutboundCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error) {
	if req.ToNumber == "" {
		return OutboundCallResult{}, fmt.Errorf("voice: to_number is required")
	}

	payload := outboundCallPayload{
		AgentID:            c.cfg.AgentID,
		AgentPhoneNumberID: c.cfg.AgentPhoneNumberID,
		ToNumber:           req.ToNumber,
		DynamicVariables:   req.DynamicVariables,
	}
	if c.cfg.StatusCallbackURL != "" {
		payload.StatusCallbackURL = c.cfg.StatusCallbackURL
		payload.StatusCallbackEvents = statusCallbackEvents
	}

	raw, err := c.post(ctx, outboundCallPath, payload)
	if err != nil {
		return OutboundCallResult{}, err
	}

	out := OutboundCallResult{
		ProviderCallID: extractID(raw, "call_id"),
		Status:         extractString(raw, "status"),
		Raw:            raw,
	}
	logger.From(ctx).Info("provider call created", "call_id", out.ProviderCallID, "status", out.Status)
	return out, nil
}

type conversationWire struct {
	Duration int `json:"duration"`
	Messages []struct {
		Role    string `json:"role"`
		Message string `json:"message"`
		Text    string `json:"text"`
	} `json:"messages"`
}

func (c *ElevenLabs) FetchConversation(ctx context.Context, providerCallID string) (ConversationDetail, error) {
	if providerCallID == "" {
		return ConversationDetail{}, fmt.Errorf("voice: provider call id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+conversationsPath+"/"+providerCallID, nil)
	if err != nil {
		return ConversationDetail{}, err
	}
	raw, err := c.do(req)
	if err != nil {
		return ConversationDetail{}, err
	}

	var wire conversationWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		// Provider shape drifted; keep the raw payload usable downstream.
		return ConversationDetail{Raw: raw}, nil
	}

	out := ConversationDetail{DurationSeconds: wire.Duration, Raw: raw}
	for _, m := range wire.Messages {
		text := m.Message
		if text == "" {
			text = m.Text
		}
		if m.Role == "" && text == "" {
			continue
		}
		out.Messages = append(out.Messages, Turn{Role: m.Role, Text: text})
	}
	return out, nil
}

func (c *ElevenLabs) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *ElevenLabs) do(req *http.Request) (json.RawMessage, error) {
	req.Header.Set(apiKeyHeader, c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if len(body) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return body, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// extractID reads the named field, falling back to "id" the way the provider
// mixes both shapes across endpoints.
func extractID(raw json.RawMessage, field string) string {
	if v := extractString(raw, field); v != "" {
		return v
	}
	return extractString(raw, "id")
}

func extractString(raw json.RawMessage, field string) string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(m[field], &s); err != nil {
		return ""
	}
	return s
}
