package voice

import (
	"context"
	"encoding/json"
	"fmt"
)

// Provider is the provider-agnostic voice boundary used by business logic.
//
// Rules:
// - No provider HTTP calls outside voice adapters.
// - Keep request/response types provider-agnostic; raw provider payloads
//   travel as opaque json.RawMessage for storage, never as parsed structure.
type Provider interface {
	Name() string

	CreateAgent(ctx context.Context, req CreateAgentRequest) (CreateAgentResult, error)
	DeleteAgent(ctx context.Context, agentID string) error

	CreateOutboundCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error)

	// FetchConversation retrieves post-call conversation detail (duration,
	// message turns) for a provider call id.
	FetchConversation(ctx context.Context, providerCallID string) (ConversationDetail, error)
}

// CreateAgentRequest describes a conversational agent to provision.
// Empty optional fields fall back to the adapter's configured defaults.
type CreateAgentRequest struct {
	Name         string
	Description  string
	VoiceID      string
	Language     string
	FirstMessage string
	SystemPrompt string
}

type CreateAgentResult struct {
	AgentID string
	Raw     json.RawMessage
}

// OutboundCallRequest starts a call to a destination number.
// DynamicVariables are injected into the agent's prompt by the provider.
type OutboundCallRequest struct {
	ToNumber         string
	DynamicVariables map[string]any
}

type OutboundCallResult struct {
	ProviderCallID string

	// Status is the provider's synchronous status string, verbatim.
	// May be empty; classification happens downstream.
	Status string

	Raw json.RawMessage
}

// ConversationDetail is the normalized post-call detail.
type ConversationDetail struct {
	DurationSeconds int
	Messages        []Turn

	// Raw is the full provider payload, kept for the no-messages fallback
	// and for audit storage.
	Raw json.RawMessage
}

// Turn is one (role, text) exchange in a conversation.
type Turn struct {
	Role string
	Text string
}

// UpstreamError is returned when the provider answers with a non-2xx status.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("voice: upstream status %d: %s", e.StatusCode, e.Body)
}
