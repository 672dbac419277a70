package incidents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"callmind/internal/voice"
	"callmind/pkg/logger"
)

var ErrInvalidIncident = errors.New("incidents: invalid incident")

// AgentProvisioner manages per-incident agents at the voice provider.
type AgentProvisioner interface {
	CreateAgent(ctx context.Context, req voice.CreateAgentRequest) (voice.CreateAgentResult, error)
	DeleteAgent(ctx context.Context, agentID string) error
}

// Contact is an on-call party attached to an incident.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone" binding:"required"`
	Email string `json:"email,omitempty"`
}

// Incident is the intake payload from the incident-management system.
type Incident struct {
	Number           string    `json:"incident_number" binding:"required"`
	ShortDescription string    `json:"short_description" binding:"required"`
	Description      string    `json:"description,omitempty"`
	Priority         string    `json:"priority,omitempty"`
	OccurredAt       time.Time `json:"incident_date_time" binding:"required"`
	AssignmentGroup  string    `json:"assignment_group,omitempty"`
	ErrorDetails     string    `json:"error_details,omitempty"`
	PossibleFix      string    `json:"possible_fix,omitempty"`
	RosterContact    Contact   `json:"roster_contact"`
	Escalation       Contact   `json:"escalation_contact,omitempty"`
}

func (i Incident) Validate() error {
	if i.Number == "" || i.ShortDescription == "" {
		return ErrInvalidIncident
	}
	if i.OccurredAt.IsZero() {
		return ErrInvalidIncident
	}
	if i.RosterContact.Phone == "" {
		return ErrInvalidIncident
	}
	return nil
}

// Receipt acknowledges an intake. AgentID is empty when provisioning failed;
// the intake is still accepted so the upstream system does not retry.
type Receipt struct {
	RequestID  string    `json:"request_id"`
	ReceivedAt time.Time `json:"received_at"`
	AgentID    string    `json:"agent_id,omitempty"`
}

// Service turns incident intakes into provisioned provider agents.
type Service struct {
	agents AgentProvisioner
	tpl    Templates
	clock  func() time.Time
}

func NewService(agents AgentProvisioner, tpl Templates) *Service {
	return &Service{agents: agents, tpl: tpl, clock: time.Now}
}

// Accept validates the incident and provisions an agent whose prompts carry
// the incident details. The returned error is informational: callers
// acknowledge the intake either way.
func (s *Service) Accept(ctx context.Context, inc Incident) (Receipt, error) {
	log := logger.From(ctx)

	if err := inc.Validate(); err != nil {
		return Receipt{}, err
	}

	receipt := Receipt{
		RequestID:  uuid.NewString(),
		ReceivedAt: s.clock().UTC(),
	}

	res, err := s.agents.CreateAgent(ctx, voice.CreateAgentRequest{
		Name:         "Incident " + inc.Number,
		SystemPrompt: render(s.tpl.SystemPrompt, inc),
		FirstMessage: render(s.tpl.FirstMessage, inc),
	})
	if err != nil {
		log.Error("agent provisioning failed", "incident_number", inc.Number, "request_id", receipt.RequestID, "err", err)
		return receipt, fmt.Errorf("incidents: provision agent for %s: %w", inc.Number, err)
	}

	log.Info("agent provisioned", "incident_number", inc.Number, "agent_id", res.AgentID)
	receipt.AgentID = res.AgentID
	return receipt, nil
}

// RemoveAgent tears down a previously provisioned agent.
func (s *Service) RemoveAgent(ctx context.Context, agentID string) error {
	if agentID == "" {
		return ErrInvalidIncident
	}
	return s.agents.DeleteAgent(ctx, agentID)
}
