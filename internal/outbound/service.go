package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"callmind/internal/calls"
	"callmind/internal/reconcile"
	"callmind/internal/voice"
	"callmind/pkg/logger"
)

var ErrInvalidRequest = errors.New("outbound: invalid request")

// Dialer starts calls at the provider.
type Dialer interface {
	CreateOutboundCall(ctx context.Context, req voice.OutboundCallRequest) (voice.OutboundCallResult, error)
}

// ConversationSource fetches provider-side conversation detail, used to
// refresh a record whose status is still unknown.
type ConversationSource interface {
	FetchConversation(ctx context.Context, providerCallID string) (voice.ConversationDetail, error)
}

// Service orchestrates outbound incident callouts: persist first, dial,
// then record the provider's synchronous response. Lifecycle updates after
// that arrive through the webhook reconciler, not here.
type Service struct {
	store         calls.Store
	dialer        Dialer
	conversations ConversationSource
	reconciler    *reconcile.Reconciler
	resolver      reconcile.Resolver

	// Recorded on every call record for audit.
	agentID            string
	agentPhoneNumberID string

	clock func() time.Time
}

func NewService(store calls.Store, dialer Dialer, conversations ConversationSource, reconciler *reconcile.Reconciler, agentID, agentPhoneNumberID string) *Service {
	return &Service{
		store:              store,
		dialer:             dialer,
		conversations:      conversations,
		reconciler:         reconciler,
		resolver:           reconcile.NewResolver(store),
		agentID:            agentID,
		agentPhoneNumberID: agentPhoneNumberID,
		clock:              time.Now,
	}
}

// CreateCallRequest is the incident callout order. The request payload is
// stored verbatim on the record and never mutated afterwards.
type CreateCallRequest struct {
	ToNumber         string    `json:"to_number" binding:"required"`
	IncidentNumber   string    `json:"incident_number" binding:"required"`
	Priority         string    `json:"priority" binding:"required"`
	ShortDescription string    `json:"short_description" binding:"required"`
	Description      string    `json:"description,omitempty"`
	IncidentDateTime time.Time `json:"incident_date_time" binding:"required"`
	ErrorDetails     string    `json:"error_details,omitempty"`
	PossibleFix      string    `json:"possible_fix,omitempty"`
}

func (r CreateCallRequest) Validate() error {
	if r.ToNumber == "" || r.IncidentNumber == "" || r.Priority == "" || r.ShortDescription == "" {
		return ErrInvalidRequest
	}
	if r.IncidentDateTime.IsZero() {
		return ErrInvalidRequest
	}
	return nil
}

// dynamicVariables become prompt variables at the provider. Optional fields
// are omitted rather than sent empty.
func (r CreateCallRequest) dynamicVariables() map[string]any {
	vars := map[string]any{
		"incident_number":   r.IncidentNumber,
		"priority":          r.Priority,
		"short_description": r.ShortDescription,
	}
	if r.Description != "" {
		vars["description"] = r.Description
	}
	if !r.IncidentDateTime.IsZero() {
		vars["incident_date_time"] = r.IncidentDateTime.Format(time.RFC3339)
	}
	if r.ErrorDetails != "" {
		vars["error_details"] = r.ErrorDetails
	}
	if r.PossibleFix != "" {
		vars["possible_fix"] = r.PossibleFix
	}
	return vars
}

// CreateCall persists a created record, dials the provider and records the
// synchronous result. The record survives a dial failure so the attempt is
// auditable; lifecycle reconciliation takes over from the first webhook.
func (s *Service) CreateCall(ctx context.Context, req CreateCallRequest) (calls.Record, error) {
	log := logger.From(ctx)

	if err := req.Validate(); err != nil {
		return calls.Record{}, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return calls.Record{}, err
	}

	now := s.clock().UTC()
	rec, err := s.store.Create(ctx, calls.Record{
		ToNumber:           req.ToNumber,
		Status:             calls.StatusCreated,
		RequestPayload:     payload,
		AgentID:            s.agentID,
		AgentPhoneNumberID: s.agentPhoneNumberID,
		CreatedAt:          now,
		StatusUpdatedAt:    now,
	})
	if err != nil {
		return calls.Record{}, err
	}

	log.Info("dialing outbound call", "to_number", req.ToNumber, "incident_number", req.IncidentNumber)

	res, err := s.dialer.CreateOutboundCall(ctx, voice.OutboundCallRequest{
		ToNumber:         req.ToNumber,
		DynamicVariables: req.dynamicVariables(),
	})
	if err != nil {
		next := rec.Apply(calls.Update{
			Status:        calls.StatusInitiationFailed,
			FailureReason: "Call could not be initiated",
		}, s.clock().UTC())
		if _, saveErr := s.store.Save(ctx, next, rec.Version); saveErr != nil {
			log.Error("failed to record initiation failure", "err", saveErr)
		}
		return calls.Record{}, fmt.Errorf("outbound: provider dial failed: %w", err)
	}

	next := rec.Apply(calls.Update{
		Status:      statusFromProvider(res.Status),
		RawResponse: res.Raw,
	}, s.clock().UTC())
	next.ProviderCallID = res.ProviderCallID

	saved, err := s.store.Save(ctx, next, rec.Version)
	if err != nil {
		return calls.Record{}, err
	}

	// Some providers answer the create request with a terminal status when
	// the call machine is fast; treat it exactly like a webhook completion.
	if s.reconciler != nil && saved.Transcript == "" &&
		(saved.Status == calls.StatusCompleted || saved.Status == calls.StatusAnswered) {
		s.reconciler.ScheduleTranscriptFetch(ctx, saved)
	}

	return saved, nil
}

// statusFromProvider takes the synchronous status verbatim, defaulting to
// initiated when the provider reported nothing.
func statusFromProvider(status string) calls.Status {
	if status == "" {
		return calls.StatusInitiated
	}
	return calls.Status(status)
}

// StatusResult answers a status query.
type StatusResult struct {
	ProviderCallID string          `json:"call_id,omitempty"`
	Status         calls.Status    `json:"status"`
	Raw            json.RawMessage `json:"raw_response,omitempty"`
}

// CallStatus resolves a record by call id or conversation id and returns its
// cached status. A record without a usable status is refreshed from the
// provider's conversation detail; refresh failures degrade to the cached
// view rather than erroring, since the record itself was found.
func (s *Service) CallStatus(ctx context.Context, callID, conversationID string) (StatusResult, error) {
	log := logger.From(ctx)

	rec, err := s.resolver.Resolve(ctx, callID, conversationID)
	if errors.Is(err, reconcile.ErrNoIdentifiers) {
		return StatusResult{}, ErrInvalidRequest
	}
	if err != nil {
		return StatusResult{}, err
	}

	if rec.Status != "" {
		return StatusResult{ProviderCallID: rec.ProviderCallID, Status: rec.Status, Raw: rec.RawResponse}, nil
	}

	if s.conversations == nil || rec.ProviderCallID == "" {
		return StatusResult{ProviderCallID: rec.ProviderCallID, Status: rec.Status, Raw: rec.RawResponse}, nil
	}

	detail, err := s.conversations.FetchConversation(ctx, rec.ProviderCallID)
	if err != nil {
		log.Warn("status refresh failed, returning cached view", "call_id", rec.ProviderCallID, "err", err)
		return StatusResult{ProviderCallID: rec.ProviderCallID, Status: rec.Status, Raw: rec.RawResponse}, nil
	}

	refreshed := statusFromDetail(detail.Raw)
	next := rec.Apply(calls.Update{Status: refreshed, RawResponse: detail.Raw}, s.clock().UTC())
	if _, err := s.store.Save(ctx, next, rec.Version); err != nil {
		// A concurrent webhook beat us to it; its view is at least as fresh.
		log.Debug("status refresh save skipped", "call_id", rec.ProviderCallID, "err", err)
	}

	return StatusResult{ProviderCallID: rec.ProviderCallID, Status: refreshed, Raw: detail.Raw}, nil
}

func statusFromDetail(raw json.RawMessage) calls.Status {
	var fields struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	return calls.Status(fields.Status)
}
