package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"callmind/internal/auth"
	"callmind/internal/calls"
	"callmind/internal/incidents"
	"callmind/internal/outbound"
	"callmind/internal/reconcile"
	"callmind/internal/voice"
	"callmind/pkg/logger"
)

// Webhook payloads are small status events; anything larger is abuse.
const maxWebhookBody = 1 << 20

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth       *auth.Manager
	Reconciler *reconcile.Reconciler
	Outbound   *outbound.Service
	Incidents  *incidents.Service
}

// --- Auth ---

type tokenRequest struct {
	ClientID string `json:"client_id"`
}

// IssueToken issues an access token for a machine client.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) IssueToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.ClientID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "client_id required"})
		return
	}
	tok, err := h.Auth.Issue(time.Now(), req.ClientID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok})
}

// --- Webhook ---

// CallStatusWebhook ingests provider lifecycle events. The provider retries
// on non-2xx, so internal classification outcomes (unknown event, unmatched
// record) are acknowledged with 200; only a body read failure or exhausted
// write conflicts surface an error status.
func (h Handlers) CallStatusWebhook(c *gin.Context) {
	log := logger.FromGin(c)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.String(http.StatusBadRequest, "Error: unreadable body")
		return
	}

	out, err := h.Reconciler.HandleEvent(c.Request.Context(), body)
	if err != nil {
		log.Error("webhook reconciliation failed", "err", err)
		c.String(http.StatusInternalServerError, "Error: reconciliation failed")
		return
	}
	if !out.Matched {
		c.String(http.StatusOK, "Ignored - no matching call record")
		return
	}
	c.String(http.StatusOK, "Webhook processed")
}

// --- Calls ---

func (h Handlers) CreateCall(c *gin.Context) {
	var req outbound.CreateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	rec, err := h.Outbound.CreateCall(c.Request.Context(), req)
	switch {
	case errors.Is(err, outbound.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to_number, incident_number, priority, short_description, incident_date_time required"})
		return
	case isUpstream(err):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "provider rejected outbound call"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call creation failed"})
		return
	}
	c.JSON(http.StatusCreated, rec)
}

type callStatusRequest struct {
	CallID         string `json:"call_id"`
	ConversationID string `json:"conversation_id"`
}

func (h Handlers) CallStatus(c *gin.Context) {
	var req callStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	res, err := h.Outbound.CallStatus(c.Request.Context(), req.CallID, req.ConversationID)
	switch {
	case errors.Is(err, outbound.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id or conversation_id required"})
		return
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status lookup failed"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Incidents ---

// CreateIncident accepts an incident and provisions its callout agent. The
// intake is acknowledged with 202 even when provisioning fails, so the
// upstream incident system does not retry the whole intake.
func (h Handlers) CreateIncident(c *gin.Context) {
	log := logger.FromGin(c)

	var inc incidents.Incident
	if err := c.ShouldBindJSON(&inc); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	receipt, err := h.Incidents.Accept(c.Request.Context(), inc)
	if errors.Is(err, incidents.ErrInvalidIncident) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "incident_number, short_description, incident_date_time, roster_contact.phone required"})
		return
	}
	if err != nil {
		log.Warn("incident accepted without agent", "err", err)
	}
	c.JSON(http.StatusAccepted, receipt)
}

func (h Handlers) DeleteAgent(c *gin.Context) {
	agentID := c.Param("agent_id")
	if err := h.Incidents.RemoveAgent(c.Request.Context(), agentID); err != nil {
		if errors.Is(err, incidents.ErrInvalidIncident) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agent_id required"})
			return
		}
		if isUpstream(err) {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "provider rejected agent deletion"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "agent deletion failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func isUpstream(err error) bool {
	var ue *voice.UpstreamError
	return errors.As(err, &ue)
}
