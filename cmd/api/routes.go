package main

import (
	"database/sql"
	"net/http"
	"time"

	"callmind/internal/httpapi"
	"callmind/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, db *sql.DB, rdb *redis.Client) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks (public). The provider does not sign these events;
	// keep the path unguessable via deployment configuration.
	r.POST("/api/webhooks/elevenlabs/call-status", h.CallStatusWebhook)

	// Token issuance for machine clients.
	r.POST("/v1/auth/token", h.IssueToken)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.POST("/incidents", h.CreateIncident)
		v1.POST("/calls", h.CreateCall)
		v1.POST("/calls/status", h.CallStatus)
		v1.DELETE("/agents/:agent_id", h.DeleteAgent)
	}
}
