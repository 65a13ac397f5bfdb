package main

import (
	"context"
	"net/http"
	"time"

	"contact-automation/internal/httpapi"
	"contact-automation/internal/rbac"
	"contact-automation/internal/telephony"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	Webhooks      *telephony.WebhookHandler
	WebhookSecret string
	API           httpapi.Handlers
	AuthMW        gin.HandlerFunc
	Metrics       http.Handler
	Ready         func(ctx context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if d.Ready != nil {
			if err := d.Ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	// Provider and mail relay webhooks, guarded by the shared secret.
	hooks := r.Group("/webhooks")
	hooks.Use(telephony.RequireWebhookSecret(d.WebhookSecret))
	d.Webhooks.Register(hooks)

	// protected operator API
	v1 := r.Group("/v1")
	v1.Use(d.AuthMW)
	{
		v1.GET("/me", d.API.Me)

		reports := v1.Group("/reports")
		reports.Use(rbac.RequireAnyRole(rbac.RoleOperator))
		{
			reports.GET("/outcomes", d.API.OutcomesSummary)
		}

		led := v1.Group("/ledger")
		{
			led.GET("/failed", rbac.RequireAnyRole(rbac.RoleOperator), d.API.FailedOutcomes)
			// Only admin may replay outcomes against the CRM.
			led.POST("/retry", rbac.RequireAnyRole(rbac.RoleAdmin), d.API.RetryFailed)
		}
	}
}
