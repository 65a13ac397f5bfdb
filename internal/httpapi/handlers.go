package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"contact-automation/internal/auth"
	"contact-automation/internal/reporting"
	"contact-automation/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Reports is the reporting service as seen by the operator API.
type Reports interface {
	OutcomesSummary(ctx context.Context, req reporting.OutcomesSummaryRequest) (reporting.OutcomesSummary, error)
	FailedOutcomes(ctx context.Context, limit int) ([]reporting.FailedOutcome, error)
}

// Retrier replays failed outcomes against the CRM.
type Retrier interface {
	RetryFailed(ctx context.Context) (int, error)
}

// Auditor records operator actions.
type Auditor interface {
	LogLedgerReplay(ctx context.Context, operatorID, role, ip, message, metadata string) error
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Reports Reports
	Retrier Retrier
	Audit   Auditor
	Now     func() time.Time
}

// Me echoes the operator identity from the access token.
func (h Handlers) Me(c *gin.Context) {
	id, _ := auth.OperatorID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"operator_id": id, "role": role})
}

// --- Reports ---

// OutcomesSummary serves GET /v1/reports/outcomes?from=&to=&source=.
// from/to are RFC 3339; the default range is the last 24 hours.
func (h Handlers) OutcomesSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reports not configured"})
		return
	}
	to := h.now()
	from := to.Add(-24 * time.Hour)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
			return
		}
	}

	sum, err := h.Reports.OutcomesSummary(c.Request.Context(), reporting.OutcomesSummaryRequest{
		Range:  reporting.TimeRange{From: from, To: to},
		Source: c.Query("source"),
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be after from"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("outcome summary failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// --- Ledger ---

// FailedOutcomes serves GET /v1/ledger/failed?limit=.
func (h Handlers) FailedOutcomes(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reports not configured"})
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	rows, err := h.Reports.FailedOutcomes(c.Request.Context(), limit)
	if err != nil {
		logger.FromGin(c).Error("listing failed outcomes failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows, "count": len(rows)})
}

// RetryFailed serves POST /v1/ledger/retry: one replay pass, run inline.
// RBAC: admin.
func (h Handlers) RetryFailed(c *gin.Context) {
	if h.Retrier == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "retry not configured"})
		return
	}
	operatorID, _ := auth.OperatorID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	log := logger.FromGin(c).With("operator_id", operatorID)

	n, err := h.Retrier.RetryFailed(c.Request.Context())
	if h.Audit != nil {
		meta := fmt.Sprintf(`{"delivered":%d,"failed":%t}`, n, err != nil)
		if aerr := h.Audit.LogLedgerReplay(c.Request.Context(), operatorID, role, c.ClientIP(), "manual ledger retry", meta); aerr != nil {
			log.Warn("audit append failed", "err", aerr)
		}
	}
	if err != nil {
		log.Error("manual ledger retry failed", "err", err, "delivered", n)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "retry failed", "delivered": n})
		return
	}
	log.Info("manual ledger retry", "delivered", n)
	c.JSON(http.StatusOK, gin.H{"delivered": n})
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
