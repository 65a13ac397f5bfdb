package telephony

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"contact-automation/internal/calls"
	"contact-automation/internal/routing"
	"contact-automation/pkg/logger"
)

const headerWebhookSecret = "X-Webhook-Secret"

// DefaultMaxMailBytes caps the raw transcription email accepted.
const DefaultMaxMailBytes = 25 << 20

// CallEvents is the call registry as seen by the webhooks.
type CallEvents interface {
	OnCallEvent(ctx context.Context, ev calls.CallEvent) (calls.Call, bool)
	AppendTurn(callID string, t calls.Turn) bool
}

// Voicemail is the voicemail pipeline as seen by the webhooks.
type Voicemail interface {
	HandleDTMF(ctx context.Context, token, digit string) error
	HandleSummary(ctx context.Context, ev routing.SummaryEvent) error
	HandleTranscriptionEmail(ctx context.Context, raw []byte) (routing.Outcome, error)
}

type Spawner interface {
	Go(name string, fn func(ctx context.Context))
}

// WebhookHandler converts provider and mail-relay webhooks to internal
// calls. It never reports a processing failure to the sender, so the
// sender does not retry-storm; failures are logged instead.
//
// No business logic here.
type WebhookHandler struct {
	Calls      CallEvents
	Voicemail  Voicemail
	Background Spawner
	Validator  *validator.Validate

	MaxMailBytes int64
	Now          func() time.Time
}

// Register mounts the webhook routes on rg.
func (h *WebhookHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/telephony/call", h.HandleCallEvent)
	rg.POST("/telephony/dtmf", h.HandleDTMF)
	rg.POST("/telephony/summary", h.HandleSummary)
	rg.POST("/telephony/turn", h.HandleTurn)
	rg.POST("/mail/transcription", h.HandleTranscriptionMail)
}

func ack(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"success": true}) }

func (h *WebhookHandler) HandleCallEvent(c *gin.Context) {
	log := logger.FromGin(c)
	var p CallEventPayload
	if err := h.bind(c, &p); err != nil {
		log.Warn("call event rejected", "err", err)
		ack(c)
		return
	}
	ev := p.ToCallEvent(h.now())
	call, ended := h.Calls.OnCallEvent(c.Request.Context(), ev)
	if ended {
		log.Info("call torn down", "call_id", call.CallID, "entry_id", call.CorrelationToken, "turns", len(call.Turns))
	}
	ack(c)
}

func (h *WebhookHandler) HandleDTMF(c *gin.Context) {
	log := logger.FromGin(c)
	var p DTMFPayload
	if err := h.bind(c, &p); err != nil {
		log.Warn("dtmf event rejected", "err", err)
		ack(c)
		return
	}
	if err := h.Voicemail.HandleDTMF(c.Request.Context(), p.EntryID, p.Digit); err != nil {
		log.Warn("dtmf not recorded", "entry_id", p.EntryID, "err", err)
	}
	ack(c)
}

// HandleSummary acknowledges as soon as the snapshot is stored; the
// transcription is not available yet.
func (h *WebhookHandler) HandleSummary(c *gin.Context) {
	log := logger.FromGin(c)
	var p SummaryPayload
	if err := h.bind(c, &p); err != nil {
		log.Warn("summary event rejected", "err", err)
		ack(c)
		return
	}
	if err := h.Voicemail.HandleSummary(c.Request.Context(), p.ToSummaryEvent()); err != nil {
		log.Error("summary not stored", "entry_id", p.EntryID, "err", err)
	}
	ack(c)
}

func (h *WebhookHandler) HandleTurn(c *gin.Context) {
	log := logger.FromGin(c)
	var p TurnPayload
	if err := h.bind(c, &p); err != nil {
		log.Warn("dialogue turn rejected", "err", err)
		ack(c)
		return
	}
	if !h.Calls.AppendTurn(p.CallID, calls.Turn{Role: p.Role, Text: p.Text, At: h.now()}) {
		log.Info("turn for unknown call ignored", "call_id", p.CallID)
	}
	ack(c)
}

// HandleTranscriptionMail accepts a raw RFC 5322 message and processes it
// in the background: classification and CRM writes take seconds.
func (h *WebhookHandler) HandleTranscriptionMail(c *gin.Context) {
	log := logger.FromGin(c)
	limit := h.MaxMailBytes
	if limit <= 0 {
		limit = DefaultMaxMailBytes
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, limit+1))
	switch {
	case err != nil:
		log.Warn("reading transcription mail failed", "err", err)
		ack(c)
		return
	case int64(len(raw)) > limit:
		log.Warn("transcription mail too large, truncated", "limit", limit)
		raw = raw[:limit]
	}

	// Keep the request-scoped logger for the background work.
	reqLog := log
	process := func(ctx context.Context) {
		ctx = logger.With(ctx, reqLog)
		out, err := h.Voicemail.HandleTranscriptionEmail(ctx, raw)
		switch {
		case errors.Is(err, routing.ErrDuplicate):
			reqLog.Info("transcription mail duplicates a routed call")
		case err != nil:
			reqLog.Error("transcription mail processing failed", "key", out.Key, "err", err)
		default:
			reqLog.Info("transcription mail routed", "key", out.Key, "action", out.Action)
		}
	}
	if h.Background != nil {
		h.Background.Go("transcription-mail", process)
	} else {
		process(context.WithoutCancel(c.Request.Context()))
	}
	ack(c)
}

// bind decodes JSON or form bodies and validates them.
func (h *WebhookHandler) bind(c *gin.Context, dst any) error {
	if err := c.ShouldBind(dst); err != nil {
		return err
	}
	v := h.Validator
	if v == nil {
		v = validator.New()
	}
	return v.Struct(dst)
}

func (h *WebhookHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// RequireWebhookSecret rejects requests whose X-Webhook-Secret header does
// not match secret. An empty secret disables the check.
func RequireWebhookSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		got := strings.TrimSpace(c.GetHeader(headerWebhookSecret))
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			logger.FromGin(c).Warn("webhook secret mismatch", "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
