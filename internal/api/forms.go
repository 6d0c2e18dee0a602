package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"swish-forms/internal/dispatch"
	"swish-forms/internal/entries"
	"swish-forms/internal/forms"
	"swish-forms/internal/nonce"
	"swish-forms/internal/ratelimit"
	"swish-forms/internal/settings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var ErrInvalidNonce = errors.New("invalid nonce")

const (
	invalidNonceMessage = "Security check failed. Please refresh the page and try again."
	rateLimitedMessage  = "Too many submissions. Please try again later."
	validationMessage   = "Please correct the errors below."
	contactMessage      = "Thank you! Your message has been sent."
	subscribeMessage    = "Thank you for subscribing!"
)

// FormsHandler serves the public submission endpoints.
type FormsHandler struct {
	nonces   *nonce.Manager
	limiter  *ratelimit.Limiter
	settings *settings.Store
	resolver *forms.Resolver
	entries  *entries.Store
	bus      *dispatch.Bus
	log      *zap.Logger

	// dispatchTimeout bounds the synchronous email or ESP step.
	dispatchTimeout time.Duration
}

func NewFormsHandler(d Deps) *FormsHandler {
	timeout := d.DispatchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FormsHandler{
		nonces:          d.Nonces,
		limiter:         d.Limiter,
		settings:        d.Settings,
		resolver:        d.Resolver,
		entries:         d.Entries,
		bus:             d.Bus,
		log:             d.Log,
		dispatchTimeout: timeout,
	}
}

type SubmitRequest struct {
	FormID   string         `json:"formId" binding:"required"`
	FormType string         `json:"formType" binding:"required,oneof=contact subscription"`
	Fields   map[string]any `json:"fields"`
	Nonce    string         `json:"nonce" binding:"required"`
}

func (h *FormsHandler) SubmitForm(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.nonces.Verify(req.Nonce, nonce.FormAction(req.FormID)) {
		c.JSON(http.StatusForbidden, gin.H{"error": invalidNonceMessage})
		return
	}

	ctx := c.Request.Context()
	ip := c.ClientIP()

	if err := h.limiter.Check(ctx, ip); err != nil {
		if errors.Is(err, ratelimit.ErrRateLimited) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": rateLimitedMessage})
			return
		}
		h.log.Error("Rate limit check failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process submission"})
		return
	}

	snap, err := h.settings.Load(ctx)
	if err != nil {
		h.log.Error("Failed to load settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process submission"})
		return
	}

	def, err := h.resolver.Resolve(ctx, req.FormID)
	if err != nil {
		h.log.Error("Failed to resolve form", zap.String("form_id", req.FormID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process submission"})
		return
	}

	if ok, verrs := forms.Validate(def.Fields, req.Fields); !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": validationMessage,
			"errors":  verrs,
		})
		return
	}

	clean := forms.Sanitize(def.Fields, req.Fields)

	if err := h.limiter.Increment(ctx, ip); err != nil {
		h.log.Warn("Failed to increment rate counter", zap.Error(err))
	}

	email := submitterEmail(def.Fields, clean)
	id, err := h.entries.Create(ctx, entries.NewEntry{
		FormID:   req.FormID,
		FormType: req.FormType,
		Fields:   clean,
		Email:    email,
		IP:       ip,
	})
	if err != nil {
		h.log.Error("Failed to save entry", zap.String("form_id", req.FormID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": entries.ErrSaveFailed.Error()})
		return
	}

	h.dispatch(ctx, forms.FormType(req.FormType), def, id, clean, email, snap)

	message := contactMessage
	if req.FormType == string(forms.Subscription) {
		message = subscribeMessage
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message, "entryId": id})
}

// dispatch hands the stored entry to its delivery path. Failures are logged
// only; the entry is already saved.
func (h *FormsHandler) dispatch(ctx context.Context, formType forms.FormType, def forms.FormDefinition, id uint, fields map[string]any, email string, snap settings.Snapshot) {
	ctx, cancel := context.WithTimeout(ctx, h.dispatchTimeout)
	defer cancel()

	var err error
	switch formType {
	case forms.Contact:
		err = h.bus.EmitContactSubmitted(ctx, dispatch.ContactSubmitted{
			EntryID:          id,
			RecipientEmail:   def.RecipientEmail,
			Subject:          def.EmailSubject,
			Fields:           fields,
			SenderEmail:      email,
			FieldDefinitions: def.Fields,
			Settings:         snap,
		})
	case forms.Subscription:
		err = h.bus.EmitSubscriptionSubmitted(ctx, dispatch.SubscriptionSubmitted{
			EntryID:  id,
			Provider: def.ESPProvider,
			ListID:   def.ESPListID,
			Fields:   fields,
			Email:    email,
			Settings: snap,
		})
	}
	if err != nil {
		h.log.Warn("Submission dispatch failed",
			zap.Uint("entry_id", id),
			zap.String("form_type", string(formType)),
			zap.Error(err))
	}
}

// IssueNonce returns the submission nonce of a form.
func (h *FormsHandler) IssueNonce(c *gin.Context) {
	formID := strings.TrimSpace(c.Query("formId"))
	if formID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "formId is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nonce": h.nonces.Create(nonce.FormAction(formID))})
}

// submitterEmail is the first email-typed field value, or the "email" key.
func submitterEmail(defs []forms.FieldDefinition, fields map[string]any) string {
	for _, def := range defs {
		if def.Type != forms.Email {
			continue
		}
		if v, ok := fields[def.ID].(string); ok && v != "" {
			return v
		}
	}
	if v, ok := fields["email"].(string); ok {
		return forms.SanitizeEmail(v)
	}
	return ""
}
