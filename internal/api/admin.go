package api

import (
	"errors"
	"net/http"

	"swish-forms/internal/esp"
	"swish-forms/internal/forms"
	"swish-forms/internal/mailer"
	"swish-forms/internal/nonce"
	"swish-forms/internal/secrets"
	"swish-forms/internal/settings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler serves the settings screen actions.
type AdminHandler struct {
	nonces   *nonce.Manager
	settings *settings.Store
	keyring  *secrets.Keyring
	mailer   *mailer.Service
	esp      *esp.Manager
	log      *zap.Logger
}

func NewAdminHandler(d Deps) *AdminHandler {
	return &AdminHandler{
		nonces:   d.Nonces,
		settings: d.Settings,
		keyring:  d.Keyring,
		mailer:   d.Mailer,
		esp:      d.ESP,
		log:      d.Log,
	}
}

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func failure(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "data": gin.H{"message": message}})
}

type ProviderRequest struct {
	Provider    string                       `json:"provider" binding:"required"`
	Credentials settings.ProviderCredentials `json:"credentials"`
}

// bindProvider parses the request and loads the settings snapshot.
func (h *AdminHandler) bindProvider(c *gin.Context) (esp.Kind, settings.ProviderCredentials, settings.Snapshot, bool) {
	var req ProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return "", settings.ProviderCredentials{}, settings.Snapshot{}, false
	}
	kind, err := esp.ParseKind(req.Provider)
	if err != nil {
		failure(c, http.StatusBadRequest, "Invalid provider.")
		return "", settings.ProviderCredentials{}, settings.Snapshot{}, false
	}
	snap, err := h.settings.Load(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to load settings", zap.Error(err))
		failure(c, http.StatusInternalServerError, "Failed to load settings.")
		return "", settings.ProviderCredentials{}, settings.Snapshot{}, false
	}
	return kind, req.Credentials, snap, true
}

func (h *AdminHandler) TestConnection(c *gin.Context) {
	kind, creds, snap, ok := h.bindProvider(c)
	if !ok {
		return
	}
	if err := h.esp.TestConnection(c.Request.Context(), snap, kind, creds); err != nil {
		h.log.Info("ESP connection test failed", zap.String("provider", string(kind)), zap.Error(err))
		failure(c, http.StatusBadGateway, err.Error())
		return
	}
	success(c, gin.H{"message": "Connection successful!"})
}

func (h *AdminHandler) FetchLists(c *gin.Context) {
	kind, creds, snap, ok := h.bindProvider(c)
	if !ok {
		return
	}
	lists, err := h.esp.FetchLists(c.Request.Context(), snap, kind, creds)
	if err != nil {
		failure(c, http.StatusBadGateway, err.Error())
		return
	}
	success(c, gin.H{"lists": lists})
}

type TestEmailRequest struct {
	Email string `json:"email" binding:"required"`
}

func (h *AdminHandler) SendTestEmail(c *gin.Context) {
	var req TestEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, "Please enter a valid email address.")
		return
	}
	snap, err := h.settings.Load(c.Request.Context())
	if err != nil {
		failure(c, http.StatusInternalServerError, "Failed to load settings.")
		return
	}

	err = h.mailer.SendTestEmail(c.Request.Context(), snap, req.Email)
	var verrs forms.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		failure(c, http.StatusBadRequest, verrs["email"])
	case err != nil:
		h.log.Warn("Test email failed", zap.Error(err))
		failure(c, http.StatusBadGateway, "Failed to send test email: "+err.Error())
	default:
		success(c, gin.H{"message": "Test email sent to " + req.Email})
	}
}

// IssueNonce hands the admin screen its request nonce.
func (h *AdminHandler) IssueNonce(c *gin.Context) {
	success(c, gin.H{"nonce": h.nonces.Create(AdminAction)})
}

func (h *AdminHandler) GetEmailSettings(c *gin.Context) {
	snap, err := h.settings.Load(c.Request.Context())
	if err != nil {
		failure(c, http.StatusInternalServerError, "Failed to load settings.")
		return
	}
	success(c, snap.Masked().Email)
}

func (h *AdminHandler) UpdateEmailSettings(c *gin.Context) {
	ctx := c.Request.Context()
	body, err := c.GetRawData()
	if err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return
	}
	stored, err := h.settings.Stored(ctx)
	if err != nil {
		failure(c, http.StatusInternalServerError, "Failed to load settings.")
		return
	}
	next, err := settings.PatchEmail(stored.Email, body, h.keyring)
	if err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.settings.SaveEmail(ctx, next); err != nil {
		h.log.Error("Failed to save email settings", zap.Error(err))
		failure(c, http.StatusInternalServerError, "Failed to save settings.")
		return
	}
	snap, err := h.settings.Load(ctx)
	if err != nil {
		failure(c, http.StatusInternalServerError, "Failed to load settings.")
		return
	}
	success(c, snap.Masked().Email)
}

func (h *AdminHandler) GetESPSettings(c *gin.Context) {
	snap, err := h.settings.Load(c.Request.Context())
	if err != nil {
		failure(c, http.StatusInternalServerError, "Failed to load settings.")
		return
	}
	success(c, snap.Masked().ESP)
}

func (h *AdminHandler) UpdateESPSettings(c *gin.Context) {
	ctx := c.Request.Context()
	body, err := c.GetRawData()
	if err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return
	}
	stored, err := h.settings.Stored(ctx)
	if err != nil {
		failure(c, http.StatusInternalServerError, "Failed to load settings.")
		return
	}
	next, err := settings.PatchESP(stored.ESP, body, h.keyring)
	if err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return
	}
	if next.ActiveProvider != "" {
		if _, err := esp.ParseKind(next.ActiveProvider); err != nil {
			failure(c, http.StatusBadRequest, "Invalid provider.")
			return
		}
	}
	if err := h.settings.SaveESP(ctx, next); err != nil {
		h.log.Error("Failed to save ESP settings", zap.Error(err))
		failure(c, http.StatusInternalServerError, "Failed to save settings.")
		return
	}
	snap, err := h.settings.Load(ctx)
	if err != nil {
		failure(c, http.StatusInternalServerError, "Failed to load settings.")
		return
	}
	success(c, snap.Masked().ESP)
}
