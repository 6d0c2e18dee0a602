// Package api exposes the form pipeline over HTTP.
package api

import (
	"time"

	"swish-forms/internal/dispatch"
	"swish-forms/internal/entries"
	"swish-forms/internal/esp"
	"swish-forms/internal/forms"
	"swish-forms/internal/mailer"
	"swish-forms/internal/nonce"
	"swish-forms/internal/ratelimit"
	"swish-forms/internal/secrets"
	"swish-forms/internal/settings"
	"swish-forms/internal/ws"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps are the components the handlers share.
type Deps struct {
	Nonces   *nonce.Manager
	Limiter  *ratelimit.Limiter
	Settings *settings.Store
	Resolver *forms.Resolver
	Entries  *entries.Store
	Bus      *dispatch.Bus
	Mailer   *mailer.Service
	ESP      *esp.Manager
	Keyring  *secrets.Keyring
	Feed     *ws.Hub
	Log      *zap.Logger

	AdminToken      string
	DispatchTimeout time.Duration
}

// NewRouter mounts every route on a fresh engine.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), CORS())
	Mount(r, d)
	return r
}

func Mount(r *gin.Engine, d Deps) {
	formsHandler := NewFormsHandler(d)
	adminHandler := NewAdminHandler(d)
	entryHandler := NewEntryHandler(d)

	v1 := r.Group("/swishfolio/v1")
	{
		v1.POST("/forms/submit", formsHandler.SubmitForm)
		v1.GET("/forms/nonce", formsHandler.IssueNonce)

		admin := v1.Group("/admin", RequireAdmin(d.AdminToken))
		{
			admin.GET("/nonce", adminHandler.IssueNonce)
			if d.Feed != nil {
				admin.GET("/entries/live", func(c *gin.Context) {
					d.Feed.ServeWs(c.Writer, c.Request)
				})
			}

			guarded := admin.Group("", RequireAdminNonce(d.Nonces))
			{
				guarded.POST("/actions/swish_forms_test_connection", adminHandler.TestConnection)
				guarded.POST("/actions/swish_forms_fetch_lists", adminHandler.FetchLists)
				guarded.POST("/actions/swish_forms_send_test_email", adminHandler.SendTestEmail)

				guarded.GET("/settings/email", adminHandler.GetEmailSettings)
				guarded.PUT("/settings/email", adminHandler.UpdateEmailSettings)
				guarded.GET("/settings/esp", adminHandler.GetESPSettings)
				guarded.PUT("/settings/esp", adminHandler.UpdateESPSettings)

				guarded.GET("/entries", entryHandler.GetEntries)
				guarded.GET("/entries/count", entryHandler.CountEntries)
				guarded.GET("/entries/:id", entryHandler.GetEntry)
				guarded.DELETE("/entries/:id", entryHandler.DeleteEntry)
			}
		}
	}
}
