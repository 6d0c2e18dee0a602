// Package app wires the form pipeline components from configuration.
package app

import (
	"context"
	"errors"
	"time"

	"swish-forms/internal/api"
	"swish-forms/internal/config"
	"swish-forms/internal/database"
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

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNoNonceSecret = errors.New("NONCE_SECRET must be set")

// App holds every long-lived component.
type App struct {
	Config   *config.Config
	Log      *zap.Logger
	DB       *gorm.DB
	Keyring  *secrets.Keyring
	Nonces   *nonce.Manager
	Limiter  *ratelimit.Limiter
	Settings *settings.Store
	Registry *forms.Registry
	Resolver *forms.Resolver
	Entries  *entries.Store
	Bus      *dispatch.Bus
	Mailer   *mailer.Service
	ESP      *esp.Manager
	Feed     *ws.Hub
}

// New opens the database and builds the pipeline.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg.NonceSecret == "" {
		return nil, ErrNoNonceSecret
	}

	db, err := database.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	return Build(cfg, db, log)
}

// Build assembles the pipeline on an open database.
func Build(cfg *config.Config, db *gorm.DB, log *zap.Logger) (*App, error) {
	keyring, err := secrets.ParseKeyring(cfg.EncryptionKeys, cfg.NonceSecret)
	if err != nil {
		return nil, err
	}

	salt := cfg.IPHashSalt
	if salt == "" {
		salt = cfg.NonceSecret
	}

	a := &App{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Keyring:  keyring,
		Nonces:   nonce.NewManager(cfg.NonceSecret, nonce.DefaultLifetime),
		Limiter:  ratelimit.NewLimiter(db, salt, cfg.RateLimit, cfg.RateWindow),
		Settings: settings.NewStore(db, Defaults(cfg)),
		Registry: forms.NewRegistry(db),
		Entries:  entries.NewStore(db, salt),
		Bus:      dispatch.NewBus(),
		Feed:     ws.NewHub(log),
	}
	a.Resolver = forms.NewResolver(db, a.Registry, log)
	a.Mailer = mailer.NewService(mailer.Options{
		SiteName:   cfg.SiteName,
		AdminEmail: cfg.AdminEmail,
		MailHost:   cfg.MailHost,
		MailPort:   cfg.MailPort,
		Timeout:    cfg.HTTPTimeout,
	}, keyring, log)
	a.ESP = esp.NewManager(esp.Options{Keyring: keyring, Timeout: cfg.HTTPTimeout}, a.Entries, log)

	a.Mailer.Register(a.Bus)
	a.ESP.Register(a.Bus)
	a.Feed.Register(a.Bus)
	return a, nil
}

// Defaults fills settings nobody has saved yet.
func Defaults(cfg *config.Config) settings.Snapshot {
	return settings.Snapshot{
		Email: settings.EmailSettings{
			FromEmail:      cfg.AdminEmail,
			FromName:       cfg.SiteName,
			ToEmail:        cfg.AdminEmail,
			SMTPPort:       587,
			SMTPEncryption: "tls",
		},
	}
}

// Deps exposes the components the HTTP layer needs.
func (a *App) Deps() api.Deps {
	return api.Deps{
		Nonces:          a.Nonces,
		Limiter:         a.Limiter,
		Settings:        a.Settings,
		Resolver:        a.Resolver,
		Entries:         a.Entries,
		Bus:             a.Bus,
		Mailer:          a.Mailer,
		ESP:             a.ESP,
		Keyring:         a.Keyring,
		Feed:            a.Feed,
		Log:             a.Log,
		AdminToken:      a.Config.AdminToken,
		DispatchTimeout: a.Config.HTTPTimeout,
	}
}

// SeedForms upserts the registry file named by FORMS_FILE, if any.
func (a *App) SeedForms(ctx context.Context, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	defs, err := forms.LoadRegistryFile(path)
	if err != nil {
		return 0, err
	}
	if err := a.Registry.Seed(ctx, defs); err != nil {
		return 0, err
	}
	return len(defs), nil
}

// PurgeRateLimits drops expired counters every interval until ctx ends.
func (a *App) PurgeRateLimits(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.Limiter.Purge(ctx)
			if err != nil {
				a.Log.Warn("Failed to purge rate limit counters", zap.Error(err))
				continue
			}
			if n > 0 {
				a.Log.Debug("Purged rate limit counters", zap.Int64("count", n))
			}
		}
	}
}

// Close releases the database connection.
func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
