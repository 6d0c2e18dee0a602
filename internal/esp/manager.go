package esp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"swish-forms/internal/dispatch"
	"swish-forms/internal/entries"
	"swish-forms/internal/settings"

	"go.uber.org/zap"
)

var (
	ErrNoProvider = errors.New("esp: no provider configured")
	ErrNoList     = errors.New("esp: no list configured")
	ErrNoEmail    = errors.New("esp: submission has no email address")
)

// Manager builds a provider per call from the settings snapshot, so
// concurrent requests never share credentials.
type Manager struct {
	opts    Options
	entries *entries.Store
	log     *zap.Logger
}

func NewManager(opts Options, entryStore *entries.Store, log *zap.Logger) *Manager {
	return &Manager{opts: opts, entries: entryStore, log: log}
}

// Register subscribes the manager to subscription submissions.
func (m *Manager) Register(bus *dispatch.Bus) {
	bus.OnSubscriptionSubmitted(m.HandleSubscription)
}

// HandleSubscription pushes a stored subscription entry to its provider
// and marks the entry synced on success.
func (m *Manager) HandleSubscription(ctx context.Context, ev dispatch.SubscriptionSubmitted) error {
	slug := firstNonEmpty(ev.Provider, ev.Settings.ESP.ActiveProvider)
	if slug == "" {
		return ErrNoProvider
	}
	kind, err := ParseKind(slug)
	if err != nil {
		return err
	}
	if strings.TrimSpace(ev.Email) == "" {
		return ErrNoEmail
	}

	creds := ev.Settings.ESP.Providers[string(kind)]
	listID := firstNonEmpty(ev.ListID, creds.ListID, ev.Settings.ESP.DefaultListID)
	if listID == "" {
		return fmt.Errorf("%w for %s", ErrNoList, kind)
	}

	provider, err := m.provider(kind, creds)
	if err != nil {
		return err
	}

	if err := provider.Subscribe(ctx, ev.Email, ev.Fields, listID); err != nil {
		m.log.Error("ESP subscribe failed",
			zap.String("provider", string(kind)),
			zap.Uint("entry_id", ev.EntryID),
			zap.String("last_error", provider.LastError()),
			zap.Error(err))
		return fmt.Errorf("%s subscribe: %w", provider.Name(), err)
	}

	if err := m.entries.MarkAsSynced(ctx, ev.EntryID); err != nil {
		return fmt.Errorf("mark entry %d synced: %w", ev.EntryID, err)
	}
	m.log.Info("Subscriber synced",
		zap.String("provider", string(kind)),
		zap.String("list_id", listID),
		zap.Uint("entry_id", ev.EntryID))
	return nil
}

// TestConnection checks credentials; blank fields fall back to the
// stored ones.
func (m *Manager) TestConnection(ctx context.Context, snap settings.Snapshot, kind Kind, creds settings.ProviderCredentials) error {
	provider, err := m.provider(kind, withStored(creds, snap.ESP.Providers[string(kind)]))
	if err != nil {
		return err
	}
	return provider.TestConnection(ctx)
}

// FetchLists returns the lists reachable with the given credentials;
// blank fields fall back to the stored ones.
func (m *Manager) FetchLists(ctx context.Context, snap settings.Snapshot, kind Kind, creds settings.ProviderCredentials) ([]List, error) {
	provider, err := m.provider(kind, withStored(creds, snap.ESP.Providers[string(kind)]))
	if err != nil {
		return nil, err
	}
	return provider.GetLists(ctx)
}

func (m *Manager) provider(kind Kind, creds settings.ProviderCredentials) (Provider, error) {
	provider, err := New(kind, m.opts)
	if err != nil {
		return nil, err
	}
	provider.SetCredentials(creds)
	return provider, nil
}

func withStored(given, stored settings.ProviderCredentials) settings.ProviderCredentials {
	pick := func(v, fallback string) string {
		if v = strings.TrimSpace(v); v == "" || v == settings.Mask {
			return fallback
		}
		return v
	}
	return settings.ProviderCredentials{
		APIKey:    pick(given.APIKey, stored.APIKey),
		APISecret: pick(given.APISecret, stored.APISecret),
		APIURL:    pick(given.APIURL, stored.APIURL),
		ListID:    pick(given.ListID, stored.ListID),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
