package esp

import (
	"context"
	"net/http"
	"testing"

	"swish-forms/internal/database/dbtest"
	"swish-forms/internal/dispatch"
	"swish-forms/internal/entries"
	"swish-forms/internal/settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T, baseURL string) (*Manager, *entries.Store) {
	t.Helper()
	store := entries.NewStore(dbtest.Open(t), "pepper")
	return NewManager(Options{BaseURL: baseURL}, store, zap.NewNop()), store
}

func TestHandleSubscription_FallsBackToDefaultList(t *testing.T) {
	srv, seen := fakeAPI(t, map[string]func() (int, string){
		"PUT /lists/L-DEFAULT/members/" + subscriberHash("sub@example.com"): ok(`{}`),
	})
	mgr, store := newTestManager(t, srv.URL)
	ctx := context.Background()

	id, err := store.Create(ctx, entries.NewEntry{FormID: "news", FormType: "subscription", Email: "sub@example.com"})
	require.NoError(t, err)

	snap := settings.Snapshot{ESP: settings.ESPSettings{
		ActiveProvider: "mailchimp",
		DefaultListID:  "L-DEFAULT",
		Providers: map[string]settings.ProviderCredentials{
			"mailchimp": {APIKey: "abc-us6"},
		},
	}}
	err = mgr.HandleSubscription(ctx, dispatch.SubscriptionSubmitted{
		EntryID:  id,
		Email:    "sub@example.com",
		Fields:   map[string]any{"email": "sub@example.com"},
		Settings: snap,
	})
	require.NoError(t, err)
	require.Len(t, *seen, 1)

	entry, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, entry.ESPSynced)
}

func TestHandleSubscription_ListPrecedence(t *testing.T) {
	srv, seen := fakeAPI(t, map[string]func() (int, string){
		"POST /contacts": func() (int, string) { return http.StatusCreated, `{"id":1}` },
	})
	mgr, store := newTestManager(t, srv.URL)
	ctx := context.Background()

	id, err := store.Create(ctx, entries.NewEntry{FormID: "news", FormType: "subscription"})
	require.NoError(t, err)

	snap := settings.Snapshot{ESP: settings.ESPSettings{
		ActiveProvider: "mailchimp",
		DefaultListID:  "1",
		Providers: map[string]settings.ProviderCredentials{
			"brevo": {APIKey: "xkeysib", ListID: "2"},
		},
	}}

	// Provider and list on the event win over the active provider and the
	// stored list.
	ev := dispatch.SubscriptionSubmitted{EntryID: id, Provider: "brevo", ListID: "3", Email: "b@example.com", Settings: snap}
	require.NoError(t, mgr.HandleSubscription(ctx, ev))

	ev.ListID = ""
	require.NoError(t, mgr.HandleSubscription(ctx, ev))

	require.Len(t, *seen, 2)
	assert.Equal(t, []any{float64(3)}, (*seen)[0].Body["listIds"])
	assert.Equal(t, []any{float64(2)}, (*seen)[1].Body["listIds"])
}

func TestHandleSubscription_FailureLeavesEntryUnsynced(t *testing.T) {
	srv, _ := fakeAPI(t, map[string]func() (int, string){
		"POST /contacts": func() (int, string) {
			return http.StatusBadRequest, `{"code":"invalid_parameter","message":"email is not valid"}`
		},
	})
	mgr, store := newTestManager(t, srv.URL)
	ctx := context.Background()

	id, err := store.Create(ctx, entries.NewEntry{FormID: "news", FormType: "subscription"})
	require.NoError(t, err)

	err = mgr.HandleSubscription(ctx, dispatch.SubscriptionSubmitted{
		EntryID: id,
		Email:   "b@example.com",
		Settings: settings.Snapshot{ESP: settings.ESPSettings{
			ActiveProvider: "brevo",
			DefaultListID:  "4",
			Providers:      map[string]settings.ProviderCredentials{"brevo": {APIKey: "k"}},
		}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email is not valid")

	entry, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, entry.ESPSynced)
}

func TestHandleSubscription_ConfigurationErrors(t *testing.T) {
	mgr, _ := newTestManager(t, "http://unused.test")
	ctx := context.Background()

	err := mgr.HandleSubscription(ctx, dispatch.SubscriptionSubmitted{Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrNoProvider)

	err = mgr.HandleSubscription(ctx, dispatch.SubscriptionSubmitted{Provider: "sendgrid", Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	err = mgr.HandleSubscription(ctx, dispatch.SubscriptionSubmitted{Provider: "brevo", Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrNoList)

	err = mgr.HandleSubscription(ctx, dispatch.SubscriptionSubmitted{Provider: "brevo", ListID: "1"})
	assert.ErrorIs(t, err, ErrNoEmail)
}

func TestManager_AdminActionsUseStoredCredentials(t *testing.T) {
	srv, seen := fakeAPI(t, map[string]func() (int, string){
		"GET /account":        ok(`{"email":"owner@example.com"}`),
		"GET /contacts/lists": ok(`{"lists":[{"id":1,"name":"All"}]}`),
	})
	mgr, _ := newTestManager(t, srv.URL)
	ctx := context.Background()

	snap := settings.Snapshot{ESP: settings.ESPSettings{
		Providers: map[string]settings.ProviderCredentials{"brevo": {APIKey: "stored-key"}},
	}}

	require.NoError(t, mgr.TestConnection(ctx, snap, Brevo, settings.ProviderCredentials{APIKey: settings.Mask}))
	lists, err := mgr.FetchLists(ctx, snap, Brevo, settings.ProviderCredentials{APIKey: "typed-key"})
	require.NoError(t, err)
	assert.Equal(t, []List{{ID: "1", Name: "All"}}, lists)

	require.Len(t, *seen, 2)
	assert.Equal(t, "stored-key", (*seen)[0].Header.Get("api-key"))
	assert.Equal(t, "typed-key", (*seen)[1].Header.Get("api-key"))
}

func TestManager_RegisterListensOnBus(t *testing.T) {
	mgr, _ := newTestManager(t, "http://unused.test")
	bus := dispatch.NewBus()
	mgr.Register(bus)

	err := bus.EmitSubscriptionSubmitted(context.Background(), dispatch.SubscriptionSubmitted{Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrNoProvider)
}
