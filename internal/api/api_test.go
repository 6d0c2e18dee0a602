package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"swish-forms/internal/database/dbtest"
	"swish-forms/internal/dispatch"
	"swish-forms/internal/entries"
	"swish-forms/internal/esp"
	"swish-forms/internal/forms"
	"swish-forms/internal/mailer"
	"swish-forms/internal/nonce"
	"swish-forms/internal/ratelimit"
	"swish-forms/internal/secrets"
	"swish-forms/internal/settings"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const adminToken = "admin-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type captureTransport struct {
	sent []mailer.Message
}

func (c *captureTransport) Send(_ context.Context, msg mailer.Message) error {
	c.sent = append(c.sent, msg)
	return nil
}

type testEnv struct {
	router   *gin.Engine
	nonces   *nonce.Manager
	registry *forms.Registry
	entries  *entries.Store
	settings *settings.Store
	keyring  *secrets.Keyring
	mail     *captureTransport
}

func newTestEnv(t *testing.T, espURL string) *testEnv {
	t.Helper()
	db := dbtest.Open(t)
	log := zap.NewNop()

	kr, err := secrets.ParseKeyring("k1:api-test-secret", "")
	require.NoError(t, err)

	registry := forms.NewRegistry(db)
	entryStore := entries.NewStore(db, "salt")
	settingsStore := settings.NewStore(db, settings.Snapshot{
		Email: settings.EmailSettings{
			FromEmail:      "admin@acme.test",
			FromName:       "Acme",
			ToEmail:        "admin@acme.test",
			SMTPPort:       587,
			SMTPEncryption: "tls",
		},
	})
	nonces := nonce.NewManager("nonce-secret", 0)

	mail := &captureTransport{}
	mailService := mailer.NewService(mailer.Options{SiteName: "Acme", AdminEmail: "admin@acme.test"}, kr, log)
	mailService.Dial = func(mailer.SMTPConfig) mailer.Transport { return mail }

	espManager := esp.NewManager(esp.Options{Keyring: kr, BaseURL: espURL, Timeout: 5 * time.Second}, entryStore, log)

	bus := dispatch.NewBus()
	mailService.Register(bus)
	espManager.Register(bus)

	router := NewRouter(Deps{
		Nonces:     nonces,
		Limiter:    ratelimit.NewLimiter(db, "salt", 10, time.Hour),
		Settings:   settingsStore,
		Resolver:   forms.NewResolver(db, registry, log),
		Entries:    entryStore,
		Bus:        bus,
		Mailer:     mailService,
		ESP:        espManager,
		Keyring:    kr,
		Log:        log,
		AdminToken: adminToken,
	})

	return &testEnv{
		router:   router,
		nonces:   nonces,
		registry: registry,
		entries:  entryStore,
		settings: settingsStore,
		keyring:  kr,
		mail:     mail,
	}
}

func (e *testEnv) contactForm(t *testing.T) {
	t.Helper()
	require.NoError(t, e.registry.Upsert(context.Background(), forms.FormDefinition{
		FormID:   "f1",
		FormType: forms.Contact,
		Fields: []forms.FieldDefinition{
			{ID: "name", Type: forms.Text, Label: "Name"},
			{ID: "email", Type: forms.Email, Label: "Email", Required: true},
			{ID: "message", Type: forms.Textarea, Label: "Message", Required: true},
		},
	}))
}

func (e *testEnv) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) submit(formID, formType string, fields map[string]any) *httptest.ResponseRecorder {
	return e.do(http.MethodPost, "/swishfolio/v1/forms/submit", map[string]any{
		"formId":   formID,
		"formType": formType,
		"fields":   fields,
		"nonce":    e.nonces.Create(nonce.FormAction(formID)),
	}, nil)
}

func (e *testEnv) admin(method, path string, body any) *httptest.ResponseRecorder {
	return e.do(method, "/swishfolio/v1/admin"+path, body, map[string]string{
		"Authorization": "Bearer " + adminToken,
		"X-Swish-Nonce": e.nonces.Create(AdminAction),
	})
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestSubmitForm_ContactSendsEmail(t *testing.T) {
	env := newTestEnv(t, "")
	env.contactForm(t)

	w := env.submit("f1", "contact", map[string]any{"name": "Alice", "email": "a@example.com", "message": "hi"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.NotZero(t, body["entryId"])

	require.Len(t, env.mail.sent, 1)
	assert.Equal(t, "a@example.com", env.mail.sent[0].ReplyTo)
	assert.Equal(t, []string{"admin@acme.test"}, env.mail.sent[0].To)

	entry, err := env.entries.Get(context.Background(), uint(body["entryId"].(float64)))
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", entry.Title)
	assert.Equal(t, "hi", entry.Fields["message"])
}

func TestSubmitForm_InvalidEmail(t *testing.T) {
	env := newTestEnv(t, "")
	env.contactForm(t)

	w := env.submit("f1", "contact", map[string]any{"email": "not-an-email", "message": "hi"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, map[string]any{"email": "Please enter a valid email address."}, body["errors"])
	assert.Empty(t, env.mail.sent)

	n, err := env.entries.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubmitForm_InvalidNonce(t *testing.T) {
	env := newTestEnv(t, "")
	env.contactForm(t)

	w := env.do(http.MethodPost, "/swishfolio/v1/forms/submit", map[string]any{
		"formId":   "f1",
		"formType": "contact",
		"fields":   map[string]any{},
		"nonce":    env.nonces.Create(nonce.FormAction("other-form")),
	}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSubmitForm_MalformedBody(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodPost, "/swishfolio/v1/forms/submit", map[string]any{"formId": "f1", "formType": "poll", "nonce": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w), "error")
}

func TestSubmitForm_EleventhRequestIsRateLimited(t *testing.T) {
	env := newTestEnv(t, "")
	env.contactForm(t)

	valid := map[string]any{"email": "a@example.com", "message": "hi"}
	for i := 0; i < 10; i++ {
		w := env.submit("f1", "contact", valid)
		require.Equal(t, http.StatusOK, w.Code, "submission %d", i+1)
	}

	// Invalid fields still get 429: the limit is checked before validation.
	w := env.submit("f1", "contact", map[string]any{"email": "broken"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestSubmitForm_FailedValidationDoesNotCount(t *testing.T) {
	env := newTestEnv(t, "")
	env.contactForm(t)

	for i := 0; i < 12; i++ {
		w := env.submit("f1", "contact", map[string]any{"email": "broken"})
		require.Equal(t, http.StatusBadRequest, w.Code)
	}
	w := env.submit("f1", "contact", map[string]any{"email": "a@example.com", "message": "hi"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubmitForm_UnknownFormPassesVacuously(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.submit("ghost", "contact", map[string]any{"anything": "goes"})
	require.Equal(t, http.StatusOK, w.Code)

	id := uint(decode(t, w)["entryId"].(float64))
	entry, err := env.entries.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, entry.Fields)
}

func TestSubmitForm_SubscriptionSyncsToProvider(t *testing.T) {
	var got map[string]any
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contacts", r.URL.Path)
		assert.Equal(t, "brevo-key", r.Header.Get("api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":5}`))
	}))
	defer fake.Close()

	env := newTestEnv(t, fake.URL)
	ctx := context.Background()
	require.NoError(t, env.registry.Upsert(ctx, forms.FormDefinition{
		FormID:      "news",
		FormType:    forms.Subscription,
		Fields:      []forms.FieldDefinition{{ID: "email", Type: forms.Email, Required: true}, {ID: "first_name", Type: forms.Text}},
		ESPProvider: "brevo",
	}))
	sealed, err := env.keyring.Encrypt(settings.ESPScope("brevo"), "brevo-key")
	require.NoError(t, err)
	require.NoError(t, env.settings.SaveESP(ctx, settings.ESPSettings{
		DefaultListID: "12",
		Providers:     map[string]settings.ProviderCredentials{"brevo": {APIKey: sealed}},
	}))

	w := env.submit("news", "subscription", map[string]any{"email": " s@example.com ", "first_name": "Sam"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Thank you for subscribing!", body["message"])

	assert.Equal(t, "s@example.com", got["email"])
	assert.Equal(t, []any{float64(12)}, got["listIds"])

	entry, err := env.entries.Get(ctx, uint(body["entryId"].(float64)))
	require.NoError(t, err)
	assert.True(t, entry.ESPSynced)
	assert.Empty(t, env.mail.sent)
}

func TestSubmitForm_ProviderFailureStillSucceeds(t *testing.T) {
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer fake.Close()

	env := newTestEnv(t, fake.URL)
	ctx := context.Background()
	require.NoError(t, env.registry.Upsert(ctx, forms.FormDefinition{
		FormID:   "news",
		FormType: forms.Subscription,
		Fields:   []forms.FieldDefinition{{ID: "email", Type: forms.Email, Required: true}},
	}))
	require.NoError(t, env.settings.SaveESP(ctx, settings.ESPSettings{
		ActiveProvider: "brevo",
		DefaultListID:  "1",
		Providers:      map[string]settings.ProviderCredentials{"brevo": {APIKey: "k"}},
	}))

	w := env.submit("news", "subscription", map[string]any{"email": "x@example.com"})
	require.Equal(t, http.StatusOK, w.Code)

	entry, err := env.entries.Get(ctx, uint(decode(t, w)["entryId"].(float64)))
	require.NoError(t, err)
	assert.False(t, entry.ESPSynced)
}

func TestIssueNonce(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodGet, "/swishfolio/v1/forms/nonce?formId=f1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	token := decode(t, w)["nonce"].(string)
	assert.True(t, env.nonces.Verify(token, nonce.FormAction("f1")))

	w = env.do(http.MethodGet, "/swishfolio/v1/forms/nonce", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
