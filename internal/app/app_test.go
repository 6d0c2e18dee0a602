package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"swish-forms/internal/config"
	"swish-forms/internal/database/dbtest"
	"swish-forms/internal/dispatch"
	"swish-forms/internal/mailer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		SiteName:    "Acme",
		AdminEmail:  "admin@acme.test",
		NonceSecret: "nonce",
		RateLimit:   10,
		RateWindow:  time.Hour,
		HTTPTimeout: 5 * time.Second,
	}
}

type nopTransport struct{ sent int }

func (n *nopTransport) Send(context.Context, mailer.Message) error {
	n.sent++
	return nil
}

func TestNew_RequiresNonceSecret(t *testing.T) {
	_, err := New(&config.Config{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrNoNonceSecret)
}

func TestBuild_WiresListenersAndDefaults(t *testing.T) {
	a, err := Build(testConfig(), dbtest.Open(t), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "k0", a.Keyring.CurrentID())

	snap, err := a.Settings.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin@acme.test", snap.Email.FromEmail)
	assert.Equal(t, "Acme", snap.Email.FromName)
	assert.Equal(t, "tls", snap.Email.SMTPEncryption)

	transport := &nopTransport{}
	a.Mailer.Dial = func(mailer.SMTPConfig) mailer.Transport { return transport }
	require.NoError(t, a.Bus.EmitContactSubmitted(context.Background(), dispatch.ContactSubmitted{EntryID: 1}))
	assert.Equal(t, 1, transport.sent)

	deps := a.Deps()
	assert.Equal(t, 5*time.Second, deps.DispatchTimeout)
	assert.Same(t, a.Entries, deps.Entries)
	assert.Same(t, a.Feed, deps.Feed)
}

func TestSeedForms(t *testing.T) {
	a, err := Build(testConfig(), dbtest.Open(t), zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	n, err := a.SeedForms(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, n)

	path := filepath.Join(t.TempDir(), "forms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`forms:
  - formId: newsletter
    formType: subscription
    espProvider: brevo
    fields:
      - id: email
        type: email
        required: true
`), 0o600))

	n, err = a.SeedForms(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	def, err := a.Resolver.Resolve(ctx, "newsletter")
	require.NoError(t, err)
	assert.Equal(t, "brevo", def.ESPProvider)
	require.Len(t, def.Fields, 1)
	assert.True(t, def.Fields[0].Required)
}
