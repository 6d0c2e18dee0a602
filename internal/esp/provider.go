// Package esp syncs subscription submissions to email service providers.
package esp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"swish-forms/internal/secrets"
	"swish-forms/internal/settings"
)

// Kind names a supported provider.
type Kind string

const (
	Mailchimp      Kind = "mailchimp"
	ConvertKit     Kind = "convertkit"
	Klaviyo        Kind = "klaviyo"
	ActiveCampaign Kind = "activecampaign"
	Brevo          Kind = "brevo"
)

var (
	ErrUnknownProvider    = errors.New("esp: unknown provider")
	ErrMissingCredentials = errors.New("esp: missing credentials")
)

// Kinds lists every supported provider in display order.
func Kinds() []Kind {
	return []Kind{Mailchimp, ConvertKit, Klaviyo, ActiveCampaign, Brevo}
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// Field describes one credential input of a provider.
type Field struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// List is a provider audience, form or list a contact can join.
type List struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Provider is the contract every adapter implements.
type Provider interface {
	Name() string
	Slug() Kind
	RequiredFields() []Field
	SetCredentials(creds settings.ProviderCredentials)
	TestConnection(ctx context.Context) error
	GetLists(ctx context.Context) ([]List, error)
	Subscribe(ctx context.Context, email string, fields map[string]any, listID string) error
	LastError() string
}

// Options configures outbound calls of an adapter.
type Options struct {
	Keyring    *secrets.Keyring
	HTTPClient *http.Client
	Timeout    time.Duration

	// BaseURL replaces the provider's API root. ActiveCampaign always uses
	// the account URL from its credentials.
	BaseURL string
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// New builds the adapter for kind.
func New(kind Kind, opts Options) (Provider, error) {
	switch kind {
	case Mailchimp:
		return newMailchimp(opts), nil
	case ConvertKit:
		return newConvertKit(opts), nil
	case Klaviyo:
		return newKlaviyo(opts), nil
	case ActiveCampaign:
		return newActiveCampaign(opts), nil
	case Brevo:
		return newBrevo(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, kind)
	}
}

// base carries what every adapter shares.
type base struct {
	kind    Kind
	name    string
	opts    Options
	creds   settings.ProviderCredentials
	lastErr string
}

func (b *base) Name() string      { return b.name }
func (b *base) Slug() Kind        { return b.kind }
func (b *base) LastError() string { return b.lastErr }

// SetCredentials decrypts sealed values; plain values are kept as given.
func (b *base) SetCredentials(creds settings.ProviderCredentials) {
	scope := settings.ESPScope(string(b.kind))
	reveal := func(v string) string {
		if b.opts.Keyring == nil {
			if secrets.IsEncrypted(v) {
				return ""
			}
			return v
		}
		return b.opts.Keyring.Reveal(scope, v)
	}
	b.creds = settings.ProviderCredentials{
		APIKey:    strings.TrimSpace(reveal(creds.APIKey)),
		APISecret: strings.TrimSpace(reveal(creds.APISecret)),
		APIURL:    strings.TrimSpace(creds.APIURL),
		ListID:    creds.ListID,
	}
}

// track records err as the last error and returns it.
func (b *base) track(err error) error {
	if err != nil {
		b.lastErr = err.Error()
	}
	return err
}

func (b *base) root(fallback string) string {
	if b.opts.BaseURL != "" {
		return b.opts.BaseURL
	}
	return fallback
}

func (b *base) requireKey() error {
	if b.creds.APIKey == "" {
		return b.track(fmt.Errorf("%w: %s API key is not configured", ErrMissingCredentials, b.name))
	}
	return nil
}
