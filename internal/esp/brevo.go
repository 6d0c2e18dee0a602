package esp

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

type brevo struct {
	base
}

func newBrevo(opts Options) *brevo {
	return &brevo{base{kind: Brevo, name: "Brevo", opts: opts}}
}

func (p *brevo) RequiredFields() []Field {
	return []Field{{Key: "apiKey", Label: "API Key", Type: "password"}}
}

func (p *brevo) client() (*apiClient, error) {
	if err := p.requireKey(); err != nil {
		return nil, err
	}
	return &apiClient{
		http:    p.opts.httpClient(),
		baseURL: p.root("https://api.brevo.com/v3"),
		headers: map[string]string{"api-key": p.creds.APIKey},
	}, nil
}

func (p *brevo) TestConnection(ctx context.Context) error {
	c, err := p.client()
	if err != nil {
		return err
	}
	return p.track(c.sendRequest(ctx, http.MethodGet, "/account", nil, nil))
}

func (p *brevo) GetLists(ctx context.Context) ([]List, error) {
	c, err := p.client()
	if err != nil {
		return nil, err
	}
	var resp struct {
		Lists []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"lists"`
	}
	if err := c.sendRequest(ctx, http.MethodGet, "/contacts/lists?limit=50", nil, &resp); err != nil {
		return nil, p.track(err)
	}
	lists := make([]List, 0, len(resp.Lists))
	for _, l := range resp.Lists {
		lists = append(lists, List{ID: strconv.FormatInt(l.ID, 10), Name: l.Name})
	}
	return lists, nil
}

// Subscribe creates or updates the contact; Brevo list ids are integers.
func (p *brevo) Subscribe(ctx context.Context, email string, fields map[string]any, listID string) error {
	c, err := p.client()
	if err != nil {
		return err
	}

	id, err := strconv.ParseInt(strings.TrimSpace(listID), 10, 64)
	if err != nil {
		return p.track(fmt.Errorf("%w: invalid Brevo list id %q", ErrProviderRequest, listID))
	}

	contact := MapContactFields(fields)
	attrs := map[string]string{}
	if contact.FirstName != "" {
		attrs["FIRSTNAME"] = contact.FirstName
	}
	if contact.LastName != "" {
		attrs["LASTNAME"] = contact.LastName
	}
	if contact.Phone != "" {
		attrs["SMS"] = contact.Phone
	}

	body := map[string]any{
		"email":         email,
		"listIds":       []int64{id},
		"updateEnabled": true,
	}
	if len(attrs) > 0 {
		body["attributes"] = attrs
	}
	return p.track(c.sendRequest(ctx, http.MethodPost, "/contacts", body, nil))
}
