package esp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type activeCampaign struct {
	base
}

func newActiveCampaign(opts Options) *activeCampaign {
	return &activeCampaign{base{kind: ActiveCampaign, name: "ActiveCampaign", opts: opts}}
}

func (p *activeCampaign) RequiredFields() []Field {
	return []Field{
		{Key: "apiUrl", Label: "API URL", Type: "url"},
		{Key: "apiKey", Label: "API Key", Type: "password"},
	}
}

func (p *activeCampaign) client() (*apiClient, error) {
	if err := p.requireKey(); err != nil {
		return nil, err
	}
	if p.creds.APIURL == "" {
		return nil, p.track(fmt.Errorf("%w: ActiveCampaign API URL is not configured", ErrMissingCredentials))
	}
	return &apiClient{
		http:    p.opts.httpClient(),
		baseURL: strings.TrimRight(p.creds.APIURL, "/") + "/api/3",
		headers: map[string]string{"Api-Token": p.creds.APIKey},
	}, nil
}

func (p *activeCampaign) TestConnection(ctx context.Context) error {
	c, err := p.client()
	if err != nil {
		return err
	}
	return p.track(c.sendRequest(ctx, http.MethodGet, "/users/me", nil, nil))
}

func (p *activeCampaign) GetLists(ctx context.Context) ([]List, error) {
	c, err := p.client()
	if err != nil {
		return nil, err
	}
	var resp struct {
		Lists []struct {
			ID   json.Number `json:"id"`
			Name string      `json:"name"`
		} `json:"lists"`
	}
	if err := c.sendRequest(ctx, http.MethodGet, "/lists?limit=100", nil, &resp); err != nil {
		return nil, p.track(err)
	}
	lists := make([]List, 0, len(resp.Lists))
	for _, l := range resp.Lists {
		lists = append(lists, List{ID: l.ID.String(), Name: l.Name})
	}
	return lists, nil
}

// Subscribe syncs the contact and then adds it to the list.
func (p *activeCampaign) Subscribe(ctx context.Context, email string, fields map[string]any, listID string) error {
	c, err := p.client()
	if err != nil {
		return err
	}

	contact := MapContactFields(fields)
	payload := map[string]any{"email": email}
	if contact.FirstName != "" {
		payload["firstName"] = contact.FirstName
	}
	if contact.LastName != "" {
		payload["lastName"] = contact.LastName
	}
	if contact.Phone != "" {
		payload["phone"] = contact.Phone
	}

	var synced struct {
		Contact struct {
			ID json.Number `json:"id"`
		} `json:"contact"`
	}
	if err := c.sendRequest(ctx, http.MethodPost, "/contact/sync", map[string]any{"contact": payload}, &synced); err != nil {
		return p.track(err)
	}
	if synced.Contact.ID == "" {
		return p.track(fmt.Errorf("%w: contact sync returned no id", ErrProviderRequest))
	}

	membership := map[string]any{
		"contactList": map[string]any{
			"list":    listID,
			"contact": synced.Contact.ID.String(),
			"status":  1,
		},
	}
	return p.track(c.sendRequest(ctx, http.MethodPost, "/contactLists", membership, nil))
}
