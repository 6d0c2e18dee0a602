package esp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// convertKit treats forms as lists.
type convertKit struct {
	base
}

func newConvertKit(opts Options) *convertKit {
	return &convertKit{base{kind: ConvertKit, name: "ConvertKit", opts: opts}}
}

func (p *convertKit) RequiredFields() []Field {
	return []Field{
		{Key: "apiKey", Label: "API Key", Type: "password"},
		{Key: "apiSecret", Label: "API Secret", Type: "password"},
	}
}

func (p *convertKit) client() (*apiClient, error) {
	if err := p.requireKey(); err != nil {
		return nil, err
	}
	return &apiClient{
		http:    p.opts.httpClient(),
		baseURL: p.root("https://api.convertkit.com/v3"),
	}, nil
}

func (p *convertKit) TestConnection(ctx context.Context) error {
	_, err := p.GetLists(ctx)
	return err
}

func (p *convertKit) GetLists(ctx context.Context) ([]List, error) {
	c, err := p.client()
	if err != nil {
		return nil, err
	}
	var resp struct {
		Forms []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"forms"`
	}
	path := "/forms?api_key=" + url.QueryEscape(p.creds.APIKey)
	if err := c.sendRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, p.track(err)
	}
	lists := make([]List, 0, len(resp.Forms))
	for _, f := range resp.Forms {
		lists = append(lists, List{ID: fmt.Sprint(f.ID), Name: f.Name})
	}
	return lists, nil
}

func (p *convertKit) Subscribe(ctx context.Context, email string, fields map[string]any, listID string) error {
	c, err := p.client()
	if err != nil {
		return err
	}

	contact := MapContactFields(fields)
	body := map[string]any{
		"api_key": p.creds.APIKey,
		"email":   email,
	}
	if contact.FirstName != "" {
		body["first_name"] = contact.FirstName
	}
	custom := map[string]string{}
	if contact.LastName != "" {
		custom["last_name"] = contact.LastName
	}
	if contact.Phone != "" {
		custom["phone"] = contact.Phone
	}
	if len(custom) > 0 {
		body["fields"] = custom
	}

	path := fmt.Sprintf("/forms/%s/subscribe", url.PathEscape(listID))
	return p.track(c.sendRequest(ctx, http.MethodPost, path, body, nil))
}
