package esp

import (
	"context"
	"net/http"
)

const klaviyoRevision = "2024-02-15"

type klaviyo struct {
	base
}

func newKlaviyo(opts Options) *klaviyo {
	return &klaviyo{base{kind: Klaviyo, name: "Klaviyo", opts: opts}}
}

func (p *klaviyo) RequiredFields() []Field {
	return []Field{{Key: "apiKey", Label: "Private API Key", Type: "password"}}
}

func (p *klaviyo) client() (*apiClient, error) {
	if err := p.requireKey(); err != nil {
		return nil, err
	}
	return &apiClient{
		http:    p.opts.httpClient(),
		baseURL: p.root("https://a.klaviyo.com/api"),
		headers: map[string]string{
			"Authorization": "Klaviyo-API-Key " + p.creds.APIKey,
			"revision":      klaviyoRevision,
		},
	}, nil
}

func (p *klaviyo) TestConnection(ctx context.Context) error {
	c, err := p.client()
	if err != nil {
		return err
	}
	return p.track(c.sendRequest(ctx, http.MethodGet, "/accounts/", nil, nil))
}

func (p *klaviyo) GetLists(ctx context.Context) ([]List, error) {
	c, err := p.client()
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []struct {
			ID         string `json:"id"`
			Attributes struct {
				Name string `json:"name"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := c.sendRequest(ctx, http.MethodGet, "/lists/", nil, &resp); err != nil {
		return nil, p.track(err)
	}
	lists := make([]List, 0, len(resp.Data))
	for _, l := range resp.Data {
		lists = append(lists, List{ID: l.ID, Name: l.Attributes.Name})
	}
	return lists, nil
}

// Subscribe upserts the profile and then enrolls it in the list with
// email marketing consent.
func (p *klaviyo) Subscribe(ctx context.Context, email string, fields map[string]any, listID string) error {
	c, err := p.client()
	if err != nil {
		return err
	}

	contact := MapContactFields(fields)
	attrs := map[string]any{"email": email}
	if contact.FirstName != "" {
		attrs["first_name"] = contact.FirstName
	}
	if contact.LastName != "" {
		attrs["last_name"] = contact.LastName
	}
	if contact.Phone != "" {
		attrs["phone_number"] = contact.Phone
	}

	profile := map[string]any{
		"data": map[string]any{"type": "profile", "attributes": attrs},
	}
	if err := c.sendRequest(ctx, http.MethodPost, "/profile-import/", profile, nil); err != nil {
		return p.track(err)
	}

	job := map[string]any{
		"data": map[string]any{
			"type": "profile-subscription-bulk-create-job",
			"attributes": map[string]any{
				"profiles": map[string]any{
					"data": []any{map[string]any{
						"type": "profile",
						"attributes": map[string]any{
							"email": email,
							"subscriptions": map[string]any{
								"email": map[string]any{
									"marketing": map[string]any{"consent": "SUBSCRIBED"},
								},
							},
						},
					}},
				},
			},
			"relationships": map[string]any{
				"list": map[string]any{
					"data": map[string]any{"type": "list", "id": listID},
				},
			},
		},
	}
	return p.track(c.sendRequest(ctx, http.MethodPost, "/profile-subscription-bulk-create-jobs/", job, nil))
}
