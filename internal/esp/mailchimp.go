package esp

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type mailchimp struct {
	base
}

func newMailchimp(opts Options) *mailchimp {
	return &mailchimp{base{kind: Mailchimp, name: "Mailchimp", opts: opts}}
}

func (p *mailchimp) RequiredFields() []Field {
	return []Field{{Key: "apiKey", Label: "API Key", Type: "password"}}
}

// client derives the data center from the key suffix, e.g. "abc-us6".
func (p *mailchimp) client() (*apiClient, error) {
	if err := p.requireKey(); err != nil {
		return nil, err
	}
	_, dc, ok := strings.Cut(p.creds.APIKey, "-")
	if !ok || dc == "" {
		return nil, p.track(fmt.Errorf("%w: invalid Mailchimp API key format", ErrMissingCredentials))
	}
	key := p.creds.APIKey
	return &apiClient{
		http:    p.opts.httpClient(),
		baseURL: p.root(fmt.Sprintf("https://%s.api.mailchimp.com/3.0", dc)),
		auth:    func(r *http.Request) { r.SetBasicAuth("anystring", key) },
	}, nil
}

func (p *mailchimp) TestConnection(ctx context.Context) error {
	c, err := p.client()
	if err != nil {
		return err
	}
	return p.track(c.sendRequest(ctx, http.MethodGet, "/ping", nil, nil))
}

func (p *mailchimp) GetLists(ctx context.Context) ([]List, error) {
	c, err := p.client()
	if err != nil {
		return nil, err
	}
	var resp struct {
		Lists []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"lists"`
	}
	if err := c.sendRequest(ctx, http.MethodGet, "/lists?count=100", nil, &resp); err != nil {
		return nil, p.track(err)
	}
	lists := make([]List, 0, len(resp.Lists))
	for _, l := range resp.Lists {
		lists = append(lists, List{ID: l.ID, Name: l.Name})
	}
	return lists, nil
}

func (p *mailchimp) Subscribe(ctx context.Context, email string, fields map[string]any, listID string) error {
	c, err := p.client()
	if err != nil {
		return err
	}

	contact := MapContactFields(fields)
	merge := map[string]string{}
	if contact.FirstName != "" {
		merge["FNAME"] = contact.FirstName
	}
	if contact.LastName != "" {
		merge["LNAME"] = contact.LastName
	}
	if contact.Phone != "" {
		merge["PHONE"] = contact.Phone
	}

	body := map[string]any{
		"email_address": email,
		"status_if_new": "subscribed",
	}
	if len(merge) > 0 {
		body["merge_fields"] = merge
	}

	path := fmt.Sprintf("/lists/%s/members/%s", url.PathEscape(listID), subscriberHash(email))
	return p.track(c.sendRequest(ctx, http.MethodPut, path, body, nil))
}

// subscriberHash is the MD5 of the lower-cased address Mailchimp keys
// members by.
func subscriberHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}
