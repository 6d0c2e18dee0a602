package esp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"swish-forms/internal/secrets"
	"swish-forms/internal/settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]any
}

// fakeAPI answers each "METHOD /path" with a canned status and body and
// records every request it saw.
func fakeAPI(t *testing.T, routes map[string]func() (int, string)) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var seen []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.RequestURI(), Header: r.Header.Clone()}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			assert.NoError(t, json.Unmarshal(raw, &rec.Body))
		}
		seen = append(seen, rec)

		route, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"no route"}`))
			return
		}
		status, body := route()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func ok(body string) func() (int, string) {
	return func() (int, string) { return http.StatusOK, body }
}

func build(t *testing.T, kind Kind, baseURL string, creds settings.ProviderCredentials) Provider {
	t.Helper()
	p, err := New(kind, Options{BaseURL: baseURL})
	require.NoError(t, err)
	p.SetCredentials(creds)
	return p
}

func TestMailchimp_SubscribeUsesHashedMemberPath(t *testing.T) {
	srv, seen := fakeAPI(t, map[string]func() (int, string){
		"PUT /lists/abc123/members/" + subscriberHash("Ada@Example.com"): ok(`{"id":"x"}`),
	})
	p := build(t, Mailchimp, srv.URL, settings.ProviderCredentials{APIKey: "key-us6"})

	err := p.Subscribe(context.Background(), "Ada@Example.com",
		map[string]any{"first_name": "Ada", "last_name": "Lovelace", "phone": "555"}, "abc123")
	require.NoError(t, err)

	require.Len(t, *seen, 1)
	req := (*seen)[0]
	user, pass, hasAuth := (&http.Request{Header: req.Header}).BasicAuth()
	assert.True(t, hasAuth)
	assert.Equal(t, "anystring", user)
	assert.Equal(t, "key-us6", pass)
	assert.Equal(t, "subscribed", req.Body["status_if_new"])
	assert.Equal(t, map[string]any{"FNAME": "Ada", "LNAME": "Lovelace", "PHONE": "555"}, req.Body["merge_fields"])
}

func TestMailchimp_RejectsKeyWithoutDataCenter(t *testing.T) {
	p := build(t, Mailchimp, "http://unused.test", settings.ProviderCredentials{APIKey: "nodc"})
	err := p.TestConnection(context.Background())
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Contains(t, p.LastError(), "invalid Mailchimp API key")
}

func TestMailchimp_AuthFailure(t *testing.T) {
	srv, _ := fakeAPI(t, map[string]func() (int, string){
		"GET /ping": func() (int, string) {
			return http.StatusUnauthorized, `{"title":"API Key Invalid","detail":"Your API key may be invalid."}`
		},
	})
	p := build(t, Mailchimp, srv.URL, settings.ProviderCredentials{APIKey: "bad-us1"})

	err := p.TestConnection(context.Background())
	assert.ErrorIs(t, err, ErrProviderAuth)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Authentication failed: Your API key may be invalid.", p.LastError())
}

func TestConvertKit_ListsAndSubscribe(t *testing.T) {
	srv, seen := fakeAPI(t, map[string]func() (int, string){
		"GET /forms":               ok(`{"forms":[{"id":42,"name":"Newsletter"}]}`),
		"POST /forms/42/subscribe": ok(`{"subscription":{"id":1}}`),
	})
	p := build(t, ConvertKit, srv.URL, settings.ProviderCredentials{APIKey: "ck", APISecret: "secret"})

	lists, err := p.GetLists(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []List{{ID: "42", Name: "Newsletter"}}, lists)
	assert.Equal(t, "/forms?api_key=ck", (*seen)[0].Path)

	require.NoError(t, p.Subscribe(context.Background(), "a@example.com", map[string]any{"name": "Ann"}, "42"))
	body := (*seen)[1].Body
	assert.Equal(t, "ck", body["api_key"])
	assert.Equal(t, "Ann", body["first_name"])
}

func TestKlaviyo_SubscribeImportsThenEnrolls(t *testing.T) {
	srv, seen := fakeAPI(t, map[string]func() (int, string){
		"POST /profile-import/": ok(`{"data":{"id":"p1"}}`),
		"POST /profile-subscription-bulk-create-jobs/": func() (int, string) {
			return http.StatusAccepted, ""
		},
	})
	p := build(t, Klaviyo, srv.URL, settings.ProviderCredentials{APIKey: "pk_test"})

	require.NoError(t, p.Subscribe(context.Background(), "k@example.com", map[string]any{"tel": "555"}, "L1"))
	require.Len(t, *seen, 2)
	assert.Equal(t, "Klaviyo-API-Key pk_test", (*seen)[0].Header.Get("Authorization"))
	assert.Equal(t, "2024-02-15", (*seen)[0].Header.Get("revision"))

	job := (*seen)[1].Body["data"].(map[string]any)
	list := job["relationships"].(map[string]any)["list"].(map[string]any)["data"].(map[string]any)
	assert.Equal(t, "L1", list["id"])
}

func TestKlaviyo_ErrorsArrayMessage(t *testing.T) {
	srv, _ := fakeAPI(t, map[string]func() (int, string){
		"GET /lists/": func() (int, string) {
			return http.StatusBadRequest, `{"errors":[{"title":"Invalid input","detail":"Bad filter"}]}`
		},
	})
	p := build(t, Klaviyo, srv.URL, settings.ProviderCredentials{APIKey: "pk"})

	_, err := p.GetLists(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProviderAuth)
	assert.Equal(t, "API error (400): Bad filter", p.LastError())
}

func TestActiveCampaign_SyncThenAddToList(t *testing.T) {
	srv, seen := fakeAPI(t, map[string]func() (int, string){
		"POST /api/3/contact/sync": ok(`{"contact":{"id":"77"}}`),
		"POST /api/3/contactLists": ok(`{"contactList":{"id":"1"}}`),
	})
	p := build(t, ActiveCampaign, "", settings.ProviderCredentials{APIKey: "ac", APIURL: srv.URL + "/"})

	require.NoError(t, p.Subscribe(context.Background(), "c@example.com", map[string]any{"full_name": "Cy"}, "3"))
	require.Len(t, *seen, 2)
	assert.Equal(t, "ac", (*seen)[0].Header.Get("Api-Token"))
	assert.Equal(t, map[string]any{"email": "c@example.com", "firstName": "Cy"}, (*seen)[0].Body["contact"])
	assert.Equal(t, map[string]any{"list": "3", "contact": "77", "status": float64(1)}, (*seen)[1].Body["contactList"])
}

func TestActiveCampaign_RequiresURL(t *testing.T) {
	p := build(t, ActiveCampaign, "", settings.ProviderCredentials{APIKey: "ac"})
	assert.ErrorIs(t, p.TestConnection(context.Background()), ErrMissingCredentials)
}

func TestBrevo_SubscribeSendsIntegerListIDs(t *testing.T) {
	srv, seen := fakeAPI(t, map[string]func() (int, string){
		"GET /contacts/lists": ok(`{"lists":[{"id":7,"name":"Main"}]}`),
		"POST /contacts":      func() (int, string) { return http.StatusCreated, `{"id":1}` },
	})
	p := build(t, Brevo, srv.URL, settings.ProviderCredentials{APIKey: "xkeysib"})

	lists, err := p.GetLists(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []List{{ID: "7", Name: "Main"}}, lists)

	require.NoError(t, p.Subscribe(context.Background(), "b@example.com", map[string]any{"lastname": "Bo"}, "7"))
	body := (*seen)[1].Body
	assert.Equal(t, "xkeysib", (*seen)[1].Header.Get("api-key"))
	assert.Equal(t, []any{float64(7)}, body["listIds"])
	assert.Equal(t, true, body["updateEnabled"])
	assert.Equal(t, map[string]any{"LASTNAME": "Bo"}, body["attributes"])

	assert.Error(t, p.Subscribe(context.Background(), "b@example.com", nil, "main"))
}

func TestSetCredentials_DecryptsPerScope(t *testing.T) {
	kr, err := secrets.ParseKeyring("k1:esp-test", "")
	require.NoError(t, err)
	sealed, err := kr.Encrypt(settings.ESPScope("brevo"), "real-key")
	require.NoError(t, err)

	srv, seen := fakeAPI(t, map[string]func() (int, string){"GET /account": ok(`{}`)})
	p, err := New(Brevo, Options{Keyring: kr, BaseURL: srv.URL})
	require.NoError(t, err)
	p.SetCredentials(settings.ProviderCredentials{APIKey: sealed})
	require.NoError(t, p.TestConnection(context.Background()))
	assert.Equal(t, "real-key", (*seen)[0].Header.Get("api-key"))

	// A value sealed for another provider does not open.
	other, err := New(Mailchimp, Options{Keyring: kr, BaseURL: srv.URL})
	require.NoError(t, err)
	other.SetCredentials(settings.ProviderCredentials{APIKey: sealed})
	assert.ErrorIs(t, other.TestConnection(context.Background()), ErrMissingCredentials)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Brevo ")
	require.NoError(t, err)
	assert.Equal(t, Brevo, k)

	_, err = ParseKind("sendgrid")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	for _, kind := range Kinds() {
		p, err := New(kind, Options{})
		require.NoError(t, err)
		assert.Equal(t, kind, p.Slug())
		assert.NotEmpty(t, p.RequiredFields())
	}
}

func TestMapContactFields(t *testing.T) {
	c := MapContactFields(map[string]any{
		"Last_Name":  "Hopper",
		"first_name": "Grace",
		"telephone":  "555-0100",
		"email":      "g@example.com",
		"nickname":   "Amazing",
	})
	assert.Equal(t, Contact{FirstName: "Grace", LastName: "Hopper", Phone: "555-0100"}, c)
}

func TestConvertKit_TransportErrorHidesAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	unreachable := srv.URL
	srv.Close()

	p := build(t, ConvertKit, unreachable, settings.ProviderCredentials{APIKey: "SUPERSECRETKEY"})

	err := p.TestConnection(context.Background())
	require.ErrorIs(t, err, ErrProviderRequest)
	assert.NotContains(t, err.Error(), "SUPERSECRETKEY")
	assert.NotEmpty(t, p.LastError())
	assert.NotContains(t, p.LastError(), "SUPERSECRETKEY")
}
