package esp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var (
	ErrProviderAuth    = errors.New("esp: authentication failed")
	ErrProviderRequest = errors.New("esp: request failed")
)

// APIError is a provider response with status >= 400.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return "Authentication failed: " + e.Message
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return ErrProviderAuth
	}
	return nil
}

// requestError drops the request URL from transport failures. Some
// providers take the API key as a query parameter.
func requestError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return fmt.Errorf("%w: %v", ErrProviderRequest, err)
}

type apiClient struct {
	http    *http.Client
	baseURL string
	headers map[string]string
	auth    func(*http.Request)
}

// sendRequest sends body as JSON and decodes the response into out when
// both are non-nil.
func (c *apiClient) sendRequest(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.baseURL, "/")+path, bodyReader)
	if err != nil {
		return requestError(err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.auth != nil {
		c.auth(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return requestError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderRequest, err)
	}

	if resp.StatusCode >= 400 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(respBody, resp.Status)}
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrProviderRequest, err)
		}
	}
	return nil
}

// errorMessage pulls a readable message out of the error bodies the
// supported providers return.
func errorMessage(body []byte, status string) string {
	var parsed struct {
		Detail  string `json:"detail"`
		Title   string `json:"title"`
		Message string `json:"message"`
		Error   any    `json:"error"`
		Code    any    `json:"code"`
		Errors  []struct {
			Detail  string `json:"detail"`
			Title   string `json:"title"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		if text := strings.TrimSpace(string(body)); text != "" && len(text) < 200 {
			return text
		}
		return status
	}

	switch {
	case parsed.Detail != "":
		return parsed.Detail
	case parsed.Message != "":
		return parsed.Message
	case len(parsed.Errors) > 0:
		e := parsed.Errors[0]
		for _, s := range []string{e.Detail, e.Message, e.Title} {
			if s != "" {
				return s
			}
		}
	case parsed.Title != "":
		return parsed.Title
	}
	if s, ok := parsed.Error.(string); ok && s != "" {
		return s
	}
	if parsed.Code != nil {
		return fmt.Sprint(parsed.Code)
	}
	return status
}
