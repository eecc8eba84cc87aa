// Package upstream talks to the course and results REST servers on behalf
// of the signed-in user.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const DefaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// clientFor forwards the caller's bearer token on every request.
func (c *Client) clientFor(ctx context.Context, token string) *http.Client {
	if token == "" {
		return c.http
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	cl := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	cl.Timeout = c.http.Timeout
	return cl
}

// Do sends the request and converts 4xx/5xx responses into *HTTPError.
// The caller closes the body on success.
func (c *Client) Do(ctx context.Context, token, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.clientFor(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	if err := ParseErrorResponse(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetJSON(ctx context.Context, token, path string, query url.Values, out any) error {
	resp, err := c.Do(ctx, token, http.MethodGet, path, query, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return DecodeJSON(resp, out)
}

func (c *Client) GetBytes(ctx context.Context, token, path string, query url.Values) ([]byte, error) {
	resp, err := c.Do(ctx, token, http.MethodGet, path, query, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

func (c *Client) SendJSON(ctx context.Context, token, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	resp, err := c.Do(ctx, token, method, path, nil, body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return DecodeJSON(resp, out)
}

// DecodeJSON reads a JSON body into out. An empty body leaves out untouched.
func DecodeJSON(resp *http.Response, out any) error {
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
