package results

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"backend-runshare/internal/upstream"
)

type Client struct {
	api *upstream.Client
}

func NewClient(api *upstream.Client) *Client {
	return &Client{api: api}
}

func (c *Client) Profile(ctx context.Context, token, userID string) (Profile, error) {
	var p Profile
	if err := c.api.GetJSON(ctx, token, "/user/"+url.PathEscape(userID), nil, &p); err != nil {
		return Profile{}, fmt.Errorf("fetch profile: %w", err)
	}
	return p, nil
}

func (c *Client) SubmitCooperTest(ctx context.Context, token, userID string, req CooperTestRequest) (CooperTestResult, error) {
	var out CooperTestResult
	path := "/user/" + url.PathEscape(userID) + "/cooper-test"
	if err := c.api.SendJSON(ctx, token, http.MethodPost, path, req, &out); err != nil {
		return CooperTestResult{}, fmt.Errorf("submit cooper test: %w", err)
	}
	return out, nil
}
