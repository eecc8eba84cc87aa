package course

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"backend-runshare/internal/upstream"
)

type Client struct {
	api *upstream.Client
}

func NewClient(api *upstream.Client) *Client {
	return &Client{api: api}
}

func (c *Client) List(ctx context.Context, token string, q ListQuery) (Page, error) {
	params := url.Values{}
	params.Set("userId", q.UserID)
	if q.Lat != nil {
		params.Set("lat", strconv.FormatFloat(*q.Lat, 'f', -1, 64))
	}
	if q.Lng != nil {
		params.Set("lng", strconv.FormatFloat(*q.Lng, 'f', -1, 64))
	}
	params.Set("sort", q.Sort)
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("size", strconv.Itoa(q.Size))

	var page Page
	if err := c.api.GetJSON(ctx, token, "/courses", params, &page); err != nil {
		return Page{}, fmt.Errorf("list courses: %w", err)
	}
	if page.Content == nil {
		page.Content = []Course{}
	}
	return page, nil
}

// File downloads the course's GPX document.
func (c *Client) File(ctx context.Context, token, userID, courseID string) ([]byte, error) {
	path := "/courses/" + url.PathEscape(courseID) + "/file"
	data, err := c.api.GetBytes(ctx, token, path, url.Values{"userId": {userID}})
	if err != nil {
		return nil, fmt.Errorf("download course %s: %w", courseID, err)
	}
	return data, nil
}

// Create uploads a GPX document as multipart fields userId and file.
func (c *Client) Create(ctx context.Context, token, userID, fileName string, gpx []byte) (Course, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("userId", userID); err != nil {
		return Course{}, fmt.Errorf("write userId field: %w", err)
	}
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return Course{}, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(gpx); err != nil {
		return Course{}, fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return Course{}, fmt.Errorf("close multipart body: %w", err)
	}

	resp, err := c.api.Do(ctx, token, http.MethodPost, "/courses", nil, &body, w.FormDataContentType())
	if err != nil {
		return Course{}, fmt.Errorf("create course: %w", err)
	}
	defer resp.Body.Close()

	var created Course
	if err := upstream.DecodeJSON(resp, &created); err != nil {
		return Course{}, fmt.Errorf("create course: %w", err)
	}
	return created, nil
}

func (c *Client) Delete(ctx context.Context, token, userID, courseID string) error {
	path := "/courses/" + url.PathEscape(courseID)
	resp, err := c.api.Do(ctx, token, http.MethodDelete, path, url.Values{"userId": {userID}}, nil, "")
	if err != nil {
		return fmt.Errorf("delete course %s: %w", courseID, err)
	}
	return resp.Body.Close()
}
