package upstream

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// MaxErrorBodySize caps how much of an error body is kept in HTTPError.
const MaxErrorBodySize = 500

type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
	URL        string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s (status %d): %s", e.Status, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s (status %d)", e.Status, e.StatusCode)
}

// ParseErrorResponse returns nil for 2xx/3xx. Otherwise it drains the body
// into an HTTPError and leaves a readable copy on resp.
func ParseErrorResponse(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	bodyStr := ""
	if err == nil && len(bodyBytes) > 0 {
		bodyStr = truncate(string(bodyBytes), MaxErrorBodySize)
	}

	httpErr := &HTTPError{
		StatusCode: resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
		Body:       bodyStr,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		httpErr.URL = resp.Request.URL.String()
	}
	return httpErr
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
