package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"
)

const maxExpandBody = 1 << 20

var metaRefreshURL = regexp.MustCompile(`URL='([^']+)'`)

// URLExpander resolves short links such as maps.app.goo.gl to their target
// with a single request.
type URLExpander struct {
	client *http.Client
}

// NewURLExpander copies hc and disables redirect following on the copy.
func NewURLExpander(hc *http.Client) *URLExpander {
	c := http.Client{Timeout: 30 * time.Second}
	if hc != nil {
		c = *hc
	}

	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &URLExpander{client: &c}
}

// Expand returns the Location header of a redirect response, else the
// target of a meta refresh in the body, else u itself. Status codes of 400
// and above are errors.
func (e *URLExpander) Expand(ctx context.Context, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, u)
	}

	if loc := resp.Header.Get("Location"); loc != "" {
		return loc, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxExpandBody))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if m := metaRefreshURL.FindSubmatch(body); m != nil {
		return string(m[1]), nil
	}

	return u, nil
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
