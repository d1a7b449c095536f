// Package httputil holds the request plumbing shared by the HTTP feed adapters.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/0verdr1v3/bovine/internal/domain"
)

// maxErrorBody caps how much of a failed response is quoted in the error.
const maxErrorBody = 512

// NewClient returns an HTTP client with the given overall timeout.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Get issues a GET request and returns the open response body on a 2xx
// status. The caller closes it. Failures are mapped onto the domain source
// errors: 429 is rate limiting and an expired deadline is a timeout.
func Get(ctx context.Context, client *http.Client, url string, header http.Header) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("%w: %w", domain.ErrSourceTimeout, err)
		}
		return nil, fmt.Errorf("request %s: %w", req.URL.Host, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: status %d", domain.ErrSourceRateLimited, resp.StatusCode)
		}
		return nil, fmt.Errorf("%s API error: status %d: %s", req.URL.Host, resp.StatusCode, body)
	}
	return resp.Body, nil
}

// GetJSON issues a GET request and decodes a JSON body into v. A body that
// does not decode is a malformed payload.
func GetJSON(ctx context.Context, client *http.Client, url string, header http.Header, v any) error {
	body, err := Get(ctx, client, url, header)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("%w: %w", domain.ErrSourceTimeout, err)
		}
		return fmt.Errorf("%w: decode response: %w", domain.ErrSourceMalformedPayload, err)
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
