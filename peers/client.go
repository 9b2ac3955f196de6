// Package peers implements the HTTP clients to the engine's five
// authoritative peer services: event-manager, proposal, dispute, reward,
// and notification. Every client shares one construction path (base URL,
// timeout, body-size cap) and owns its own circuit breaker, following the
// postJSON pattern the rest of the platform uses for service-to-service
// calls.
package peers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/R3E-Network/resolution-engine/infrastructure/httputil"
	"github.com/R3E-Network/resolution-engine/infrastructure/resilience"
)

const defaultHTTPBodyLimit = 1 << 20 // 1 MiB

// Client is the shared transport every peer-specific client embeds. It is
// not exported as a standalone peer; EventManagerClient, ProposalClient,
// etc. each wrap one with their own base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
}

// NewClient builds a shared client pointed at baseURL with timeout and a
// circuit breaker configured by cbConfig.
func NewClient(baseURL string, timeout time.Duration, cbConfig resilience.Config) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    resilience.New(cbConfig),
	}
}

// httpError is returned for non-2xx responses; callers inspect StatusCode
// to distinguish, e.g., a 409 conditional-write conflict from other
// failures.
type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("peer request failed: %d %s", e.StatusCode, e.Body)
}

// do issues method/path with an optional JSON body, retrying transient
// failures through the circuit breaker, and decodes a JSON response into
// out (if out is non-nil). It does not retry on any non-2xx HTTP
// response — only on transport-level errors — since a 4xx/5xx from a
// peer is not, in general, safe to retry blindly (a 409 conditional
// conflict in particular must be surfaced, not retried away).
func (c *Client) do(ctx context.Context, method, path string, body any, out any) (*http.Response, []byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("peers: marshal request: %w", err)
		}
	}

	url := joinURL(c.baseURL, path)
	if url == "" {
		return nil, nil, fmt.Errorf("peers: base URL not configured")
	}

	var (
		respBody   []byte
		statusCode int
	)
	err := c.breaker.Execute(ctx, func() error {
		return resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
			req, err := http.NewRequestWithContext(ctx, method, url, bodyReader(payload))
			if err != nil {
				return err
			}
			if payload != nil {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			statusCode = resp.StatusCode
			data, truncated, readErr := httputil.ReadAllWithLimit(resp.Body, defaultHTTPBodyLimit)
			if readErr != nil {
				return fmt.Errorf("peers: read response: %w", readErr)
			}
			if truncated {
				data = append(data, []byte("...(truncated)")...)
			}
			respBody = data
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}

	if statusCode < 200 || statusCode >= 300 {
		return nil, respBody, &httpError{StatusCode: statusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, respBody, fmt.Errorf("peers: decode response: %w", err)
		}
	}
	return nil, respBody, nil
}

func bodyReader(payload []byte) io.Reader {
	if payload == nil {
		return nil
	}
	return bytes.NewReader(payload)
}

func joinURL(base, path string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return ""
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// statusCodeOf extracts the HTTP status code from an error returned by
// do, if any, for callers that special-case specific statuses (409).
func statusCodeOf(err error) (int, bool) {
	he, ok := err.(*httpError)
	if !ok {
		return 0, false
	}
	return he.StatusCode, true
}
