// Package wardapi implements the authenticated request layer for the
// facility API: bearer credential attachment, auth-expiry detection,
// single-flight token refresh, and a bounded retry.
package wardapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/oakfield/wardctl/internal/session"
)

//go:generate mockgen -source=client.go -destination=mock_doer_test.go -package=wardapi

// Doer executes a single HTTP request. *http.Client satisfies this
// interface; tests substitute a mock.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// defaultTimeout bounds every HTTP call, including the refresh exchange
// and the post-refresh retry. The server does not stream on these
// endpoints, so a hung call is a failure, not a slow success.
const defaultTimeout = 15 * time.Second

// Client sends authenticated requests to the facility API. Every call
// made by the domain layer goes through Do, which owns the
// refresh-and-retry protocol. Safe for concurrent use.
type Client struct {
	http    Doer
	baseURL string
	session *session.Store
	logger  *slog.Logger

	// flight collapses concurrent refresh attempts into one exchange.
	// The group drops the key when the call settles, so the next expiry
	// starts a fresh attempt.
	flight singleflight.Group
}

// New creates a Client for the given base URL and session store.
// If httpClient is nil, a client with the default timeout is used.
func New(baseURL string, store *session.Store, httpClient Doer, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		session: store,
		logger:  logger,
	}
}

// Session exposes the session store backing this client.
func (c *Client) Session() *session.Store {
	return c.session
}

// Do sends one logical request. A 401 triggers a single-flight token
// refresh followed by exactly one retry; if the refresh yields nothing
// or the retry is itself a 401, the session is cleared and the last
// response is returned so the caller can branch on its status. Any
// non-401 response, success or failure, passes through unchanged.
// At most two requests are sent per call.
func (c *Client) Do(ctx context.Context, req Request) (*http.Response, error) {
	reqID := uuid.NewString()

	resp, err := c.send(ctx, c.attach(req), reqID)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	token := c.refreshOnce(ctx)
	if token == "" {
		_ = c.session.Clear()
		c.logger.Warn("session expired and refresh failed",
			slog.String("request_id", reqID),
			slog.String("path", req.Path),
		)

		return resp, nil
	}

	// The original 401 response is replaced by the retry; release it.
	drain(resp)

	retry, err := c.send(ctx, c.attach(req), reqID)
	if err != nil {
		return nil, err
	}

	if retry.StatusCode == http.StatusUnauthorized {
		_ = c.session.Clear()
		c.logger.Warn("retry after refresh still unauthorized",
			slog.String("request_id", reqID),
			slog.String("path", req.Path),
		)
	}

	return retry, nil
}

// send issues a single HTTP request built from the descriptor.
func (c *Client) send(ctx context.Context, req Request, reqID string) (*http.Response, error) {
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", req.Path, err)
	}

	for k, vs := range req.Header {
		httpReq.Header[k] = vs
	}

	c.logger.Debug("sending request",
		slog.String("request_id", reqID),
		slog.String("method", req.Method),
		slog.String("path", req.Path),
	)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to %s: %w", req.Path, err)
	}

	return resp, nil
}

// drain consumes and closes a response body so the underlying
// connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
