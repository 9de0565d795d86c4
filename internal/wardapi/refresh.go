package wardapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"
)

const refreshPath = "/api/auth/refresh"

// refreshOnce exchanges the refresh token for a new access token,
// returning empty string on any failure. Concurrent callers collapse
// into a single exchange and all receive its outcome; the flight key is
// released on settlement so a later expiry can start a new attempt.
// Callers that join an in-flight exchange run under the context of the
// caller that started it.
func (c *Client) refreshOnce(ctx context.Context) string {
	v, _, _ := c.flight.Do("refresh", func() (any, error) {
		return c.refresh(ctx), nil
	})

	token, _ := v.(string)

	return token
}

// refresh performs the actual exchange. It never returns an error:
// transport failures, bad statuses, and ambiguous bodies all fold into
// an empty result. Only a 401/403 from the refresh endpoint proves the
// refresh token itself is dead, and only that clears the session.
func (c *Client) refresh(ctx context.Context) string {
	refreshToken := c.session.Refresh()
	if refreshToken == "" {
		return ""
	}

	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+refreshPath, bytes.NewReader(payload))
	if err != nil {
		return ""
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("token refresh transport failure", slog.Any("error", err))
		return ""
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			c.logger.Info("refresh token rejected, clearing session",
				slog.Int("status", resp.StatusCode),
			)
			_ = c.session.Clear()
		}

		return ""
	}

	// Servers differ on the field name; try each in fixed priority.
	// A success body with no recognizable token is treated as a failed
	// refresh, but the session is kept: the response is ambiguous, not
	// proof the refresh token is invalid.
	token := gjson.GetBytes(body, "token").Str
	if token == "" {
		token = gjson.GetBytes(body, "accessToken").Str
	}

	if token == "" {
		c.logger.Warn("refresh response carried no access token")
		return ""
	}

	_ = c.session.SetAccess(token)

	if rotated := gjson.GetBytes(body, "refreshToken").Str; rotated != "" {
		_ = c.session.SetRefresh(rotated)
	}

	c.logger.Debug("access token refreshed")

	return token
}
