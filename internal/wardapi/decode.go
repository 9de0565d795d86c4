package wardapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrUnexpectedContent is returned by Decode when a successful response
// has no decodable JSON body and the caller did not allow one.
var ErrUnexpectedContent = errors.New("unexpected response content")

// RequestError is the uniform error shape for non-2xx responses. Status
// carries the HTTP status code so callers can branch on it, e.g. to
// detect expiry-driven failures.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("API request failed (%d): %s", e.Status, e.Message)
}

// DecodeOptions controls Decode behavior.
type DecodeOptions struct {
	// AllowEmptyBody makes Decode return the zero value instead of an
	// error when the server responds with 204 or a non-JSON body.
	AllowEmptyBody bool
}

// Decode validates the HTTP outcome and JSON-decodes the body into T.
// It consumes and closes the response body. Non-2xx statuses become a
// *RequestError with a human-readable message extracted from the body.
func Decode[T any](resp *http.Response, opts DecodeOptions) (T, error) {
	var zero T

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return zero, &RequestError{
			Status:  resp.StatusCode,
			Message: errorMessage(resp.StatusCode, body),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode == http.StatusNoContent || len(body) == 0 || !strings.HasPrefix(contentType, "application/json") {
		if opts.AllowEmptyBody {
			return zero, nil
		}

		return zero, fmt.Errorf("%w: status %d, content type %q", ErrUnexpectedContent, resp.StatusCode, contentType)
	}

	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return zero, fmt.Errorf("decoding response: %w", err)
	}

	return out, nil
}

// errorMessage extracts a human-readable message from an error body:
// a JSON "message" or "error" field, else the raw text, else a generic
// fallback naming the status.
func errorMessage(status int, body []byte) string {
	if msg := gjson.GetBytes(body, "message").Str; msg != "" {
		return msg
	}

	if msg := gjson.GetBytes(body, "error").Str; msg != "" {
		return msg
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}

	return fmt.Sprintf("request failed with status %d", status)
}
