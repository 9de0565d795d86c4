package wardapi

import (
	"net/http"
	"strings"
)

// Request describes one API call before credentials are attached.
// Body, when non-empty, is assumed to be JSON-encoded already.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   string
}

// attach returns a copy of req with the bearer credential and default
// content type merged into the headers. The access token is read fresh
// from the session store on every call; a structurally invalid token is
// purged and the request proceeds unauthenticated. The input descriptor
// is never mutated.
func (c *Client) attach(req Request) Request {
	token := c.session.Access()
	if token != "" && !validToken(token) {
		_ = c.session.DeleteAccess()
		token = ""
	}

	header := make(http.Header, len(req.Header)+2)
	for k, vs := range req.Header {
		header[k] = append([]string(nil), vs...)
	}

	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	if req.Body != "" && header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json")
	}

	req.Header = header

	return req
}

// validToken reports whether a token has the shape of a signed JWT:
// three non-empty dot-delimited segments. The signature itself is never
// verified on the client.
func validToken(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}

	for _, p := range parts {
		if p == "" {
			return false
		}
	}

	return true
}
