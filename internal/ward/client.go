// Package ward is the typed client for the facility-nursing API:
// authentication, the patient roster with vitals, and the signed-in
// user's profile. All calls route through the authenticated request
// layer in wardapi.
package ward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	apperrors "github.com/oakfield/wardctl/internal/errors"
	"github.com/oakfield/wardctl/internal/wardapi"
)

const (
	loginPath   = "/api/auth/login"
	logoutPath  = "/api/auth/logout"
	rosterPath  = "/api/patients"
	profilePath = "/api/profile"
)

// Client exposes the facility API operations used by the CLI.
type Client struct {
	api    *wardapi.Client
	logger *slog.Logger
}

// NewClient creates a ward client on top of the authenticated request layer.
func NewClient(api *wardapi.Client, logger *slog.Logger) *Client {
	return &Client{api: api, logger: logger}
}

// Login authenticates with email and password and seeds the session
// store with the returned tokens and profile. The profile cache write is
// best-effort; the token writes are not.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	body, err := json.Marshal(LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("marshalling login request: %w", err)
	}

	resp, err := c.api.Do(ctx, wardapi.Request{
		Method: http.MethodPost,
		Path:   loginPath,
		Body:   string(body),
	})
	if err != nil {
		return nil, fmt.Errorf("signing in: %w", err)
	}

	out, err := wardapi.Decode[LoginResponse](resp, wardapi.DecodeOptions{})
	if err != nil {
		var reqErr *wardapi.RequestError
		if errors.As(err, &reqErr) && reqErr.Status == http.StatusUnauthorized {
			return nil, apperrors.ErrInvalidCredentials
		}

		return nil, fmt.Errorf("signing in: %w", err)
	}

	token := out.Token
	if token == "" {
		token = out.AccessToken
	}

	if token == "" {
		return nil, fmt.Errorf("%w: login response carried no access token", apperrors.ErrAPIResponse)
	}

	store := c.api.Session()
	if err := store.SetAccess(token); err != nil {
		return nil, fmt.Errorf("storing access token: %w", err)
	}

	if err := store.SetRefresh(out.RefreshToken); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	if out.User != nil {
		store.SetUser(out.User)
	}

	c.logger.Info("signed in", slog.String("email", email))

	return out.User, nil
}

// Logout revokes the refresh token on the server and clears the local
// session. The revocation call is best-effort: transport failures and
// error statuses are swallowed, and the session is cleared regardless.
func (c *Client) Logout(ctx context.Context) {
	store := c.api.Session()

	if refreshToken := store.Refresh(); refreshToken != "" {
		body, err := json.Marshal(LogoutRequest{RefreshToken: refreshToken})
		if err == nil {
			resp, err := c.api.Do(ctx, wardapi.Request{
				Method: http.MethodPost,
				Path:   logoutPath,
				Body:   string(body),
			})
			if err != nil {
				c.logger.Debug("logout call failed", slog.Any("error", err))
			} else {
				resp.Body.Close()
			}
		}
	}

	if err := store.Clear(); err != nil {
		c.logger.Warn("clearing session", slog.Any("error", err))
	}
}

// Roster returns the patient roster with each patient's latest vitals.
func (c *Client) Roster(ctx context.Context) ([]Patient, error) {
	resp, err := c.api.Do(ctx, wardapi.Request{
		Method: http.MethodGet,
		Path:   rosterPath,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching roster: %w", err)
	}

	out, err := wardapi.Decode[RosterResponse](resp, wardapi.DecodeOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetching roster: %w", err)
	}

	return out.Patients, nil
}

// Patient returns a single patient by ID.
func (c *Client) Patient(ctx context.Context, id string) (*Patient, error) {
	resp, err := c.api.Do(ctx, wardapi.Request{
		Method: http.MethodGet,
		Path:   rosterPath + "/" + id,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching patient %s: %w", id, err)
	}

	out, err := wardapi.Decode[Patient](resp, wardapi.DecodeOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetching patient %s: %w", id, err)
	}

	return &out, nil
}

// Profile returns the signed-in user's profile from the server.
func (c *Client) Profile(ctx context.Context) (*User, error) {
	resp, err := c.api.Do(ctx, wardapi.Request{
		Method: http.MethodGet,
		Path:   profilePath,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}

	out, err := wardapi.Decode[User](resp, wardapi.DecodeOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}

	return &out, nil
}

// UpdateProfile saves the profile on the server and refreshes the
// cached copy in the session store.
func (c *Client) UpdateProfile(ctx context.Context, u *User) (*User, error) {
	body, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("marshalling profile: %w", err)
	}

	resp, err := c.api.Do(ctx, wardapi.Request{
		Method: http.MethodPut,
		Path:   profilePath,
		Body:   string(body),
	})
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}

	saved, err := wardapi.Decode[User](resp, wardapi.DecodeOptions{AllowEmptyBody: true})
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}

	// Some deployments reply 204; fall back to what we sent.
	if saved.ID == "" {
		saved = *u
	}

	c.api.Session().SetUser(&saved)

	return &saved, nil
}

// CachedUser returns the profile cached at login, or nil.
func (c *Client) CachedUser() *User {
	var u User
	if !c.api.Session().User(&u) {
		return nil
	}

	return &u
}
