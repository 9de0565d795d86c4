package wardapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	oldToken = "old.old.old"
	newToken = "new.new.new"
)

// authServer is an httptest server whose resource endpoint accepts only
// wantToken and whose refresh endpoint hands out exactly that token.
func authServer(t *testing.T, resourceCalls, refreshCalls *atomic.Int32) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case refreshPath:
			refreshCalls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"token":%q}`, newToken)
		default:
			resourceCalls.Add(1)

			if r.Header.Get("Authorization") != "Bearer "+newToken {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"ok":true}`))
		}
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestDo_PassThroughSuccess(t *testing.T) {
	var resourceCalls, refreshCalls atomic.Int32

	srv := authServer(t, &resourceCalls, &refreshCalls)
	c := testClient(t, srv.URL)
	require.NoError(t, c.session.SetAccess(newToken))
	require.NoError(t, c.session.SetRefresh("refresh-1"))

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/patients"})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), resourceCalls.Load())
	assert.Zero(t, refreshCalls.Load())
}

func TestDo_PassThroughNonAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	require.NoError(t, c.session.SetAccess(newToken))
	require.NoError(t, c.session.SetRefresh("refresh-1"))

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/patients"})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode, "non-auth errors pass through without a retry")
	assert.Equal(t, "refresh-1", c.session.Refresh(), "session untouched on non-auth errors")
}

func TestDo_RefreshAndRetry(t *testing.T) {
	var resourceCalls, refreshCalls atomic.Int32

	srv := authServer(t, &resourceCalls, &refreshCalls)
	c := testClient(t, srv.URL)
	require.NoError(t, c.session.SetAccess(oldToken))
	require.NoError(t, c.session.SetRefresh("refresh-1"))

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/patients"})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), resourceCalls.Load(), "initial send plus one retry")
	assert.Equal(t, int32(1), refreshCalls.Load())
	assert.Equal(t, newToken, c.session.Access())
}

func TestDo_RefreshFailsReturnsOriginalResponse(t *testing.T) {
	var resourceCalls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == refreshPath {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		resourceCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	require.NoError(t, c.session.SetAccess(oldToken))
	require.NoError(t, c.session.SetRefresh("dead-token"))

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/patients"})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "original 401 is handed back")
	assert.Equal(t, int32(1), resourceCalls.Load(), "no retry without a fresh credential")
	assert.Empty(t, c.session.Access(), "session cleared on unrecoverable expiry")
	assert.Empty(t, c.session.Refresh())
}

func TestDo_RetryStillUnauthorized(t *testing.T) {
	var resourceCalls, refreshCalls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == refreshPath {
			refreshCalls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"token":%q}`, newToken)

			return
		}

		// The resource rejects even the fresh token.
		resourceCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	require.NoError(t, c.session.SetAccess(oldToken))
	require.NoError(t, c.session.SetRefresh("refresh-1"))

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/patients"})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "retry response returned as-is")
	assert.Equal(t, int32(2), resourceCalls.Load(), "exactly two sends, never a third")
	assert.Equal(t, int32(1), refreshCalls.Load())
	assert.Empty(t, c.session.Access(), "session cleared when the retry also expires")
}

func TestDo_SingleFlightRefresh(t *testing.T) {
	const concurrency = 8

	var resourceCalls, refreshCalls atomic.Int32

	// Barrier: hold every initial (expired) request until all callers
	// have arrived, so the 401s land together and the refresh attempts
	// overlap.
	var arrived sync.WaitGroup
	arrived.Add(concurrency)
	release := make(chan struct{})

	go func() {
		arrived.Wait()
		close(release)
	}()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case refreshPath:
			refreshCalls.Add(1)
			// Stay in flight long enough for every caller to join.
			time.Sleep(200 * time.Millisecond)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"token":%q}`, newToken)
		default:
			resourceCalls.Add(1)

			if r.Header.Get("Authorization") != "Bearer "+newToken {
				arrived.Done()
				<-release
				w.WriteHeader(http.StatusUnauthorized)

				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	require.NoError(t, c.session.SetAccess(oldToken))
	require.NoError(t, c.session.SetRefresh("refresh-1"))

	var g sync.WaitGroup

	statuses := make([]int, concurrency)

	for i := 0; i < concurrency; i++ {
		i := i

		g.Add(1)

		go func() {
			defer g.Done()

			resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/patients"})
			if err != nil {
				return
			}
			defer resp.Body.Close()

			statuses[i] = resp.StatusCode
		}()
	}

	g.Wait()

	assert.Equal(t, int32(1), refreshCalls.Load(), "concurrent expiries collapse into one refresh")
	assert.LessOrEqual(t, resourceCalls.Load(), int32(2*concurrency), "at most one retry per caller")

	for i, status := range statuses {
		assert.Equal(t, http.StatusOK, status, "caller %d should succeed after the shared refresh", i)
	}
}

func TestDo_TransportError(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockDoer(ctrl)

	mock.EXPECT().Do(gomock.Any()).Return(nil, fmt.Errorf("connection refused"))

	c := New("http://ward.test", testSession(t), mock, testLogger())

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/patients"})
	assert.ErrorContains(t, err, "connection refused")
}
