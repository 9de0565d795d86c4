// Package session persists the signed-in user's credentials and cached
// profile in a local bbolt database so a session survives across runs.
package session

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// dirPerm is the permission mode for the session directory (~/.wardctl/).
	dirPerm = fs.FileMode(0o700)

	// filePerm is the permission mode for the session database file.
	// It holds bearer tokens, so it must not be group/world readable.
	filePerm = fs.FileMode(0o600)

	// openTimeout is the maximum time to wait for the bolt database lock.
	openTimeout = 5 * time.Second
)

var (
	sessionBucket = []byte("session")
	accessKey     = []byte("access_token")
	refreshKey    = []byte("refresh_token")
	userKey       = []byte("user")
)

// Store wraps a bbolt database holding the three session fields: access
// token, refresh token, and the cached user profile. Each field is
// independently readable and writable; Clear removes them as a group.
type Store struct {
	db *bolt.DB
}

// Open opens the session database at the given path, creating it and its
// parent directory if they do not exist. Tests pass a path under
// t.TempDir() for an isolated database.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}

	db, err := bolt.Open(path, filePerm, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening session db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing session db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Access returns the stored access token, or empty string.
func (s *Store) Access() string {
	return s.get(accessKey)
}

// Refresh returns the stored refresh token, or empty string.
func (s *Store) Refresh() string {
	return s.get(refreshKey)
}

// SetAccess persists the access token.
func (s *Store) SetAccess(token string) error {
	return s.put(accessKey, []byte(token))
}

// SetRefresh persists the refresh token.
func (s *Store) SetRefresh(token string) error {
	return s.put(refreshKey, []byte(token))
}

// DeleteAccess removes the stored access token, leaving the refresh token
// and cached profile in place. Used to purge a structurally invalid token.
func (s *Store) DeleteAccess() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Delete(accessKey)
	})
}

// SetUser caches the signed-in user's profile. Serialization failure is
// swallowed: the session stays usable without a cached profile.
func (s *Store) SetUser(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	_ = s.put(userKey, data)
}

// User deserializes the cached profile into out. Returns false on missing
// or malformed data; it never returns an error for the caller to branch on.
func (s *Store) User(out any) bool {
	data := s.getBytes(userKey)
	if data == nil {
		return false
	}

	return json.Unmarshal(data, out) == nil
}

// Clear removes all three session keys as a group. Safe to call when
// some or all of them are already absent.
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionBucket)

		for _, key := range [][]byte{accessKey, refreshKey, userKey} {
			if err := b.Delete(key); err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *Store) put(key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Put(key, value)
	})
}

func (s *Store) get(key []byte) string {
	return string(s.getBytes(key))
}

func (s *Store) getBytes(key []byte) []byte {
	var out []byte

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionBucket).Get(key)
		if v != nil {
			out = make([]byte, len(v))
			copy(out, v)
		}

		return nil
	})

	return out
}
