// /internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotFound is returned by Get when no record exists.
var ErrNotFound = errors.New("storage: not found")

// Entity kinds persisted by the engine.
const (
	KindRelationship = "relationship"
	KindPerson       = "person"
	KindMood         = "mood"
	KindMomentum     = "momentum"
	KindIntimacy     = "intimacy"
	KindThread       = "thread"
	KindLoop         = "loop"
)

// Entry is one record returned by List.
type Entry struct {
	Key   string
	Value []byte
}

// Store is the persistence collaborator. Records are opaque JSON blobs keyed
// by (kind, key). Keys are built with Key so that List can match by user prefix.
type Store interface {
	Get(ctx context.Context, kind, key string) ([]byte, error)
	Put(ctx context.Context, kind, key string, value []byte) error
	Delete(ctx context.Context, kind, key string) error
	// List returns all records of kind whose key starts with prefix, ordered by key.
	List(ctx context.Context, kind, prefix string) ([]Entry, error)
	Close() error
}

const sep = "/"

// Key joins a user ID and optional sub IDs into a record key. The user ID is
// path-escaped so a "/" inside it can never reach another user's prefix.
func Key(userID string, sub ...string) string {
	u := url.PathEscape(userID)
	if len(sub) == 0 {
		return u
	}
	return u + sep + strings.Join(sub, sep)
}

// UserPrefix is the List prefix matching every sub-record of userID and no other user.
func UserPrefix(userID string) string {
	return url.PathEscape(userID) + sep
}

// UserOf extracts the unescaped user ID from a record key.
func UserOf(key string) string {
	if i := strings.Index(key, sep); i >= 0 {
		key = key[:i]
	}
	if u, err := url.PathUnescape(key); err == nil {
		return u
	}
	return key
}

// ListUsers returns the distinct user IDs that own at least one record of kind.
func ListUsers(ctx context.Context, s Store, kind string) ([]string, error) {
	entries, err := s.List(ctx, kind, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var users []string
	for _, e := range entries {
		u := UserOf(e.Key)
		if !seen[u] {
			seen[u] = true
			users = append(users, u)
		}
	}
	return users, nil
}

func validate(kind, key string) error {
	if kind == "" {
		return fmt.Errorf("storage: empty kind")
	}
	if key == "" {
		return fmt.Errorf("storage: empty key for kind %q", kind)
	}
	return nil
}
