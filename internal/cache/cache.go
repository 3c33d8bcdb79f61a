// Package cache provides the read-through cache used by the authorization
// middleware, with Redis and in-memory backends behind one interface.
package cache

import (
	"context"
	"time"
)

// DefaultTTL applies when a Set call passes a non-positive TTL.
const DefaultTTL = 300 * time.Second

// Stats is a point-in-time snapshot of cache contents.
type Stats struct {
	Size int      `json:"size"`
	Keys []string `json:"keys"`
}

// Cache stores JSON-encoded values with per-key TTLs.
type Cache interface {
	// Get decodes the cached value into dest and reports whether the key
	// was present and unexpired.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePattern removes every key matching the backend's pattern
	// syntax (glob for Redis, regexp for the memory cache).
	DeletePattern(ctx context.Context, pattern string) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
}

// UserKey caches the user row consulted by the permission middleware.
func UserKey(userID string) string { return "user:" + userID }

// UserRolesKey caches role lookups for a user.
func UserRolesKey(userID string) string { return "user:" + userID + ":roles" }

// AllUsersKey caches the admin user listing.
func AllUsersKey() string { return "users:all" }
