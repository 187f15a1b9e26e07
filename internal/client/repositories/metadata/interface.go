// Package metadata stores small key/value settings for the client:
// credentials, the signed-in user and sync bookkeeping.
package metadata

import (
	"context"
	"time"
)

// Well-known keys.
const (
	KeyUserID       = "user_id"
	KeyLogin        = "login"
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyLastSyncAt   = "last_sync_at"

	// Offline sign-in material: a random salt and the argon2id key of the
	// password under it.
	KeySalt     = "salt"
	KeyVerifier = "verifier"
)

// Repository is a byte-valued key/value store for device-local settings.
type Repository interface {
	// Get returns (nil, nil) when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Load returns the present values among keys, or every row when no
	// keys are given.
	Load(ctx context.Context, keys ...string) (map[string][]byte, error)
	// Store upserts all values.
	Store(ctx context.Context, values map[string][]byte) error
	Forget(ctx context.Context, keys ...string) error

	SetTime(ctx context.Context, key string, t time.Time) error
	// GetTime reports false when key is absent.
	GetTime(ctx context.Context, key string) (time.Time, bool, error)
}
