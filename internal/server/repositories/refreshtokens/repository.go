// Package refreshtokens declares the server-side repository contract for
// refresh tokens. Tokens are opaque and single use; only their SHA-256
// digest is persisted.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/server/models"
)

type Repository interface {
	// Create stores tokenHash for userID, valid until expires.
	Create(ctx context.Context, userID string, tokenHash string, expires time.Time) error

	// Consume deletes the token and returns what it was issued for, so a
	// token can be exchanged at most once. A missing token is
	// common.ErrorNotFound.
	Consume(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// DeleteExpired removes tokens that expired before now and reports how
	// many went.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
