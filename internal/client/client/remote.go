package client

import (
	"context"

	"github.com/dmitrijs2005/geocapsule/internal/api"
	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
)

// Remote is the backend contract the sync engine and services rely on.
// Returned notes are always in the synced state.
type Remote interface {
	// Create fails with common.ErrorAlreadyExists when the id is taken.
	Create(ctx context.Context, n *models.GeoNote) (*models.GeoNote, error)
	// Update sends n's mutable fields with n.Version as the base version.
	// A stale base yields *ConflictError.
	Update(ctx context.Context, n *models.GeoNote) (*models.GeoNote, error)
	// Delete removes id if the server is still at version. Already deleted
	// notes yield common.ErrorNotFound or common.ErrorGone.
	Delete(ctx context.Context, id string, version int64) error
	Get(ctx context.Context, id string) (*models.GeoNote, error)
	// Nearby returns notes the caller may see, nearest first.
	Nearby(ctx context.Context, p geo.Point, radiusMeters float64) ([]*models.GeoNote, error)
}

// Accounts is the authentication part of the backend contract.
type Accounts interface {
	Register(ctx context.Context, login, password string) (*api.TokenResponse, error)
	Login(ctx context.Context, login, password string) (*api.TokenResponse, error)
	SetTokens(access, refresh string)
	// OnTokens registers fn to receive every token pair obtained by a
	// refresh.
	OnTokens(fn func(ctx context.Context, t *api.TokenResponse))
}

// Media hands out presigned upload targets.
type Media interface {
	PresignUpload(ctx context.Context, contentType string) (*api.MediaUploadResponse, error)
}

// Pinger reports whether the backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
