// Package conflicts keeps both sides of unresolved sync conflicts. The note
// copies are stored as CBOR snapshots so the full record survives restarts
// even if the notes table row is later overwritten.
package conflicts

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/geocapsule/internal/client/models"
)

// ErrCorruptSnapshot is returned when a stored snapshot cannot be decoded.
var ErrCorruptSnapshot = errors.New("corrupt conflict snapshot")

type Repository interface {
	// Save inserts or replaces the conflict for c.NoteID.
	Save(ctx context.Context, c *models.Conflict) error
	// Get returns common.ErrorNotFound when there is no open conflict.
	Get(ctx context.Context, noteID string) (*models.Conflict, error)
	List(ctx context.Context) ([]*models.Conflict, error)
	Delete(ctx context.Context, noteID string) error
}
