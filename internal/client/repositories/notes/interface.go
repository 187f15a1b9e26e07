package notes

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/geocapsule/internal/client/models"
)

// ErrCorruptRecord is returned when a stored row cannot be turned back into
// a valid note.
var ErrCorruptRecord = errors.New("corrupt note record")

// Repository describes storage operations for notes. Rows keep the order
// in which their ids were first inserted.
type Repository interface {
	// Upsert inserts n or replaces every column of the row with the same id.
	Upsert(ctx context.Context, n *models.GeoNote) error

	// GetByID returns common.ErrorNotFound when the id is unknown.
	GetByID(ctx context.Context, id string) (*models.GeoNote, error)

	// Delete physically removes the row. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// ListDirty returns pending-create, pending-update and pending-delete
	// notes in ascending creation order.
	ListDirty(ctx context.Context) ([]*models.GeoNote, error)

	// ListActive returns every note except pending-delete ones.
	ListActive(ctx context.Context) ([]*models.GeoNote, error)

	// ListByState returns notes in state, in creation order.
	ListByState(ctx context.Context, state models.SyncState) ([]*models.GeoNote, error)
}
