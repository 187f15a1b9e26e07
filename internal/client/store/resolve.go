package store

import (
	"context"

	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/google/uuid"
)

// Resolve closes the conflict on id.
//
// KeepRemote adopts the staged server copy, or drops the note if the server
// deleted it. KeepLocal re-queues the local intent on top of the server
// version: an edit becomes pending-update, a delete becomes pending-delete.
// Keeping a local edit of a note the server deleted re-creates it under a
// new id, since the old one is gone for good.
//
// The returned note is nil when nothing is left locally.
func (s *Store) Resolve(ctx context.Context, id string, res models.Resolution) (*models.GeoNote, error) {
	if !res.Valid() {
		return nil, &models.ValidationError{Field: "resolution", Reason: "unknown resolution " + string(res)}
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	var out *models.GeoNote
	err := s.inTx(ctx, func(ctx context.Context, r repos) ([]change, error) {
		c, err := r.conflicts.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		cur, err := r.notes.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := r.conflicts.Delete(ctx, id); err != nil {
			return nil, err
		}

		switch {
		case res == models.KeepRemote && c.Remote == nil,
			res == models.KeepLocal && c.Remote == nil && c.Kind == models.ConflictDelete:
			return []change{removed(id)}, r.notes.Delete(ctx, id)

		case res == models.KeepRemote:
			out = asSynced(c.Remote)
			return []change{upserted(out)}, r.notes.Upsert(ctx, out)

		case c.Remote == nil:
			// Local edit of a note deleted on the backend.
			out = cur.Clone()
			out.ID = uuid.NewString()
			out.Version = 0
			out.SyncState = models.StatePendingCreate
			out.Sent = false
			resetAttempts(out)
			if err := r.notes.Delete(ctx, id); err != nil {
				return nil, err
			}
			if err := r.notes.Upsert(ctx, out); err != nil {
				return nil, err
			}
			return []change{removed(id), upserted(out)}, nil

		case c.Kind == models.ConflictDelete:
			// Adopt the server copy, then delete it at the server's version.
			out = asSynced(c.Remote)
			state, err := out.SyncState.Transition(models.StatePendingDelete)
			if err != nil {
				return nil, err
			}
			out.SyncState = state
			return []change{removed(id)}, r.notes.Upsert(ctx, out)

		default:
			out = cur.Clone()
			state, err := out.SyncState.Transition(models.StatePendingUpdate)
			if err != nil {
				return nil, err
			}
			out.SyncState = state
			out.Version = c.RemoteVersion
			resetAttempts(out)
			return []change{upserted(out)}, r.notes.Upsert(ctx, out)
		}
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}
