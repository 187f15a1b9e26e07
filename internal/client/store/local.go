package store

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/common"
)

// Put stores a user-made version of n and queues it for sync. A new id
// becomes pending-create; an existing synced or pending-update note becomes
// pending-update with its confirmed version untouched. Notes being deleted
// or in conflict reject the write with *models.TransitionError.
//
// OwnerID and Location are checked against the stored row. CreatedAt is
// owned by the store and the backend and is always kept from the row.
func (s *Store) Put(ctx context.Context, n *models.GeoNote) (*models.GeoNote, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(n.ID)
	defer unlock()

	var out *models.GeoNote
	err := s.inTx(ctx, func(ctx context.Context, r repos) ([]change, error) {
		var err error
		out, err = put(ctx, r, n)
		if err != nil {
			return nil, err
		}
		return []change{upserted(out)}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// Update applies p to the stored note and saves it like Put.
func (s *Store) Update(ctx context.Context, id string, p models.NotePatch) (*models.GeoNote, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	var out *models.GeoNote
	err := s.inTx(ctx, func(ctx context.Context, r repos) ([]change, error) {
		cur, err := r.notes.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		patched, err := models.ApplyUpdate(cur, p, s.clock.Now())
		if err != nil {
			return nil, err
		}
		out, err = put(ctx, r, patched)
		if err != nil {
			return nil, err
		}
		return []change{upserted(out)}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

func put(ctx context.Context, r repos, n *models.GeoNote) (*models.GeoNote, error) {
	out := n.Clone()
	normalize(out)

	cur, err := r.notes.GetByID(ctx, n.ID)
	if errors.Is(err, common.ErrorNotFound) {
		out.SyncState = models.StatePendingCreate
		out.Version = 0
		resetAttempts(out)
		return out, r.notes.Upsert(ctx, out)
	}
	if err != nil {
		return nil, err
	}

	switch {
	case cur.OwnerID != n.OwnerID:
		return nil, &models.ImmutableFieldError{Field: "ownerId"}
	case cur.Location != n.Location:
		return nil, &models.ImmutableFieldError{Field: "location"}
	}

	next := models.StatePendingUpdate
	if cur.SyncState == models.StatePendingCreate || cur.SyncState == models.StateLocalOnly {
		next = models.StatePendingCreate
	}
	// conflict -> pending-update is only reachable through Resolve.
	if cur.SyncState == models.StateConflict {
		return nil, &models.TransitionError{From: cur.SyncState, To: next}
	}
	state, err := cur.SyncState.Transition(next)
	if err != nil {
		return nil, err
	}

	out.SyncState = state
	out.Version = cur.Version
	out.CreatedAt = cur.CreatedAt
	out.LastError = cur.LastError
	out.NextAttemptAt = nil
	out.Sent = cur.Sent
	if state == models.StatePendingCreate {
		out.Attempts = cur.Attempts
	} else {
		out.Attempts = 0
	}

	return out, r.notes.Upsert(ctx, out)
}

// MarkDeleted records the user's intent to delete id. The row stays as
// pending-delete until the backend confirms. A note whose create was never
// sent is dropped at once. Unknown ids return common.ErrorNotFound.
func (s *Store) MarkDeleted(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	return s.inTx(ctx, func(ctx context.Context, r repos) ([]change, error) {
		cur, err := r.notes.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		switch {
		case cur.SyncState == models.StatePendingDelete:
			return nil, nil
		case cur.SyncState == models.StateLocalOnly,
			cur.SyncState == models.StatePendingCreate && !cur.Sent:
			if err := r.notes.Delete(ctx, id); err != nil {
				return nil, err
			}
			return []change{removed(id)}, nil
		}

		state, err := cur.SyncState.Transition(models.StatePendingDelete)
		if err != nil {
			return nil, err
		}
		cur.SyncState = state
		resetAttempts(cur)
		if err := r.notes.Upsert(ctx, cur); err != nil {
			return nil, err
		}
		return []change{removed(id)}, nil
	})
}

// MarkSent records that a create request for id is about to leave for the
// backend. From then on a local delete must go through the backend too.
// Notes past pending-create are left as they are.
func (s *Store) MarkSent(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	return s.inTx(ctx, func(ctx context.Context, r repos) ([]change, error) {
		cur, err := r.notes.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if cur.SyncState != models.StatePendingCreate || cur.Sent {
			return nil, nil
		}
		cur.Sent = true
		return nil, r.notes.Upsert(ctx, cur)
	})
}
