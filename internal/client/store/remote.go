package store

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/common"
)

func asSynced(remote *models.GeoNote) *models.GeoNote {
	out := remote.Clone()
	normalize(out)
	out.SyncState = models.StateSynced
	out.Sent = false
	resetAttempts(out)
	return out
}

// ApplyRemote merges a server-confirmed copy into local state.
//
// A missing or clean local note is overwritten and becomes synced, unless
// the remote copy is older than what is already stored. A pending-create
// note (duplicate id after a lost create response) adopts the server
// version and timestamps and is synced only if the content matches. A
// pending-update or pending-delete note whose base version is behind the
// remote one moves to conflict with the remote copy staged. In every other
// case the local intent wins and nothing changes.
func (s *Store) ApplyRemote(ctx context.Context, remote *models.GeoNote) (*models.GeoNote, error) {
	if err := remote.Validate(); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(remote.ID)
	defer unlock()

	var out *models.GeoNote
	err := s.inTx(ctx, func(ctx context.Context, r repos) ([]change, error) {
		cur, err := r.notes.GetByID(ctx, remote.ID)
		if errors.Is(err, common.ErrorNotFound) {
			out = asSynced(remote)
			return []change{upserted(out)}, r.notes.Upsert(ctx, out)
		}
		if err != nil {
			return nil, err
		}

		switch cur.SyncState {
		case models.StateSynced, models.StateLocalOnly:
			if remote.Version < cur.Version {
				out = cur
				return nil, nil
			}
			out = asSynced(remote)
			return []change{upserted(out)}, r.notes.Upsert(ctx, out)

		case models.StatePendingCreate:
			out = cur.Clone()
			out.Version = remote.Version
			out.CreatedAt = models.Timestamp(remote.CreatedAt)
			if cur.SameContent(remote) {
				out = asSynced(remote)
			} else {
				out.SyncState = models.StatePendingUpdate
				resetAttempts(out)
			}
			return []change{upserted(out)}, r.notes.Upsert(ctx, out)

		case models.StatePendingUpdate, models.StatePendingDelete:
			if remote.Version <= cur.Version {
				out = cur
				return nil, nil
			}
			kind := models.ConflictUpdate
			if cur.SyncState == models.StatePendingDelete {
				kind = models.ConflictDelete
			}
			out, err = s.markConflict(ctx, r, cur, remote, kind)
			if err != nil {
				return nil, err
			}
			return []change{upserted(out)}, nil

		case models.StateConflict:
			out = cur
			c, err := r.conflicts.Get(ctx, cur.ID)
			if err != nil {
				return nil, err
			}
			if c.Remote != nil && remote.Version <= c.RemoteVersion {
				return nil, nil
			}
			c.Remote = asSynced(remote)
			c.RemoteVersion = remote.Version
			return nil, r.conflicts.Save(ctx, c)
		}
		return nil, &models.TransitionError{From: cur.SyncState, To: models.StateSynced}
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// ApplyRemoteDelete merges the news that id no longer exists on the
// backend. Clean copies and pending deletes are dropped. A pending update
// becomes an update conflict against a deleted remote. A pending create
// was never seen by the backend and is kept. It reports whether the note
// is gone locally.
func (s *Store) ApplyRemoteDelete(ctx context.Context, id string) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	gone := false
	err := s.inTx(ctx, func(ctx context.Context, r repos) ([]change, error) {
		cur, err := r.notes.GetByID(ctx, id)
		if errors.Is(err, common.ErrorNotFound) {
			gone = true
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		switch cur.SyncState {
		case models.StateSynced, models.StateLocalOnly, models.StatePendingDelete:
			if err := r.conflicts.Delete(ctx, id); err != nil {
				return nil, err
			}
			gone = true
			return []change{removed(id)}, r.notes.Delete(ctx, id)

		case models.StatePendingUpdate:
			out, err := s.markConflict(ctx, r, cur, nil, models.ConflictUpdate)
			if err != nil {
				return nil, err
			}
			return []change{upserted(out)}, nil

		case models.StateConflict:
			c, err := r.conflicts.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			c.Remote = nil
			c.RemoteVersion = 0
			return nil, r.conflicts.Save(ctx, c)
		}
		return nil, nil
	})
	return gone, err
}

// MarkSynced records that the backend accepted sent and answered with
// remote. If the note was edited while the request was in flight, the
// edits are kept and re-queued on top of the new version. If the note was
// removed meanwhile, common.ErrorNotFound is returned so the caller can
// undo the remote side.
func (s *Store) MarkSynced(ctx context.Context, sent, remote *models.GeoNote) (*models.GeoNote, error) {
	unlock := s.locks.Lock(sent.ID)
	defer unlock()

	var out *models.GeoNote
	err := s.inTx(ctx, func(ctx context.Context, r repos) ([]change, error) {
		cur, err := r.notes.GetByID(ctx, sent.ID)
		if err != nil {
			return nil, err
		}

		switch cur.SyncState {
		case models.StatePendingDelete:
			out = cur
			out.Version = remote.Version
			resetAttempts(out)
			return nil, r.notes.Upsert(ctx, out)

		case models.StatePendingCreate, models.StatePendingUpdate:
			if cur.SameContent(sent) {
				out = asSynced(remote)
			} else {
				out = cur
				out.Version = remote.Version
				out.CreatedAt = models.Timestamp(remote.CreatedAt)
				out.SyncState = models.StatePendingUpdate
				resetAttempts(out)
			}
			return []change{upserted(out)}, r.notes.Upsert(ctx, out)

		case models.StateSynced:
			if remote.Version < cur.Version {
				out = cur
				return nil, nil
			}
			out = asSynced(remote)
			return []change{upserted(out)}, r.notes.Upsert(ctx, out)
		}

		// conflict: a newer remote change arrived while the request was in
		// flight; leave it for resolution.
		out = cur
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// MarkConflict moves id to conflict and stages remote next to the local
// copy. remote is nil when the note no longer exists on the backend.
func (s *Store) MarkConflict(ctx context.Context, id string, remote *models.GeoNote, kind models.ConflictKind) (*models.GeoNote, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	var out *models.GeoNote
	err := s.inTx(ctx, func(ctx context.Context, r repos) ([]change, error) {
		cur, err := r.notes.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out, err = s.markConflict(ctx, r, cur, remote, kind)
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

func (s *Store) markConflict(ctx context.Context, r repos, cur, remote *models.GeoNote, kind models.ConflictKind) (*models.GeoNote, error) {
	c := &models.Conflict{
		NoteID:      cur.ID,
		Kind:        kind,
		Local:       cur.Clone(),
		BaseVersion: cur.Version,
		DetectedAt:  models.Timestamp(s.clock.Now()),
	}
	if cur.SyncState == models.StateConflict {
		prev, err := r.conflicts.Get(ctx, cur.ID)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		if prev != nil {
			c.Local = prev.Local
			c.Kind = prev.Kind
			c.BaseVersion = prev.BaseVersion
			c.DetectedAt = prev.DetectedAt
		}
	}
	if remote != nil {
		c.Remote = asSynced(remote)
		c.RemoteVersion = remote.Version
	}

	state, err := cur.SyncState.Transition(models.StateConflict)
	if err != nil {
		return nil, err
	}

	out := cur.Clone()
	out.SyncState = state
	resetAttempts(out)

	if err := r.conflicts.Save(ctx, c); err != nil {
		return nil, err
	}
	if err := r.notes.Upsert(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// AcceptRemote overwrites the local note with remote regardless of local
// intent. It is how a last-writer-wins policy resolves an update conflict
// the server side won.
func (s *Store) AcceptRemote(ctx context.Context, remote *models.GeoNote) (*models.GeoNote, error) {
	if err := remote.Validate(); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(remote.ID)
	defer unlock()

	out := asSynced(remote)
	err := s.inTx(ctx, func(ctx context.Context, r repos) ([]change, error) {
		if err := r.conflicts.Delete(ctx, remote.ID); err != nil {
			return nil, err
		}
		return []change{upserted(out)}, r.notes.Upsert(ctx, out)
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// Remove physically deletes id and any open conflict for it. It is called
// once the backend has confirmed the delete. Missing ids are ignored.
func (s *Store) Remove(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	return s.inTx(ctx, func(ctx context.Context, r repos) ([]change, error) {
		if err := r.conflicts.Delete(ctx, id); err != nil {
			return nil, err
		}
		if err := r.notes.Delete(ctx, id); err != nil {
			return nil, err
		}
		return []change{removed(id)}, nil
	})
}

// RecordFailure counts a failed sync attempt for id and gates the next one
// until next. The updated note is returned so callers can see the attempt
// count.
func (s *Store) RecordFailure(ctx context.Context, id string, cause error, next time.Time) (*models.GeoNote, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	var out *models.GeoNote
	err := s.inTx(ctx, func(ctx context.Context, r repos) ([]change, error) {
		cur, err := r.notes.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !cur.SyncState.IsDirty() {
			out = cur
			return nil, nil
		}
		cur.Attempts++
		t := models.Timestamp(next)
		cur.NextAttemptAt = &t
		if cause != nil {
			cur.LastError = cause.Error()
		}
		out = cur
		return nil, r.notes.Upsert(ctx, cur)
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}
