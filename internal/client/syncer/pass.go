package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/geocapsule/internal/client/client"
	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/common"
	"github.com/dmitrijs2005/geocapsule/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type outcome string

const (
	outcomeSynced      outcome = "synced"
	outcomeRemoved     outcome = "removed"
	outcomeConflict    outcome = "conflict"
	outcomeOverwritten outcome = "overwritten"
	outcomeFailed      outcome = "failed"
)

// localError marks failures of the local store. They end the pass instead
// of being retried per note.
type localError struct{ err error }

func (e *localError) Error() string { return "local store: " + e.err.Error() }
func (e *localError) Unwrap() error { return e.err }

func local(err error) error {
	if err == nil {
		return nil
	}
	return &localError{err: err}
}

func (e *Engine) pass(ctx context.Context) (report Report, err error) {
	ctx, span := telemetry.StartSpan(ctx, "sync.pass")
	defer func() { telemetry.End(span, err) }()

	dirty, err := e.store.AllDirty(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list dirty notes: %w", err)
	}
	span.SetAttributes(attribute.Int("sync.dirty", len(dirty)))

	now := e.clock.Now()
	for _, n := range dirty {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if n.NextAttemptAt != nil && n.NextAttemptAt.After(now) {
			report.Waiting++
			if n.Attempts >= e.cfg.MaxAttempts {
				report.Exhausted = append(report.Exhausted, n)
			}
			continue
		}

		o, err := e.syncNote(ctx, n)
		if err != nil {
			var le *localError
			switch {
			case errors.As(err, &le) && changedMeanwhile(le.err):
				e.log.Debug(ctx, "note changed during sync, left for next pass", "id", n.ID, "error", le.err)
				continue
			case errors.As(err, &le):
				return report, le.err
			case errors.Is(err, client.ErrAuthExpired):
				e.mu.Lock()
				e.paused = true
				e.mu.Unlock()
				report.Paused = true
				return report, fmt.Errorf("%w: %w", ErrPaused, err)
			case ctx.Err() != nil:
				return report, ctx.Err()
			}

			o = outcomeFailed
			failed, ferr := e.recordFailure(ctx, n, err)
			if ferr != nil {
				if changedMeanwhile(ferr) {
					continue
				}
				return report, ferr
			}
			if failed.Attempts >= e.cfg.MaxAttempts {
				report.Exhausted = append(report.Exhausted, failed)
			}
		}

		e.notes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(o))))
		switch o {
		case outcomeSynced:
			report.Synced++
		case outcomeRemoved:
			report.Removed++
		case outcomeOverwritten:
			report.Overwritten++
		case outcomeConflict:
			report.Conflicts = append(report.Conflicts, n.ID)
		case outcomeFailed:
			report.Failed++
		}
	}

	e.log.Debug(ctx, "sync pass finished",
		"synced", report.Synced, "removed", report.Removed, "conflicts", len(report.Conflicts),
		"failed", report.Failed, "waiting", report.Waiting)
	return report, nil
}

// changedMeanwhile reports store errors caused by a concurrent local edit
// or delete of the note being synced.
func changedMeanwhile(err error) bool {
	return errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, common.ErrorNotFound)
}

func (e *Engine) recordFailure(ctx context.Context, n *models.GeoNote, cause error) (*models.GeoNote, error) {
	attempts := n.Attempts + 1
	next := e.clock.Now().Add(Backoff(attempts, e.cfg.BackoffBase, e.cfg.BackoffMax))

	e.log.Warn(ctx, "note sync failed", "id", n.ID, "state", n.SyncState, "attempt", attempts, "error", cause)

	failed, err := e.store.RecordFailure(ctx, n.ID, cause, next)
	if err != nil {
		return nil, fmt.Errorf("failed to record sync failure: %w", err)
	}
	return failed, nil
}

func (e *Engine) syncNote(ctx context.Context, n *models.GeoNote) (o outcome, err error) {
	ctx, span := telemetry.StartSpan(ctx, "sync.note",
		attribute.String("note.id", n.ID),
		attribute.String("note.state", string(n.SyncState)),
		attribute.Int64("note.version", n.Version))
	defer func() {
		span.SetAttributes(attribute.String("sync.outcome", string(o)))
		telemetry.End(span, err)
	}()

	switch n.SyncState {
	case models.StatePendingCreate:
		return e.create(ctx, n)
	case models.StatePendingUpdate:
		return e.update(ctx, n)
	case models.StatePendingDelete:
		return e.delete(ctx, n)
	}
	return "", local(&models.TransitionError{From: n.SyncState, To: models.StateSynced})
}

func (e *Engine) create(ctx context.Context, n *models.GeoNote) (outcome, error) {
	sent := n
	if e.media != nil && e.media.IsLocal(n.MediaRef) {
		key, err := e.media.Upload(ctx, n)
		if err != nil {
			return "", err
		}
		withKey := n.Clone()
		withKey.MediaRef = key
		if sent, err = e.store.Put(ctx, withKey); err != nil {
			return "", local(err)
		}
	}

	if err := e.store.MarkSent(ctx, sent.ID); err != nil {
		return "", local(err)
	}

	remote, err := e.remote.Create(ctx, sent)
	switch {
	case err == nil:
		out, err := e.store.MarkSynced(ctx, sent, remote)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return e.undoCreate(ctx, remote)
			}
			return "", local(err)
		}
		if out.SyncState == models.StatePendingDelete {
			// Deleted locally while the create was in flight.
			return e.delete(ctx, out)
		}
		return outcomeSynced, nil

	case errors.Is(err, common.ErrorAlreadyExists):
		// An earlier attempt landed but its response was lost.
		current, err := e.remote.Get(ctx, sent.ID)
		if err != nil {
			return "", err
		}
		// A local edit made since then is kept as pending-update and goes
		// out on the next pass.
		if _, err := e.store.ApplyRemote(ctx, current); err != nil {
			return "", local(err)
		}
		return outcomeSynced, nil
	}
	return "", err
}

func (e *Engine) undoCreate(ctx context.Context, remote *models.GeoNote) (outcome, error) {
	if err := e.remote.Delete(ctx, remote.ID, remote.Version); err != nil &&
		!errors.Is(err, common.ErrorNotFound) && !errors.Is(err, common.ErrorGone) {
		e.log.Warn(ctx, "failed to delete note removed during create", "id", remote.ID, "error", err)
		return "", err
	}
	return outcomeRemoved, nil
}

func (e *Engine) update(ctx context.Context, n *models.GeoNote) (outcome, error) {
	remote, err := e.remote.Update(ctx, n)
	if err == nil {
		if _, err := e.store.MarkSynced(ctx, n, remote); err != nil {
			return "", local(err)
		}
		return outcomeSynced, nil
	}

	var ce *client.ConflictError
	switch {
	case errors.As(err, &ce):
		return e.updateConflict(ctx, n, ce.Current)
	case errors.Is(err, common.ErrorNotFound), errors.Is(err, common.ErrorGone):
		return e.conflict(ctx, n, nil, models.ConflictUpdate)
	}
	return "", err
}

func (e *Engine) updateConflict(ctx context.Context, n, current *models.GeoNote) (outcome, error) {
	if current == nil {
		var err error
		current, err = e.remote.Get(ctx, n.ID)
		if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrorGone) {
			return e.conflict(ctx, n, nil, models.ConflictUpdate)
		}
		if err != nil {
			return "", err
		}
	}

	if e.cfg.Policy != PolicyLastWriterWins {
		return e.conflict(ctx, n, current, models.ConflictUpdate)
	}

	if !n.UpdatedAt.After(current.UpdatedAt) {
		if _, err := e.store.AcceptRemote(ctx, current); err != nil {
			return "", local(err)
		}
		e.log.Info(ctx, "local edit replaced by newer remote version", "id", n.ID, "version", current.Version)
		return outcomeOverwritten, nil
	}

	retry := n.Clone()
	retry.Version = current.Version
	remote, err := e.remote.Update(ctx, retry)
	if err != nil {
		var ce *client.ConflictError
		if errors.As(err, &ce) {
			// Lost the race twice; stop guessing.
			return e.conflict(ctx, n, ce.Current, models.ConflictUpdate)
		}
		return "", err
	}
	if _, err := e.store.MarkSynced(ctx, n, remote); err != nil {
		return "", local(err)
	}
	return outcomeSynced, nil
}

func (e *Engine) delete(ctx context.Context, n *models.GeoNote) (outcome, error) {
	version := n.Version
	if version == 0 {
		// The create may have landed without us seeing the answer.
		current, err := e.remote.Get(ctx, n.ID)
		switch {
		case errors.Is(err, common.ErrorNotFound), errors.Is(err, common.ErrorGone):
			return e.remove(ctx, n.ID)
		case err != nil:
			return "", err
		}
		version = current.Version
	}

	err := e.remote.Delete(ctx, n.ID, version)
	var ce *client.ConflictError
	switch {
	case err == nil, errors.Is(err, common.ErrorNotFound), errors.Is(err, common.ErrorGone):
		return e.remove(ctx, n.ID)
	case errors.As(err, &ce):
		current := ce.Current
		if current == nil {
			current, err = e.remote.Get(ctx, n.ID)
			if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrorGone) {
				return e.remove(ctx, n.ID)
			}
			if err != nil {
				return "", err
			}
		}
		// A delete is never forced over a newer remote version.
		return e.conflict(ctx, n, current, models.ConflictDelete)
	}
	return "", err
}

func (e *Engine) remove(ctx context.Context, id string) (outcome, error) {
	if err := e.store.Remove(ctx, id); err != nil {
		return "", local(err)
	}
	return outcomeRemoved, nil
}

func (e *Engine) conflict(ctx context.Context, n, remote *models.GeoNote, kind models.ConflictKind) (outcome, error) {
	if _, err := e.store.MarkConflict(ctx, n.ID, remote, kind); err != nil {
		return "", local(err)
	}
	e.log.Info(ctx, "sync conflict", "id", n.ID, "kind", kind, "base_version", n.Version)
	return outcomeConflict, nil
}
