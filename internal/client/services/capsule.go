package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/api"
	"github.com/dmitrijs2005/geocapsule/internal/client/capture"
	"github.com/dmitrijs2005/geocapsule/internal/client/client"
	"github.com/dmitrijs2005/geocapsule/internal/client/index"
	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/geocapsule/internal/client/syncer"
	"github.com/dmitrijs2005/geocapsule/internal/clock"
	"github.com/dmitrijs2005/geocapsule/internal/common"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
	"github.com/dmitrijs2005/geocapsule/internal/logging"
)

// NoteStore is the local store as the capsule service sees it.
type NoteStore interface {
	Get(ctx context.Context, id string) (*models.GeoNote, error)
	List(ctx context.Context) ([]*models.GeoNote, error)
	Update(ctx context.Context, id string, p models.NotePatch) (*models.GeoNote, error)
	MarkDeleted(ctx context.Context, id string) error
	ApplyRemote(ctx context.Context, remote *models.GeoNote) (*models.GeoNote, error)
	ApplyRemoteDelete(ctx context.Context, id string) (bool, error)
	Conflicts(ctx context.Context) ([]*models.Conflict, error)
	Resolve(ctx context.Context, id string, res models.Resolution) (*models.GeoNote, error)
}

// Capturer creates notes from media files.
type Capturer interface {
	Capture(ctx context.Context, req capture.Request) (*models.GeoNote, error)
}

// Syncer runs sync passes.
type Syncer interface {
	SyncOnce(ctx context.Context) (syncer.Report, error)
	Trigger()
}

// CapsuleService is everything the CLI does with notes.
type CapsuleService interface {
	Capture(ctx context.Context, req capture.Request) (*models.GeoNote, error)
	Update(ctx context.Context, id string, p models.NotePatch) (*models.GeoNote, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.GeoNote, error)
	List(ctx context.Context) ([]*models.GeoNote, error)
	// Nearby answers from the local index once it is loaded and asks the
	// backend before that.
	Nearby(ctx context.Context, p geo.Point, radiusMeters float64, viewerID string) ([]index.Hit, error)
	// Pull stores what the backend has around p and returns how many
	// notes were merged.
	Pull(ctx context.Context, p geo.Point, radiusMeters float64) (int, error)
	// Refresh merges one pushed change event.
	Refresh(ctx context.Context, ev api.ChangeEvent) error
	Sync(ctx context.Context) (syncer.Report, error)
	LastSync(ctx context.Context) (time.Time, bool, error)
	Conflicts(ctx context.Context) ([]*models.Conflict, error)
	Resolve(ctx context.Context, id string, res models.Resolution) (*models.GeoNote, error)
}

type capsuleService struct {
	store   NoteStore
	capture Capturer
	index   *index.Index
	remote  client.Remote
	syncer  Syncer
	meta    metadata.Repository
	clock   clock.Clock
	log     logging.Logger
}

func NewCapsuleService(st NoteStore, cp Capturer, ix *index.Index, remote client.Remote, sy Syncer,
	meta metadata.Repository, clk clock.Clock, log logging.Logger) CapsuleService {
	return &capsuleService{store: st, capture: cp, index: ix, remote: remote, syncer: sy, meta: meta, clock: clk, log: log}
}

func (s *capsuleService) Capture(ctx context.Context, req capture.Request) (*models.GeoNote, error) {
	n, err := s.capture.Capture(ctx, req)
	if err != nil {
		return nil, err
	}
	s.syncer.Trigger()
	return n, nil
}

func (s *capsuleService) Update(ctx context.Context, id string, p models.NotePatch) (*models.GeoNote, error) {
	n, err := s.store.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.syncer.Trigger()
	return n, nil
}

func (s *capsuleService) Delete(ctx context.Context, id string) error {
	if err := s.store.MarkDeleted(ctx, id); err != nil {
		return err
	}
	s.syncer.Trigger()
	return nil
}

func (s *capsuleService) Get(ctx context.Context, id string) (*models.GeoNote, error) {
	return s.store.Get(ctx, id)
}

func (s *capsuleService) List(ctx context.Context) ([]*models.GeoNote, error) {
	return s.store.List(ctx)
}

func (s *capsuleService) Nearby(ctx context.Context, p geo.Point, radiusMeters float64, viewerID string) ([]index.Hit, error) {
	if err := geo.ValidateRadius(radiusMeters); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorValidation, err)
	}
	if s.index.Warm() {
		return s.index.Query(p, radiusMeters, viewerID), nil
	}

	notes, err := s.remote.Nearby(ctx, p, radiusMeters)
	if err != nil {
		return nil, fmt.Errorf("index not ready and backend nearby failed: %w", err)
	}

	now := s.clock.Now()
	hits := make([]index.Hit, 0, len(notes))
	for _, n := range notes {
		if !n.VisibleTo(viewerID, now) {
			continue
		}
		if d := geo.Distance(p, n.Location); d <= radiusMeters {
			hits = append(hits, index.Hit{Note: n, Distance: d})
		}
	}
	index.SortHits(hits)
	return hits, nil
}

func (s *capsuleService) Pull(ctx context.Context, p geo.Point, radiusMeters float64) (int, error) {
	if err := geo.ValidateRadius(radiusMeters); err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrorValidation, err)
	}
	notes, err := s.remote.Nearby(ctx, p, radiusMeters)
	if err != nil {
		return 0, err
	}

	merged := 0
	for _, n := range notes {
		if err := ctx.Err(); err != nil {
			return merged, err
		}
		if _, err := s.store.ApplyRemote(ctx, n); err != nil {
			if errors.Is(err, models.ErrInvalidTransition) {
				continue
			}
			return merged, err
		}
		merged++
	}
	return merged, nil
}

func (s *capsuleService) Refresh(ctx context.Context, ev api.ChangeEvent) error {
	if ev.CapsuleID == "" {
		return nil
	}
	if ev.Kind != api.ChangeDeleted {
		n, err := s.remote.Get(ctx, ev.CapsuleID)
		switch {
		case err == nil:
			_, err = s.store.ApplyRemote(ctx, n)
			return err
		case !errors.Is(err, common.ErrorNotFound) && !errors.Is(err, common.ErrorGone):
			return err
		}
	}
	_, err := s.store.ApplyRemoteDelete(ctx, ev.CapsuleID)
	return err
}

func (s *capsuleService) Sync(ctx context.Context) (syncer.Report, error) {
	r, err := s.syncer.SyncOnce(ctx)
	if err != nil || r.Deferred {
		return r, err
	}
	if err := s.meta.SetTime(ctx, metadata.KeyLastSyncAt, s.clock.Now()); err != nil {
		s.log.Warn(ctx, "failed to record sync time", "error", err)
	}
	return r, nil
}

func (s *capsuleService) LastSync(ctx context.Context) (time.Time, bool, error) {
	return s.meta.GetTime(ctx, metadata.KeyLastSyncAt)
}

func (s *capsuleService) Conflicts(ctx context.Context) ([]*models.Conflict, error) {
	return s.store.Conflicts(ctx)
}

func (s *capsuleService) Resolve(ctx context.Context, id string, res models.Resolution) (*models.GeoNote, error) {
	n, err := s.store.Resolve(ctx, id, res)
	if err != nil {
		return nil, err
	}
	s.syncer.Trigger()
	return n, nil
}
