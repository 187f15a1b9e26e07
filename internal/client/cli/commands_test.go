package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/client/capture"
	"github.com/dmitrijs2005/geocapsule/internal/client/index"
	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/client/services"
	"github.com/dmitrijs2005/geocapsule/internal/client/syncer"
	"github.com/dmitrijs2005/geocapsule/internal/common"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var chennai = geo.Point{Lat: 13.08, Lng: 80.27}

type fakeCapsules struct {
	services.CapsuleService

	captured *capture.Request
	patch    *models.NotePatch
	deleted  string
	notes    map[string]*models.GeoNote

	nearbyAt     geo.Point
	nearbyRadius float64
	nearbyViewer string
	hits         []index.Hit

	report    syncer.Report
	conflicts []*models.Conflict
	resolved  models.Resolution
}

func (f *fakeCapsules) Capture(_ context.Context, req capture.Request) (*models.GeoNote, error) {
	f.captured = &req
	return &models.GeoNote{ID: "n1", Location: *req.Location}, nil
}

func (f *fakeCapsules) Get(_ context.Context, id string) (*models.GeoNote, error) {
	n, ok := f.notes[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return n, nil
}

func (f *fakeCapsules) Update(_ context.Context, id string, p models.NotePatch) (*models.GeoNote, error) {
	f.patch = &p
	return &models.GeoNote{ID: id, SyncState: models.StatePendingUpdate}, nil
}

func (f *fakeCapsules) Delete(_ context.Context, id string) error {
	f.deleted = id
	return nil
}

func (f *fakeCapsules) List(context.Context) ([]*models.GeoNote, error) {
	var out []*models.GeoNote
	for _, n := range f.notes {
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeCapsules) Nearby(_ context.Context, p geo.Point, r float64, viewer string) ([]index.Hit, error) {
	f.nearbyAt, f.nearbyRadius, f.nearbyViewer = p, r, viewer
	return f.hits, nil
}

func (f *fakeCapsules) Sync(context.Context) (syncer.Report, error) { return f.report, nil }

func (f *fakeCapsules) LastSync(context.Context) (time.Time, bool, error) { return t0, true, nil }

func (f *fakeCapsules) Conflicts(context.Context) ([]*models.Conflict, error) { return f.conflicts, nil }

func (f *fakeCapsules) Resolve(_ context.Context, id string, res models.Resolution) (*models.GeoNote, error) {
	f.resolved = res
	if res == models.KeepRemote {
		return nil, nil
	}
	return &models.GeoNote{ID: id, SyncState: models.StatePendingUpdate}, nil
}

func TestCapture_PromptsAndBuildsRequest(t *testing.T) {
	a, out := newTestApp(t, "My title", "hello", "world", "", "13.08,80.27", "public", "72h")
	f := &fakeCapsules{}
	a.capsules = f
	a.startSession(context.Background(), &services.Session{UserID: "u1"}, ModeOnline)

	require.NoError(t, a.Capture(context.Background(), []string{"/tmp/photo.jpg"}))

	req := f.captured
	require.NotNil(t, req)
	assert.Equal(t, "u1", req.OwnerID)
	assert.Equal(t, "/tmp/photo.jpg", req.MediaPath)
	assert.Equal(t, "My title", req.Title)
	assert.Equal(t, "hello\nworld", req.Text)
	assert.Equal(t, &chennai, req.Location)
	assert.Equal(t, models.VisibilityPublic, req.Visibility)
	require.NotNil(t, req.UnlockAt)
	assert.Equal(t, t0.Add(72*time.Hour), *req.UnlockAt)
	assert.Contains(t, out.String(), "Captured n1")
}

func TestCapture_LocationHereAndFromFile(t *testing.T) {
	a, _ := newTestApp(t, "", "text", "", "here", "", "")
	f := &fakeCapsules{}
	a.capsules = f
	a.startSession(context.Background(), &services.Session{UserID: "u1"}, ModeOnline)

	err := a.Capture(context.Background(), []string{"/tmp/p.jpg"})
	require.ErrorContains(t, err, "no position")

	a, _ = newTestApp(t, "", "text", "", "here", "", "")
	a.capsules = f
	a.startSession(context.Background(), &services.Session{UserID: "u1"}, ModeOnline)
	require.NoError(t, a.Here(context.Background(), []string{"13.08,80.27"}))
	require.NoError(t, a.Capture(context.Background(), []string{"/tmp/p.jpg"}))
	assert.Equal(t, &chennai, f.captured.Location)
	assert.Equal(t, models.VisibilityPrivate, f.captured.Visibility)
	assert.Nil(t, f.captured.UnlockAt)

	loc, err := a.resolveLocation("")
	require.NoError(t, err)
	assert.Nil(t, loc, "empty leaves the location to the media file")
}

func TestCapture_NeedsSession(t *testing.T) {
	a, _ := newTestApp(t)
	a.capsules = &fakeCapsules{}
	assert.ErrorIs(t, a.Capture(context.Background(), nil), errNotLoggedIn)
}

func TestEdit(t *testing.T) {
	a, out := newTestApp(t, "New title", "", "public", "-")
	f := &fakeCapsules{notes: map[string]*models.GeoNote{"n1": {ID: "n1", Title: "Old", Visibility: models.VisibilityPrivate}}}
	a.capsules = f

	require.NoError(t, a.Edit(context.Background(), []string{"n1"}))
	require.NotNil(t, f.patch)
	assert.Equal(t, "New title", *f.patch.Title)
	assert.Nil(t, f.patch.Content)
	assert.Equal(t, models.VisibilityPublic, *f.patch.Visibility)
	assert.True(t, f.patch.ClearUnlockAt)
	assert.Contains(t, out.String(), "pending-update")
}

func TestDeleteAndShow(t *testing.T) {
	unlock := t0.Add(time.Hour)
	a, out := newTestApp(t, "n1")
	f := &fakeCapsules{notes: map[string]*models.GeoNote{"n1": {
		ID: "n1", OwnerID: "someone", Title: "Sealed", Content: "secret", Visibility: models.VisibilityPublic, UnlockAt: &unlock,
	}}}
	a.capsules = f

	require.NoError(t, a.Delete(context.Background(), nil))
	assert.Equal(t, "n1", f.deleted)

	require.NoError(t, a.Show(context.Background(), []string{"n1"}))
	assert.Contains(t, out.String(), "Sealed until the unlock time.")
	assert.NotContains(t, out.String(), "secret")

	assert.Error(t, a.Show(context.Background(), []string{"missing"}))
}

func TestList(t *testing.T) {
	a, out := newTestApp(t)
	f := &fakeCapsules{notes: map[string]*models.GeoNote{}}
	a.capsules = f

	require.NoError(t, a.List(context.Background(), nil))
	assert.Contains(t, out.String(), "No notes yet.")

	f.notes["n1"] = &models.GeoNote{ID: "n1", Title: "Beach", SyncState: models.StatePendingCreate, Visibility: models.VisibilityPublic}
	require.NoError(t, a.List(context.Background(), nil))
	assert.Contains(t, out.String(), "Beach")
	assert.Contains(t, out.String(), "pending-create")
}

func TestNearby_UsesLastPositionAndDefaultRadius(t *testing.T) {
	a, out := newTestApp(t)
	f := &fakeCapsules{hits: []index.Hit{{Note: &models.GeoNote{ID: "n1", Title: "Close"}, Distance: 42}}}
	a.capsules = f
	a.startSession(context.Background(), &services.Session{UserID: "u1"}, ModeOnline)

	assert.Error(t, a.Nearby(context.Background(), nil), "no position yet")

	require.NoError(t, a.Here(context.Background(), []string{"13.08,80.27"}))
	require.NoError(t, a.Nearby(context.Background(), nil))
	assert.Equal(t, chennai, f.nearbyAt)
	assert.Equal(t, 500.0, f.nearbyRadius)
	assert.Equal(t, "u1", f.nearbyViewer)
	assert.Contains(t, out.String(), "42 m")

	require.NoError(t, a.Nearby(context.Background(), []string{"10,20", "75"}))
	assert.Equal(t, geo.Point{Lat: 10, Lng: 20}, f.nearbyAt)
	assert.Equal(t, 75.0, f.nearbyRadius)
}

func TestWalk_ReportsPositions(t *testing.T) {
	a, _ := newTestApp(t)
	track := filepath.Join(t.TempDir(), "track.txt")
	require.NoError(t, os.WriteFile(track, []byte("13.08,80.27\n"), 0o600))

	require.NoError(t, a.Walk(context.Background(), []string{track}))
	require.Eventually(t, func() bool {
		p, ok := a.positions.current()
		return ok && p == chennai
	}, time.Second, 5*time.Millisecond)

	assert.Error(t, a.Walk(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}))
}

func TestSyncAndResolve(t *testing.T) {
	a, out := newTestApp(t)
	f := &fakeCapsules{
		report: syncer.Report{Synced: 2, Conflicts: []string{"n1"}},
		conflicts: []*models.Conflict{{
			NoteID: "n1", Kind: models.ConflictUpdate, Local: &models.GeoNote{Title: "mine"},
			Remote: &models.GeoNote{Title: "theirs"}, BaseVersion: 1, RemoteVersion: 2, DetectedAt: t0,
		}},
	}
	a.capsules = f

	require.NoError(t, a.Sync(context.Background(), nil))
	assert.Contains(t, out.String(), "Synced 2")
	assert.Contains(t, out.String(), "1 conflicts need a decision")

	require.NoError(t, a.Conflicts(context.Background(), nil))
	assert.Contains(t, out.String(), `local edit "mine" on version 1 vs server has version 2 "theirs"`)

	require.NoError(t, a.Resolve(context.Background(), []string{"n1", "keep-remote"}))
	assert.Equal(t, models.KeepRemote, f.resolved)
	assert.Contains(t, out.String(), "n1 removed.")

	assert.Error(t, a.Resolve(context.Background(), []string{"n1", "both"}))
}

func TestSync_Deferred(t *testing.T) {
	a, out := newTestApp(t)
	a.capsules = &fakeCapsules{report: syncer.Report{Deferred: true}}

	require.NoError(t, a.Sync(context.Background(), nil))
	assert.Contains(t, out.String(), "already running")
}
