package conflicts

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/client/migrations"
	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/common"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.UpContext(context.Background(), db, "."))
	return db
}

var t0 = time.Date(2026, 10, 2, 10, 0, 0, 0, time.UTC)

func sample(id string, remote bool) *models.Conflict {
	unlock := t0.Add(time.Hour).Add(123 * time.Millisecond)
	local := &models.GeoNote{
		ID: id, OwnerID: "u1", Content: "mine", MediaRef: "m", MediaType: models.MediaImage,
		Location: geo.Point{Lat: 13.08, Lng: 80.27}, Visibility: models.VisibilityPrivate,
		UnlockAt: &unlock, CreatedAt: t0, UpdatedAt: t0.Add(time.Minute),
		SyncState: models.StatePendingUpdate, Version: 1,
	}
	c := &models.Conflict{
		NoteID: id, Kind: models.ConflictUpdate, Local: local,
		BaseVersion: 1, RemoteVersion: 2, DetectedAt: t0.Add(2 * time.Minute),
	}
	if remote {
		r := local.Clone()
		r.Content = "theirs"
		r.Version = 2
		r.SyncState = models.StateSynced
		c.Remote = r
	}
	return c
}

func TestSaveGet_RoundTrip(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	in := sample("n1", true)
	require.NoError(t, r.Save(ctx, in))

	got, err := r.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, in.Kind, got.Kind)
	assert.Equal(t, in.BaseVersion, got.BaseVersion)
	assert.Equal(t, int64(2), got.RemoteVersion)
	assert.True(t, in.DetectedAt.Equal(got.DetectedAt))
	assert.Equal(t, "mine", got.Local.Content)
	assert.True(t, got.Local.UnlockAt.Equal(*in.Local.UnlockAt))
	require.NotNil(t, got.Remote)
	assert.Equal(t, "theirs", got.Remote.Content)
}

func TestSave_ReplacesAndNilRemote(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, sample("n1", true)))

	c := sample("n1", false)
	c.Kind = models.ConflictDelete
	require.NoError(t, r.Save(ctx, c))

	got, err := r.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, models.ConflictDelete, got.Kind)
	assert.Nil(t, got.Remote)
}

func TestListAndDelete(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, sample("b", true)))
	require.NoError(t, r.Save(ctx, sample("a", false)))

	all, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].NoteID)

	require.NoError(t, r.Delete(ctx, "a"))
	_, err = r.Get(ctx, "a")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGet_UndecodableSnapshot(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, sample("n1", false)))
	_, err := db.Exec(`UPDATE conflicts SET local_snapshot = x'ff00' WHERE note_id = 'n1'`)
	require.NoError(t, err)

	_, err = r.Get(ctx, "n1")
	require.ErrorIs(t, err, ErrCorruptSnapshot)
	require.ErrorContains(t, err, "failed to decode local snapshot[n1]")
}
