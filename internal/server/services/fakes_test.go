package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/geocapsule/internal/api"
	"github.com/dmitrijs2005/geocapsule/internal/common"
	"github.com/dmitrijs2005/geocapsule/internal/dbx"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
	"github.com/dmitrijs2005/geocapsule/internal/server/models"
	"github.com/dmitrijs2005/geocapsule/internal/server/repositories/capsules"
	"github.com/dmitrijs2005/geocapsule/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/geocapsule/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/geocapsule/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
)

type fakeUsersRepo struct {
	users.Repository
	byLogin map[string]*models.User
	getErr  error
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	if _, ok := f.byLogin[u.Login]; ok {
		return nil, common.ErrorLoginAlreadyExists
	}
	u.ID = "user-" + u.Login
	f.byLogin[u.Login] = u
	return u, nil
}

func (f *fakeUsersRepo) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byLogin[login]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

type fakeRefreshRepo struct {
	refreshtokens.Repository
	tokens map[string]*models.RefreshToken
}

func (f *fakeRefreshRepo) Create(_ context.Context, userID, hash string, expires time.Time) error {
	f.tokens[hash] = &models.RefreshToken{UserID: userID, TokenHash: hash, Expires: expires}
	return nil
}

func (f *fakeRefreshRepo) Consume(_ context.Context, hash string) (*models.RefreshToken, error) {
	t, ok := f.tokens[hash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(f.tokens, hash)
	return t, nil
}

func (f *fakeRefreshRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for k, t := range f.tokens {
		if t.Expires.Before(now) {
			delete(f.tokens, k)
			n++
		}
	}
	return n, nil
}

// fakeCapsuleRepo keeps capsules in memory with the same version rules as
// the SQL repository.
type fakeCapsuleRepo struct {
	mu   sync.Mutex
	rows map[string]*models.Capsule
	// race bumps the stored version right before the next Update or
	// SoftDelete, simulating a concurrent writer.
	race bool
}

func (f *fakeCapsuleRepo) put(c *models.Capsule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.rows[c.ID] = &cp
}

func (f *fakeCapsuleRepo) Create(_ context.Context, c *models.Capsule) (*models.Capsule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[c.ID]; ok {
		return nil, common.ErrorAlreadyExists
	}
	cp := *c
	cp.Version = 1
	f.rows[c.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeCapsuleRepo) Get(_ context.Context, id string) (*models.Capsule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *c
	return &out, nil
}

func (f *fakeCapsuleRepo) bumpIfRacing(id string) {
	if f.race {
		f.race = false
		f.rows[id].Version++
	}
}

func (f *fakeCapsuleRepo) Update(_ context.Context, c *models.Capsule, base int64) (*models.Capsule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bumpIfRacing(c.ID)
	cur, ok := f.rows[c.ID]
	if !ok || cur.Version != base || cur.DeletedAt != nil {
		return nil, common.ErrVersionConflict
	}
	cp := *c
	cp.Version = base + 1
	f.rows[c.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeCapsuleRepo) SoftDelete(_ context.Context, id string, base int64, at time.Time) (*models.Capsule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bumpIfRacing(id)
	cur, ok := f.rows[id]
	if !ok || cur.Version != base || cur.DeletedAt != nil {
		return nil, common.ErrVersionConflict
	}
	cur.DeletedAt = &at
	cur.Version++
	out := *cur
	return &out, nil
}

func (f *fakeCapsuleRepo) InBox(_ context.Context, box geo.Box, _ string, _ time.Time) ([]*models.Capsule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Capsule
	for _, c := range f.rows {
		if box.Contains(c.Location) {
			cp := *c
			out = append(out, &cp)
		}
	}
	// Arbitrary order, like a table scan.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

type fakeRepoManager struct {
	users    *fakeUsersRepo
	refresh  *fakeRefreshRepo
	capsules *fakeCapsuleRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		users:    &fakeUsersRepo{byLogin: map[string]*models.User{}},
		refresh:  &fakeRefreshRepo{tokens: map[string]*models.RefreshToken{}},
		capsules: &fakeCapsuleRepo{rows: map[string]*models.Capsule{}},
	}
}

var _ repomanager.RepositoryManager = (*fakeRepoManager)(nil)

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository                 { return m.users }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.refresh }
func (m *fakeRepoManager) Capsules(dbx.DBTX) capsules.Repository           { return m.capsules }

type recordingPublisher struct {
	mu     sync.Mutex
	events []api.ChangeEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev api.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

// newTxDB returns a sqlmock DB that expects n transactions, committed or
// rolled back.
func newTxDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}
