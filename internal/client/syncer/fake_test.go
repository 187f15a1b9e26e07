package syncer

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/geocapsule/internal/client/client"
	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/clock"
	"github.com/dmitrijs2005/geocapsule/internal/common"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
)

// fakeBackend is an in-memory backend with the same version rules as the
// real one.
type fakeBackend struct {
	mu      sync.Mutex
	clock   clock.Clock
	notes   map[string]*models.GeoNote
	deleted map[string]bool
	calls   map[string]int

	// fail, when set, is consulted before every call.
	fail func(op, id string) error
	// loseCreateResponse stores the note but reports a failure, like a
	// response lost on the way back.
	loseCreateResponse bool
	// block, when set, is received from at the start of Create.
	block chan struct{}
}

var _ client.Remote = (*fakeBackend)(nil)

func newBackend(clk clock.Clock) *fakeBackend {
	return &fakeBackend{
		clock:   clk,
		notes:   map[string]*models.GeoNote{},
		deleted: map[string]bool{},
		calls:   map[string]int{},
	}
}

func (b *fakeBackend) enter(op, id string) error {
	b.mu.Lock()
	b.calls[op]++
	fail := b.fail
	b.mu.Unlock()
	if fail != nil {
		return fail(op, id)
	}
	return nil
}

func (b *fakeBackend) count(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

func (b *fakeBackend) Create(ctx context.Context, n *models.GeoNote) (*models.GeoNote, error) {
	if b.block != nil {
		<-b.block
	}
	if err := b.enter("create", n.ID); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.notes[n.ID]; ok || b.deleted[n.ID] {
		return nil, common.ErrorAlreadyExists
	}
	s := n.Clone()
	s.Version = 1
	s.CreatedAt = models.Timestamp(b.clock.Now())
	s.UpdatedAt = s.CreatedAt
	s.SyncState = models.StateSynced
	s.Attempts, s.NextAttemptAt, s.LastError, s.Sent = 0, nil, "", false
	b.notes[n.ID] = s

	if b.loseCreateResponse {
		b.loseCreateResponse = false
		return nil, client.ErrUnavailable
	}
	return s.Clone(), nil
}

func (b *fakeBackend) Update(ctx context.Context, n *models.GeoNote) (*models.GeoNote, error) {
	if err := b.enter("update", n.ID); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.notes[n.ID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if cur.Version != n.Version {
		return nil, &client.ConflictError{Current: cur.Clone()}
	}
	cur.Title, cur.Content, cur.Visibility, cur.UnlockAt = n.Title, n.Content, n.Visibility, n.UnlockAt
	cur.Version++
	cur.UpdatedAt = models.Timestamp(b.clock.Now())
	return cur.Clone(), nil
}

func (b *fakeBackend) Delete(ctx context.Context, id string, version int64) error {
	if err := b.enter("delete", id); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.notes[id]
	if !ok {
		return common.ErrorGone
	}
	if cur.Version != version {
		return &client.ConflictError{Current: cur.Clone()}
	}
	delete(b.notes, id)
	b.deleted[id] = true
	return nil
}

func (b *fakeBackend) Get(ctx context.Context, id string) (*models.GeoNote, error) {
	if err := b.enter("get", id); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.notes[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cur.Clone(), nil
}

func (b *fakeBackend) Nearby(ctx context.Context, p geo.Point, radius float64) ([]*models.GeoNote, error) {
	if err := b.enter("nearby", ""); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*models.GeoNote
	for _, n := range b.notes {
		if geo.Distance(p, n.Location) <= radius {
			out = append(out, n.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// edit changes a note as another device would.
func (b *fakeBackend) edit(id, content string) *models.GeoNote {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.notes[id]
	cur.Content = content
	cur.Version++
	cur.UpdatedAt = models.Timestamp(b.clock.Now())
	return cur.Clone()
}

func (b *fakeBackend) get(id string) *models.GeoNote {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.notes[id].Clone()
}

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func (p *fakePinger) set(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *fakePinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

type fakeUploader struct {
	uploaded []string
	err      error
}

func (u *fakeUploader) IsLocal(ref string) bool { return len(ref) > 0 && ref[0] == '/' }

func (u *fakeUploader) Upload(_ context.Context, n *models.GeoNote) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.uploaded = append(u.uploaded, n.MediaRef)
	return "media/" + n.ID, nil
}
