package index

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/geocapsule/internal/client/location"
	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
)

// Tracker keeps an "around me" result for a moving device. The result is
// recomputed when the device moves at least MinMove meters from the
// center of the last query, or after the index changed.
type Tracker struct {
	ix      *Index
	viewer  string
	radius  float64
	minMove float64

	mu       sync.Mutex
	center   *geo.Point
	hits     []Hit
	stale    bool
	onChange func(center geo.Point, hits []Hit)
}

func NewTracker(ix *Index, viewerID string, radiusMeters, minMove float64) *Tracker {
	return &Tracker{ix: ix, viewer: viewerID, radius: radiusMeters, minMove: minMove}
}

// SetViewer switches the user the visibility rule is applied for and
// marks the result stale.
func (t *Tracker) SetViewer(viewerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.viewer = viewerID
	t.stale = true
}

// OnChange registers fn to be called with every recomputed result. It is
// called from the goroutine running Run.
func (t *Tracker) OnChange(fn func(center geo.Point, hits []Hit)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// Run consumes samples until the channel closes or ctx is done.
func (t *Tracker) Run(ctx context.Context, samples <-chan location.Sample) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-samples:
			if !ok {
				return nil
			}
			t.Move(s.Point)
		}
	}
}

// Move reports a new device position. It returns true when the result was
// recomputed.
func (t *Tracker) Move(p geo.Point) bool {
	t.mu.Lock()
	if t.center != nil && !t.stale && geo.Distance(*t.center, p) < t.minMove {
		t.mu.Unlock()
		return false
	}
	t.center = &p
	hits, fn := t.recompute()
	t.mu.Unlock()

	if fn != nil {
		fn(p, hits)
	}
	return true
}

// Around returns the current center and result. ok is false until the
// first position arrives.
func (t *Tracker) Around() (center geo.Point, hits []Hit, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.center == nil {
		return geo.Point{}, nil, false
	}
	if t.stale {
		hits, _ = t.recompute()
	}
	return *t.center, append([]Hit(nil), t.hits...), true
}

func (t *Tracker) recompute() ([]Hit, func(geo.Point, []Hit)) {
	t.hits = t.ix.Query(*t.center, t.radius, t.viewer)
	t.stale = false
	return append([]Hit(nil), t.hits...), t.onChange
}

// OnUpsert and OnRemove mark the cached result stale. Register the
// tracker after the index so the index is already updated.
func (t *Tracker) OnUpsert(*models.GeoNote) { t.invalidate() }

func (t *Tracker) OnRemove(string) { t.invalidate() }

func (t *Tracker) invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stale = true
}
