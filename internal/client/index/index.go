// Package index answers "what is near me" from local state only.
//
// Notes are bucketed into a fixed lat/lng grid. A query visits the cells
// covering the search circle, measures exact great-circle distances and
// applies the visibility rule, so it never touches the network.
package index

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/clock"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
)

// DefaultCellDeg is about 1.1 km of latitude.
const DefaultCellDeg = 0.01

// Source provides the notes to load at startup.
type Source interface {
	List(ctx context.Context) ([]*models.GeoNote, error)
}

// Index is safe for concurrent use. It implements store.Listener.
type Index struct {
	cellDeg float64
	clock   clock.Clock

	mu    sync.RWMutex
	notes map[string]*models.GeoNote
	cells map[geo.Cell]map[string]struct{}
	warm  bool
}

func New(clk clock.Clock, cellDeg float64) *Index {
	if cellDeg <= 0 {
		cellDeg = DefaultCellDeg
	}
	return &Index{
		cellDeg: cellDeg,
		clock:   clk,
		notes:   make(map[string]*models.GeoNote),
		cells:   make(map[geo.Cell]map[string]struct{}),
	}
}

// Rebuild replaces the contents with src and marks the index warm.
func (ix *Index) Rebuild(ctx context.Context, src Source) error {
	list, err := src.List(ctx)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.notes = make(map[string]*models.GeoNote, len(list))
	ix.cells = make(map[geo.Cell]map[string]struct{})
	for _, n := range list {
		ix.insert(n.Clone())
	}
	ix.warm = true
	return nil
}

// Warm reports whether Rebuild has completed at least once.
func (ix *Index) Warm() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.warm
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.notes)
}

func (ix *Index) OnUpsert(n *models.GeoNote) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.remove(n.ID)
	if n.SyncState != models.StatePendingDelete {
		ix.insert(n.Clone())
	}
}

func (ix *Index) OnRemove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.remove(id)
}

func (ix *Index) insert(n *models.GeoNote) {
	ix.notes[n.ID] = n
	c := geo.CellOf(n.Location, ix.cellDeg)
	bucket, ok := ix.cells[c]
	if !ok {
		bucket = make(map[string]struct{})
		ix.cells[c] = bucket
	}
	bucket[n.ID] = struct{}{}
}

func (ix *Index) remove(id string) {
	old, ok := ix.notes[id]
	if !ok {
		return
	}
	delete(ix.notes, id)
	c := geo.CellOf(old.Location, ix.cellDeg)
	if bucket := ix.cells[c]; bucket != nil {
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(ix.cells, c)
		}
	}
}

// Hit is a query result with its distance from the query point.
type Hit struct {
	Note     *models.GeoNote
	Distance float64
}

// QueryNearby returns notes within radiusMeters of p that viewerID may see,
// nearest first with ties broken by id.
func (ix *Index) QueryNearby(p geo.Point, radiusMeters float64, viewerID string) []*models.GeoNote {
	hits := ix.Query(p, radiusMeters, viewerID)
	out := make([]*models.GeoNote, len(hits))
	for i, h := range hits {
		out[i] = h.Note
	}
	return out
}

// Query is QueryNearby with distances.
func (ix *Index) Query(p geo.Point, radiusMeters float64, viewerID string) []Hit {
	if geo.ValidateRadius(radiusMeters) != nil || p.Validate() != nil {
		return nil
	}
	now := ix.clock.Now()

	ix.mu.RLock()
	var hits []Hit
	consider := func(n *models.GeoNote) {
		if !n.VisibleTo(viewerID, now) {
			return
		}
		if d := geo.Distance(p, n.Location); d <= radiusMeters {
			hits = append(hits, Hit{Note: n.Clone(), Distance: d})
		}
	}

	if ix.estimateCells(p, radiusMeters) > len(ix.notes) {
		// Sparse index or huge radius: scanning is cheaper than visiting
		// mostly empty cells.
		for _, n := range ix.notes {
			consider(n)
		}
	} else {
		for _, c := range geo.CellsAround(p, radiusMeters, ix.cellDeg) {
			for id := range ix.cells[c] {
				consider(ix.notes[id])
			}
		}
	}
	ix.mu.RUnlock()

	SortHits(hits)
	return hits
}

func (ix *Index) estimateCells(p geo.Point, radius float64) int {
	b := geo.BoundingBox(p, radius)
	lngSpan := b.MaxLng - b.MinLng
	if b.WrapsAntimeridian() {
		lngSpan += 360
	}
	rows := (b.MaxLat-b.MinLat)/ix.cellDeg + 1
	cols := lngSpan/ix.cellDeg + 1
	est := rows * cols
	if est > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(est)
}

// SortHits orders hits nearest first, ties by id.
func SortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Note.ID < hits[j].Note.ID
	})
}
