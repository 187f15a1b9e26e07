package cli

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/geocapsule/internal/client/location"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
)

// positions is the location source behind the "here" and "walk" commands:
// the user tells the CLI where the device is.
type positions struct {
	ch chan location.Sample

	mu   sync.Mutex
	last *location.Sample
}

var _ location.Source = (*positions)(nil)

func newPositions() *positions {
	return &positions{ch: make(chan location.Sample, 16)}
}

// Subscribe must be called once; every report goes to that subscriber.
func (p *positions) Subscribe(ctx context.Context) (<-chan location.Sample, error) {
	out := make(chan location.Sample)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-p.ch:
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// report records s as the latest position. It never blocks; when the
// subscriber is behind the sample only updates last.
func (p *positions) report(s location.Sample) {
	p.mu.Lock()
	p.last = &s
	p.mu.Unlock()

	select {
	case p.ch <- s:
	default:
	}
}

func (p *positions) current() (geo.Point, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return geo.Point{}, false
	}
	return p.last.Point, true
}
