// Package location turns device position fixes into a cancellable stream.
package location

import (
	"context"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/clock"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
)

// Sample is one position fix.
type Sample struct {
	Point geo.Point
	// Altitude in meters, Heading in degrees from north, Accuracy as a
	// horizontal radius in meters. Zero when unknown.
	Altitude float64
	Heading  float64
	Accuracy float64
	At       time.Time
}

// Source produces samples until ctx is done, then closes the channel.
type Source interface {
	Subscribe(ctx context.Context) (<-chan Sample, error)
}

// Static reports a single fixed position.
type Static struct {
	Sample Sample
}

func (s Static) Subscribe(ctx context.Context) (<-chan Sample, error) {
	if err := s.Sample.Point.Validate(); err != nil {
		return nil, err
	}
	ch := make(chan Sample, 1)
	ch <- s.Sample
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// Replay plays back recorded samples, one every Interval, then closes.
type Replay struct {
	Samples  []Sample
	Interval time.Duration
	Clock    clock.Clock
}

func (r Replay) Subscribe(ctx context.Context) (<-chan Sample, error) {
	for _, s := range r.Samples {
		if err := s.Point.Validate(); err != nil {
			return nil, err
		}
	}
	clk := r.Clock
	if clk == nil {
		clk = clock.Real()
	}

	ch := make(chan Sample)
	go func() {
		defer close(ch)
		for i, s := range r.Samples {
			if i > 0 && r.Interval > 0 {
				select {
				case <-ctx.Done():
					return
				case <-clk.After(r.Interval):
				}
			}
			select {
			case <-ctx.Done():
				return
			case ch <- s:
			}
		}
	}()
	return ch, nil
}
