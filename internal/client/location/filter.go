package location

import (
	"context"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/geo"
)

const (
	DefaultMinDistance = 5.0
	DefaultMinInterval = 10 * time.Second
)

// Filter thins out a noisy source. A sample is passed on when it moved at
// least MinDistance meters from the last passed sample, or when
// MinInterval has elapsed since then (by sample time). The first sample
// always passes.
type Filter struct {
	Source      Source
	MinDistance float64
	MinInterval time.Duration
}

func NewFilter(src Source) *Filter {
	return &Filter{Source: src, MinDistance: DefaultMinDistance, MinInterval: DefaultMinInterval}
}

func (f *Filter) Subscribe(ctx context.Context) (<-chan Sample, error) {
	in, err := f.Source.Subscribe(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan Sample)
	go func() {
		defer close(out)

		var last *Sample
		for s := range in {
			if last != nil && !f.pass(*last, s) {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- s:
			}
			s := s
			last = &s
		}
	}()
	return out, nil
}

func (f *Filter) pass(last, s Sample) bool {
	if geo.Distance(last.Point, s.Point) >= f.MinDistance {
		return true
	}
	return f.MinInterval > 0 && s.At.Sub(last.At) >= f.MinInterval
}
