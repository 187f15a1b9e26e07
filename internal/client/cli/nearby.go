package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/client/index"
	"github.com/dmitrijs2005/geocapsule/internal/client/location"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
)

// walkInterval is the playback pace of "walk".
const walkInterval = time.Second

// Here reports the device position: here <lat,lng>. Without an argument it
// prints the last one.
func (a *App) Here(_ context.Context, args []string) error {
	if len(args) == 0 {
		p, ok := a.positions.current()
		if !ok {
			fmt.Fprintln(a.out, "No position reported yet.")
			return nil
		}
		fmt.Fprintln(a.out, p)
		return nil
	}
	p, err := geo.ParsePoint(args[0])
	if err != nil {
		return err
	}
	a.positions.report(location.Sample{Point: p, At: a.clock.Now()})
	return nil
}

// Walk replays a track file, one "lat,lng" per line, as device positions
// in the background.
func (a *App) Walk(ctx context.Context, args []string) error {
	path, err := a.argOr(args, 0, "Track file")
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	pts, err := readTrack(f)
	_ = f.Close()
	if err != nil {
		return err
	}

	start := a.clock.Now()
	samples := make([]location.Sample, len(pts))
	for i, p := range pts {
		samples[i] = location.Sample{Point: p, At: start.Add(time.Duration(i) * walkInterval)}
	}

	ch, err := location.Replay{Samples: samples, Interval: walkInterval, Clock: a.clock}.Subscribe(ctx)
	if err != nil {
		return err
	}
	go func() {
		for s := range ch {
			a.positions.report(s)
		}
	}()
	fmt.Fprintf(a.out, "Walking %d points...\n", len(samples))
	return nil
}

// origin picks the query center from args[0] or the last reported position.
func (a *App) origin(args []string) (geo.Point, error) {
	if len(args) > 0 {
		return geo.ParsePoint(args[0])
	}
	p, ok := a.positions.current()
	if !ok {
		return geo.Point{}, errors.New("no position reported yet, use: here <lat,lng>")
	}
	return p, nil
}

func (a *App) radius(args []string) (float64, error) {
	if len(args) > 1 {
		return parseRadius(args[1], a.config.NearbyRadius)
	}
	return a.config.NearbyRadius, nil
}

// Nearby lists the notes around a point: nearby [lat,lng] [radius_m].
func (a *App) Nearby(ctx context.Context, args []string) error {
	viewer, err := a.viewer()
	if err != nil {
		return err
	}
	p, err := a.origin(args)
	if err != nil {
		return err
	}
	r, err := a.radius(args)
	if err != nil {
		return err
	}
	hits, err := a.capsules.Nearby(ctx, p, r, viewer)
	if err != nil {
		return err
	}
	printHits(a.out, hits, a.clock.Now())
	return nil
}

// Around prints the tracker's current result for the device position.
func (a *App) Around(context.Context, []string) error {
	center, hits, ok := a.tracker.Around()
	if !ok {
		fmt.Fprintln(a.out, "No position reported yet.")
		return nil
	}
	fmt.Fprintf(a.out, "Around %s:\n", center)
	printHits(a.out, hits, a.clock.Now())
	return nil
}

// Pull stores what the backend has around a point: pull [lat,lng] [radius_m].
func (a *App) Pull(ctx context.Context, args []string) error {
	p, err := a.origin(args)
	if err != nil {
		return err
	}
	r, err := a.radius(args)
	if err != nil {
		return err
	}
	n, err := a.capsules.Pull(ctx, p, r)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Pulled %d notes.\n", n)
	return nil
}

func printHits(w io.Writer, hits []index.Hit, now time.Time) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "Nothing nearby.")
		return
	}
	for _, h := range hits {
		fmt.Fprintf(w, "%7.0f m  %s\n", h.Distance, summary(h.Note, now))
	}
}
