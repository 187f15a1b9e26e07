package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/client/client"
	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/clock"
	"github.com/dmitrijs2005/geocapsule/internal/logging"
	"github.com/dmitrijs2005/geocapsule/internal/telemetry"
	"go.opentelemetry.io/otel/metric"
)

// ErrPaused is returned by SyncOnce while the engine waits for a fresh
// credential. It wraps client.ErrAuthExpired.
var ErrPaused = fmt.Errorf("sync paused: %w", client.ErrAuthExpired)

// Store is the part of the local store the engine drives.
type Store interface {
	AllDirty(ctx context.Context) ([]*models.GeoNote, error)
	Put(ctx context.Context, n *models.GeoNote) (*models.GeoNote, error)
	ApplyRemote(ctx context.Context, remote *models.GeoNote) (*models.GeoNote, error)
	AcceptRemote(ctx context.Context, remote *models.GeoNote) (*models.GeoNote, error)
	MarkSynced(ctx context.Context, sent, remote *models.GeoNote) (*models.GeoNote, error)
	MarkConflict(ctx context.Context, id string, remote *models.GeoNote, kind models.ConflictKind) (*models.GeoNote, error)
	RecordFailure(ctx context.Context, id string, cause error, next time.Time) (*models.GeoNote, error)
	MarkSent(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
}

// Report summarizes one SyncOnce call.
type Report struct {
	// Deferred is set when another pass was already running; it will run
	// once more after it finishes.
	Deferred bool
	Paused   bool

	Synced  int
	Removed int
	// Overwritten counts local edits discarded by last-writer-wins.
	Overwritten int
	Failed      int
	// Waiting counts notes skipped because their backoff has not elapsed.
	Waiting   int
	Conflicts []string
	// Exhausted lists notes that failed at least MaxAttempts times.
	Exhausted []*models.GeoNote
}

func (r *Report) add(o Report) {
	r.Paused = o.Paused
	r.Synced += o.Synced
	r.Removed += o.Removed
	r.Overwritten += o.Overwritten
	r.Failed += o.Failed
	r.Waiting = o.Waiting
	r.Conflicts = append(r.Conflicts, o.Conflicts...)
	r.Exhausted = o.Exhausted
}

// Engine drains locally queued intents against the backend.
//
// At most one pass runs at a time. SyncOnce calls that arrive during a pass
// return a deferred report and cause exactly one more pass afterwards.
type Engine struct {
	store  Store
	remote client.Remote
	media  Uploader
	prober client.Pinger
	clock  clock.Clock
	log    logging.Logger
	cfg    Config

	trigger chan struct{}
	notes   metric.Int64Counter

	mu      sync.Mutex
	running bool
	rerun   bool
	paused  bool
	online  bool
}

type Option func(*Engine)

// WithUploader enables media upload ahead of create.
func WithUploader(u Uploader) Option {
	return func(e *Engine) { e.media = u }
}

// WithProber lets Run watch connectivity and sync when it comes back.
func WithProber(p client.Pinger) Option {
	return func(e *Engine) { e.prober = p }
}

func New(s Store, remote client.Remote, clk clock.Clock, log logging.Logger, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		store:   s,
		remote:  remote,
		clock:   clk,
		log:     log,
		cfg:     cfg,
		trigger: make(chan struct{}, 1),
		notes:   telemetry.Counter("geocapsule.sync.notes", "Notes processed by the sync engine, by outcome."),
		online:  true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Trigger asks Run for a pass without waiting for it.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Resume lifts an auth pause, typically after a new login, and triggers a
// pass.
func (e *Engine) Resume() {
	e.mu.Lock()
	was := e.paused
	e.paused = false
	e.mu.Unlock()

	if was {
		e.log.Info(context.Background(), "sync resumed")
	}
	e.Trigger()
}

func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Online reports the last connectivity probe result.
func (e *Engine) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

// SyncOnce runs a sync pass now, or defers to the running one.
func (e *Engine) SyncOnce(ctx context.Context) (Report, error) {
	e.mu.Lock()
	if e.paused {
		e.mu.Unlock()
		return Report{Paused: true}, ErrPaused
	}
	if e.running {
		e.rerun = true
		e.mu.Unlock()
		return Report{Deferred: true}, nil
	}
	e.running = true
	e.mu.Unlock()

	var total Report
	for {
		r, err := e.pass(ctx)
		total.add(r)

		e.mu.Lock()
		again := e.rerun && err == nil && !e.paused && ctx.Err() == nil
		e.rerun = false
		if !again {
			e.running = false
			e.mu.Unlock()
			return total, err
		}
		e.mu.Unlock()
	}
}

// Run syncs on every tick, on Trigger, and when the prober sees the
// backend come back. It returns when ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := e.clock.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	var probe <-chan time.Time
	if e.prober != nil {
		pt := e.clock.NewTicker(e.cfg.ProbeInterval)
		defer pt.Stop()
		probe = pt.C
	}

	e.runPass(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.runPass(ctx)
		case <-e.trigger:
			e.runPass(ctx)
		case <-probe:
			if e.probe(ctx) {
				e.runPass(ctx)
			}
		}
	}
}

// probe updates the online flag and reports an offline to online edge.
func (e *Engine) probe(ctx context.Context) bool {
	err := e.prober.Ping(ctx)

	e.mu.Lock()
	was := e.online
	e.online = err == nil
	e.mu.Unlock()

	switch {
	case err != nil && was:
		e.log.Warn(ctx, "backend unreachable", "error", err)
	case err == nil && !was:
		e.log.Info(ctx, "backend reachable again")
		return true
	}
	return false
}

func (e *Engine) runPass(ctx context.Context) {
	if !e.Online() || e.Paused() {
		return
	}
	r, err := e.SyncOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		return
	case errors.Is(err, client.ErrAuthExpired):
		e.log.Warn(ctx, "sync paused, sign in again", "error", err)
	default:
		e.log.Error(ctx, "sync pass failed", "error", err)
	}
	if len(r.Exhausted) > 0 {
		e.log.Warn(ctx, "notes keep failing to sync", "count", len(r.Exhausted))
	}
}
