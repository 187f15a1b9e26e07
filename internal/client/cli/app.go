package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/api"
	"github.com/dmitrijs2005/geocapsule/internal/client/capture"
	"github.com/dmitrijs2005/geocapsule/internal/client/client"
	"github.com/dmitrijs2005/geocapsule/internal/client/config"
	"github.com/dmitrijs2005/geocapsule/internal/client/events"
	"github.com/dmitrijs2005/geocapsule/internal/client/index"
	"github.com/dmitrijs2005/geocapsule/internal/client/location"
	"github.com/dmitrijs2005/geocapsule/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/geocapsule/internal/client/services"
	"github.com/dmitrijs2005/geocapsule/internal/client/store"
	"github.com/dmitrijs2005/geocapsule/internal/client/syncer"
	"github.com/dmitrijs2005/geocapsule/internal/clock"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
	"github.com/dmitrijs2005/geocapsule/internal/logging"

	_ "modernc.org/sqlite"
)

type Mode string

const (
	ModeOffline  Mode = "offline"
	ModeOnline   Mode = "online"
	ModeDisabled Mode = "disabled"
)

// trackerMinMove is how far the device has to move before "around" is
// recomputed.
const trackerMinMove = 25.0

type App struct {
	config      *config.Config
	log         logging.Logger
	clock       clock.Clock
	authService services.AuthService
	capsules    services.CapsuleService
	engine      *syncer.Engine
	events      *events.Subscriber
	tracker     *index.Tracker
	positions   *positions
	closers     []io.Closer

	mu          sync.Mutex
	session     *services.Session
	stopSession context.CancelFunc
	Mode        Mode

	reader *bufio.Reader
	out    io.Writer
}

// NewApp opens the local database under cfg.DataDir and wires the store,
// index, sync engine and backend clients together.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	log, err := logging.New(os.Stderr, c.LogFormat, c.LogLevel)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := client.InitDatabase(ctx, filepath.Join(c.DataDir, "geocapsule.db"))
	if err != nil {
		log.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	clk := clock.Real()

	st, err := store.Open(ctx, db, clk, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	ix := index.New(clk, index.DefaultCellDeg)
	tracker := index.NewTracker(ix, "", c.NearbyRadius, trackerMinMove)
	st.AddListener(ix)
	st.AddListener(tracker)
	if err := ix.Rebuild(ctx, st); err != nil {
		// Nearby falls back to the backend while the index is cold.
		log.Warn(ctx, "index rebuild failed", "error", err)
	}

	httpClient := client.NewHTTPClient(c.ServerURL, nil, log)
	prober, err := client.NewHealthProber(c.HealthAddr)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	engine, err := syncer.New(st, httpClient, clk, log, c.Syncer(),
		syncer.WithUploader(syncer.NewMediaUploader(httpClient, nil)),
		syncer.WithProber(prober),
	)
	if err != nil {
		_ = prober.Close()
		_ = db.Close()
		return nil, err
	}

	cp := capture.New(st, clk, filepath.Join(c.DataDir, "media"), log)

	a := &App{
		config:      c,
		log:         log,
		clock:       clk,
		authService: services.NewAuthService(httpClient, prober, db, engine, log),
		capsules:    services.NewCapsuleService(st, cp, ix, httpClient, engine, metadata.NewSQLiteRepository(db), clk, log),
		engine:      engine,
		events:      events.NewSubscriber(c.ServerURL, httpClient, clk, log, events.WithBackoff(c.BackoffBase, c.BackoffMax)),
		tracker:     tracker,
		positions:   newPositions(),
		closers:     []io.Closer{prober, dbCloser{db}},
		reader:      bufio.NewReader(os.Stdin),
		out:         os.Stdout,
	}
	tracker.OnChange(a.aroundChanged)
	return a, nil
}

type dbCloser struct{ db *sql.DB }

func (c dbCloser) Close() error { return c.db.Close() }

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.Mode != mode
	a.Mode = mode
	a.mu.Unlock()

	if changed {
		a.log.Info(context.Background(), fmt.Sprintf("Switched to %s mode", mode))
	}
}

func (a *App) mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Mode
}

// Run restores the previous session if there is one, starts the background
// workers and blocks in the REPL until the user exits.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		for _, c := range a.closers {
			_ = c.Close()
		}
	}()

	if s, err := a.authService.Restore(ctx); err != nil {
		a.log.Warn(ctx, "restore session failed", "error", err)
	} else if s != nil {
		a.startSession(ctx, s, ModeOnline)
	}

	go func() { _ = a.engine.Run(ctx) }()
	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)
	go a.trackPositions(ctx)

	a.Root(ctx)
}

func (a *App) isLoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session != nil
}

func (a *App) currentSession() *services.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// startSession remembers s, points the tracker at the new viewer and
// subscribes to backend change events until the session ends.
func (a *App) startSession(ctx context.Context, s *services.Session, mode Mode) {
	a.endSession()

	sctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.session = s
	a.stopSession = cancel
	a.mu.Unlock()

	if a.tracker != nil {
		a.tracker.SetViewer(s.UserID)
	}
	a.setMode(mode)

	if a.events != nil {
		go func() { _ = a.events.Run(sctx, a.onChangeEvent) }()
	}
}

func (a *App) endSession() {
	a.mu.Lock()
	stop := a.stopSession
	a.session = nil
	a.stopSession = nil
	a.mu.Unlock()

	if stop != nil {
		stop()
	}
}

func (a *App) onChangeEvent(ctx context.Context, ev api.ChangeEvent) {
	if err := a.capsules.Refresh(ctx, ev); err != nil {
		a.log.Warn(ctx, "refresh from change event failed", "capsule_id", ev.CapsuleID, "error", err)
	}
	a.engine.Trigger()
}

// trackPositions feeds filtered device positions into the "around me"
// tracker.
func (a *App) trackPositions(ctx context.Context) {
	ch, err := location.NewFilter(a.positions).Subscribe(ctx)
	if err != nil {
		a.log.Error(ctx, "location subscribe failed", "error", err)
		return
	}
	_ = a.tracker.Run(ctx, ch)
}

func (a *App) aroundChanged(center geo.Point, hits []index.Hit) {
	a.log.Debug(context.Background(), "around me updated", "center", center.String(), "hits", len(hits))
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {

	ticker := a.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.authService.Ping(pctx)
			cancel()

			if err != nil {
				if a.mode() == ModeOnline {
					a.setMode(ModeOffline)
				}
			} else if a.isLoggedIn() && a.mode() != ModeOnline {
				a.setMode(ModeOnline)
			}

		case <-ctx.Done():
			return
		}
	}
}
