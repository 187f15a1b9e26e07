package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/client/repositories/conflicts"
	"github.com/dmitrijs2005/geocapsule/internal/client/repositories/notes"
	"github.com/dmitrijs2005/geocapsule/internal/clock"
	"github.com/dmitrijs2005/geocapsule/internal/dbx"
	"github.com/dmitrijs2005/geocapsule/internal/logging"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrStoreCorrupted means persisted state could not be read back. Once seen,
// every further call on the same Store fails with it; the application
// decides whether to reset the local database.
var ErrStoreCorrupted = errors.New("local store corrupted")

// Listener observes committed changes. Callbacks run synchronously after
// the transaction commits and must not call back into the Store.
type Listener interface {
	// OnUpsert receives a copy of the note as stored. Notes entering
	// pending-delete are reported through OnRemove instead.
	OnUpsert(n *models.GeoNote)
	OnRemove(id string)
}

type Store struct {
	db        *sql.DB
	notes     *notes.SQLiteRepository
	conflicts *conflicts.SQLiteRepository
	clock     clock.Clock
	log       logging.Logger
	locks     *keyedMutex

	mu        sync.RWMutex
	listeners []Listener

	corrupted atomic.Bool
}

// Open verifies the database with PRAGMA integrity_check and returns a
// Store over it. db must already be migrated.
func Open(ctx context.Context, db *sql.DB, clk clock.Clock, log logging.Logger) (*Store, error) {
	if err := integrityCheck(ctx, db); err != nil {
		return nil, err
	}

	return &Store{
		db:        db,
		notes:     notes.NewSQLiteRepository(db),
		conflicts: conflicts.NewSQLiteRepository(db),
		clock:     clk,
		log:       log,
		locks:     newKeyedMutex(),
	}, nil
}

func integrityCheck(ctx context.Context, db *sql.DB) error {
	var result string
	err := db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result)
	if err != nil {
		if isCorruption(err) {
			return fmt.Errorf("%w: %w", ErrStoreCorrupted, err)
		}
		return fmt.Errorf("failed to run integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: integrity check: %s", ErrStoreCorrupted, result)
	}
	return nil
}

func isCorruption(err error) bool {
	if errors.Is(err, notes.ErrCorruptRecord) || errors.Is(err, conflicts.ErrCorruptSnapshot) {
		return true
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
			return true
		}
	}
	return false
}

// AddListener registers l for all future changes.
func (s *Store) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// change is one committed mutation to announce.
type change struct {
	note    *models.GeoNote
	removed string
}

func upserted(n *models.GeoNote) change {
	if n.SyncState == models.StatePendingDelete {
		return change{removed: n.ID}
	}
	return change{note: n}
}

func removed(id string) change { return change{removed: id} }

func (s *Store) notify(changes ...change) {
	s.mu.RLock()
	ls := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()

	for _, c := range changes {
		for _, l := range ls {
			if c.note != nil {
				l.OnUpsert(c.note.Clone())
			} else {
				l.OnRemove(c.removed)
			}
		}
	}
}

type repos struct {
	notes     *notes.SQLiteRepository
	conflicts *conflicts.SQLiteRepository
}

// inTx runs fn in one transaction; the returned changes are announced only
// after a successful commit.
func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context, r repos) ([]change, error)) error {
	if err := s.usable(); err != nil {
		return err
	}

	var changes []change
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		changes, err = fn(ctx, repos{notes: s.notes.WithTx(tx), conflicts: s.conflicts.WithTx(tx)})
		return err
	})
	if err != nil {
		return s.check(err)
	}

	s.notify(changes...)
	return nil
}

func (s *Store) usable() error {
	if s.corrupted.Load() {
		return ErrStoreCorrupted
	}
	return nil
}

// check turns corruption into ErrStoreCorrupted and poisons the store.
func (s *Store) check(err error) error {
	if err == nil || errors.Is(err, ErrStoreCorrupted) {
		return err
	}
	if isCorruption(err) {
		if s.corrupted.CompareAndSwap(false, true) {
			s.log.Error(context.Background(), "local store corrupted", "error", err)
		}
		return fmt.Errorf("%w: %w", ErrStoreCorrupted, err)
	}
	return err
}

// Get returns the note with id, including pending-delete ones.
func (s *Store) Get(ctx context.Context, id string) (*models.GeoNote, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	n, err := s.notes.GetByID(ctx, id)
	return n, s.check(err)
}

// List returns every note that has not been deleted locally, in creation
// order.
func (s *Store) List(ctx context.Context) ([]*models.GeoNote, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	list, err := s.notes.ListActive(ctx)
	return list, s.check(err)
}

// AllDirty returns pending-create, pending-update and pending-delete notes,
// oldest first.
func (s *Store) AllDirty(ctx context.Context) ([]*models.GeoNote, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	list, err := s.notes.ListDirty(ctx)
	return list, s.check(err)
}

// Conflicts lists open conflicts, oldest first.
func (s *Store) Conflicts(ctx context.Context) ([]*models.Conflict, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	list, err := s.conflicts.List(ctx)
	return list, s.check(err)
}

// Conflict returns the open conflict for id or common.ErrorNotFound.
func (s *Store) Conflict(ctx context.Context, id string) (*models.Conflict, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	c, err := s.conflicts.Get(ctx, id)
	return c, s.check(err)
}

// normalize truncates timestamps to the stored precision so returned
// notes equal what a later Get yields.
func normalize(n *models.GeoNote) {
	n.CreatedAt = models.Timestamp(n.CreatedAt)
	n.UpdatedAt = models.Timestamp(n.UpdatedAt)
	if n.UnlockAt != nil {
		t := models.Timestamp(*n.UnlockAt)
		n.UnlockAt = &t
	}
	if n.NextAttemptAt != nil {
		t := models.Timestamp(*n.NextAttemptAt)
		n.NextAttemptAt = &t
	}
}

func resetAttempts(n *models.GeoNote) {
	n.Attempts = 0
	n.NextAttemptAt = nil
	n.LastError = ""
}
