package models

// SyncState tracks where a note is in its round trip to the backend.
type SyncState string

const (
	StateLocalOnly     SyncState = "local-only"
	StatePendingCreate SyncState = "pending-create"
	StatePendingUpdate SyncState = "pending-update"
	StatePendingDelete SyncState = "pending-delete"
	StateSynced        SyncState = "synced"
	StateConflict      SyncState = "conflict"
)

var transitions = map[SyncState][]SyncState{
	StateLocalOnly:     {StatePendingCreate},
	StatePendingCreate: {StatePendingCreate, StateSynced, StatePendingDelete},
	StateSynced:        {StatePendingUpdate, StatePendingDelete},
	StatePendingUpdate: {StatePendingUpdate, StateSynced, StatePendingDelete},
	StatePendingDelete: {},
	StateConflict:      {StatePendingUpdate, StateSynced},
}

// Valid reports whether s is a known state.
func (s SyncState) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsDirty reports whether the note holds an intent not yet confirmed by the
// backend.
func (s SyncState) IsDirty() bool {
	switch s {
	case StatePendingCreate, StatePendingUpdate, StatePendingDelete:
		return true
	}
	return false
}

// CanTransition reports whether s may move to next. Every state may move to
// conflict; leaving conflict requires an explicit resolution.
func (s SyncState) CanTransition(next SyncState) bool {
	if next == StateConflict {
		return s.Valid()
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition returns next or a *TransitionError.
func (s SyncState) Transition(next SyncState) (SyncState, error) {
	if !s.CanTransition(next) {
		return s, &TransitionError{From: s, To: next}
	}
	return next, nil
}
