package models

import "time"

// ConflictKind tells which intent lost the version race.
type ConflictKind string

const (
	ConflictUpdate ConflictKind = "update"
	ConflictDelete ConflictKind = "delete"
)

// Resolution is an explicit user or policy decision on a conflict.
type Resolution string

const (
	// KeepLocal re-queues the local intent on top of the remote version.
	KeepLocal Resolution = "keep-local"
	// KeepRemote discards the local intent and adopts the remote copy.
	KeepRemote Resolution = "keep-remote"
)

func (r Resolution) Valid() bool {
	return r == KeepLocal || r == KeepRemote
}

// Conflict keeps both sides of a version mismatch until it is resolved.
// Remote is nil when the note was deleted on the backend.
type Conflict struct {
	NoteID        string
	Kind          ConflictKind
	Local         *GeoNote
	Remote        *GeoNote
	BaseVersion   int64
	RemoteVersion int64
	DetectedAt    time.Time
}
