package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/geocapsule/internal/geo"
	"github.com/google/uuid"
)

// Visibility controls who may see a note besides its owner.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// MediaType classifies the single media item attached to a note.
type MediaType string

const (
	MediaImage   MediaType = "image"
	MediaVideo   MediaType = "video"
	MediaModel3D MediaType = "3d-model"
)

func (m MediaType) Valid() bool {
	switch m {
	case MediaImage, MediaVideo, MediaModel3D:
		return true
	}
	return false
}

// Field limits.
const (
	MaxContentLen = 10_000
	MaxTitleLen   = 200
)

// GeoNote is a location-anchored note with optional unlock-time gating.
type GeoNote struct {
	ID         string
	OwnerID    string
	Title      string
	Content    string
	MediaRef   string
	MediaType  MediaType
	Location   geo.Point
	Visibility Visibility
	UnlockAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	SyncState  SyncState
	// Version is the last version confirmed by the backend; 0 before the
	// first successful sync.
	Version int64

	// Local sync bookkeeping, never sent to the backend.
	Attempts      int
	NextAttemptAt *time.Time
	LastError     string
	// Sent is set once a create request has left for the backend; the
	// server may hold the note even if no answer came back.
	Sent bool
}

// Clone returns a deep copy.
func (n *GeoNote) Clone() *GeoNote {
	if n == nil {
		return nil
	}
	c := *n
	if n.UnlockAt != nil {
		t := *n.UnlockAt
		c.UnlockAt = &t
	}
	if n.NextAttemptAt != nil {
		t := *n.NextAttemptAt
		c.NextAttemptAt = &t
	}
	return &c
}

// Locked reports whether the note is still sealed at now.
func (n *GeoNote) Locked(now time.Time) bool {
	return n.UnlockAt != nil && now.Before(*n.UnlockAt)
}

// VisibleTo applies the read rule shared by the local index and the
// backend: owners see everything; others see only public notes whose
// unlock time has passed.
func (n *GeoNote) VisibleTo(viewerID string, now time.Time) bool {
	if n.OwnerID == viewerID {
		return true
	}
	if n.Visibility != VisibilityPublic {
		return false
	}
	return !n.Locked(now)
}

// SameContent reports whether the user-editable fields of n and o match.
func (n *GeoNote) SameContent(o *GeoNote) bool {
	return n.Title == o.Title &&
		n.Content == o.Content &&
		n.MediaRef == o.MediaRef &&
		n.MediaType == o.MediaType &&
		n.Visibility == o.Visibility &&
		timePtrEqual(n.UnlockAt, o.UnlockAt)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// CreateInput carries everything NewGeoNote needs. Now is the provisional
// creation time; the backend replaces it on first sync.
type CreateInput struct {
	OwnerID    string
	Title      string
	Content    string
	MediaRef   string
	MediaType  MediaType
	Location   geo.Point
	Visibility Visibility
	UnlockAt   *time.Time
	Now        time.Time
}

// NewGeoNote validates in and returns a local-only note with a fresh id.
func NewGeoNote(in CreateInput) (*GeoNote, error) {
	if in.MediaType == "" {
		in.MediaType = MediaImage
	}
	if in.Visibility == "" {
		in.Visibility = VisibilityPrivate
	}

	if err := validateContent(in.Content); err != nil {
		return nil, err
	}
	if err := validateTitle(in.Title); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.MediaRef) == "" {
		return nil, &ValidationError{Field: "mediaRef", Reason: "is required"}
	}
	if !in.MediaType.Valid() {
		return nil, &ValidationError{Field: "mediaType", Reason: "unknown media type " + string(in.MediaType)}
	}
	if err := in.Location.Validate(); err != nil {
		return nil, &ValidationError{Field: "location", Reason: err.Error()}
	}
	if !in.Visibility.Valid() {
		return nil, &ValidationError{Field: "visibility", Reason: "unknown visibility " + string(in.Visibility)}
	}

	now := Timestamp(in.Now)
	n := &GeoNote{
		ID:         uuid.NewString(),
		OwnerID:    in.OwnerID,
		Title:      in.Title,
		Content:    in.Content,
		MediaRef:   in.MediaRef,
		MediaType:  in.MediaType,
		Location:   in.Location,
		Visibility: in.Visibility,
		CreatedAt:  now,
		UpdatedAt:  now,
		SyncState:  StateLocalOnly,
	}
	if in.UnlockAt != nil {
		t := Timestamp(*in.UnlockAt)
		n.UnlockAt = &t
	}
	return n, nil
}

// NotePatch is a partial update. Nil fields are left alone. The immutable
// fields exist so that callers decoding arbitrary input get a typed error
// rather than a silent drop.
type NotePatch struct {
	Title         *string
	Content       *string
	Visibility    *Visibility
	UnlockAt      *time.Time
	ClearUnlockAt bool

	ID        *string
	OwnerID   *string
	Location  *geo.Point
	CreatedAt *time.Time
}

// ApplyUpdate returns a patched copy of n with UpdatedAt set to now. n itself
// is never modified.
func ApplyUpdate(n *GeoNote, p NotePatch, now time.Time) (*GeoNote, error) {
	switch {
	case p.ID != nil:
		return nil, &ImmutableFieldError{Field: "id"}
	case p.OwnerID != nil:
		return nil, &ImmutableFieldError{Field: "ownerId"}
	case p.Location != nil:
		return nil, &ImmutableFieldError{Field: "location"}
	case p.CreatedAt != nil:
		return nil, &ImmutableFieldError{Field: "createdAt"}
	}

	out := n.Clone()
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return nil, err
		}
		out.Title = *p.Title
	}
	if p.Content != nil {
		if err := validateContent(*p.Content); err != nil {
			return nil, err
		}
		out.Content = *p.Content
	}
	if p.Visibility != nil {
		if !p.Visibility.Valid() {
			return nil, &ValidationError{Field: "visibility", Reason: "unknown visibility " + string(*p.Visibility)}
		}
		out.Visibility = *p.Visibility
	}
	if p.ClearUnlockAt {
		out.UnlockAt = nil
	} else if p.UnlockAt != nil {
		t := Timestamp(*p.UnlockAt)
		out.UnlockAt = &t
	}

	out.UpdatedAt = Timestamp(now)
	return out, nil
}

// Validate re-checks the invariants NewGeoNote enforces. The store runs it
// on every write so notes built by hand cannot bypass them.
func (n *GeoNote) Validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if err := validateContent(n.Content); err != nil {
		return err
	}
	if err := validateTitle(n.Title); err != nil {
		return err
	}
	if strings.TrimSpace(n.MediaRef) == "" {
		return &ValidationError{Field: "mediaRef", Reason: "is required"}
	}
	if !n.MediaType.Valid() {
		return &ValidationError{Field: "mediaType", Reason: "unknown media type " + string(n.MediaType)}
	}
	if err := n.Location.Validate(); err != nil {
		return &ValidationError{Field: "location", Reason: err.Error()}
	}
	if !n.Visibility.Valid() {
		return &ValidationError{Field: "visibility", Reason: "unknown visibility " + string(n.Visibility)}
	}
	return nil
}

// Timestamp normalises t to UTC millisecond precision, the resolution the
// local store keeps.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func validateContent(s string) error {
	if strings.TrimSpace(s) == "" {
		return &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(s) > MaxContentLen {
		return &ValidationError{Field: "content", Reason: "too long"}
	}
	return nil
}

func validateTitle(s string) error {
	if utf8.RuneCountInString(s) > MaxTitleLen {
		return &ValidationError{Field: "title", Reason: "too long"}
	}
	return nil
}
