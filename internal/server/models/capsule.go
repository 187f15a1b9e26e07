package models

import (
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/geo"
)

// Visibility values accepted by the backend.
const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
)

// Capsule is the server copy of a geo note. Version starts at 1 and grows
// by one on every accepted update. DeletedAt marks a tombstone.
type Capsule struct {
	ID         string
	OwnerID    string
	Title      string
	Content    string
	MediaRef   string
	MediaType  string
	Location   geo.Point
	Visibility string
	UnlockAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
	Version    int64
}

// VisibleTo is the read rule: owners see their capsules, others see public
// capsules whose unlock time has passed.
func (c *Capsule) VisibleTo(viewerID string, now time.Time) bool {
	if c.OwnerID == viewerID {
		return true
	}
	if c.Visibility != VisibilityPublic {
		return false
	}
	return c.UnlockAt == nil || !now.Before(*c.UnlockAt)
}
