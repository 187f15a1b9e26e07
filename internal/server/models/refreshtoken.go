package models

import "time"

// RefreshToken is an opaque single-use token. Only its SHA-256 digest is
// stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	Expires   time.Time
	CreatedAt time.Time
}
