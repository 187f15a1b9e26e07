// Package api defines the JSON bodies exchanged between the client and the
// backend REST endpoints. Both sides import it so the contract lives in
// one place.
package api

import "time"

// Route paths.
const (
	PathRegister     = "/api/auth/register"
	PathLogin        = "/api/auth/login"
	PathRefresh      = "/api/auth/refresh"
	PathCapsules     = "/api/capsules"
	PathMediaUploads = "/api/media/uploads"
	PathEvents       = "/api/events"
	PathHealth       = "/api/health"
)

// Capsule is the wire form of a note as the backend stores it.
type Capsule struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	Title      string     `json:"title,omitempty"`
	Content    string     `json:"content"`
	MediaRef   string     `json:"media_ref"`
	MediaType  string     `json:"media_type"`
	Lat        float64    `json:"lat"`
	Lng        float64    `json:"lng"`
	Visibility string     `json:"visibility"`
	UnlockAt   *time.Time `json:"unlock_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Version    int64      `json:"version"`
}

// CreateCapsuleRequest carries the client-generated id so a lost response
// can be retried safely.
type CreateCapsuleRequest struct {
	ID         string     `json:"id"`
	Title      string     `json:"title,omitempty"`
	Content    string     `json:"content"`
	MediaRef   string     `json:"media_ref"`
	MediaType  string     `json:"media_type"`
	Lat        float64    `json:"lat"`
	Lng        float64    `json:"lng"`
	Visibility string     `json:"visibility"`
	UnlockAt   *time.Time `json:"unlock_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// UpdateCapsuleRequest replaces the mutable fields if BaseVersion still
// matches the stored version.
type UpdateCapsuleRequest struct {
	BaseVersion int64      `json:"base_version"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Visibility  string     `json:"visibility"`
	UnlockAt    *time.Time `json:"unlock_at,omitempty"`
}

type CapsuleList struct {
	Capsules []Capsule `json:"capsules"`
}

type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenResponse struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type MediaUploadRequest struct {
	ContentType string `json:"content_type"`
}

type MediaUploadResponse struct {
	ObjectKey string `json:"object_key"`
	UploadURL string `json:"upload_url"`
}

// Error is the body of every non-2xx response. Current is set on version
// conflicts so the client can stage the server copy without another GET.
type Error struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Current *Capsule `json:"current,omitempty"`
}

// Change event kinds.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// ChangeEvent is pushed over the events websocket when a capsule changes.
type ChangeEvent struct {
	CapsuleID  string     `json:"capsule_id"`
	OwnerID    string     `json:"owner_id"`
	Visibility string     `json:"visibility"`
	Kind       string     `json:"kind"`
	Version    int64      `json:"version"`
	At         time.Time  `json:"at"`
	UnlockAt   *time.Time `json:"unlock_at,omitempty"`
}
