// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is an account. PasswordHash is an encoded argon2id hash, see
// cryptox.HashPassword.
type User struct {
	ID           string
	Login        string
	PasswordHash string
	CreatedAt    time.Time
}
