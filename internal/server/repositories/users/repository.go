// Package users persists accounts. Logins are unique.
package users

import (
	"context"

	"github.com/dmitrijs2005/geocapsule/internal/server/models"
)

// Repository stores accounts. GetUserByLogin returns common.ErrorNotFound
// for unknown logins.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
}
