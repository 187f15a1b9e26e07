package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/geocapsule/internal/dbx"
	"github.com/dmitrijs2005/geocapsule/internal/server/repositories/capsules"
	"github.com/dmitrijs2005/geocapsule/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/geocapsule/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Capsules(db dbx.DBTX) capsules.Repository
}
