package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/storekeeper/internal/dbx"
	"github.com/dmitrijs2005/storekeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/storekeeper/internal/server/repositories/rows"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Rows(db dbx.DBTX) rows.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
