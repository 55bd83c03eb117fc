// Package entities persists generic entity records, one SQLite table per
// entity type.
package entities

import (
	"context"
	"iter"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/client/models"
)

type Repository interface {
	Get(ctx context.Context, table models.EntityType, id string) (*models.Entity, error)
	Upsert(ctx context.Context, table models.EntityType, e *models.Entity) error
	Query(ctx context.Context, table models.EntityType, f Filter) iter.Seq2[models.Entity, error]
	SetSynced(ctx context.Context, table models.EntityType, id string, remoteVersion int64, at time.Time) error
	SetSyncStatus(ctx context.Context, table models.EntityType, id string, status models.SyncStatus) error
	CountPending(ctx context.Context, table models.EntityType, workspaceID string) (int, error)
	Def(table models.EntityType) (TableDef, bool)
}
