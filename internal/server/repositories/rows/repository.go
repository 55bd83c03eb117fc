package rows

import (
	"context"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/server/models"
)

type Repository interface {
	// Get returns the row or common.ErrorNotFound. With forUpdate the row
	// stays locked until the surrounding transaction ends.
	Get(ctx context.Context, table, id string, forUpdate bool) (*models.Row, error)
	// Upsert stores r and returns the server time stamped on it.
	Upsert(ctx context.Context, r *models.Row) (time.Time, error)
	// SelectUpdated returns the rows of a workspace table stamped after since,
	// oldest first.
	SelectUpdated(ctx context.Context, workspaceID, table string, since time.Time) ([]*models.Row, error)
	// Now returns the database clock.
	Now(ctx context.Context) (time.Time, error)
}
