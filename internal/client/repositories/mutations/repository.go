// Package mutations persists the mutation queue table.
package mutations

import (
	"context"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/client/models"
)

// DrainQuery selects items eligible for a push attempt.
type DrainQuery struct {
	WorkspaceID string
	// MaxRetries excludes items whose retry count reached the ceiling.
	MaxRetries int
	// AttemptedBefore excludes items attempted at or after this instant.
	// Zero means no restriction.
	AttemptedBefore time.Time
}

type Repository interface {
	Insert(ctx context.Context, item *models.QueueItem) error
	Update(ctx context.Context, item *models.QueueItem) error
	Get(ctx context.Context, id string) (*models.QueueItem, error)
	FindOpen(ctx context.Context, entityType models.EntityType, entityID string) (*models.QueueItem, error)
	CountOpen(ctx context.Context, entityType models.EntityType, entityID string) (int, error)
	SelectDrainable(ctx context.Context, q DrainQuery) ([]models.QueueItem, error)
	SetStatus(ctx context.Context, ids []string, status models.QueueStatus, now time.Time) error
	List(ctx context.Context, workspaceID string, statuses ...models.QueueStatus) ([]models.QueueItem, error)
	Count(ctx context.Context, workspaceID string, statuses ...models.QueueStatus) (int, error)
	Delete(ctx context.Context, id string) error
	DeleteOpenForEntity(ctx context.Context, entityType models.EntityType, entityID string) (int, error)
	DeleteByWorkspace(ctx context.Context, workspaceID string) (int, error)
}
