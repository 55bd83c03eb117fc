// Package queue buffers local mutations until they are confirmed by the
// remote backend.
//
// Items live in the mutation_queue table of the local store. Consecutive
// edits of one entity coalesce into a single item; a drained item is marked
// syncing so that no other drain picks it, and at most one item per entity
// is in flight.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/client/models"
	"github.com/dmitrijs2005/storekeeper/internal/client/repositories/mutations"
	"github.com/dmitrijs2005/storekeeper/internal/client/store"
	"github.com/dmitrijs2005/storekeeper/internal/common"
	"github.com/dmitrijs2005/storekeeper/internal/logging"
	"github.com/oklog/ulid/v2"
)

const DefaultMaxRetries = 10

type Options struct {
	// MaxRetries is the retry ceiling; items that failed this many times
	// stay in the queue until discarded.
	MaxRetries int
	Now        func() time.Time
}

type Queue struct {
	store      *store.Store
	repo       mutations.Repository
	logger     logging.Logger
	maxRetries int
	now        func() time.Time
}

func New(st *store.Store, logger logging.Logger, opts Options) *Queue {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Now == nil {
		opts.Now = models.Now
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Queue{
		store:      st,
		repo:       st.Queue(),
		logger:     logger.With("module", "queue"),
		maxRetries: opts.MaxRetries,
		now:        opts.Now,
	}
}

func (q *Queue) MaxRetries() int {
	return q.maxRetries
}

// Enqueue records a mutation, coalescing it with an open item for the same
// entity when there is one. It joins the transaction bound to ctx.
func (q *Queue) Enqueue(ctx context.Context, workspaceID string, entityType models.EntityType, entityID string,
	op models.Operation, payload json.RawMessage) (*models.QueueItem, error) {

	switch op {
	case models.OperationCreate, models.OperationUpdate, models.OperationDelete:
	default:
		return nil, fmt.Errorf("unknown operation %q: %w", op, common.ErrorValidation)
	}

	var out *models.QueueItem
	err := q.store.Transaction(ctx, func(ctx context.Context) error {
		now := q.now()

		prev, err := q.repo.FindOpen(ctx, entityType, entityID)
		if errors.Is(err, common.ErrorNotFound) {
			item := &models.QueueItem{
				ID:          ulid.Make().String(),
				WorkspaceID: workspaceID,
				EntityType:  entityType,
				EntityID:    entityID,
				Operation:   op,
				Payload:     payload,
				CreatedAt:   now,
				UpdatedAt:   now,
				Status:      models.QueueStatusPending,
			}
			if err := q.repo.Insert(ctx, item); err != nil {
				return err
			}
			out = item
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case prev.Operation == models.OperationDelete && op == models.OperationCreate:
			// recreate with the same id
			prev.Operation = models.OperationUpdate
			prev.Payload = payload
		case prev.Operation == models.OperationDelete:
			return &StaleMutationError{EntityType: entityType, EntityID: entityID, Operation: op}
		case op == models.OperationDelete:
			prev.Operation = models.OperationDelete
			prev.Payload = payload
		default:
			merged, err := mergePayload(prev.Payload, payload)
			if err != nil {
				return err
			}
			prev.Payload = merged
		}

		prev.Status = models.QueueStatusPending
		prev.Error = ""
		prev.RetryCount = 0
		prev.LastAttemptAt = nil
		prev.UpdatedAt = now

		if err := q.repo.Update(ctx, prev); err != nil {
			return err
		}
		out = prev
		return nil
	})
	if err != nil {
		return nil, err
	}

	q.logger.Debug(ctx, "mutation queued", "entity", entityType, "id", entityID, "op", out.Operation, "item", out.ID)
	return out, nil
}

type DrainOptions struct {
	WorkspaceID string
	// Max caps the batch size. Zero means no cap.
	Max int
	// AttemptedBefore skips items attempted at or after this instant, so a
	// sync pass does not retry an item it already failed.
	AttemptedBefore time.Time
}

type pair struct {
	entityType models.EntityType
	entityID   string
}

// Drain picks the next batch in FIFO order and marks it syncing. Entities
// with an item already in flight are skipped, as are items at the retry
// ceiling. A batch holds at most one item per entity.
func (q *Queue) Drain(ctx context.Context, opts DrainOptions) ([]models.QueueItem, error) {
	var batch []models.QueueItem

	err := q.store.Transaction(ctx, func(ctx context.Context) error {
		candidates, err := q.repo.SelectDrainable(ctx, mutations.DrainQuery{
			WorkspaceID:     opts.WorkspaceID,
			MaxRetries:      q.maxRetries,
			AttemptedBefore: opts.AttemptedBefore,
		})
		if err != nil {
			return err
		}

		seen := map[pair]struct{}{}
		for _, it := range candidates {
			key := pair{it.EntityType, it.EntityID}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			batch = append(batch, it)
			if opts.Max > 0 && len(batch) == opts.Max {
				break
			}
		}

		ids := make([]string, len(batch))
		now := q.now()
		for i := range batch {
			ids[i] = batch[i].ID
			batch[i].Status = models.QueueStatusSyncing
			batch[i].UpdatedAt = now
		}
		return q.repo.SetStatus(ctx, ids, models.QueueStatusSyncing, now)
	})
	if err != nil {
		return nil, fmt.Errorf("drain: %w", err)
	}
	return batch, nil
}

// MarkSynced removes a confirmed item. When the entity has no other open
// item it is marked synced at remoteVersion.
func (q *Queue) MarkSynced(ctx context.Context, itemID string, remoteVersion int64) error {
	return q.store.Transaction(ctx, func(ctx context.Context) error {
		it, err := q.repo.Get(ctx, itemID)
		if err != nil {
			return err
		}
		if err := q.repo.Delete(ctx, itemID); err != nil {
			return err
		}
		return q.settleEntity(ctx, it.EntityType, it.EntityID, func(ctx context.Context) error {
			return q.store.MarkSynced(ctx, it.EntityType, it.EntityID, remoteVersion)
		})
	})
}

// settleEntity runs fn when the entity exists locally and has no open
// queue items left.
func (q *Queue) settleEntity(ctx context.Context, entityType models.EntityType, entityID string,
	fn func(ctx context.Context) error) error {

	n, err := q.repo.CountOpen(ctx, entityType, entityID)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := q.store.Get(ctx, entityType, entityID); err != nil {
		if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrUnknownTable) {
			return nil
		}
		return err
	}
	return fn(ctx)
}

// Supersede removes an in-flight item together with every open item of
// the same entity. Used when the server copy wins a conflict.
func (q *Queue) Supersede(ctx context.Context, itemID string) error {
	return q.store.Transaction(ctx, func(ctx context.Context) error {
		it, err := q.repo.Get(ctx, itemID)
		if err != nil {
			return err
		}
		if err := q.repo.Delete(ctx, itemID); err != nil {
			return err
		}
		_, err = q.repo.DeleteOpenForEntity(ctx, it.EntityType, it.EntityID)
		return err
	})
}

// DropOpen removes the pending and failed items of an entity.
func (q *Queue) DropOpen(ctx context.Context, entityType models.EntityType, entityID string) (int, error) {
	var n int
	err := q.store.Transaction(ctx, func(ctx context.Context) error {
		var err error
		n, err = q.repo.DeleteOpenForEntity(ctx, entityType, entityID)
		return err
	})
	return n, err
}

// MarkFailed records a failed push attempt.
func (q *Queue) MarkFailed(ctx context.Context, itemID string, cause error) error {
	return q.store.Transaction(ctx, func(ctx context.Context) error {
		it, err := q.repo.Get(ctx, itemID)
		if err != nil {
			return err
		}

		now := q.now()
		it.Status = models.QueueStatusFailed
		it.RetryCount++
		it.Error = cause.Error()
		it.LastAttemptAt = &now
		it.UpdatedAt = now

		if it.RetryCount >= q.maxRetries {
			q.logger.Warn(ctx, "queue item reached retry limit", "item", it.ID,
				"entity", it.EntityType, "id", it.EntityID, "error", it.Error)
		}
		return q.repo.Update(ctx, it)
	})
}

// Release returns in-flight items to pending without counting an attempt.
func (q *Queue) Release(ctx context.Context, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	return q.store.Transaction(ctx, func(ctx context.Context) error {
		return q.repo.SetStatus(ctx, itemIDs, models.QueueStatusPending, q.now())
	})
}

// Reclaim returns the workspace's syncing items to pending. Items are left
// syncing when a push pass is interrupted by a crash; callers must make sure
// no pass of their own is running.
func (q *Queue) Reclaim(ctx context.Context, workspaceID string) (int, error) {
	var n int
	err := q.store.Transaction(ctx, func(ctx context.Context) error {
		stuck, err := q.repo.List(ctx, workspaceID, models.QueueStatusSyncing)
		if err != nil {
			return err
		}
		ids := make([]string, len(stuck))
		for i, it := range stuck {
			ids[i] = it.ID
		}
		n = len(ids)
		return q.repo.SetStatus(ctx, ids, models.QueueStatusPending, q.now())
	})
	if err != nil {
		return 0, fmt.Errorf("reclaim: %w", err)
	}
	if n > 0 {
		q.logger.Info(ctx, "reclaimed interrupted queue items", "workspace", workspaceID, "items", n)
	}
	return n, nil
}

// Exhausted lists items that will not be retried any more.
func (q *Queue) Exhausted(ctx context.Context, workspaceID string) ([]*RetryExhaustedError, error) {
	failed, err := q.repo.List(ctx, workspaceID, models.QueueStatusFailed)
	if err != nil {
		return nil, err
	}

	var out []*RetryExhaustedError
	for _, it := range failed {
		if it.RetryCount >= q.maxRetries {
			out = append(out, &RetryExhaustedError{Item: it})
		}
	}
	return out, nil
}

// Discard drops one item. The entity keeps its local state and stops
// counting as pending.
func (q *Queue) Discard(ctx context.Context, itemID string) error {
	return q.store.Transaction(ctx, func(ctx context.Context) error {
		it, err := q.repo.Get(ctx, itemID)
		if err != nil {
			return err
		}
		if it.Status == models.QueueStatusSyncing {
			return fmt.Errorf("item %s is being synced: %w", itemID, common.ErrorValidation)
		}
		if err := q.repo.Delete(ctx, itemID); err != nil {
			return err
		}
		return q.settleEntity(ctx, it.EntityType, it.EntityID, func(ctx context.Context) error {
			return q.store.SetSyncStatus(ctx, it.EntityType, it.EntityID, models.SyncStatusSynced)
		})
	})
}

// DiscardAll drops every queued mutation of the workspace and resets its
// pull cursor, so the next sync brings back the server's state. It cannot
// be undone.
func (q *Queue) DiscardAll(ctx context.Context, workspaceID string) (int, error) {
	var n int
	err := q.store.Transaction(ctx, func(ctx context.Context) error {
		items, err := q.repo.List(ctx, workspaceID)
		if err != nil {
			return err
		}
		if n, err = q.repo.DeleteByWorkspace(ctx, workspaceID); err != nil {
			return err
		}

		seen := map[pair]struct{}{}
		for _, it := range items {
			key := pair{it.EntityType, it.EntityID}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			err := q.settleEntity(ctx, it.EntityType, it.EntityID, func(ctx context.Context) error {
				return q.store.SetSyncStatus(ctx, it.EntityType, it.EntityID, models.SyncStatusSynced)
			})
			if err != nil {
				return err
			}
		}

		return q.store.Settings().Delete(ctx, models.LastSyncKey(workspaceID))
	})
	if err != nil {
		return 0, err
	}

	q.logger.Info(ctx, "queue discarded", "workspace", workspaceID, "items", n)
	return n, nil
}

// PendingCount counts items of the workspace not yet confirmed.
func (q *Queue) PendingCount(ctx context.Context, workspaceID string) (int, error) {
	return q.repo.Count(ctx, workspaceID,
		models.QueueStatusPending, models.QueueStatusFailed, models.QueueStatusSyncing)
}

// List returns the workspace's items in FIFO order.
func (q *Queue) List(ctx context.Context, workspaceID string) ([]models.QueueItem, error) {
	return q.repo.List(ctx, workspaceID)
}
