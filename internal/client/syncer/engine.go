// Package syncer reconciles the local store with the backend: it pushes
// queued mutations, resolves conflicts by last writer wins on UpdatedAt and
// pulls remote changes.
package syncer

import (
	"context"
	"errors"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/client/client"
	"github.com/dmitrijs2005/storekeeper/internal/client/models"
	"github.com/dmitrijs2005/storekeeper/internal/client/queue"
	"github.com/dmitrijs2005/storekeeper/internal/client/store"
	"github.com/dmitrijs2005/storekeeper/internal/common"
	"github.com/dmitrijs2005/storekeeper/internal/logging"
	"github.com/dmitrijs2005/storekeeper/internal/rpc"
)

// Remote is the part of client.Client the engine needs.
type Remote interface {
	Ping(ctx context.Context) error
	Push(ctx context.Context, req rpc.PushRequest) (*rpc.Row, error)
	Pull(ctx context.Context, table, workspaceID string, since time.Time) ([]rpc.Row, time.Time, error)
}

type Result struct {
	Success   bool      `json:"success"`
	Pushed    int       `json:"pushed"`
	Pulled    int       `json:"pulled"`
	Errors    []string  `json:"errors"`
	Conflicts []string  `json:"conflicts"`
	Cursor    time.Time `json:"cursor"`
}

const DefaultBatchSize = 50

type Options struct {
	BatchSize int
	// Tables pulled, in order. Defaults to every entity type.
	Tables []models.EntityType
	Now    func() time.Time
}

type Engine struct {
	store  *store.Store
	queue  *queue.Queue
	remote Remote
	logger logging.Logger

	batchSize int
	tables    []models.EntityType
	now       func() time.Time

	running atomic.Bool

	mu       sync.Mutex
	lastSync time.Time
}

func NewEngine(st *store.Store, q *queue.Queue, remote Remote, logger logging.Logger, opts Options) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if len(opts.Tables) == 0 {
		opts.Tables = models.EntityTypes
	}
	if opts.Now == nil {
		opts.Now = models.Now
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Engine{
		store:     st,
		queue:     q,
		remote:    remote,
		logger:    logger.With("module", "syncer"),
		batchSize: opts.BatchSize,
		tables:    opts.Tables,
		now:       opts.Now,
	}
}

// LastSync is when the last fully successful sync finished.
func (e *Engine) LastSync() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync
}

// FullSync pushes the workspace's queue, then pulls every table changed
// after since. Partial failures are reported in Result.Errors; it never
// fails as a whole except when the backend is unreachable.
func (e *Engine) FullSync(ctx context.Context, userID, workspaceID string, since time.Time) Result {
	res, _ := e.fullSync(ctx, userID, workspaceID, since)
	return res
}

// Sync runs FullSync from the workspace's stored cursor and stores the new
// cursor when every table was pulled.
func (e *Engine) Sync(ctx context.Context, userID, workspaceID string) Result {
	key := models.LastSyncKey(workspaceID)

	var since time.Time
	if v, ok, err := e.store.Settings().Get(ctx, key); err != nil {
		e.logger.Warn(ctx, "cannot read sync cursor", "error", err)
	} else if ok {
		if t, err := models.ParseTime(v); err == nil {
			since = t
		}
	}

	res, pullClean := e.fullSync(ctx, userID, workspaceID, since)
	if pullClean && !res.Cursor.IsZero() {
		if err := e.store.Settings().Set(ctx, key, models.FormatTime(res.Cursor)); err != nil {
			e.logger.Error(ctx, "cannot store sync cursor", "error", err)
			res.Errors = append(res.Errors, err.Error())
			res.Success = false
		}
	}
	return res
}

func (e *Engine) fullSync(ctx context.Context, userID, workspaceID string, since time.Time) (Result, bool) {
	if !e.running.CompareAndSwap(false, true) {
		return Result{Errors: []string{ErrSyncInProgress.Error()}}, false
	}
	defer e.running.Store(false)

	res := Result{Errors: []string{}, Conflicts: []string{}}
	log := e.logger.With("workspace", workspaceID)
	started := e.now()

	// nothing of ours is in flight, so syncing items were orphaned by a crash
	if _, err := e.queue.Reclaim(ctx, workspaceID); err != nil {
		log.Warn(ctx, "cannot reclaim interrupted queue items", "error", err)
	}

	if err := e.remote.Ping(ctx); err != nil {
		log.Warn(ctx, "backend unreachable, sync aborted", "error", err)
		res.Errors = append(res.Errors, (&TransportError{Op: "ping", Err: err}).Error())
		return res, false
	}

	if aborted := e.push(ctx, userID, workspaceID, started, &res); aborted {
		return res, false
	}

	pullClean := e.pull(ctx, workspaceID, since, &res)

	res.Success = len(res.Errors) == 0
	if res.Success {
		e.mu.Lock()
		e.lastSync = e.now()
		e.mu.Unlock()
	}

	log.Info(ctx, "sync finished", "success", res.Success, "pushed", res.Pushed, "pulled", res.Pulled,
		"errors", len(res.Errors), "conflicts", len(res.Conflicts), "took", time.Since(started))
	return res, pullClean
}

// push drains the queue batch by batch. It reports true when the backend
// went away or ctx was cancelled and the pass was aborted.
func (e *Engine) push(ctx context.Context, userID, workspaceID string, started time.Time, res *Result) bool {
	for {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, err.Error())
			return true
		}

		batch, err := e.queue.Drain(ctx, queue.DrainOptions{
			WorkspaceID:     workspaceID,
			Max:             e.batchSize,
			AttemptedBefore: started,
		})
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			return false
		}
		if len(batch) == 0 {
			return false
		}

		for i, it := range batch {
			reason := ctx.Err()
			if reason == nil {
				reason = e.pushItem(ctx, userID, it, res)
			}
			if reason != nil {
				e.release(ctx, batch[i:])
				res.Errors = append(res.Errors, (&TransportError{Op: "push", Err: reason}).Error())
				return true
			}
		}
	}
}

// release hands untouched items back to the queue without counting an
// attempt.
func (e *Engine) release(ctx context.Context, items []models.QueueItem) {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	if err := e.queue.Release(context.WithoutCancel(ctx), ids); err != nil {
		e.logger.Error(ctx, "cannot release queue items", "error", err)
	}
}

// interrupted reports whether a failed push should abort the pass instead
// of counting against the item: the backend is gone or the pass was
// cancelled.
func interrupted(ctx context.Context, err error) error {
	if errors.Is(err, client.ErrUnavailable) {
		return err
	}
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return nil
}

// pushItem settles one queue item. It returns a non-nil error only when the
// push was interrupted and the item left untouched; every other outcome is
// recorded on the item and in res.
func (e *Engine) pushItem(ctx context.Context, userID string, it models.QueueItem, res *Result) error {
	payload, err := it.Entity()
	if err != nil {
		return e.fail(ctx, it, res, &TransportError{Op: "encode", EntityType: it.EntityType, EntityID: it.EntityID, Err: err})
	}

	base := payload.RemoteVersion
	localUpdated := payload.UpdatedAt
	if local, err := e.store.Get(ctx, it.EntityType, it.EntityID); err == nil {
		base = max(base, local.RemoteVersion)
		if local.UpdatedAt.After(localUpdated) {
			localUpdated = local.UpdatedAt
		}
	}

	if payload.ID == "" {
		payload.ID = it.EntityID
	}
	if payload.WorkspaceID == "" {
		payload.WorkspaceID = it.WorkspaceID
	}
	if it.Operation == models.OperationDelete {
		payload.IsDeleted = true
	}
	maps.DeleteFunc(payload.Data, func(_ string, v any) bool { return v == nil })

	row, err := payload.Row(it.EntityType, userID)
	if err != nil {
		return e.fail(ctx, it, res, &TransportError{Op: "encode", EntityType: it.EntityType, EntityID: it.EntityID, Err: err})
	}

	req := rpc.PushRequest{Row: row, BaseVersion: base}
	stored, err := e.remote.Push(ctx, req)

	var conflict *client.ConflictError
	switch {
	case err == nil:
		res.Pushed++
		return e.settle(ctx, it, stored.Version, res)
	case errors.As(err, &conflict):
		return e.resolve(ctx, it, req, localUpdated, conflict.Remote, res)
	default:
		if ierr := interrupted(ctx, err); ierr != nil {
			return ierr
		}
		return e.fail(ctx, it, res, &TransportError{Op: "push", EntityType: it.EntityType, EntityID: it.EntityID, Err: err})
	}
}

func (e *Engine) settle(ctx context.Context, it models.QueueItem, version int64, res *Result) error {
	if err := e.queue.MarkSynced(context.WithoutCancel(ctx), it.ID, version); err != nil {
		res.Errors = append(res.Errors, err.Error())
	}
	return nil
}

func (e *Engine) fail(ctx context.Context, it models.QueueItem, res *Result, terr *TransportError) error {
	res.Errors = append(res.Errors, terr.Error())
	if err := e.queue.MarkFailed(context.WithoutCancel(ctx), it.ID, terr); err != nil {
		e.logger.Error(ctx, "cannot mark queue item failed", "item", it.ID, "error", err)
	}
	return nil
}

// resolve applies last writer wins between the queued change and the
// server copy. Ties go to the server.
func (e *Engine) resolve(ctx context.Context, it models.QueueItem, req rpc.PushRequest, localUpdated time.Time, remote rpc.Row, res *Result) error {
	note := &ConflictResolved{EntityType: it.EntityType, EntityID: it.EntityID, Local: localUpdated, Remote: remote.UpdatedAt}

	// the server already answered; record the outcome even if the pass is cancelled
	bg := context.WithoutCancel(ctx)
	if err := e.store.SetSyncStatus(bg, it.EntityType, it.EntityID, models.SyncStatusConflict); err != nil && !errors.Is(err, common.ErrorNotFound) {
		e.logger.Warn(ctx, "cannot flag conflict", "entity", it.EntityType, "id", it.EntityID, "error", err)
	}

	if !localUpdated.After(remote.UpdatedAt) {
		note.Winner = WinnerRemote
		err := e.store.Transaction(bg, func(ctx context.Context) error {
			if err := e.queue.Supersede(ctx, it.ID); err != nil {
				return err
			}
			ent, err := models.EntityFromRow(remote, e.now())
			if err != nil {
				return err
			}
			return e.store.Put(ctx, it.EntityType, ent)
		})
		if err != nil {
			return e.fail(ctx, it, res, &TransportError{Op: "resolve", EntityType: it.EntityType, EntityID: it.EntityID, Err: err})
		}
		res.Conflicts = append(res.Conflicts, note.Error())
		e.logger.Info(ctx, "conflict resolved", "entity", it.EntityType, "id", it.EntityID, "winner", note.Winner)
		return nil
	}

	note.Winner = WinnerLocal
	req.Force = true
	req.BaseVersion = remote.Version

	stored, err := e.remote.Push(ctx, req)
	if err != nil {
		if serr := e.store.SetSyncStatus(bg, it.EntityType, it.EntityID, models.SyncStatusPending); serr != nil && !errors.Is(serr, common.ErrorNotFound) {
			e.logger.Warn(ctx, "cannot reset entity status", "error", serr)
		}
		if ierr := interrupted(ctx, err); ierr != nil {
			return ierr
		}
		return e.fail(ctx, it, res, &TransportError{Op: "push", EntityType: it.EntityType, EntityID: it.EntityID, Err: err})
	}

	res.Pushed++
	res.Conflicts = append(res.Conflicts, note.Error())
	e.logger.Info(ctx, "conflict resolved", "entity", it.EntityType, "id", it.EntityID, "winner", note.Winner)
	return e.settle(ctx, it, stored.Version, res)
}

// pull fetches every table and applies the rows. It reports whether all
// tables were fetched.
func (e *Engine) pull(ctx context.Context, workspaceID string, since time.Time, res *Result) bool {
	clean := true
	var cursor time.Time

	for _, table := range e.tables {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, err.Error())
			return false
		}

		rows, asOf, err := e.remote.Pull(ctx, string(table), workspaceID, since)
		if err != nil {
			clean = false
			res.Errors = append(res.Errors, (&TransportError{Op: "pull " + string(table), Err: err}).Error())
			continue
		}

		for _, row := range rows {
			applied, err := e.apply(ctx, table, row, res)
			if err != nil {
				clean = false
				res.Errors = append(res.Errors, err.Error())
				continue
			}
			if applied {
				res.Pulled++
			}
		}

		if cursor.IsZero() || asOf.Before(cursor) {
			cursor = asOf
		}
	}

	res.Cursor = cursor
	return clean
}

// apply writes a pulled row unless a local pending edit is at least as new.
func (e *Engine) apply(ctx context.Context, table models.EntityType, row rpc.Row, res *Result) (bool, error) {
	remote, err := models.EntityFromRow(row, e.now())
	if err != nil {
		return false, err
	}

	applied := false
	err = e.store.Transaction(ctx, func(ctx context.Context) error {
		local, err := e.store.Get(ctx, table, row.ID)
		switch {
		case errors.Is(err, common.ErrorNotFound):
		case err != nil:
			return err
		case local.SyncStatus != models.SyncStatusSynced:
			if !local.UpdatedAt.Before(remote.UpdatedAt) {
				return nil
			}
			if _, err := e.queue.DropOpen(ctx, table, row.ID); err != nil {
				return err
			}
			note := &ConflictResolved{EntityType: table, EntityID: row.ID, Winner: WinnerRemote,
				Local: local.UpdatedAt, Remote: remote.UpdatedAt}
			res.Conflicts = append(res.Conflicts, note.Error())
		case local.RemoteVersion >= remote.Version:
			return nil
		}

		if err := e.store.Put(ctx, table, remote); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
