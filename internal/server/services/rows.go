// Package services contains the server-side business logic behind the rows
// service: row push/pull, token issuing and asset presigning.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/common"
	"github.com/dmitrijs2005/storekeeper/internal/dbx"
	"github.com/dmitrijs2005/storekeeper/internal/logging"
	"github.com/dmitrijs2005/storekeeper/internal/rpc"
	"github.com/dmitrijs2005/storekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/storekeeper/internal/server/models"
	"github.com/dmitrijs2005/storekeeper/internal/server/repositories/repomanager"
)

// PullOverlap widens every pull window backwards so rows committed by a
// transaction that stamped them just before the previous AsOf are still
// delivered. Clients skip rows they already hold.
const PullOverlap = 2 * time.Second

// Publisher receives a notification for every row written.
type Publisher interface {
	Publish(rpc.Change)
}

type RowService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	publisher   Publisher
	metrics     *metrics.Metrics
	logger      logging.Logger
}

func NewRowService(db *sql.DB, m repomanager.RepositoryManager, p Publisher, mt *metrics.Metrics, l logging.Logger) *RowService {
	return &RowService{
		db:          db,
		repomanager: m,
		publisher:   p,
		metrics:     mt,
		logger:      l.With("module", "rows"),
	}
}

func validateRow(workspaceID string, r rpc.Row) error {
	if !common.IsTable(r.Table) {
		return fmt.Errorf("%w: %q", common.ErrUnknownTable, r.Table)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: row id is required", common.ErrorValidation)
	}
	if r.WorkspaceID != workspaceID {
		return common.ErrWorkspaceMismatch
	}
	return nil
}

// Push writes one row for a user of a workspace.
//
// A row that repeats the stored version and timestamp is a duplicate and is
// answered with the stored copy. A row whose base version is older than the
// stored one is a conflict unless Force is set; nothing is written and the
// stored copy is returned. Otherwise the row is stored with a version above
// the previous one.
func (s *RowService) Push(ctx context.Context, userID, workspaceID string, req *rpc.PushRequest) (*rpc.PushResponse, error) {
	if err := validateRow(workspaceID, req.Row); err != nil {
		s.metrics.Push(req.Row.Table, metrics.PushRejected)
		return nil, err
	}

	row := models.RowFromRPC(req.Row)
	row.UserID = userID

	var (
		resp    *rpc.PushResponse
		outcome string
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Rows(tx)

		existing, err := repo.Get(ctx, row.Table, row.ID, true)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		if existing != nil {
			if existing.WorkspaceID != row.WorkspaceID {
				return common.ErrWorkspaceMismatch
			}
			if existing.Version == row.Version && existing.UpdatedAt.Equal(row.UpdatedAt) {
				resp, outcome = &rpc.PushResponse{Row: existing.RPC(), Applied: true}, metrics.PushDuplicate
				return nil
			}
			if existing.Version > req.BaseVersion && !req.Force {
				resp, outcome = &rpc.PushResponse{Row: existing.RPC(), Conflict: true}, metrics.PushConflict
				return nil
			}
			row.CreatedAt = existing.CreatedAt
			row.Version = max(existing.Version+1, row.Version)
		} else {
			row.Version = max(1, row.Version)
		}

		stamped, err := repo.Upsert(ctx, row)
		if err != nil {
			return err
		}
		row.ServerUpdatedAt = stamped
		resp, outcome = &rpc.PushResponse{Row: row.RPC(), Applied: true}, metrics.PushApplied
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrWorkspaceMismatch) {
			s.metrics.Push(row.Table, metrics.PushRejected)
			return nil, err
		}
		s.logger.Error(ctx, "push failed", "table", row.Table, "id", row.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	s.metrics.Push(row.Table, outcome)
	if outcome == metrics.PushApplied {
		s.logger.Debug(ctx, "row stored", "table", row.Table, "id", row.ID, "version", row.Version, "deleted", row.IsDeleted)
		if s.publisher != nil {
			s.publisher.Publish(row.Change())
		}
	}
	return resp, nil
}

// Pull returns the rows of a workspace table written after req.Since, oldest
// first, and the database time to use as the next cursor.
func (s *RowService) Pull(ctx context.Context, workspaceID string, req *rpc.PullRequest) (*rpc.PullResponse, error) {
	if !common.IsTable(req.Table) {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownTable, req.Table)
	}
	if req.WorkspaceID != workspaceID {
		return nil, common.ErrWorkspaceMismatch
	}

	repo := s.repomanager.Rows(s.db)

	asOf, err := repo.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	since := req.Since
	if !since.IsZero() {
		since = since.Add(-PullOverlap)
	}
	rows, err := repo.SelectUpdated(ctx, workspaceID, req.Table, since)
	if err != nil {
		s.logger.Error(ctx, "pull failed", "table", req.Table, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	resp := &rpc.PullResponse{Rows: make([]rpc.Row, 0, len(rows)), AsOf: asOf}
	for _, r := range rows {
		// rows stamped after asOf belong to the next window
		if r.ServerUpdatedAt.After(asOf) {
			continue
		}
		resp.Rows = append(resp.Rows, r.RPC())
	}
	s.metrics.Pulled(req.Table, len(resp.Rows))
	return resp, nil
}
