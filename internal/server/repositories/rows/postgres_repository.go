// Package rows stores the synchronized entity records of every workspace.
package rows

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/common"
	"github.com/dmitrijs2005/storekeeper/internal/dbx"
	"github.com/dmitrijs2005/storekeeper/internal/server/models"
)

const rowColumns = `tbl, id, workspace_id, user_id, created_at, updated_at, version, is_deleted, data, server_updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (*models.Row, error) {
	r := &models.Row{}
	err := s.Scan(&r.Table, &r.ID, &r.WorkspaceID, &r.UserID, &r.CreatedAt, &r.UpdatedAt,
		&r.Version, &r.IsDeleted, &r.Data, &r.ServerUpdatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepository) Get(ctx context.Context, table, id string, forUpdate bool) (*models.Row, error) {
	query := `SELECT ` + rowColumns + ` FROM rows WHERE tbl = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	row, err := scanRow(r.db.QueryRowContext(ctx, query, table, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return row, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, row *models.Row) (time.Time, error) {
	query := `
		INSERT INTO rows (tbl, id, workspace_id, user_id, created_at, updated_at, version, is_deleted, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
		ON CONFLICT (tbl, id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			updated_at = EXCLUDED.updated_at,
			version = EXCLUDED.version,
			is_deleted = EXCLUDED.is_deleted,
			data = EXCLUDED.data,
			server_updated_at = clock_timestamp()
		RETURNING server_updated_at
	`
	data := string(row.Data)
	if data == "" {
		data = "{}"
	}
	var stamped time.Time
	err := r.db.QueryRowContext(ctx, query,
		row.Table, row.ID, row.WorkspaceID, row.UserID, row.CreatedAt, row.UpdatedAt,
		row.Version, row.IsDeleted, data,
	).Scan(&stamped)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to upsert row: %w", err)
	}
	return stamped, nil
}

func (r *PostgresRepository) SelectUpdated(ctx context.Context, workspaceID, table string, since time.Time) ([]*models.Row, error) {
	query := `
		SELECT ` + rowColumns + `
		FROM rows
		WHERE workspace_id = $1 AND tbl = $2 AND server_updated_at > $3
		ORDER BY server_updated_at, id
	`
	rs, err := r.db.QueryContext(ctx, query, workspaceID, table, since)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rs.Close()

	var out []*models.Row
	for rs.Next() {
		row, err := scanRow(rs)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, row)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := r.db.QueryRowContext(ctx, `SELECT clock_timestamp()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("db error: %w", err)
	}
	return now, nil
}
