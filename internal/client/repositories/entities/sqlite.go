package entities

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/client/models"
	"github.com/dmitrijs2005/storekeeper/internal/common"
	"github.com/dmitrijs2005/storekeeper/internal/dbx"
)

const selectColumns = `id, workspace_id, created_at, updated_at, sync_status, last_synced_at,
	version, remote_version, is_deleted, data`

// SQLiteRepository stores entities in the tables declared by defs. Every
// call runs on the transaction bound to ctx, if any.
type SQLiteRepository struct {
	db   *sql.DB
	defs map[models.EntityType]TableDef
}

func NewSQLiteRepository(db *sql.DB, defs []TableDef) *SQLiteRepository {
	m := make(map[models.EntityType]TableDef, len(defs))
	for _, d := range defs {
		m[d.Name] = d
	}
	return &SQLiteRepository{db: db, defs: m}
}

func (r *SQLiteRepository) Def(table models.EntityType) (TableDef, bool) {
	d, ok := r.defs[table]
	return d, ok
}

func (r *SQLiteRepository) def(table models.EntityType) (TableDef, error) {
	d, ok := r.defs[table]
	if !ok {
		return TableDef{}, fmt.Errorf("%q: %w", table, common.ErrUnknownTable)
	}
	return d, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(s scanner) (*models.Entity, error) {
	var (
		e                    models.Entity
		created, updated     string
		status               string
		lastSynced, dataJSON sql.NullString
	)

	if err := s.Scan(&e.ID, &e.WorkspaceID, &created, &updated, &status, &lastSynced,
		&e.Version, &e.RemoteVersion, &e.IsDeleted, &dataJSON); err != nil {
		return nil, err
	}

	var err error
	if e.CreatedAt, err = models.ParseTime(created); err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", created, err)
	}
	if e.UpdatedAt, err = models.ParseTime(updated); err != nil {
		return nil, fmt.Errorf("bad updated_at %q: %w", updated, err)
	}
	if lastSynced.Valid {
		t, err := models.ParseTime(lastSynced.String)
		if err != nil {
			return nil, fmt.Errorf("bad last_synced_at %q: %w", lastSynced.String, err)
		}
		e.LastSyncedAt = &t
	}
	e.SyncStatus = models.SyncStatus(status)

	e.Data = map[string]any{}
	if dataJSON.Valid && dataJSON.String != "" {
		if err := json.Unmarshal([]byte(dataJSON.String), &e.Data); err != nil {
			return nil, fmt.Errorf("bad data for %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, table models.EntityType, id string) (*models.Entity, error) {
	if _, err := r.def(table); err != nil {
		return nil, err
	}

	query := `SELECT ` + selectColumns + ` FROM ` + string(table) + ` WHERE id = ?`
	e, err := scanEntity(dbx.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s[%s]: %w", table, id, err)
	}
	return e, nil
}

// Upsert inserts e or replaces the stored copy. The workspace of an
// existing row is never changed.
func (r *SQLiteRepository) Upsert(ctx context.Context, table models.EntityType, e *models.Entity) error {
	if _, err := r.def(table); err != nil {
		return err
	}

	data := e.Data
	if data == nil {
		data = map[string]any{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s[%s]: %w", table, e.ID, err)
	}

	var lastSynced any
	if e.LastSyncedAt != nil {
		lastSynced = models.FormatTime(*e.LastSyncedAt)
	}

	query := `INSERT INTO ` + string(table) + ` (` + selectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at,
			sync_status = excluded.sync_status,
			last_synced_at = excluded.last_synced_at,
			version = excluded.version,
			remote_version = excluded.remote_version,
			is_deleted = excluded.is_deleted,
			data = excluded.data
		WHERE ` + string(table) + `.workspace_id = excluded.workspace_id`

	res, err := dbx.Conn(ctx, r.db).ExecContext(ctx, query,
		e.ID, e.WorkspaceID, models.FormatTime(e.CreatedAt), models.FormatTime(e.UpdatedAt),
		string(e.SyncStatus), lastSynced, e.Version, e.RemoteVersion, e.IsDeleted, string(payload))
	if err != nil {
		return fmt.Errorf("failed to upsert %s[%s]: %w", table, e.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s[%s]: %w", table, e.ID, common.ErrWorkspaceMismatch)
	}
	return nil
}

// Query streams matching entities. The statement runs when iteration starts
// and its cursor is closed when iteration stops.
func (r *SQLiteRepository) Query(ctx context.Context, table models.EntityType, f Filter) iter.Seq2[models.Entity, error] {
	return func(yield func(models.Entity, error) bool) {
		def, err := r.def(table)
		if err != nil {
			yield(models.Entity{}, err)
			return
		}

		where, args, err := f.where(def)
		if err != nil {
			yield(models.Entity{}, err)
			return
		}

		rows, err := dbx.Conn(ctx, r.db).QueryContext(ctx, `SELECT `+selectColumns+` FROM `+string(table)+where, args...)
		if err != nil {
			yield(models.Entity{}, fmt.Errorf("failed to query %s: %w", table, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanEntity(rows)
			if err != nil {
				yield(models.Entity{}, fmt.Errorf("failed to scan %s row: %w", table, err))
				return
			}
			if !yield(*e, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(models.Entity{}, fmt.Errorf("failed to iterate %s rows: %w", table, err))
		}
	}
}

// SetSynced marks the entity confirmed by the server at remoteVersion.
func (r *SQLiteRepository) SetSynced(ctx context.Context, table models.EntityType, id string, remoteVersion int64, at time.Time) error {
	if _, err := r.def(table); err != nil {
		return err
	}

	query := `UPDATE ` + string(table) + ` SET sync_status = ?, last_synced_at = ?,
		remote_version = MAX(remote_version, ?), version = MAX(version, ?) WHERE id = ?`
	_, err := dbx.Conn(ctx, r.db).ExecContext(ctx, query,
		string(models.SyncStatusSynced), models.FormatTime(at), remoteVersion, remoteVersion, id)
	if err != nil {
		return fmt.Errorf("failed to mark %s[%s] synced: %w", table, id, err)
	}
	return nil
}

func (r *SQLiteRepository) SetSyncStatus(ctx context.Context, table models.EntityType, id string, status models.SyncStatus) error {
	if _, err := r.def(table); err != nil {
		return err
	}

	_, err := dbx.Conn(ctx, r.db).ExecContext(ctx, `UPDATE `+string(table)+` SET sync_status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to set %s[%s] status: %w", table, id, err)
	}
	return nil
}

func (r *SQLiteRepository) CountPending(ctx context.Context, table models.EntityType, workspaceID string) (int, error) {
	if _, err := r.def(table); err != nil {
		return 0, err
	}

	var n int
	err := dbx.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+string(table)+` WHERE workspace_id = ? AND sync_status != ?`,
		workspaceID, string(models.SyncStatusSynced)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending %s: %w", table, err)
	}
	return n, nil
}
