package mutations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/client/models"
	"github.com/dmitrijs2005/storekeeper/internal/common"
	"github.com/dmitrijs2005/storekeeper/internal/dbx"
)

const selectColumns = `id, workspace_id, entity_type, entity_id, operation, payload,
	created_at, updated_at, status, error, retry_count, last_attempt_at`

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*models.QueueItem, error) {
	var (
		it                  models.QueueItem
		entityType, op, st  string
		payload             string
		created, updated    string
		errMsg, lastAttempt sql.NullString
	)
	if err := s.Scan(&it.ID, &it.WorkspaceID, &entityType, &it.EntityID, &op, &payload,
		&created, &updated, &st, &errMsg, &it.RetryCount, &lastAttempt); err != nil {
		return nil, err
	}

	var err error
	if it.CreatedAt, err = models.ParseTime(created); err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", created, err)
	}
	if it.UpdatedAt, err = models.ParseTime(updated); err != nil {
		return nil, fmt.Errorf("bad updated_at %q: %w", updated, err)
	}
	if lastAttempt.Valid {
		t, err := models.ParseTime(lastAttempt.String)
		if err != nil {
			return nil, fmt.Errorf("bad last_attempt_at %q: %w", lastAttempt.String, err)
		}
		it.LastAttemptAt = &t
	}

	it.EntityType = models.EntityType(entityType)
	it.Operation = models.Operation(op)
	it.Status = models.QueueStatus(st)
	it.Payload = []byte(payload)
	it.Error = errMsg.String
	return &it, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return models.FormatTime(*t)
}

func (r *SQLiteRepository) Insert(ctx context.Context, it *models.QueueItem) error {
	query := `INSERT INTO mutation_queue (` + selectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := dbx.Conn(ctx, r.db).ExecContext(ctx, query,
		it.ID, it.WorkspaceID, string(it.EntityType), it.EntityID, string(it.Operation), string(it.Payload),
		models.FormatTime(it.CreatedAt), models.FormatTime(it.UpdatedAt), string(it.Status),
		nullable(it.Error), it.RetryCount, nullableTime(it.LastAttemptAt))
	if err != nil {
		return fmt.Errorf("failed to insert queue item: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, it *models.QueueItem) error {
	query := `UPDATE mutation_queue SET operation = ?, payload = ?, updated_at = ?, status = ?,
		error = ?, retry_count = ?, last_attempt_at = ? WHERE id = ?`
	res, err := dbx.Conn(ctx, r.db).ExecContext(ctx, query,
		string(it.Operation), string(it.Payload), models.FormatTime(it.UpdatedAt), string(it.Status),
		nullable(it.Error), it.RetryCount, nullableTime(it.LastAttemptAt), it.ID)
	if err != nil {
		return fmt.Errorf("failed to update queue item %s: %w", it.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.QueueItem, error) {
	it, err := scanItem(dbx.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM mutation_queue WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item %s: %w", id, err)
	}
	return it, nil
}

// FindOpen returns the most recent pending or failed item for the entity.
func (r *SQLiteRepository) FindOpen(ctx context.Context, entityType models.EntityType, entityID string) (*models.QueueItem, error) {
	query := `SELECT ` + selectColumns + ` FROM mutation_queue
		WHERE entity_type = ? AND entity_id = ? AND status IN ('pending', 'failed')
		ORDER BY created_at DESC, id DESC LIMIT 1`
	it, err := scanItem(dbx.Conn(ctx, r.db).QueryRowContext(ctx, query, string(entityType), entityID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open item for %s[%s]: %w", entityType, entityID, err)
	}
	return it, nil
}

// CountOpen counts items for the entity that are not yet confirmed.
func (r *SQLiteRepository) CountOpen(ctx context.Context, entityType models.EntityType, entityID string) (int, error) {
	var n int
	err := dbx.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mutation_queue WHERE entity_type = ? AND entity_id = ? AND status != 'synced'`,
		string(entityType), entityID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count open items: %w", err)
	}
	return n, nil
}

// SelectDrainable returns eligible items in FIFO order, skipping entities
// that already have an item in flight.
func (r *SQLiteRepository) SelectDrainable(ctx context.Context, q DrainQuery) ([]models.QueueItem, error) {
	query := `SELECT ` + selectColumns + ` FROM mutation_queue q
		WHERE q.workspace_id = ?
		  AND q.status IN ('pending', 'failed')
		  AND q.retry_count < ?
		  AND (? = '' OR q.last_attempt_at IS NULL OR q.last_attempt_at < ?)
		  AND NOT EXISTS (
			SELECT 1 FROM mutation_queue s
			WHERE s.entity_type = q.entity_type AND s.entity_id = q.entity_id AND s.status = 'syncing'
		  )
		ORDER BY q.created_at, q.id`

	before := ""
	if !q.AttemptedBefore.IsZero() {
		before = models.FormatTime(q.AttemptedBefore)
	}

	rows, err := dbx.Conn(ctx, r.db).QueryContext(ctx, query, q.WorkspaceID, q.MaxRetries, before, before)
	if err != nil {
		return nil, fmt.Errorf("failed to select drainable items: %w", err)
	}
	defer rows.Close()

	var result []models.QueueItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue row: %w", err)
		}
		result = append(result, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queue rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) SetStatus(ctx context.Context, ids []string, status models.QueueStatus, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)+2)
	args = append(args, string(status), models.FormatTime(now))
	for _, id := range ids {
		args = append(args, id)
	}

	query := `UPDATE mutation_queue SET status = ?, updated_at = ? WHERE id IN (` + placeholders(len(ids)) + `)`
	if _, err := dbx.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to set status %s: %w", status, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, workspaceID string, statuses ...models.QueueStatus) ([]models.QueueItem, error) {
	query := `SELECT ` + selectColumns + ` FROM mutation_queue WHERE workspace_id = ?`
	args := []any{workspaceID}
	query, args = withStatuses(query, args, statuses)
	query += ` ORDER BY created_at, id`

	rows, err := dbx.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	defer rows.Close()

	var result []models.QueueItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue row: %w", err)
		}
		result = append(result, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queue rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Count(ctx context.Context, workspaceID string, statuses ...models.QueueStatus) (int, error) {
	query, args := withStatuses(`SELECT COUNT(*) FROM mutation_queue WHERE workspace_id = ?`, []any{workspaceID}, statuses)

	var n int
	if err := dbx.Conn(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue items: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := dbx.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM mutation_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete queue item %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteOpenForEntity(ctx context.Context, entityType models.EntityType, entityID string) (int, error) {
	res, err := dbx.Conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM mutation_queue WHERE entity_type = ? AND entity_id = ? AND status IN ('pending', 'failed')`,
		string(entityType), entityID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete items for %s[%s]: %w", entityType, entityID, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *SQLiteRepository) DeleteByWorkspace(ctx context.Context, workspaceID string) (int, error) {
	res, err := dbx.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM mutation_queue WHERE workspace_id = ?`, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear queue of %s: %w", workspaceID, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func withStatuses(query string, args []any, statuses []models.QueueStatus) (string, []any) {
	if len(statuses) == 0 {
		return query, args
	}
	query += ` AND status IN (` + placeholders(len(statuses)) + `)`
	for _, s := range statuses {
		args = append(args, string(s))
	}
	return query, args
}
