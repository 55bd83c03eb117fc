// Package models holds the server's persistence types.
package models

import (
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/rpc"
)

// Row is one stored entity record. ServerUpdatedAt is stamped by the
// server on every write and drives the pull cursor.
type Row struct {
	Table           string
	ID              string
	WorkspaceID     string
	UserID          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Version         int64
	IsDeleted       bool
	Data            []byte
	ServerUpdatedAt time.Time
}

func RowFromRPC(r rpc.Row) *Row {
	return &Row{
		Table:       r.Table,
		ID:          r.ID,
		WorkspaceID: r.WorkspaceID,
		UserID:      r.UserID,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
		Version:     r.Version,
		IsDeleted:   r.IsDeleted,
		Data:        []byte(r.Data),
	}
}

func (r *Row) RPC() rpc.Row {
	out := rpc.Row{
		Table:       r.Table,
		ID:          r.ID,
		WorkspaceID: r.WorkspaceID,
		UserID:      r.UserID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Version:     r.Version,
		IsDeleted:   r.IsDeleted,
	}
	if len(r.Data) > 0 {
		out.Data = json.RawMessage(r.Data)
	}
	return out
}

// Change is the changefeed notification for r.
func (r *Row) Change() rpc.Change {
	return rpc.Change{
		Table:       r.Table,
		ID:          r.ID,
		WorkspaceID: r.WorkspaceID,
		Version:     r.Version,
		UpdatedAt:   r.UpdatedAt,
	}
}
