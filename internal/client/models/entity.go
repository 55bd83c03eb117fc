// Package models defines client-side data models: entities, mutation queue
// items and settings.
package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/rpc"
)

// TimeLayout is the on-disk timestamp format. Fixed width, UTC, so that
// string comparison in SQL matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// Now returns the current time truncated to the stored precision, so values
// survive a round trip through the store unchanged.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

type SyncStatus string

const (
	SyncStatusPending  SyncStatus = "pending"
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusConflict SyncStatus = "conflict"
)

// EntityType names an entity table.
type EntityType string

const (
	EntityProducts  EntityType = "products"
	EntityCustomers EntityType = "customers"
	EntitySuppliers EntityType = "suppliers"
	EntityOrders    EntityType = "orders"
	EntityInvoices  EntityType = "invoices"
	EntitySales     EntityType = "sales"
	EntityExpenses  EntityType = "expenses"
	EntityBudgets   EntityType = "budgets"
	EntityLoans     EntityType = "loans"
	EntityEmployees EntityType = "employees"
)

// EntityTypes lists every entity table in pull order.
var EntityTypes = []EntityType{
	EntityProducts, EntityCustomers, EntitySuppliers, EntityOrders, EntityInvoices,
	EntitySales, EntityExpenses, EntityBudgets, EntityLoans, EntityEmployees,
}

func ParseEntityType(s string) (EntityType, error) {
	for _, t := range EntityTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// Entity is the generic record shape shared by every entity table.
//
// Version is bumped on every local mutation. RemoteVersion is the server
// version last confirmed by a push or pull and is what conflict detection
// compares against.
type Entity struct {
	ID            string         `json:"id"`
	WorkspaceID   string         `json:"workspaceId"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	SyncStatus    SyncStatus     `json:"syncStatus"`
	LastSyncedAt  *time.Time     `json:"lastSyncedAt"`
	Version       int64          `json:"version"`
	RemoteVersion int64          `json:"remoteVersion"`
	IsDeleted     bool           `json:"isDeleted"`
	Data          map[string]any `json:"data"`
}

// Clone returns a copy whose Data map can be modified independently.
func (e *Entity) Clone() *Entity {
	c := *e
	c.Data = maps.Clone(e.Data)
	if e.LastSyncedAt != nil {
		t := *e.LastSyncedAt
		c.LastSyncedAt = &t
	}
	return &c
}

// Touch records a local mutation at now.
func (e *Entity) Touch(now time.Time) {
	e.Version = max(e.Version, e.RemoteVersion) + 1
	e.UpdatedAt = now
	e.SyncStatus = SyncStatusPending
}

// Row converts the entity to its wire form.
func (e *Entity) Row(table EntityType, userID string) (rpc.Row, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return rpc.Row{}, fmt.Errorf("marshal %s/%s: %w", table, e.ID, err)
	}
	return rpc.Row{
		Table:       string(table),
		ID:          e.ID,
		WorkspaceID: e.WorkspaceID,
		UserID:      userID,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
		Version:     e.Version,
		IsDeleted:   e.IsDeleted,
		Data:        data,
	}, nil
}

// EntityFromRow builds a synced entity from a server row.
func EntityFromRow(r rpc.Row, syncedAt time.Time) (*Entity, error) {
	data := map[string]any{}
	if len(r.Data) > 0 && string(r.Data) != "null" {
		if err := json.Unmarshal(r.Data, &data); err != nil {
			return nil, fmt.Errorf("unmarshal %s/%s: %w", r.Table, r.ID, err)
		}
	}
	return &Entity{
		ID:            r.ID,
		WorkspaceID:   r.WorkspaceID,
		CreatedAt:     r.CreatedAt.UTC().Truncate(time.Microsecond),
		UpdatedAt:     r.UpdatedAt.UTC().Truncate(time.Microsecond),
		SyncStatus:    SyncStatusSynced,
		LastSyncedAt:  &syncedAt,
		Version:       r.Version,
		RemoteVersion: r.Version,
		IsDeleted:     r.IsDeleted,
		Data:          data,
	}, nil
}
