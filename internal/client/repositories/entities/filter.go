package entities

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/client/models"
)

var ErrNotIndexed = errors.New("field is not indexed")

// TableDef declares an entity table and the data fields that carry a
// secondary index. Only indexed fields may appear in a Filter.
type TableDef struct {
	Name    models.EntityType
	Indexes []string
}

type Op string

const (
	OpEq  Op = "="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpLt  Op = "<"
	OpLte Op = "<="
)

type Condition struct {
	Field string
	Op    Op
	Value any
}

func Eq(field string, v any) Condition  { return Condition{Field: field, Op: OpEq, Value: v} }
func Gt(field string, v any) Condition  { return Condition{Field: field, Op: OpGt, Value: v} }
func Gte(field string, v any) Condition { return Condition{Field: field, Op: OpGte, Value: v} }
func Lt(field string, v any) Condition  { return Condition{Field: field, Op: OpLt, Value: v} }
func Lte(field string, v any) Condition { return Condition{Field: field, Op: OpLte, Value: v} }

// Filter selects entities of one table. Tombstones are excluded unless
// IncludeDeleted is set.
type Filter struct {
	WorkspaceID    string
	IncludeDeleted bool
	Conditions     []Condition
	OrderBy        string
	Desc           bool
	Limit          int
}

// columns that exist on every entity table
var coreColumns = map[string]string{
	"id":          "id",
	"workspaceId": "workspace_id",
	"syncStatus":  "sync_status",
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
	"isDeleted":   "is_deleted",
	"version":     "version",
}

func (d TableDef) expr(field string) (string, error) {
	if col, ok := coreColumns[field]; ok {
		return col, nil
	}
	for _, f := range d.Indexes {
		if f == field {
			return fmt.Sprintf("json_extract(data, '$.%s')", f), nil
		}
	}
	return "", fmt.Errorf("%s.%s: %w", d.Name, field, ErrNotIndexed)
}

func (f Filter) where(def TableDef) (string, []any, error) {
	var clauses []string
	var args []any

	if f.WorkspaceID != "" {
		clauses = append(clauses, "workspace_id = ?")
		args = append(args, f.WorkspaceID)
	}
	if !f.IncludeDeleted {
		clauses = append(clauses, "is_deleted = 0")
	}

	for _, c := range f.Conditions {
		expr, err := def.expr(c.Field)
		if err != nil {
			return "", nil, err
		}
		switch c.Op {
		case OpEq, OpGt, OpGte, OpLt, OpLte:
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", c.Op)
		}
		clauses = append(clauses, fmt.Sprintf("%s %s ?", expr, c.Op))
		args = append(args, sqlValue(c.Value))
	}

	q := ""
	if len(clauses) > 0 {
		q = " WHERE " + strings.Join(clauses, " AND ")
	}

	if f.OrderBy != "" {
		expr, err := def.expr(f.OrderBy)
		if err != nil {
			return "", nil, err
		}
		q += " ORDER BY " + expr
		if f.Desc {
			q += " DESC"
		}
		q += ", id"
	} else {
		q += " ORDER BY created_at, id"
	}

	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	return q, args, nil
}

func sqlValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return models.FormatTime(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case models.SyncStatus:
		return string(x)
	default:
		return v
	}
}
