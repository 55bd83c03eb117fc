package store

import (
	"errors"
	"fmt"
)

var ErrSchema = errors.New("incompatible local schema")

// SchemaError means the database on disk cannot be used by this build.
// Users should clear local data or install a newer version.
type SchemaError struct {
	OnDisk    int64
	Supported int64
	Reason    string
}

func (e *SchemaError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("local schema v%d: %s", e.OnDisk, e.Reason)
	}
	return fmt.Sprintf("local schema v%d is newer than supported v%d", e.OnDisk, e.Supported)
}

func (e *SchemaError) Unwrap() error {
	return ErrSchema
}
