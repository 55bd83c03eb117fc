package client

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/storekeeper/internal/common"
	"github.com/dmitrijs2005/storekeeper/internal/rpc"
)

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
)

// ConflictError reports a push refused because the server copy changed
// since the client last saw it.
type ConflictError struct {
	Remote rpc.Row
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s[%s]: server has version %d", e.Remote.Table, e.Remote.ID, e.Remote.Version)
}

func (e *ConflictError) Unwrap() error {
	return common.ErrVersionConflict
}
