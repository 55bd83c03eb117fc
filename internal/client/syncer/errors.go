package syncer

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/client/models"
)

var ErrSyncInProgress = errors.New("sync already in progress")

// TransportError is a failed exchange with the backend. It is retried per
// item up to the retry ceiling.
type TransportError struct {
	Op         string
	EntityType models.EntityType
	EntityID   string
	Err        error
}

func (e *TransportError) Error() string {
	if e.EntityID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s[%s]: %v", e.Op, e.EntityType, e.EntityID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type Winner string

const (
	WinnerLocal  Winner = "local"
	WinnerRemote Winner = "remote"
)

// ConflictResolved notes a conflict settled by last writer wins. It is
// informational, not a failure.
type ConflictResolved struct {
	EntityType models.EntityType
	EntityID   string
	Winner     Winner
	Local      time.Time
	Remote     time.Time
}

func (c *ConflictResolved) Error() string {
	if c.Winner == WinnerRemote {
		return fmt.Sprintf("%s[%s]: kept server copy from %s, local change from %s discarded",
			c.EntityType, c.EntityID, models.FormatTime(c.Remote), models.FormatTime(c.Local))
	}
	return fmt.Sprintf("%s[%s]: local change from %s overwrote server copy from %s",
		c.EntityType, c.EntityID, models.FormatTime(c.Local), models.FormatTime(c.Remote))
}
