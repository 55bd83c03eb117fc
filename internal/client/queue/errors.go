package queue

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/storekeeper/internal/client/models"
)

var (
	ErrStaleMutation  = errors.New("stale mutation")
	ErrRetryExhausted = errors.New("retry limit reached")
)

// StaleMutationError rejects a mutation of an entity already queued for
// deletion.
type StaleMutationError struct {
	EntityType models.EntityType
	EntityID   string
	Operation  models.Operation
}

func (e *StaleMutationError) Error() string {
	return fmt.Sprintf("cannot %s %s[%s]: entity is queued for deletion", e.Operation, e.EntityType, e.EntityID)
}

func (e *StaleMutationError) Unwrap() error {
	return ErrStaleMutation
}

// RetryExhaustedError reports an item that will not be retried until the
// user discards it.
type RetryExhaustedError struct {
	Item models.QueueItem
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s of %s[%s] failed %d times: %s",
		e.Item.Operation, e.Item.EntityType, e.Item.EntityID, e.Item.RetryCount, e.Item.Error)
}

func (e *RetryExhaustedError) Unwrap() error {
	return ErrRetryExhausted
}
