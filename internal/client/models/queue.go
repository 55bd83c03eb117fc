package models

import (
	"encoding/json"
	"time"
)

type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

type QueueStatus string

const (
	QueueStatusPending QueueStatus = "pending"
	QueueStatusSyncing QueueStatus = "syncing"
	QueueStatusFailed  QueueStatus = "failed"
	QueueStatusSynced  QueueStatus = "synced"
)

// QueueItem is one buffered mutation. Payload holds the entity's full state
// at enqueue time, encoded as an Entity.
type QueueItem struct {
	ID            string
	WorkspaceID   string
	EntityType    EntityType
	EntityID      string
	Operation     Operation
	Payload       json.RawMessage
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Status        QueueStatus
	Error         string
	RetryCount    int
	LastAttemptAt *time.Time
}

// Entity decodes the payload.
func (q *QueueItem) Entity() (*Entity, error) {
	var e Entity
	if err := json.Unmarshal(q.Payload, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
