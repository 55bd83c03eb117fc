package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/client/models"
	"github.com/dmitrijs2005/storekeeper/internal/client/queue"
	"github.com/dmitrijs2005/storekeeper/internal/client/store"
	"github.com/dmitrijs2005/storekeeper/internal/common"
	"github.com/dmitrijs2005/storekeeper/internal/logging"
	"github.com/google/uuid"
)

// Kicker is told about committed local mutations.
type Kicker interface {
	Kick()
}

// EntityService performs local CRUD. Every mutation writes the entity and
// queues it for sync in one transaction.
type EntityService interface {
	Create(ctx context.Context, t models.EntityType, workspaceID string, data map[string]any) (*models.Entity, error)
	Update(ctx context.Context, t models.EntityType, id string, patch map[string]any) (*models.Entity, error)
	Delete(ctx context.Context, t models.EntityType, id string) error
	Get(ctx context.Context, t models.EntityType, id string) (*models.Entity, error)
	Query(ctx context.Context, t models.EntityType, f store.Filter) ([]models.Entity, error)
	Watch(ctx context.Context, t models.EntityType, f store.Filter) (<-chan []models.Entity, error)
}

type entityService struct {
	store  *store.Store
	queue  *queue.Queue
	kicker Kicker
	logger logging.Logger
	now    func() time.Time
}

// NewEntityService builds the service. kicker may be nil.
func NewEntityService(st *store.Store, q *queue.Queue, kicker Kicker, logger logging.Logger) EntityService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &entityService{
		store:  st,
		queue:  q,
		kicker: kicker,
		logger: logger.With("module", "entities"),
		now:    models.Now,
	}
}

func (s *entityService) Create(ctx context.Context, t models.EntityType, workspaceID string, data map[string]any) (*models.Entity, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspace is required", common.ErrorValidation)
	}
	if data == nil {
		data = map[string]any{}
	}

	now := s.now()
	e := &models.Entity{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		CreatedAt:   now,
		Data:        data,
	}
	e.Touch(now)

	if err := s.save(ctx, t, e, models.OperationCreate); err != nil {
		return nil, fmt.Errorf("create %s: %w", t, err)
	}
	return e, nil
}

// Update merges patch into the entity's data. A nil value removes the key.
func (s *entityService) Update(ctx context.Context, t models.EntityType, id string, patch map[string]any) (*models.Entity, error) {
	var out *models.Entity

	err := s.store.Transaction(ctx, func(ctx context.Context) error {
		e, err := s.mutable(ctx, t, id, models.OperationUpdate)
		if err != nil {
			return err
		}

		if e.Data == nil {
			e.Data = map[string]any{}
		}
		var removed []string
		for k, v := range patch {
			if v == nil {
				delete(e.Data, k)
				removed = append(removed, k)
				continue
			}
			e.Data[k] = v
		}
		e.Touch(s.now())

		if err := s.store.Put(ctx, t, e); err != nil {
			return err
		}
		if err := s.enqueue(ctx, t, e, models.OperationUpdate, removed...); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update %s[%s]: %w", t, id, err)
	}

	s.kick()
	return out, nil
}

func (s *entityService) Delete(ctx context.Context, t models.EntityType, id string) error {
	err := s.store.Transaction(ctx, func(ctx context.Context) error {
		if _, err := s.mutable(ctx, t, id, models.OperationDelete); err != nil {
			return err
		}
		tomb, err := s.store.Delete(ctx, t, id)
		if err != nil {
			return err
		}
		return s.enqueue(ctx, t, tomb, models.OperationDelete)
	})
	if err != nil {
		return fmt.Errorf("delete %s[%s]: %w", t, id, err)
	}

	s.kick()
	return nil
}

// Get returns a live entity; tombstones are reported as not found.
func (s *entityService) Get(ctx context.Context, t models.EntityType, id string) (*models.Entity, error) {
	return s.live(ctx, t, id)
}

func (s *entityService) Query(ctx context.Context, t models.EntityType, f store.Filter) ([]models.Entity, error) {
	return s.store.All(ctx, t, f)
}

func (s *entityService) Watch(ctx context.Context, t models.EntityType, f store.Filter) (<-chan []models.Entity, error) {
	return s.store.Watch(ctx, t, f)
}

// mutable returns a live entity for op. A tombstone whose deletion the
// backend has not confirmed yet is a StaleMutationError; a confirmed one is
// not found.
func (s *entityService) mutable(ctx context.Context, t models.EntityType, id string, op models.Operation) (*models.Entity, error) {
	e, err := s.store.Get(ctx, t, id)
	if err != nil {
		return nil, err
	}
	if !e.IsDeleted {
		return e, nil
	}
	if e.SyncStatus != models.SyncStatusSynced {
		return nil, &queue.StaleMutationError{EntityType: t, EntityID: id, Operation: op}
	}
	return nil, common.ErrorNotFound
}

func (s *entityService) live(ctx context.Context, t models.EntityType, id string) (*models.Entity, error) {
	e, err := s.store.Get(ctx, t, id)
	if err != nil {
		return nil, err
	}
	if e.IsDeleted {
		return nil, common.ErrorNotFound
	}
	return e, nil
}

func (s *entityService) save(ctx context.Context, t models.EntityType, e *models.Entity, op models.Operation) error {
	err := s.store.Transaction(ctx, func(ctx context.Context) error {
		if err := s.store.Put(ctx, t, e); err != nil {
			return err
		}
		return s.enqueue(ctx, t, e, op)
	})
	if err != nil {
		return err
	}
	s.kick()
	return nil
}

// enqueue queues the entity's full state. Keys in removed are sent as null
// so they are also dropped from a queued item the change coalesces into.
func (s *entityService) enqueue(ctx context.Context, t models.EntityType, e *models.Entity, op models.Operation,
	removed ...string) error {

	snapshot := e
	if len(removed) > 0 {
		snapshot = e.Clone()
		for _, k := range removed {
			snapshot.Data[k] = nil
		}
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = s.queue.Enqueue(ctx, e.WorkspaceID, t, e.ID, op, payload)
	return err
}

func (s *entityService) kick() {
	if s.kicker != nil {
		s.kicker.Kick()
	}
}
