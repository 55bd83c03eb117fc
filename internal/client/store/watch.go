package store

import (
	"context"

	"github.com/dmitrijs2005/storekeeper/internal/client/models"
)

// Watch streams snapshots of the entities matching f. The first snapshot is
// sent right away and a new one after every committed write to table.
// Slow consumers only ever see the latest state. The channel is closed
// when ctx is done.
func (s *Store) Watch(ctx context.Context, table models.EntityType, f Filter) (<-chan []models.Entity, error) {
	initial, err := s.All(ctx, table, f)
	if err != nil {
		return nil, err
	}

	signal := make(chan struct{}, 1)
	id := s.addWatcher(table, signal)

	out := make(chan []models.Entity)

	go func() {
		defer close(out)
		defer s.removeWatcher(table, id)

		snapshot := initial
		for {
			select {
			case out <- snapshot:
			case <-ctx.Done():
				return
			}

			select {
			case <-signal:
			case <-ctx.Done():
				return
			}

			next, err := s.All(ctx, table, f)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn(ctx, "watch query failed", "table", table, "error", err)
				}
				continue
			}
			snapshot = next
		}
	}()

	return out, nil
}

func (s *Store) addWatcher(table models.EntityType, ch chan struct{}) int {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	s.nextWatch++
	if s.watchers[table] == nil {
		s.watchers[table] = map[int]chan struct{}{}
	}
	s.watchers[table][s.nextWatch] = ch
	return s.nextWatch
}

func (s *Store) removeWatcher(table models.EntityType, id int) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	delete(s.watchers[table], id)
}

func (s *Store) notify(tables map[models.EntityType]struct{}) {
	if len(tables) == 0 {
		return
	}

	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	for t := range tables {
		for _, ch := range s.watchers[t] {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}
