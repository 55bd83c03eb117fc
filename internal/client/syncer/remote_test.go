package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/client/client"
	"github.com/dmitrijs2005/storekeeper/internal/rpc"
)

type storedRow struct {
	row       rpc.Row
	changedAt time.Time
}

// memRemote mimics the server: a write whose base version is behind the
// stored one conflicts unless forced, and replaying an accepted write is a
// no-op.
type memRemote struct {
	mu    sync.Mutex
	rows  map[string]storedRow
	now   func() time.Time
	saves int
	pulls int

	pingErr error
	// reject fails a push before it is applied.
	reject func(req rpc.PushRequest) error
	// lose applies a push but reports it as failed.
	lose func(req rpc.PushRequest) error
	// pullErr fails Pull for a table.
	pullErr map[string]error
	// pingGate blocks Ping until closed.
	pingGate    chan struct{}
	pingEntered chan struct{}
}

func newMemRemote(now func() time.Time) *memRemote {
	return &memRemote{rows: map[string]storedRow{}, now: now, pullErr: map[string]error{}}
}

func key(table, id string) string {
	return table + "/" + id
}

func (m *memRemote) seed(r rpc.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[key(r.Table, r.ID)] = storedRow{row: r, changedAt: m.now()}
}

func (m *memRemote) row(table, id string) (rpc.Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[key(table, id)]
	return s.row, ok
}

func (m *memRemote) Ping(ctx context.Context) error {
	if m.pingGate != nil {
		if m.pingEntered != nil {
			close(m.pingEntered)
		}
		<-m.pingGate
	}
	return m.pingErr
}

func (m *memRemote) Push(ctx context.Context, req rpc.PushRequest) (*rpc.Row, error) {
	if m.reject != nil {
		if err := m.reject(req); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	k := key(req.Row.Table, req.Row.ID)
	existing, ok := m.rows[k]

	if ok && existing.row.Version == req.Row.Version && existing.row.UpdatedAt.Equal(req.Row.UpdatedAt) {
		m.mu.Unlock()
		r := existing.row
		return &r, nil
	}
	if ok && !req.Force && existing.row.Version > req.BaseVersion {
		m.mu.Unlock()
		return nil, &client.ConflictError{Remote: existing.row}
	}

	row := req.Row
	row.Version = max(existing.row.Version+1, row.Version)
	m.rows[k] = storedRow{row: row, changedAt: m.now()}
	m.saves++
	m.mu.Unlock()

	if m.lose != nil {
		if err := m.lose(req); err != nil {
			return nil, err
		}
	}
	return &row, nil
}

func (m *memRemote) Pull(ctx context.Context, table, workspaceID string, since time.Time) ([]rpc.Row, time.Time, error) {
	if err := m.pullErr[table]; err != nil {
		return nil, time.Time{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pulls++

	var out []rpc.Row
	for _, s := range m.rows {
		if s.row.Table == table && s.row.WorkspaceID == workspaceID && s.changedAt.After(since) {
			out = append(out, s.row)
		}
	}
	return out, m.now(), nil
}
