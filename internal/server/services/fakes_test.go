package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/storekeeper/internal/common"
	"github.com/dmitrijs2005/storekeeper/internal/dbx"
	"github.com/dmitrijs2005/storekeeper/internal/rpc"
	"github.com/dmitrijs2005/storekeeper/internal/server/models"
	"github.com/dmitrijs2005/storekeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/storekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/storekeeper/internal/server/repositories/rows"
	"github.com/stretchr/testify/require"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

type memRows struct {
	mu        sync.Mutex
	rows      map[string]*models.Row
	clock     time.Time
	upsertErr error
}

func newMemRows() *memRows {
	return &memRows{
		rows:  map[string]*models.Row{},
		clock: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memRows) Get(_ context.Context, table, id string, _ bool) (*models.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[table+"/"+id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRows) Upsert(_ context.Context, r *models.Row) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return time.Time{}, m.upsertErr
	}
	m.clock = m.clock.Add(time.Second)
	cp := *r
	cp.ServerUpdatedAt = m.clock
	m.rows[r.Table+"/"+r.ID] = &cp
	return m.clock, nil
}

func (m *memRows) SelectUpdated(_ context.Context, workspaceID, table string, since time.Time) ([]*models.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Row
	for _, r := range m.rows {
		if r.WorkspaceID == workspaceID && r.Table == table && r.ServerUpdatedAt.After(since) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerUpdatedAt.Before(out[j].ServerUpdatedAt) })
	return out, nil
}

func (m *memRows) Now(context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock, nil
}

type memTokens struct {
	tokens    map[string]*models.RefreshToken
	createErr error
}

func newMemTokens() *memTokens {
	return &memTokens{tokens: map[string]*models.RefreshToken{}}
}

func (m *memTokens) Create(_ context.Context, userID, workspaceID, token string, validity time.Duration) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.tokens[token] = &models.RefreshToken{UserID: userID, WorkspaceID: workspaceID, Token: token, Expires: time.Now().Add(validity)}
	return nil
}

func (m *memTokens) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := m.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *rt
	return &cp, nil
}

func (m *memTokens) Delete(_ context.Context, token string) error {
	delete(m.tokens, token)
	return nil
}

type fakeManager struct {
	repomanager.RepositoryManager
	rows   *memRows
	tokens *memTokens
}

func (f *fakeManager) Rows(dbx.DBTX) rows.Repository                   { return f.rows }
func (f *fakeManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return f.tokens }

type recordingPublisher struct {
	mu      sync.Mutex
	changes []rpc.Change
}

func (p *recordingPublisher) Publish(c rpc.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
}
