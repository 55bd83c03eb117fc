package store

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"net/url"
	"sync"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/client/migrations"
	"github.com/dmitrijs2005/storekeeper/internal/client/models"
	"github.com/dmitrijs2005/storekeeper/internal/client/repositories/entities"
	"github.com/dmitrijs2005/storekeeper/internal/client/repositories/mutations"
	"github.com/dmitrijs2005/storekeeper/internal/client/repositories/settings"
	"github.com/dmitrijs2005/storekeeper/internal/dbx"
	"github.com/dmitrijs2005/storekeeper/internal/logging"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "storekeeper.db"

type Options struct {
	// Path of the database file.
	Path   string
	Tables []TableDef
	Logger logging.Logger
}

type Store struct {
	db       *sql.DB
	logger   logging.Logger
	tables   []TableDef
	entities *entities.SQLiteRepository
	queue    *mutations.SQLiteRepository
	settings *settings.SQLiteRepository

	writeMu sync.Mutex

	watchMu   sync.Mutex
	watchers  map[models.EntityType]map[int]chan struct{}
	nextWatch int

	now func() time.Time
}

func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Open opens (creating if absent) the database at opts.Path and brings its
// schema up to date.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if len(opts.Tables) == 0 {
		opts.Tables = DefaultTables
	}

	db, err := sql.Open("sqlite", dsn(opts.Path))
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := checkTables(ctx, db, opts.Tables); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:       db,
		logger:   opts.Logger.With("module", "store"),
		tables:   opts.Tables,
		entities: entities.NewSQLiteRepository(db, opts.Tables),
		queue:    mutations.NewSQLiteRepository(db),
		settings: settings.NewSQLiteRepository(db),
		watchers: make(map[models.EntityType]map[int]chan struct{}),
		now:      models.Now,
	}
	return s, nil
}

// RunMigrations applies embedded migrations. A database already at a newer
// version than this build knows about yields a *SchemaError.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	all, err := goose.CollectMigrations(".", 0, goose.MaxVersion)
	if err != nil {
		return fmt.Errorf("collect migrations: %w", err)
	}
	latest, err := all.Last()
	if err != nil {
		return fmt.Errorf("collect migrations: %w", err)
	}

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > latest.Version {
		return &SchemaError{OnDisk: current, Supported: latest.Version}
	}

	return goose.UpContext(ctx, db, ".")
}

// SchemaVersion reports the version recorded in the database.
func (s *Store) SchemaVersion(ctx context.Context) (int64, error) {
	return goose.GetDBVersionContext(ctx, s.db)
}

func checkTables(ctx context.Context, db *sql.DB, defs []TableDef) error {
	for _, d := range defs {
		var n int
		err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, string(d.Name)).Scan(&n)
		if err != nil {
			return err
		}
		if n == 0 {
			return &SchemaError{Reason: fmt.Sprintf("table %q is missing", d.Name)}
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Tables() []TableDef {
	return s.tables
}

// Queue exposes the mutation queue table. Callers should write through
// Transaction so queue and entity changes commit together.
func (s *Store) Queue() mutations.Repository {
	return s.queue
}

func (s *Store) Settings() settings.Repository {
	return s.settings
}

type scopeKey struct{}

type txScope struct {
	touched map[models.EntityType]struct{}
}

// Transaction runs fn atomically. Writers are serialized; a Transaction
// started inside fn joins the outer one. Watchers of the tables written by
// fn are notified after a successful commit.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if dbx.HasTx(ctx) {
		return fn(ctx)
	}

	scope := &txScope{touched: map[models.EntityType]struct{}{}}

	err := func() error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()

		return dbx.WithTx(context.WithValue(ctx, scopeKey{}, scope), s.db, nil,
			func(ctx context.Context, _ dbx.DBTX) error {
				return fn(ctx)
			})
	}()
	if err != nil {
		return err
	}

	s.notify(scope.touched)
	return nil
}

// touch records that table changed in the transaction bound to ctx.
func (s *Store) touch(ctx context.Context, table models.EntityType) {
	if scope, ok := ctx.Value(scopeKey{}).(*txScope); ok {
		scope.touched[table] = struct{}{}
	}
}

func (s *Store) Get(ctx context.Context, table models.EntityType, id string) (*models.Entity, error) {
	return s.entities.Get(ctx, table, id)
}

// Put stores e as given. Concurrent puts of the same id are last write wins.
func (s *Store) Put(ctx context.Context, table models.EntityType, e *models.Entity) error {
	return s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.entities.Upsert(ctx, table, e); err != nil {
			return err
		}
		s.touch(ctx, table)
		return nil
	})
}

// Delete tombstones the entity: IsDeleted is set, Version and UpdatedAt are
// bumped and the entity becomes pending. The tombstone is returned.
func (s *Store) Delete(ctx context.Context, table models.EntityType, id string) (*models.Entity, error) {
	var out *models.Entity
	err := s.Transaction(ctx, func(ctx context.Context) error {
		e, err := s.entities.Get(ctx, table, id)
		if err != nil {
			return err
		}
		e.Touch(s.now())
		e.IsDeleted = true

		if err := s.entities.Upsert(ctx, table, e); err != nil {
			return err
		}
		s.touch(ctx, table)
		out = e
		return nil
	})
	return out, err
}

// Query returns a lazy sequence of matching entities.
func (s *Store) Query(ctx context.Context, table models.EntityType, f Filter) iter.Seq2[models.Entity, error] {
	return s.entities.Query(ctx, table, f)
}

// All collects Query into a slice.
func (s *Store) All(ctx context.Context, table models.EntityType, f Filter) ([]models.Entity, error) {
	var out []models.Entity
	for e, err := range s.entities.Query(ctx, table, f) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// MarkSynced records a server confirmation for the entity.
func (s *Store) MarkSynced(ctx context.Context, table models.EntityType, id string, remoteVersion int64) error {
	return s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.entities.SetSynced(ctx, table, id, remoteVersion, s.now()); err != nil {
			return err
		}
		s.touch(ctx, table)
		return nil
	})
}

func (s *Store) SetSyncStatus(ctx context.Context, table models.EntityType, id string, status models.SyncStatus) error {
	return s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.entities.SetSyncStatus(ctx, table, id, status); err != nil {
			return err
		}
		s.touch(ctx, table)
		return nil
	})
}

// PendingEntities counts entities of the workspace not yet confirmed by the
// server, across all tables.
func (s *Store) PendingEntities(ctx context.Context, workspaceID string) (int, error) {
	total := 0
	for _, d := range s.tables {
		n, err := s.entities.CountPending(ctx, d.Name, workspaceID)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
