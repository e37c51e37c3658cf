// Package sandbox manages the ephemeral database probe records are written to:
// provisioning, structural migrations, truncation, teardown, and row-level
// insert and read-back.
//
// Every lifecycle operation leaves the sandbox either fully ready or fully
// absent. Failures are reported as *SandboxError and are fatal to a run.
package sandbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/dbsmedya/typeprobe/internal/config"
	"github.com/dbsmedya/typeprobe/internal/database"
	"github.com/dbsmedya/typeprobe/internal/introspect"
	"github.com/dbsmedya/typeprobe/internal/lock"
	"github.com/dbsmedya/typeprobe/internal/logger"
	"github.com/dbsmedya/typeprobe/internal/sqlutil"
	"github.com/dbsmedya/typeprobe/internal/types"
)

// SandboxError is a failed lifecycle operation.
type SandboxError struct {
	Op  string // provision, migrate, truncate, destroy
	Err error
}

func (e *SandboxError) Error() string {
	return fmt.Sprintf("sandbox %s failed: %v", e.Op, e.Err)
}

func (e *SandboxError) Unwrap() error {
	return e.Err
}

// ErrNotProvisioned is returned by operations that need a live sandbox.
var ErrNotProvisioned = errors.New("sandbox is not provisioned")

// Sandbox is the run's ephemeral database.
type Sandbox struct {
	cfg     *config.SandboxConfig
	mgr     *database.Manager
	dialect sqlutil.Dialect
	logger  *logger.Logger

	mu          sync.Mutex
	provisioned bool
	migrated    bool
	lock        *lock.AdvisoryLock
}

// New creates a sandbox from configuration. Nothing is touched until Provision.
func New(cfg *config.SandboxConfig, log *logger.Logger) *Sandbox {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Sandbox{
		cfg:     cfg,
		mgr:     database.NewManager(cfg),
		dialect: sqlutil.ParseDialect(cfg.Driver),
		logger:  log.WithPhase("sandbox"),
	}
}

// Dialect returns the sandbox SQL dialect.
func (s *Sandbox) Dialect() sqlutil.Dialect {
	return s.dialect
}

// Introspector returns a schema introspector bound to the sandbox.
func (s *Sandbox) Introspector() introspect.Introspector {
	return introspect.New(s.mgr.DB, s.dialect)
}

// Provision creates an empty sandbox database. Calling it on a provisioned
// sandbox is a no-op. On failure anything partially created is torn down.
func (s *Sandbox) Provision(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.provisioned {
		return nil
	}

	var err error
	switch s.dialect {
	case sqlutil.MySQL:
		err = s.provisionMySQL(ctx)
	default:
		err = s.provisionSQLite(ctx)
	}
	if err != nil {
		if derr := s.destroyLocked(context.Background()); derr != nil {
			s.logger.Errorw("Teardown after failed provision also failed", "error", derr)
		}
		return &SandboxError{Op: "provision", Err: err}
	}

	s.provisioned = true
	s.logger.Infow("Sandbox provisioned", "driver", string(s.dialect), "target", s.target())
	return nil
}

func (s *Sandbox) provisionSQLite(ctx context.Context) error {
	if s.cfg.Path == "" {
		return errors.New("sqlite sandbox path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create sandbox directory: %w", err)
	}
	// A leftover file from an aborted run would leak old rows into the probes.
	if err := removeSQLiteFiles(s.cfg.Path); err != nil {
		return err
	}
	return s.mgr.Connect(ctx)
}

func (s *Sandbox) provisionMySQL(ctx context.Context) error {
	if !sqlutil.IsValidIdentifier(s.cfg.Database) {
		return &sqlutil.InvalidIdentifierError{Name: s.cfg.Database}
	}
	if err := s.mgr.ConnectAdmin(ctx); err != nil {
		return err
	}

	s.lock = lock.NewSandboxLock(s.mgr.Admin, s.cfg.Database)
	if err := s.lock.AcquireOrFail(ctx); err != nil {
		return fmt.Errorf("sandbox database %s is in use: %w", s.cfg.Database, err)
	}

	quoted := sqlutil.MySQL.Quote(s.cfg.Database)
	if _, err := s.mgr.Admin.ExecContext(ctx, "DROP DATABASE IF EXISTS "+quoted); err != nil {
		return fmt.Errorf("failed to drop stale sandbox database: %w", err)
	}
	if _, err := s.mgr.Admin.ExecContext(ctx, "CREATE DATABASE "+quoted); err != nil {
		return fmt.Errorf("failed to create sandbox database: %w", err)
	}
	return s.mgr.Connect(ctx)
}

// ApplyStructuralMigrations runs every SQL migration in the configured
// directory with goose. Already-applied migrations are skipped, so the call is
// idempotent. A failed migration destroys the sandbox.
func (s *Sandbox) ApplyStructuralMigrations(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.provisioned {
		return &SandboxError{Op: "migrate", Err: ErrNotProvisioned}
	}

	results, err := s.migrate(ctx)
	if err != nil {
		if derr := s.destroyLocked(context.Background()); derr != nil {
			s.logger.Errorw("Teardown after failed migration also failed", "error", derr)
		}
		return &SandboxError{Op: "migrate", Err: err}
	}

	for _, r := range results {
		s.logger.Debugw("Migration applied", "source", filepath.Base(r.Source.Path), "duration", r.Duration)
	}
	s.migrated = true
	s.logger.Infow("Structural migrations applied", "count", len(results))
	return nil
}

func (s *Sandbox) migrate(ctx context.Context) ([]*goose.MigrationResult, error) {
	dir := s.cfg.MigrationsDir
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("migrations directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("migrations path %s is not a directory", dir)
	}

	dialect := goose.DialectSQLite3
	if s.dialect == sqlutil.MySQL {
		dialect = goose.DialectMySQL
	}

	provider, err := goose.NewProvider(dialect, s.mgr.DB, os.DirFS(dir),
		goose.WithLogger(s.logger),
		goose.WithDisableGlobalRegistry(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations from %s: %w", dir, err)
	}

	return provider.Up(ctx)
}

// TruncateAll empties every user table, leaving the structure in place.
func (s *Sandbox) TruncateAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.provisioned {
		return &SandboxError{Op: "truncate", Err: ErrNotProvisioned}
	}

	tables, err := s.Introspector().ListTables(ctx)
	if err != nil {
		return &SandboxError{Op: "truncate", Err: err}
	}

	for _, table := range tables {
		stmt := "DELETE FROM " + s.dialect.Quote(table)
		if s.dialect == sqlutil.MySQL {
			stmt = "TRUNCATE TABLE " + s.dialect.Quote(table)
		}
		if _, err := s.mgr.DB.ExecContext(ctx, stmt); err != nil {
			return &SandboxError{Op: "truncate", Err: fmt.Errorf("table %s: %w", table, err)}
		}
	}

	if s.dialect == sqlutil.SQLite {
		// reset AUTOINCREMENT counters; the table only exists if one is declared
		var n int
		_ = s.mgr.DB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'sqlite_sequence'`).Scan(&n)
		if n > 0 {
			if _, err := s.mgr.DB.ExecContext(ctx, `DELETE FROM sqlite_sequence`); err != nil {
				return &SandboxError{Op: "truncate", Err: err}
			}
		}
	}

	s.logger.Debugw("Sandbox truncated", "tables", len(tables))
	return nil
}

// Destroy removes the sandbox entirely. It is idempotent and safe to call on
// a sandbox that was never provisioned.
func (s *Sandbox) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.destroyLocked(ctx); err != nil {
		return &SandboxError{Op: "destroy", Err: err}
	}
	return nil
}

// Close releases connections and the sandbox lock but keeps the database,
// for inspection after a run.
func (s *Sandbox) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLock(ctx)
	s.provisioned = false
	s.migrated = false
	return s.mgr.Close()
}

func (s *Sandbox) destroyLocked(ctx context.Context) error {
	var errs []error

	if err := s.mgr.CloseDB(); err != nil {
		errs = append(errs, err)
	}

	switch s.dialect {
	case sqlutil.MySQL:
		if s.mgr.Admin != nil && sqlutil.IsValidIdentifier(s.cfg.Database) {
			if _, err := s.mgr.Admin.ExecContext(ctx, "DROP DATABASE IF EXISTS "+sqlutil.MySQL.Quote(s.cfg.Database)); err != nil {
				errs = append(errs, fmt.Errorf("failed to drop sandbox database: %w", err))
			}
		}
		s.releaseLock(ctx)
	default:
		if s.cfg.Path != "" {
			if err := removeSQLiteFiles(s.cfg.Path); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if err := s.mgr.Close(); err != nil {
		errs = append(errs, err)
	}

	wasProvisioned := s.provisioned
	s.provisioned = false
	s.migrated = false

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if wasProvisioned {
		s.logger.Infow("Sandbox destroyed", "target", s.target())
	}
	return nil
}

func (s *Sandbox) releaseLock(ctx context.Context) {
	if s.lock == nil || !s.lock.IsHeld() {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := s.lock.Release(releaseCtx); err != nil {
		s.logger.Warnw("Failed to release sandbox lock", "lock", s.lock.LockName(), "error", err)
	}
}

func (s *Sandbox) target() string {
	if s.dialect == sqlutil.MySQL {
		return fmt.Sprintf("%s:%d/%s", s.cfg.Host, s.cfg.Port, s.cfg.Database)
	}
	return s.cfg.Path
}

func removeSQLiteFiles(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

// HasTable reports whether the sandbox has the table.
func (s *Sandbox) HasTable(ctx context.Context, table string) (bool, error) {
	if s.mgr.DB == nil {
		return false, ErrNotProvisioned
	}
	return s.Introspector().HasTable(ctx, table)
}

// Insert writes one row and returns a handle that addresses it. keyColumn is
// the primary key column, or empty when the table has none.
func (s *Sandbox) Insert(ctx context.Context, table, keyColumn string, attrs *types.Attributes) (types.RecordHandle, error) {
	handle := types.RecordHandle{Table: table, KeyColumn: keyColumn}
	if s.mgr.DB == nil {
		return handle, ErrNotProvisioned
	}

	cols := attrs.Keys()
	args := make([]interface{}, 0, len(cols))
	for el := attrs.Front(); el != nil; el = el.Next() {
		args = append(args, el.Value)
	}

	var stmt string
	if len(cols) == 0 {
		stmt = "INSERT INTO " + s.dialect.Quote(table) + " DEFAULT VALUES"
		if s.dialect == sqlutil.MySQL {
			stmt = "INSERT INTO " + s.dialect.Quote(table) + " () VALUES ()"
		}
	} else {
		stmt = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			s.dialect.Quote(table), s.dialect.QuoteList(cols), sqlutil.Placeholders(len(cols)))
	}

	res, err := s.mgr.DB.ExecContext(ctx, stmt, args...)
	if err != nil {
		return handle, fmt.Errorf("insert into %s: %w", table, err)
	}

	if keyColumn != "" {
		if v, ok := attrs.Get(keyColumn); ok && v != nil {
			handle.Key = v
			return handle, nil
		}
	}

	id, err := res.LastInsertId()
	if err != nil {
		return handle, fmt.Errorf("insert into %s: no row id: %w", table, err)
	}
	handle.Key = id
	return handle, nil
}

// Fetch reads back the row a handle addresses, with driver values normalized
// and columns in table order.
func (s *Sandbox) Fetch(ctx context.Context, h types.RecordHandle) (*types.Attributes, error) {
	if s.mgr.DB == nil {
		return nil, ErrNotProvisioned
	}

	keyExpr := "rowid"
	if h.KeyColumn != "" {
		keyExpr = s.dialect.Quote(h.KeyColumn)
	} else if s.dialect == sqlutil.MySQL {
		return nil, fmt.Errorf("fetch %s: table has no primary key", h)
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = ? LIMIT 1", s.dialect.Quote(h.Table), keyExpr)
	rows, err := s.mgr.DB.QueryContext(ctx, query, h.Key)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", h, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("fetch %s: %w", h, sql.ErrNoRows)
	}

	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", h, err)
	}

	out := types.NewAttributes()
	for i, c := range cols {
		out.Set(c, types.NormalizeDBValue(values[i]))
	}
	return out, rows.Err()
}
