// Package database provides sandbox database connection management for typeprobe.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "modernc.org/sqlite"             // SQLite driver

	"github.com/dbsmedya/typeprobe/internal/config"
	"github.com/dbsmedya/typeprobe/internal/sqlutil"
)

// Manager owns the connections to the sandbox.
// Admin is only set for MySQL sandboxes; it is connected without a default
// database so the sandbox database itself can be created and dropped.
type Manager struct {
	DB    *sql.DB
	Admin *sql.DB

	config     *config.SandboxConfig
	maxRetries int
	backoff    time.Duration
}

// NewManager creates a new database manager from sandbox configuration.
func NewManager(cfg *config.SandboxConfig) *Manager {
	return &Manager{
		config:     cfg,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Dialect returns the SQL dialect of the configured driver.
func (m *Manager) Dialect() sqlutil.Dialect {
	return sqlutil.ParseDialect(m.config.Driver)
}

// ConnectAdmin opens the server-level connection used to create or drop the
// sandbox database. It is a no-op for SQLite.
func (m *Manager) ConnectAdmin(ctx context.Context) error {
	if m.Dialect() != sqlutil.MySQL || m.Admin != nil {
		return nil
	}
	db, err := m.connectWithRetry(ctx, "mysql", BuildDSN(m.config, false))
	if err != nil {
		return fmt.Errorf("failed to connect to sandbox server: %w", err)
	}
	m.Admin = db
	return nil
}

// Connect opens the sandbox database connection.
func (m *Manager) Connect(ctx context.Context) error {
	if m.DB != nil {
		return nil
	}

	var (
		db  *sql.DB
		err error
	)
	switch m.Dialect() {
	case sqlutil.MySQL:
		db, err = m.connectWithRetry(ctx, "mysql", BuildDSN(m.config, true))
	default:
		db, err = m.connectWithRetry(ctx, "sqlite", SQLiteDSN(m.config.Path))
	}
	if err != nil {
		return fmt.Errorf("failed to connect to sandbox database: %w", err)
	}
	m.DB = db
	return nil
}

// connectWithRetry attempts to connect with exponential backoff.
func (m *Manager) connectWithRetry(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	var db *sql.DB
	var err error

	backoff := m.backoff
	for i := 0; i < m.maxRetries; i++ {
		db, err = m.open(driver, dsn)
		if err == nil {
			if pingErr := db.PingContext(ctx); pingErr == nil {
				return db, nil
			} else {
				db.Close()
				err = pingErr
			}
		}

		if i < m.maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}

	return nil, fmt.Errorf("failed after %d retries: %w", m.maxRetries, err)
}

func (m *Manager) open(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if driver == "sqlite" {
		// One writer; concurrent entity seeding queues on this connection.
		db.SetMaxOpenConns(1)
		return db, nil
	}

	if m.config.MaxConnections > 0 {
		db.SetMaxOpenConns(m.config.MaxConnections)
	}
	if m.config.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(m.config.MaxIdleConnections)
	}
	db.SetConnMaxLifetime(10 * time.Minute)
	return db, nil
}

// SQLiteDSN builds a modernc.org/sqlite DSN for a database file.
// Foreign keys are off so probes can be inserted in any order.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(0)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// BuildDSN constructs a MySQL DSN from sandbox configuration.
// withDatabase=false yields a server-level DSN.
func BuildDSN(cfg *config.SandboxConfig, withDatabase bool) string {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
	)

	if withDatabase && cfg.Database != "" {
		dsn += cfg.Database
	}

	params := "?parseTime=true&multiStatements=true"
	switch cfg.TLS {
	case "disable":
		params += "&tls=false"
	case "required":
		params += "&tls=true"
	case "preferred", "":
		params += "&tls=preferred"
	}
	if withDatabase {
		// Probe rows reference ids that do not exist.
		params += "&foreign_key_checks=0"
	}

	return dsn + params
}

// CloseDB closes the sandbox database connection but keeps the admin one.
// Destroying a MySQL sandbox needs the database connection gone first.
func (m *Manager) CloseDB() error {
	if m.DB == nil {
		return nil
	}
	err := m.DB.Close()
	m.DB = nil
	return err
}

// Close closes all connections gracefully.
func (m *Manager) Close() error {
	var errs []error

	if err := m.CloseDB(); err != nil {
		errs = append(errs, fmt.Errorf("sandbox close: %w", err))
	}

	if m.Admin != nil {
		if err := m.Admin.Close(); err != nil {
			errs = append(errs, fmt.Errorf("admin close: %w", err))
		}
		m.Admin = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing connections: %v", errs)
	}
	return nil
}
