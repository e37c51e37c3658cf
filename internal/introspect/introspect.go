// Package introspect reads table and column definitions from a migrated
// sandbox database and enriches them with constraints parsed from the DDL.
package introspect

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dbsmedya/typeprobe/internal/schema"
	"github.com/dbsmedya/typeprobe/internal/sqlutil"
)

// MigrationTable is goose's version table; it is never an entity.
const MigrationTable = "goose_db_version"

// Introspector lists tables and describes their columns.
type Introspector interface {
	ListTables(ctx context.Context) ([]string, error)
	HasTable(ctx context.Context, table string) (bool, error)
	ColumnsFor(ctx context.Context, table string) ([]schema.Column, error)
}

// New returns the introspector matching the dialect.
func New(db *sql.DB, dialect sqlutil.Dialect) Introspector {
	if dialect == sqlutil.MySQL {
		return &MySQL{db: db}
	}
	return &SQLite{db: db}
}

// SQLite introspects a SQLite database through PRAGMA table_info and the
// CREATE TABLE text kept in sqlite_master.
type SQLite struct {
	db *sql.DB
}

// NewSQLite creates a SQLite introspector.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// ListTables returns user tables in name order.
func (s *SQLite) ListTables(ctx context.Context) ([]string, error) {
	const query = `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name <> ?
		ORDER BY name
	`
	return queryStrings(ctx, s.db, query, MigrationTable)
}

// HasTable reports whether table exists.
func (s *SQLite) HasTable(ctx context.Context, table string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return n > 0, nil
}

// ColumnsFor returns the enriched columns of table in declaration order.
// A missing table yields no columns and no error.
func (s *SQLite) ColumnsFor(ctx context.Context, table string) ([]schema.Column, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+sqlutil.SQLite.Quote(table)+")")
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var (
			cid      int
			name     string
			declType string
			notNull  int
			dflt     interface{}
			pk       int
		)
		if err := rows.Scan(&cid, &name, &declType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		cols = append(cols, schema.Column{
			Name:         name,
			Kind:         schema.KindFromDeclaredType(declType),
			DeclaredType: declType,
			Nullable:     notNull == 0 && pk == 0,
			PrimaryKey:   pk > 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, nil
	}

	var createSQL sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&createSQL)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to read DDL of %s: %w", table, err)
	}

	for i := range cols {
		cols[i] = Enrich(cols[i], ParseColumnDDL(createSQL.String, cols[i].Name))
	}
	return cols, nil
}

// MySQL introspects the current database through information_schema and
// SHOW CREATE TABLE (for CHECK constraints).
type MySQL struct {
	db *sql.DB
}

// NewMySQL creates a MySQL introspector.
func NewMySQL(db *sql.DB) *MySQL {
	return &MySQL{db: db}
}

// ListTables returns base tables of the current database in name order.
func (m *MySQL) ListTables(ctx context.Context) ([]string, error) {
	const query = `
		SELECT TABLE_NAME
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE' AND TABLE_NAME <> ?
		ORDER BY TABLE_NAME
	`
	return queryStrings(ctx, m.db, query, MigrationTable)
}

// HasTable reports whether table exists in the current database.
func (m *MySQL) HasTable(ctx context.Context, table string) (bool, error) {
	const query = `
		SELECT COUNT(*)
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
	`
	var n int
	if err := m.db.QueryRowContext(ctx, query, table).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return n > 0, nil
}

// ColumnsFor returns the enriched columns of table in ordinal order.
func (m *MySQL) ColumnsFor(ctx context.Context, table string) ([]schema.Column, error) {
	const query = `
		SELECT COLUMN_NAME, DATA_TYPE, COLUMN_TYPE, IS_NULLABLE, COLUMN_KEY, CHARACTER_MAXIMUM_LENGTH
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`
	rows, err := m.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var (
			name, dataType, columnType, isNullable, columnKey string
			maxLen                                            sql.NullInt64
		)
		if err := rows.Scan(&name, &dataType, &columnType, &isNullable, &columnKey, &maxLen); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		col := schema.Column{
			Name:         name,
			Kind:         schema.KindFromDeclaredType(columnType),
			DeclaredType: columnType,
			Nullable:     isNullable == "YES",
			PrimaryKey:   columnKey == "PRI",
		}
		col = Enrich(col, ParseMySQLColumnType(columnType))
		// char/varchar only; text lengths are too large to matter
		if maxLen.Valid && (dataType == "varchar" || dataType == "char") && col.MaxLength == 0 {
			col.MaxLength = int(maxLen.Int64)
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, nil
	}

	var name, createSQL string
	err = m.db.QueryRowContext(ctx, "SHOW CREATE TABLE "+sqlutil.MySQL.Quote(table)).Scan(&name, &createSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to read DDL of %s: %w", table, err)
	}
	for i := range cols {
		e := ParseColumnDDL(createSQL, cols[i].Name)
		e.MaxLength = 0
		cols[i] = Enrich(cols[i], e)
	}
	return cols, nil
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
