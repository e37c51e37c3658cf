package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/typeprobe/internal/config"
	"github.com/dbsmedya/typeprobe/internal/logger"
	"github.com/dbsmedya/typeprobe/internal/types"
)

const createOrders = `-- +goose Up
CREATE TABLE orders (
	id integer primary key autoincrement not null,
	note text,
	status varchar check (status in ('pending', 'done')) not null
);

-- +goose Down
DROP TABLE orders;
`

const createTags = `-- +goose Up
CREATE TABLE tags (label text not null);

-- +goose Down
DROP TABLE tags;
`

func newSQLiteSandbox(t *testing.T, migrations map[string]string) (*Sandbox, *config.SandboxConfig) {
	t.Helper()
	dir := t.TempDir()
	migDir := filepath.Join(dir, "migrations")
	require.NoError(t, os.MkdirAll(migDir, 0o755))
	for name, body := range migrations {
		require.NoError(t, os.WriteFile(filepath.Join(migDir, name), []byte(body), 0o644))
	}

	cfg := &config.SandboxConfig{
		Driver:        "sqlite",
		Path:          filepath.Join(dir, "state", "sandbox.sqlite"),
		MigrationsDir: migDir,
	}
	sb := New(cfg, logger.NewNop())
	t.Cleanup(func() { _ = sb.Destroy(context.Background()) })
	return sb, cfg
}

func TestSandbox_Lifecycle(t *testing.T) {
	ctx := context.Background()
	sb, cfg := newSQLiteSandbox(t, map[string]string{
		"00001_orders.sql": createOrders,
		"00002_tags.sql":   createTags,
	})

	require.NoError(t, sb.Provision(ctx))
	require.NoError(t, sb.Provision(ctx), "provision is idempotent")
	require.NoError(t, sb.ApplyStructuralMigrations(ctx))
	require.NoError(t, sb.ApplyStructuralMigrations(ctx), "migrations are idempotent")

	ok, err := sb.HasTable(ctx, "orders")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = sb.HasTable(ctx, "ghosts")
	require.NoError(t, err)
	assert.False(t, ok)

	attrs := types.NewAttributes()
	attrs.Set("id", int64(1))
	attrs.Set("note", "tf123")
	attrs.Set("status", "pending")
	h, err := sb.Insert(ctx, "orders", "id", attrs)
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.Key)

	row, err := sb.Fetch(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "note", "status"}, row.Keys())
	note, _ := row.Get("note")
	assert.Equal(t, "tf123", note)

	require.NoError(t, sb.TruncateAll(ctx))
	_, err = sb.Fetch(ctx, h)
	assert.Error(t, err)

	// autoincrement restarts after truncation
	attrs.Delete("id")
	h, err = sb.Insert(ctx, "orders", "id", attrs)
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.Key)

	require.NoError(t, sb.Destroy(ctx))
	require.NoError(t, sb.Destroy(ctx), "destroy is idempotent")
	_, err = os.Stat(cfg.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestSandbox_InsertWithoutKeyUsesRowID(t *testing.T) {
	ctx := context.Background()
	sb, _ := newSQLiteSandbox(t, map[string]string{"00001_tags.sql": createTags})
	require.NoError(t, sb.Provision(ctx))
	require.NoError(t, sb.ApplyStructuralMigrations(ctx))

	attrs := types.NewAttributes()
	attrs.Set("label", "x")
	h, err := sb.Insert(ctx, "tags", "", attrs)
	require.NoError(t, err)
	assert.Equal(t, "tags[rowid=1]", h.String())

	row, err := sb.Fetch(ctx, h)
	require.NoError(t, err)
	label, _ := row.Get("label")
	assert.Equal(t, "x", label)
}

func TestSandbox_ProvisionRemovesStaleFile(t *testing.T) {
	ctx := context.Background()
	sb, cfg := newSQLiteSandbox(t, map[string]string{"00001_tags.sql": createTags})

	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Path), 0o755))
	require.NoError(t, os.WriteFile(cfg.Path, []byte("not a database"), 0o644))

	require.NoError(t, sb.Provision(ctx))
	require.NoError(t, sb.ApplyStructuralMigrations(ctx))
}

func TestSandbox_FailedMigrationDestroys(t *testing.T) {
	ctx := context.Background()
	sb, cfg := newSQLiteSandbox(t, map[string]string{
		"00001_tags.sql":   createTags,
		"00002_broken.sql": "-- +goose Up\nCREATE TABLE (;\n",
	})

	require.NoError(t, sb.Provision(ctx))
	err := sb.ApplyStructuralMigrations(ctx)
	require.Error(t, err)

	var sbErr *SandboxError
	require.True(t, errors.As(err, &sbErr))
	assert.Equal(t, "migrate", sbErr.Op)

	_, statErr := os.Stat(cfg.Path)
	assert.True(t, os.IsNotExist(statErr), "a half-migrated sandbox must not survive")
}

func TestSandbox_MissingMigrationsDir(t *testing.T) {
	ctx := context.Background()
	sb, cfg := newSQLiteSandbox(t, nil)
	cfg.MigrationsDir = filepath.Join(t.TempDir(), "nope")

	require.NoError(t, sb.Provision(ctx))
	err := sb.ApplyStructuralMigrations(ctx)
	var sbErr *SandboxError
	require.True(t, errors.As(err, &sbErr))
}

func TestSandbox_NotProvisioned(t *testing.T) {
	ctx := context.Background()
	sb := New(&config.SandboxConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "x.sqlite")}, nil)

	assert.ErrorIs(t, sb.ApplyStructuralMigrations(ctx), ErrNotProvisioned)
	assert.ErrorIs(t, sb.TruncateAll(ctx), ErrNotProvisioned)
	_, err := sb.Insert(ctx, "t", "", types.NewAttributes())
	assert.ErrorIs(t, err, ErrNotProvisioned)
	assert.NoError(t, sb.Destroy(ctx))
}

func TestSandbox_Close_KeepsFile(t *testing.T) {
	ctx := context.Background()
	sb, cfg := newSQLiteSandbox(t, map[string]string{"00001_tags.sql": createTags})
	require.NoError(t, sb.Provision(ctx))
	require.NoError(t, sb.ApplyStructuralMigrations(ctx))

	require.NoError(t, sb.Close(ctx))
	_, err := os.Stat(cfg.Path)
	assert.NoError(t, err)
}

func TestSandbox_MySQLProvisionRejectsBadName(t *testing.T) {
	sb := New(&config.SandboxConfig{Driver: "mysql", Host: "localhost", Port: 3306, User: "u", Database: "bad-name;"}, logger.NewNop())
	err := sb.Provision(context.Background())

	var sbErr *SandboxError
	require.True(t, errors.As(err, &sbErr))
	assert.Equal(t, "provision", sbErr.Op)
}

func TestSandbox_MySQLTruncate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sb := New(&config.SandboxConfig{Driver: "mysql", Database: "probe"}, logger.NewNop())
	sb.mgr.DB = db
	sb.provisioned = true

	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.TABLES")).
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("orders").AddRow("users"))
	mock.ExpectExec(regexp.QuoteMeta("TRUNCATE TABLE `orders`")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("TRUNCATE TABLE `users`")).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, sb.TruncateAll(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSandbox_MySQLInsertUsesLastInsertID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sb := New(&config.SandboxConfig{Driver: "mysql", Database: "probe"}, logger.NewNop())
	sb.mgr.DB = db

	attrs := types.NewAttributes()
	attrs.Set("name", "tf0")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `users` (`name`) VALUES (?)")).
		WithArgs("tf0").
		WillReturnResult(sqlmock.NewResult(42, 1))

	h, err := sb.Insert(context.Background(), "users", "id", attrs)
	require.NoError(t, err)
	assert.Equal(t, int64(42), h.Key)

	_, err = sb.Fetch(context.Background(), types.RecordHandle{Table: "users"})
	assert.Error(t, err, "keyless rows are not addressable on mysql")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSandboxError(t *testing.T) {
	inner := errors.New("boom")
	err := &SandboxError{Op: "destroy", Err: inner}
	assert.Equal(t, "sandbox destroy failed: boom", err.Error())
	assert.ErrorIs(t, err, inner)
}
