package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute(t *testing.T) {
	// Execute exits the process on error, so only its presence is checked.
	assert.NotNil(t, Execute)
}

func TestVersionVariables(t *testing.T) {
	assert.NotEmpty(t, Version, "Version should not be empty")
	assert.NotEmpty(t, Commit, "Commit should not be empty")
}

func TestCLIFlagsVariables(t *testing.T) {
	assert.Equal(t, "typeprobe.yaml", cfgFile, "cfgFile should default to typeprobe.yaml")
	assert.Equal(t, "", logLevel)
	assert.Equal(t, "", logFormat)
	assert.Equal(t, "", outputDir)
	assert.Equal(t, 0, concurrency)
	assert.False(t, generateDryRun)
}

const testMigration = `-- +goose Up
CREATE TABLE posts (
	id integer primary key autoincrement not null,
	title text not null,
	summary text,
	state varchar check (state in ('draft', 'published')) not null
);

-- +goose Down
DROP TABLE posts;
`

const testTransform = `
def transform(record):
    return {"id": record.id, "title": record.title, "summary": record.summary, "state": record.state}
`

// writeProject lays out migrations, a transform script and a config file in
// a temp dir and returns the config path and the output dir.
func writeProject(t *testing.T, entities string) (string, string) {
	t.Helper()
	dir := t.TempDir()

	migrations := filepath.Join(dir, "migrations")
	require.NoError(t, os.MkdirAll(migrations, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(migrations, "00001_posts.sql"), []byte(testMigration), 0o644))

	transforms := filepath.Join(dir, "transforms")
	require.NoError(t, os.MkdirAll(transforms, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(transforms, "PostResource.star"), []byte(testTransform), 0o644))

	out := filepath.Join(dir, "generated")
	content := `sandbox:
  driver: sqlite
  path: ` + filepath.Join(dir, "sandbox.sqlite") + `
  migrations_dir: ` + migrations + `

transforms:
  dir: ` + transforms + `

generation:
  output_dir: ` + out + `

logging:
  level: error
  output: stderr

discovery:
  entities:
` + entities

	path := filepath.Join(dir, "typeprobe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path, out
}

const postEntities = `    - id: Post
      table: posts
      transform: PostResource
`
