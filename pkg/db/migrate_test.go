package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"002_add_index.sql":     "CREATE INDEX x ON y (z);",
		"001_create_schema.sql": "CREATE TABLE y (z INT);",
		"README.md":             "not sql",
		"notes.sql":             "-- no numeric prefix",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0o755))

	migrations, err := LoadMigrations(dir)
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "001_create_schema.sql", migrations[0].Name)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, "CREATE INDEX x ON y (z);", migrations[1].SQL)
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	_, err := LoadMigrations(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestLoadMigrations_RepositorySchema(t *testing.T) {
	migrations, err := LoadMigrations("../../migrations")
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS rides")
}
