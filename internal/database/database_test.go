package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedded(t *testing.T) {
	t.Parallel()

	names, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.Equal(t, []string{"migrations/00001_init.sql", "migrations/00002_files.sql"}, names)

	for _, name := range names {
		body, err := fs.ReadFile(migrations, name)
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up", name)
		assert.Contains(t, string(body), "-- +goose Down", name)
	}
}

func TestFilesSchemaConstraints(t *testing.T) {
	t.Parallel()

	body, err := fs.ReadFile(migrations, "migrations/00002_files.sql")
	require.NoError(t, err)
	schema := string(body)
	for _, want := range []string{
		"storage_key       TEXT NOT NULL UNIQUE",
		"CHECK (download_count >= 0)",
		"DEFAULT 'PENDING'",
		"DEFAULT '{}'::jsonb",
	} {
		assert.True(t, strings.Contains(schema, want), want)
	}
}
