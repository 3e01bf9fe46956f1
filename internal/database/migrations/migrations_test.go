package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(sqlFiles, "sql")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file in migrations: %s", name)
		}
	}

	assert.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestEmbeddedMigrationsParse(t *testing.T) {
	src, err := iofs.New(sqlFiles, "sql")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	next, err := src.Next(first)
	require.NoError(t, err)
	assert.Equal(t, uint(2), next)
}

func TestCreateTicketsMigration(t *testing.T) {
	data, err := fs.ReadFile(sqlFiles, "sql/000001_create_tickets.up.sql")
	require.NoError(t, err)

	sql := string(data)
	for _, column := range []string{"id", "vatin", "first_name", "last_name", "created_at"} {
		assert.Contains(t, sql, column)
	}
	assert.Contains(t, sql, "tickets_vatin_idx")
}
