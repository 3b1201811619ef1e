package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations_Embedded(t *testing.T) {
	migrations, err := LoadMigrations(scripts, "sql")
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	first := migrations[0]
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, "init", first.Name)
	assert.Contains(t, first.UpScript, "bookings_no_overlap")
	assert.Contains(t, first.UpScript, "btree_gist")
	assert.NotEmpty(t, first.DownScript)
}

func TestLoadMigrations_OrdersAndSkips(t *testing.T) {
	fsys := fstest.MapFS{
		"m/010_later.up.sql":    {Data: []byte("SELECT 10")},
		"m/002_second.up.sql":   {Data: []byte("SELECT 2")},
		"m/002_second.down.sql": {Data: []byte("SELECT -2")},
		"m/README.md":           {Data: []byte("notes")},
		"m/abc_bad.up.sql":      {Data: []byte("SELECT 0")},
	}

	migrations, err := LoadMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 2, migrations[0].Version)
	assert.Equal(t, "second", migrations[0].Name)
	assert.Equal(t, "SELECT -2", migrations[0].DownScript)
	assert.Equal(t, 10, migrations[1].Version)
}

func TestLoadMigrations_DownWithoutUp(t *testing.T) {
	fsys := fstest.MapFS{
		"m/003_orphan.down.sql": {Data: []byte("DROP TABLE x")},
	}

	_, err := LoadMigrations(fsys, "m")
	assert.Error(t, err)
}
