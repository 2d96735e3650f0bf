package docstore

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationSource_VersionsInOrder(t *testing.T) {
	src, err := iofs.New(migrationFiles, "migrations")
	require.NoError(t, err)
	defer src.Close()

	var versions []uint
	v, err := src.First()
	require.NoError(t, err)
	for {
		versions = append(versions, v)
		r, _, err := src.ReadUp(v)
		require.NoError(t, err, "version %d", v)
		body, err := io.ReadAll(r)
		require.NoError(t, err)
		_ = r.Close()
		assert.NotEmpty(t, body, "version %d", v)

		v, err = src.Next(v)
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, []uint{1, 2, 3}, versions)
}

func TestMigrateLogger_VerboseFollowsLevel(t *testing.T) {
	assert.True(t, migrateLogger{log: zerolog.Nop().Level(zerolog.DebugLevel)}.Verbose())
	assert.False(t, migrateLogger{log: zerolog.Nop().Level(zerolog.InfoLevel)}.Verbose())
}
