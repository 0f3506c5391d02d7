package migrations

import (
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreWellFormed(t *testing.T) {
	entries, err := fs.ReadDir(PostgresFS, "postgres")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	var names []string
	for _, entry := range entries {
		require.False(t, entry.IsDir())
		require.True(t, strings.HasSuffix(entry.Name(), ".sql"), entry.Name())
		names = append(names, entry.Name())

		data, err := fs.ReadFile(PostgresFS, "postgres/"+entry.Name())
		require.NoError(t, err)
		assert.NotEmpty(t, strings.TrimSpace(string(data)), entry.Name())
	}

	assert.True(t, sort.StringsAreSorted(names))
}
