package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestSchemaCoversStores(t *testing.T) {
	var schema strings.Builder
	names, err := fs.Glob(FS, "*.up.sql")
	require.NoError(t, err)
	for _, name := range names {
		data, err := fs.ReadFile(FS, name)
		require.NoError(t, err)
		schema.Write(data)
	}
	for _, table := range []string{"availability_rules", "appointments", "waitlist_entries", "outbox", "processed_events"} {
		assert.Contains(t, schema.String(), "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
}
