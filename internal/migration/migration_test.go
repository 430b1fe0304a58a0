package migration

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"

	"github.com/smallbiznis/payoutd/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/maps"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	assert.Equal(t, ups, downs)
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	assert.Error(t, RunMigrations(nil))
}

var createTable = regexp.MustCompile(`^CREATE TABLE IF NOT EXISTS (\w+) \($`)

// migrationColumns reads table and column names out of the up migrations.
func migrationColumns(t *testing.T) map[string][]string {
	t.Helper()
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	tables := map[string][]string{}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		raw, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/"+entry.Name())
		require.NoError(t, err)

		current := ""
		for _, line := range strings.Split(string(raw), "\n") {
			line = strings.TrimSpace(line)
			if m := createTable.FindStringSubmatch(line); m != nil {
				current = m[1]
				continue
			}
			if current == "" {
				continue
			}
			if strings.HasPrefix(line, ")") {
				current = ""
				continue
			}
			if line == "" || strings.HasPrefix(line, "--") {
				continue
			}
			name := strings.Fields(line)[0]
			if name == strings.ToUpper(name) {
				continue
			}
			tables[current] = append(tables[current], name)
		}
	}
	return tables
}

func TestTestSchemaMatchesMigrations(t *testing.T) {
	want := migrationColumns(t)
	require.NotEmpty(t, want)

	db := testutil.OpenDB(t)

	var got []string
	require.NoError(t, db.Raw(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`).Scan(&got).Error)
	assert.ElementsMatch(t, maps.Keys(want), got)

	for table, columns := range want {
		var cols []string
		require.NoError(t, db.Raw(`SELECT name FROM pragma_table_info(?)`, table).Scan(&cols).Error)
		assert.ElementsMatch(t, columns, cols, table)
	}
}
