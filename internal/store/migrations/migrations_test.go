package migrations

import (
	"database/sql"
	"io/fs"
	"os"
	"strings"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(Files(), sourceDir)
	require.NoError(t, err)
	names := make(map[string]bool, len(entries))
	for _, entry := range entries {
		names[entry.Name()] = true
	}
	require.NotEmpty(t, names)
	for name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			assert.True(t, names[strings.TrimSuffix(name, ".up.sql")+".down.sql"], "missing down for %s", name)
		case strings.HasSuffix(name, ".down.sql"):
			assert.True(t, names[strings.TrimSuffix(name, ".down.sql")+".up.sql"], "missing up for %s", name)
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
}

func TestInitialSchemaDeclaresConstraintNames(t *testing.T) {
	contents, err := fs.ReadFile(Files(), sourceDir+"/000001_init.up.sql")
	require.NoError(t, err)
	schema := string(contents)
	for _, constraint := range []string{
		"ledger_entries_user_idempotency_key",
		"drop_applications_drop_user_key",
		"payments_provider_session_key",
		"partner_apps_key_prefix_key",
		"users_provider_subject_key",
	} {
		assert.Contains(t, schema, constraint)
	}
}

func TestUpAgainstPostgres(t *testing.T) {
	_ = godotenv.Load("../../../.env")
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL is not set")
	}
	db, err := sql.Open("pgx", databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Up(db))
	require.NoError(t, Up(db))
	version, dirty, err := Version(db)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}
