package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"canditrack/internal/platform/database"
)

// OpenSQLite opens a migrated SQLite database in a per-test temp dir.
func OpenSQLite(t testing.TB) *database.DB {
	t.Helper()
	return OpenSQLiteHandles(t, 1)[0]
}

// OpenSQLiteHandles opens n independent handles on one migrated SQLite file,
// the way separate worker processes would share it.
func OpenSQLiteHandles(t testing.TB, n int) []*database.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "canditrack.db")
	handles := make([]*database.DB, 0, n)
	for i := 0; i < n; i++ {
		handles = append(handles, openSQLiteFile(t, path))
	}
	return handles
}

func openSQLiteFile(t testing.TB, path string) *database.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("database.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	if err := database.Migrate(ctx, db); err != nil {
		t.Fatalf("database.Migrate: %v", err)
	}
	return db
}
