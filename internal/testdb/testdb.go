// Package testdb opens throwaway run-history databases for tests.
package testdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/helixml/modelprep/infrastructure/persistence"
	"github.com/helixml/modelprep/internal/database"
)

// New returns a migrated in-memory SQLite database, closed when t ends.
func New(t *testing.T) database.Database {
	t.Helper()
	return open(t, "sqlite:///:memory:")
}

// NewFile is like New but backs the database with modelprep.db in a
// temporary work directory, for tests that reopen the history.
func NewFile(t *testing.T) (database.Database, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modelprep.db")
	return open(t, "sqlite:///"+path), path
}

// RunStore returns a run store over a fresh in-memory database.
func RunStore(t *testing.T) persistence.RunStore {
	t.Helper()
	return persistence.NewRunStore(New(t))
}

func open(t *testing.T, url string) database.Database {
	t.Helper()
	db, err := database.NewDatabase(context.Background(), url)
	if err != nil {
		t.Fatalf("open run history %s: %v", url, err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := persistence.AutoMigrate(db); err != nil {
		t.Fatalf("migrate run history: %v", err)
	}
	return db
}
