// Package testutil provides shared test helpers for setting up databases,
// fixture directories, and local state.
package testutil

import (
	"os"
	"testing"

	"github.com/perch/daybook/internal/devserver"
	"github.com/perch/daybook/internal/fixtures"
	"github.com/perch/daybook/internal/localstate"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *devserver.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "daybook-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := devserver.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestFixturesDir creates a temporary fixtures directory.
func TestFixturesDir(t *testing.T) (string, *fixtures.Dir) {
	t.Helper()
	root := t.TempDir()
	dir, err := fixtures.NewDir(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, dir
}

// TestState creates a temporary local state store.
func TestState(t *testing.T) *localstate.Store {
	t.Helper()
	state, err := localstate.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return state
}
