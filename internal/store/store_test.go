package store

import (
	"path/filepath"
	"testing"
)

// setupTestStore creates a store backed by a temp-dir database.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "copypitch.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
