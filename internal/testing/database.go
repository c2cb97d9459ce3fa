package testing

import (
	"context"
	"testing"

	"github.com/teranos/paysync/db"
)

// CreateTestDB creates an in-memory SQLite session with all migrations applied.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *db.Session {
	t.Helper()

	s, err := db.OpenWithMigrations(context.Background(), db.DriverSQLite, ":memory:", nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}
