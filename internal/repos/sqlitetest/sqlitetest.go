// Package sqlitetest provides migrated in-memory SQLite databases for repository and service tests
package sqlitetest

import (
	"io"
	"testing"

	"github.com/derWhity/medstock/internal/migrate"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // Just needed for the sqlite driver
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// Logger returns a logger entry that discards its output
func Logger() *logrus.Entry {
	l := logrus.New()
	l.Out = io.Discard
	return logrus.NewEntry(l)
}

// NewDB opens a fresh in-memory database with all migrations applied. It is closed when the test ends
func NewDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Every connection would get its own in-memory database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrate.ExecuteMigrationsOnDb(db, Logger()))
	return db
}
