// Package repotest opens throwaway instances of both repository backends for
// tests.
package repotest

import (
	"testing"

	"github.com/google/uuid"

	"zines/internal/repositories"
	"zines/pkg/database"
	"zines/pkg/docstore"
)

// NewRelational returns a migrated GORM repository on a private in-memory
// sqlite database.
func NewRelational(t testing.TB) *repositories.GORMRepository {
	t.Helper()
	db, err := database.Open(database.Config{
		Driver:       database.DriverSQLite,
		DSN:          database.InMemorySQLiteDSN(uuid.New().String()),
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repositories.AutoMigrate(db); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	repo := repositories.NewGORMRepository(db)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// NewDocument returns a document repository on a Badger store in a temporary
// directory. The on-disk store accepts the same document sizes as production.
func NewDocument(t testing.TB, opts ...repositories.DocumentOption) *repositories.DocumentRepository {
	t.Helper()
	db, err := docstore.Open(docstore.Config{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	repo := repositories.NewDocumentRepository(db, opts...)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// ForEachBackend runs fn as a subtest against a fresh instance of each backend.
func ForEachBackend(t *testing.T, fn func(t *testing.T, repo repositories.Repository)) {
	t.Helper()
	t.Run(string(repositories.KindRelational), func(t *testing.T) {
		fn(t, NewRelational(t))
	})
	t.Run(string(repositories.KindDocument), func(t *testing.T) {
		fn(t, NewDocument(t))
	})
}
