package backend_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"zines/internal/backend"
	"zines/internal/metrics"
	"zines/internal/models"
	"zines/internal/repositories"
	"zines/pkg/database"
	"zines/pkg/docstore"
)

func inMemoryDocument(calls *int32) backend.DocumentOpener {
	return func(ctx context.Context) (*badger.DB, error) {
		atomic.AddInt32(calls, 1)
		return docstore.Open(docstore.InMemoryConfig())
	}
}

func inMemoryRelational(calls *int32) backend.RelationalOpener {
	return func(ctx context.Context) (*gorm.DB, error) {
		atomic.AddInt32(calls, 1)
		return database.Open(database.Config{
			Driver:       database.DriverSQLite,
			DSN:          database.InMemorySQLiteDSN(uuid.New().String()),
			MaxOpenConns: 1,
		})
	}
}

func closeHandle(t *testing.T, h *backend.Handle) {
	t.Cleanup(func() { _ = h.Repository().Close() })
}

func TestSelector_PrefersDocumentStore(t *testing.T) {
	var docCalls, relCalls int32
	m := metrics.New()
	sel := backend.NewSelector(inMemoryDocument(&docCalls), inMemoryRelational(&relCalls), backend.Options{
		DocumentEnabled: true,
		Metrics:         m,
	})

	h, err := sel.Resolve(context.Background())
	require.NoError(t, err)
	closeHandle(t, h)
	assert.Equal(t, repositories.KindDocument, h.Kind())
	assert.Equal(t, repositories.KindDocument, h.Repository().Backend())
	assert.NoError(t, h.ProbeErr())
	assert.Equal(t, int32(0), relCalls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendSelected.WithLabelValues("document")))

	user := &models.User{ExternalID: "x", Username: "probe_ok", Email: "p@example.com"}
	assert.NoError(t, h.Repository().CreateUser(context.Background(), user))
}

func TestSelector_DisabledFallsBackToRelational(t *testing.T) {
	var docCalls, relCalls int32
	sel := backend.NewSelector(inMemoryDocument(&docCalls), inMemoryRelational(&relCalls), backend.Options{
		DocumentEnabled: false,
		AutoMigrate:     true,
	})

	h, err := sel.Resolve(context.Background())
	require.NoError(t, err)
	closeHandle(t, h)
	assert.Equal(t, repositories.KindRelational, h.Kind())
	assert.ErrorIs(t, h.ProbeErr(), backend.ErrDocumentDisabled)
	assert.Equal(t, int32(0), docCalls)

	user := &models.User{ExternalID: "x", Username: "fallback", Email: "f@example.com"}
	assert.NoError(t, h.Repository().CreateUser(context.Background(), user))
}

func TestSelector_OpenFailureFallsBack(t *testing.T) {
	var relCalls int32
	openErr := errors.New("disk full")
	sel := backend.NewSelector(func(ctx context.Context) (*badger.DB, error) {
		return nil, openErr
	}, inMemoryRelational(&relCalls), backend.Options{DocumentEnabled: true, AutoMigrate: true})

	h, err := sel.Resolve(context.Background())
	require.NoError(t, err)
	closeHandle(t, h)
	assert.Equal(t, repositories.KindRelational, h.Kind())
	assert.ErrorIs(t, h.ProbeErr(), openErr)
}

func TestSelector_ProbeFailureFallsBack(t *testing.T) {
	var relCalls int32
	sel := backend.NewSelector(func(ctx context.Context) (*badger.DB, error) {
		db, err := docstore.Open(docstore.InMemoryConfig())
		if err != nil {
			return nil, err
		}
		// A closed store opens fine but rejects the probe write.
		_ = db.Close()
		return db, nil
	}, inMemoryRelational(&relCalls), backend.Options{DocumentEnabled: true, AutoMigrate: true})

	h, err := sel.Resolve(context.Background())
	require.NoError(t, err)
	closeHandle(t, h)
	assert.Equal(t, repositories.KindRelational, h.Kind())
	assert.Error(t, h.ProbeErr())
	assert.Equal(t, int32(1), relCalls)
}

func TestSelector_BothUnavailable(t *testing.T) {
	sel := backend.NewSelector(nil, func(ctx context.Context) (*gorm.DB, error) {
		return nil, errors.New("connection refused")
	}, backend.Options{DocumentEnabled: true})

	_, err := sel.Resolve(context.Background())
	assert.ErrorIs(t, err, repositories.ErrUnavailable)
	assert.NotContains(t, err.Error(), "connection refused")
}

func TestSelector_ResolvesOnce(t *testing.T) {
	var docCalls, relCalls int32
	sel := backend.NewSelector(inMemoryDocument(&docCalls), inMemoryRelational(&relCalls), backend.Options{DocumentEnabled: true})

	var wg sync.WaitGroup
	handles := make([]*backend.Handle, 8)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := sel.Resolve(context.Background())
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()
	closeHandle(t, handles[0])

	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&docCalls))
}
