// Package backend chooses the storage backend once per process.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"zines/internal/metrics"
	"zines/internal/repositories"
	"zines/pkg/docstore"
)

// ErrDocumentDisabled is the probe error recorded when configuration turns
// the document store off.
var ErrDocumentDisabled = errors.New("document store disabled by configuration")

// DocumentOpener opens the document store.
type DocumentOpener func(ctx context.Context) (*badger.DB, error)

// RelationalOpener opens the relational store.
type RelationalOpener func(ctx context.Context) (*gorm.DB, error)

// Options tunes how the selected backend is built.
type Options struct {
	DocumentEnabled bool
	ScanLimit       int
	MaxRetries      int
	// AutoMigrate migrates the relational schema when it is selected.
	AutoMigrate bool
	Metrics     *metrics.Metrics
}

// Handle is the immutable outcome of backend resolution.
type Handle struct {
	repo     repositories.Repository
	kind     repositories.Kind
	probeErr error
}

// Repository returns the repository every component should use.
func (h *Handle) Repository() repositories.Repository { return h.repo }

// Kind returns the selected backend.
func (h *Handle) Kind() repositories.Kind { return h.kind }

// ProbeErr returns why the document store was not selected, if it was not.
func (h *Handle) ProbeErr() error { return h.probeErr }

// Selector probes the document store on first use and falls back to the
// relational store. The first outcome is final for the life of the process.
type Selector struct {
	openDocument   DocumentOpener
	openRelational RelationalOpener
	opts           Options

	once   sync.Once
	handle *Handle
	err    error
}

// NewSelector creates a new instance of Selector.
func NewSelector(openDocument DocumentOpener, openRelational RelationalOpener, opts Options) *Selector {
	return &Selector{
		openDocument:   openDocument,
		openRelational: openRelational,
		opts:           opts,
	}
}

// Resolve returns the selected backend, choosing it on the first call.
// Concurrent first calls block until the choice is made.
func (s *Selector) Resolve(ctx context.Context) (*Handle, error) {
	s.once.Do(func() {
		s.handle, s.err = s.resolve(ctx)
	})
	return s.handle, s.err
}

func (s *Selector) resolve(ctx context.Context) (*Handle, error) {
	db, probeErr := s.probeDocument(ctx)
	if probeErr == nil {
		log.Info().Str("backend", string(repositories.KindDocument)).Msg("storage backend selected")
		s.opts.Metrics.SetBackend(string(repositories.KindDocument))
		repo := repositories.NewDocumentRepository(db,
			repositories.WithScanLimit(s.opts.ScanLimit),
			repositories.WithMaxRetries(s.opts.MaxRetries),
		)
		return &Handle{repo: repo, kind: repositories.KindDocument}, nil
	}

	log.Warn().Err(probeErr).Msg("document store unavailable, falling back to relational store")
	if s.openRelational == nil {
		return nil, fmt.Errorf("%w: no relational store configured", repositories.ErrUnavailable)
	}
	gdb, err := s.openRelational(ctx)
	if err != nil {
		log.Error().Err(err).Msg("relational store unavailable")
		return nil, fmt.Errorf("%w: no storage backend available", repositories.ErrUnavailable)
	}
	if s.opts.AutoMigrate {
		if err := repositories.AutoMigrate(gdb); err != nil {
			log.Error().Err(err).Msg("relational migration failed")
			return nil, fmt.Errorf("%w: relational migration failed", repositories.ErrUnavailable)
		}
	}
	log.Info().Str("backend", string(repositories.KindRelational)).Msg("storage backend selected")
	s.opts.Metrics.SetBackend(string(repositories.KindRelational))
	return &Handle{repo: repositories.NewGORMRepository(gdb), kind: repositories.KindRelational, probeErr: probeErr}, nil
}

// probeDocument opens the document store and checks it accepts a write and a
// delete. The store is closed again when the probe fails.
func (s *Selector) probeDocument(ctx context.Context) (*badger.DB, error) {
	if !s.opts.DocumentEnabled || s.openDocument == nil {
		return nil, ErrDocumentDisabled
	}
	db, err := s.openDocument(ctx)
	if err != nil {
		return nil, err
	}
	if err := docstore.Probe(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
