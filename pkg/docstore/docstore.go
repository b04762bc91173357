// Package docstore opens the BadgerDB instance backing the document store.
package docstore

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ProbePrefix is the key prefix used by Probe. Probe keys never outlive the probe.
const ProbePrefix = "_probe/"

// Config holds configuration for a BadgerDB instance.
type Config struct {
	// Path is the data directory. Ignored when InMemory is true.
	Path string
	// InMemory keeps everything in RAM. Without a value log badger rejects
	// values over 1 MiB, so this is for small tests and development only.
	InMemory   bool
	SyncWrites bool
	// Logger receives badger's internal log lines. Nil disables them.
	Logger *zerolog.Logger
}

// InMemoryConfig returns a configuration for an in-memory store.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	logger *zerolog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msgf(format, args...)
}

// Open opens the database at cfg.Path, or in memory.
func Open(cfg Config) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("docstore: path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create docstore directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

// Probe writes a throwaway key and deletes it again. A nil error means the
// store accepts writes.
func Probe(db *badger.DB) error {
	if db == nil {
		return errors.New("docstore: no database")
	}
	key := []byte(ProbePrefix + uuid.New().String())
	if err := db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte("ok"))
	}); err != nil {
		return fmt.Errorf("docstore probe write: %w", err)
	}
	if err := db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	}); err != nil {
		return fmt.Errorf("docstore probe delete: %w", err)
	}
	return nil
}
