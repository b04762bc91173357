package repositories

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
)

// errCallback marks a transaction aborted by its callback. normalize passes it
// through so the callback's own error reaches the caller unlogged.
var errCallback = errors.New("transaction callback failed")

const (
	// DefaultScanLimit bounds client-side scans (explore, search, most viewed).
	DefaultScanLimit  = 500
	defaultMaxRetries = 5
)

// DocumentRepository is the document-store implementation of Repository on top
// of BadgerDB. Documents are JSON values under "<collection>/<id>"; every other
// key is an index maintained alongside them in the same transaction.
type DocumentRepository struct {
	db         *badger.DB
	txn        *badger.Txn
	scanLimit  int
	maxRetries int
}

// DocumentOption configures a DocumentRepository.
type DocumentOption func(*DocumentRepository)

// WithScanLimit sets how many documents a client-side scan may read.
func WithScanLimit(n int) DocumentOption {
	return func(r *DocumentRepository) {
		if n > 0 {
			r.scanLimit = n
		}
	}
}

// WithMaxRetries sets how often a conflicting commit is retried.
func WithMaxRetries(n int) DocumentOption {
	return func(r *DocumentRepository) {
		if n > 0 {
			r.maxRetries = n
		}
	}
}

// NewDocumentRepository creates a new instance of DocumentRepository.
func NewDocumentRepository(db *badger.DB, opts ...DocumentOption) *DocumentRepository {
	r := &DocumentRepository{
		db:         db,
		scanLimit:  DefaultScanLimit,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Backend reports KindDocument.
func (r *DocumentRepository) Backend() Kind {
	return KindDocument
}

// Ping reports whether the store is open.
func (r *DocumentRepository) Ping(ctx context.Context) error {
	if r.db == nil || r.db.IsClosed() {
		return fmt.Errorf("%w: ping", ErrUnavailable)
	}
	return ctx.Err()
}

// Transaction runs fn in one optimistic transaction. A conflicting commit
// reruns fn up to the retry bound. An error returned by fn discards the
// transaction and is returned unchanged.
func (r *DocumentRepository) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	if r.txn != nil {
		return fn(r)
	}
	var fnErr error
	err := r.update(ctx, "transaction", func(txn *badger.Txn) error {
		fnErr = fn(&DocumentRepository{db: r.db, txn: txn, scanLimit: r.scanLimit, maxRetries: r.maxRetries})
		if fnErr != nil {
			return errCallback
		}
		return nil
	})
	if fnErr != nil {
		return fnErr
	}
	return err
}

// Close closes the database.
func (r *DocumentRepository) Close() error {
	if r.txn != nil {
		return nil
	}
	return r.db.Close()
}

func (r *DocumentRepository) update(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	if r.txn != nil {
		return r.normalize(op, fn(r.txn))
	}
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return r.normalize(op, err)
		}
		txn := r.db.NewTransaction(true)
		err := fn(txn)
		if err == nil {
			err = txn.Commit()
		}
		txn.Discard()
		if !errors.Is(err, badger.ErrConflict) {
			return r.normalize(op, err)
		}
		log.Debug().Str("op", op).Int("attempt", attempt+1).Msg("document store commit conflict, retrying")
	}
	log.Warn().Str("op", op).Int("attempts", r.maxRetries).Msg("document store gave up after repeated conflicts")
	return fmt.Errorf("%w: %s: too many conflicts", ErrUnavailable, op)
}

func (r *DocumentRepository) view(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	if r.txn != nil {
		return r.normalize(op, fn(r.txn))
	}
	if err := ctx.Err(); err != nil {
		return r.normalize(op, err)
	}
	return r.normalize(op, r.db.View(fn))
}

func (r *DocumentRepository) normalize(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isTaxonomyError(err), errors.Is(err, errCallback):
		return err
	case errors.Is(err, badger.ErrKeyNotFound):
		return ErrNotFound
	}
	log.Error().Err(err).Str("backend", string(KindDocument)).Str("op", op).Msg("document store operation failed")
	return fmt.Errorf("%w: %s", ErrUnavailable, op)
}

func key(parts ...string) []byte {
	return []byte(strings.Join(parts, "/"))
}

// encodeJSON marshals without HTML escaping so embedded documents are stored
// byte for byte.
func encodeJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func getJSON(txn *badger.Txn, k []byte, v interface{}) error {
	item, err := txn.Get(k)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, k []byte, v interface{}) error {
	data, err := encodeJSON(v)
	if err != nil {
		return err
	}
	return txn.Set(k, data)
}

func getString(txn *badger.Txn, k []byte) (string, error) {
	item, err := txn.Get(k)
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func exists(txn *badger.Txn, k []byte) (bool, error) {
	_, err := txn.Get(k)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

// claim writes a unique index entry. The read registers the key with the
// transaction, so two writers racing for it cannot both commit.
func claim(txn *badger.Txn, k []byte, id string) error {
	owner, err := getString(txn, k)
	switch {
	case err == nil && owner != id:
		return ErrConflict
	case err == nil:
		return nil
	case !errors.Is(err, badger.ErrKeyNotFound):
		return err
	}
	return txn.Set(k, []byte(id))
}

// suffixes returns what follows prefix for every key under it, in key order.
// A positive limit stops the scan early.
func suffixes(txn *badger.Txn, prefix []byte, limit int) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []string
	for it.Rewind(); it.Valid(); it.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, string(it.Item().Key()[len(prefix):]))
	}
	return out, nil
}

// scanJSON decodes every document under prefix, in key order.
func scanJSON[T any](txn *badger.Txn, prefix []byte, limit int) ([]T, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []T
	for it.Rewind(); it.Valid(); it.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var v T
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		}); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// deletePrefix removes every key under prefix.
func deletePrefix(txn *badger.Txn, prefix []byte) error {
	keys, err := suffixes(txn, prefix, 0)
	if err != nil {
		return err
	}
	for _, s := range keys {
		if err := txn.Delete(append(append([]byte{}, prefix...), s...)); err != nil {
			return err
		}
	}
	return nil
}
