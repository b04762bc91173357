package repositories

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"zines/internal/models"
)

const colViewEvents = "view_events"

// viewEventKey hashes the client-supplied session id into a fixed-length key
// segment.
func viewEventKey(publicationID, sessionID string) []byte {
	sum := blake2b.Sum256([]byte(sessionID))
	return key(colViewEvents, publicationID, hex.EncodeToString(sum[:]))
}

// RecordView stores the session's first view event and bumps the counters.
func (r *DocumentRepository) RecordView(ctx context.Context, event *models.ViewEvent) (bool, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.EventType == "" {
		event.EventType = models.EventView
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now()
	}
	first := false
	err := r.update(ctx, "record view", func(txn *badger.Txn) error {
		pub, err := loadPublication(txn, event.PublicationID)
		if err != nil {
			return err
		}
		k := viewEventKey(event.PublicationID, event.SessionID)
		seen, err := exists(txn, k)
		if err != nil {
			return err
		}
		first = !seen
		pub.ViewsCount++
		if first {
			pub.UniqueReaders++
			if err := setJSON(txn, k, event); err != nil {
				return err
			}
		}
		return saveCounters(txn, pub)
	})
	if err != nil {
		return false, err
	}
	return first, nil
}

// UpdateReadTime attaches a read time to the session's view event and
// recomputes the publication's average over every recorded read time.
func (r *DocumentRepository) UpdateReadTime(ctx context.Context, publicationID, sessionID string, seconds float64) error {
	return r.update(ctx, "update read time", func(txn *badger.Txn) error {
		k := viewEventKey(publicationID, sessionID)
		var event models.ViewEvent
		if err := getJSON(txn, k, &event); err != nil {
			return err
		}
		event.ReadTime = &seconds
		if err := setJSON(txn, k, &event); err != nil {
			return err
		}
		events, err := scanJSON[models.ViewEvent](txn, key(colViewEvents, publicationID, ""), 0)
		if err != nil {
			return err
		}
		total, n := 0.0, 0
		for _, e := range events {
			if e.ReadTime != nil {
				total += *e.ReadTime
				n++
			}
		}
		pub, err := loadPublication(txn, publicationID)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		pub.AvgReadTime = 0
		if n > 0 {
			pub.AvgReadTime = total / float64(n)
		}
		return saveCounters(txn, pub)
	})
}

// ListViewEvents lists a publication's view events since a point in time.
func (r *DocumentRepository) ListViewEvents(ctx context.Context, publicationID string, since time.Time) ([]models.ViewEvent, error) {
	var events []models.ViewEvent
	err := r.view(ctx, "list view events", func(txn *badger.Txn) error {
		all, err := scanJSON[models.ViewEvent](txn, key(colViewEvents, publicationID, ""), 0)
		if err != nil {
			return err
		}
		for _, e := range all {
			if !e.CreatedAt.Before(since) {
				events = append(events, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortEventsOldestFirst(events)
	return events, nil
}
