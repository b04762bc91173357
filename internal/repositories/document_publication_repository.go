package repositories

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"zines/internal/models"
)

const (
	colPublications     = "publications"
	idxPublicationSlug  = "publications.slug"
	idxPublicationOwner = "publications.creator"

	// idxPublicationStatus keys sort most recently published first, then by id.
	idxPublicationStatus = "publications.status"
)

// recencyKey inverts published_at so ascending key order is descending time.
// Unpublished work sorts last.
func recencyKey(p *models.Publication) string {
	if p.PublishedAt == nil {
		return fmt.Sprintf("%019d", uint64(math.MaxInt64))
	}
	return fmt.Sprintf("%019d", math.MaxInt64-p.PublishedAt.UnixNano())
}

func statusKey(p *models.Publication) []byte {
	return key(idxPublicationStatus, p.Status, recencyKey(p), p.ID)
}

func loadPublication(txn *badger.Txn, id string) (*models.Publication, error) {
	var pub models.Publication
	if err := getJSON(txn, key(colPublications, id), &pub); err != nil {
		return nil, err
	}
	if pub.Tags == nil {
		pub.Tags = []string{}
	}
	return &pub, nil
}

// storePublication writes pub and moves its index entries away from stored,
// which is nil on create.
func storePublication(txn *badger.Txn, stored, pub *models.Publication) error {
	if stored == nil || stored.Slug != pub.Slug {
		if err := claim(txn, key(idxPublicationSlug, pub.CreatorID, pub.Slug), pub.ID); err != nil {
			return err
		}
		if stored != nil {
			if err := txn.Delete(key(idxPublicationSlug, stored.CreatorID, stored.Slug)); err != nil {
				return err
			}
		}
	}
	if stored != nil {
		if err := txn.Delete(statusKey(stored)); err != nil {
			return err
		}
	}
	if err := txn.Set(statusKey(pub), nil); err != nil {
		return err
	}
	if err := txn.Set(key(idxPublicationOwner, pub.CreatorID, pub.ID), nil); err != nil {
		return err
	}
	pub.Tags = normalizedTags(pub.Tags)
	return setJSON(txn, key(colPublications, pub.ID), pub)
}

func publicationsByID(txn *badger.Txn, ids []string) ([]models.Publication, error) {
	pubs := make([]models.Publication, 0, len(ids))
	for _, id := range ids {
		pub, err := loadPublication(txn, id)
		if errors.Is(err, badger.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, *pub)
	}
	return pubs, nil
}

// idsFromStatusIndex strips the recency component from status index suffixes.
func idsFromStatusIndex(entries []string) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e[strings.LastIndex(e, "/")+1:]
	}
	return ids
}

// CreatePublication creates a new publication document and claims its slug.
func (r *DocumentRepository) CreatePublication(ctx context.Context, pub *models.Publication) error {
	if pub.ID == "" {
		pub.ID = uuid.New().String()
	}
	ts := now()
	pub.CreatedAt, pub.UpdatedAt = ts, ts
	return r.update(ctx, "create publication", func(txn *badger.Txn) error {
		if ok, err := exists(txn, key(colPublications, pub.ID)); err != nil {
			return err
		} else if ok {
			return ErrConflict
		}
		return storePublication(txn, nil, pub)
	})
}

// GetPublicationByID retrieves a publication by its ID.
func (r *DocumentRepository) GetPublicationByID(ctx context.Context, id string) (*models.Publication, error) {
	var pub *models.Publication
	err := r.view(ctx, "get publication", func(txn *badger.Txn) (err error) {
		pub, err = loadPublication(txn, id)
		return err
	})
	return pub, err
}

// GetPublicationForUpdate reads a publication. Inside a transaction the read
// is tracked, so a concurrent commit to the same publication makes this one
// conflict and retry.
func (r *DocumentRepository) GetPublicationForUpdate(ctx context.Context, id string) (*models.Publication, error) {
	var pub *models.Publication
	err := r.view(ctx, "get publication for update", func(txn *badger.Txn) (err error) {
		pub, err = loadPublication(txn, id)
		return err
	})
	return pub, err
}

// GetPublicationBySlug retrieves a publication by its creator-scoped slug.
func (r *DocumentRepository) GetPublicationBySlug(ctx context.Context, creatorID, slug string) (*models.Publication, error) {
	var pub *models.Publication
	err := r.view(ctx, "get publication by slug", func(txn *badger.Txn) error {
		id, err := getString(txn, key(idxPublicationSlug, creatorID, slug))
		if err != nil {
			return err
		}
		pub, err = loadPublication(txn, id)
		return err
	})
	return pub, err
}

// ListPublicationsByCreator lists a creator's publications, newest-updated first.
func (r *DocumentRepository) ListPublicationsByCreator(ctx context.Context, creatorID, status string) ([]models.Publication, error) {
	var pubs []models.Publication
	err := r.view(ctx, "list publications by creator", func(txn *badger.Txn) error {
		ids, err := suffixes(txn, key(idxPublicationOwner, creatorID, ""), 0)
		if err != nil {
			return err
		}
		all, err := publicationsByID(txn, ids)
		if err != nil {
			return err
		}
		for _, p := range all {
			if status == "" || p.Status == status {
				pubs = append(pubs, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByUpdatedDesc(pubs)
	return pubs, nil
}

// ListPublicationsByStatus walks the status index, which is already in
// most-recently-published order.
func (r *DocumentRepository) ListPublicationsByStatus(ctx context.Context, status string, limit int) ([]models.Publication, error) {
	var pubs []models.Publication
	err := r.view(ctx, "list publications by status", func(txn *badger.Txn) error {
		entries, err := suffixes(txn, key(idxPublicationStatus, status, ""), limit)
		if err != nil {
			return err
		}
		pubs, err = publicationsByID(txn, idsFromStatusIndex(entries))
		return err
	})
	if err != nil {
		return nil, err
	}
	return pubs, nil
}

// ListPublished lists published publications, most recently published first.
func (r *DocumentRepository) ListPublished(ctx context.Context, limit int) ([]models.Publication, error) {
	return r.ListPublicationsByStatus(ctx, models.StatusPublished, limit)
}

// ListMostViewed ranks the scanLimit most recently published publications by views.
func (r *DocumentRepository) ListMostViewed(ctx context.Context, limit int) ([]models.Publication, error) {
	pubs, err := r.ListPublicationsByStatus(ctx, models.StatusPublished, r.scanLimit)
	if err != nil {
		return nil, err
	}
	sortByViewsDesc(pubs)
	return limitPublications(pubs, limit), nil
}

// SearchPublished filters the scanLimit most recently published publications.
func (r *DocumentRepository) SearchPublished(ctx context.Context, query, tag string, limit int) ([]models.Publication, error) {
	recent, err := r.ListPublicationsByStatus(ctx, models.StatusPublished, r.scanLimit)
	if err != nil {
		return nil, err
	}
	pubs := make([]models.Publication, 0, len(recent))
	for _, p := range recent {
		if query != "" && !containsFold(p.Title, query) && !containsFold(p.Description, query) {
			continue
		}
		if tag != "" && !hasTag(p.Tags, tag) {
			continue
		}
		pubs = append(pubs, p)
	}
	SortByPublishedDesc(pubs)
	return limitPublications(pubs, limit), nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// UpdatePublication saves the editable fields and tags. View counters are
// left as stored.
func (r *DocumentRepository) UpdatePublication(ctx context.Context, pub *models.Publication) error {
	return r.update(ctx, "update publication", func(txn *badger.Txn) error {
		stored, err := loadPublication(txn, pub.ID)
		if err != nil {
			return err
		}
		pub.CreatorID = stored.CreatorID
		pub.ViewsCount = stored.ViewsCount
		pub.UniqueReaders = stored.UniqueReaders
		pub.AvgReadTime = stored.AvgReadTime
		pub.CreatedAt = stored.CreatedAt
		pub.UpdatedAt = now()
		return storePublication(txn, stored, pub)
	})
}

// saveCounters writes back counter changes on a loaded publication.
func saveCounters(txn *badger.Txn, pub *models.Publication) error {
	return setJSON(txn, key(colPublications, pub.ID), pub)
}

// DeletePublication deletes a publication with its pages, versions and view
// events.
func (r *DocumentRepository) DeletePublication(ctx context.Context, id string) error {
	return r.update(ctx, "delete publication", func(txn *badger.Txn) error {
		pub, err := loadPublication(txn, id)
		if err != nil {
			return err
		}
		for _, child := range []struct{ col, idx string }{
			{colPages, idxPagePublication},
			{colVersions, idxVersionPublication},
		} {
			ids, err := suffixes(txn, key(child.idx, id, ""), 0)
			if err != nil {
				return err
			}
			for _, childID := range ids {
				if err := txn.Delete(key(child.col, childID)); err != nil {
					return err
				}
			}
			if err := deletePrefix(txn, key(child.idx, id, "")); err != nil {
				return err
			}
		}
		if err := deletePrefix(txn, key(colViewEvents, id, "")); err != nil {
			return err
		}
		for _, k := range [][]byte{
			key(idxPublicationSlug, pub.CreatorID, pub.Slug),
			key(idxPublicationOwner, pub.CreatorID, pub.ID),
			statusKey(pub),
			key(colPublications, pub.ID),
		} {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
