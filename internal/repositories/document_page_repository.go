package repositories

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"zines/internal/models"
)

const (
	colPages              = "pages"
	idxPagePublication    = "pages.publication"
	colVersions           = "versions"
	idxVersionPublication = "versions.publication"
)

func loadPages(txn *badger.Txn, publicationID string) ([]models.Page, error) {
	ids, err := suffixes(txn, key(idxPagePublication, publicationID, ""), 0)
	if err != nil {
		return nil, err
	}
	pages := make([]models.Page, 0, len(ids))
	for _, id := range ids {
		var page models.Page
		if err := getJSON(txn, key(colPages, id), &page); err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	sortPagesByOrder(pages)
	return pages, nil
}

// CreatePage creates a new page.
func (r *DocumentRepository) CreatePage(ctx context.Context, page *models.Page) error {
	if page.ID == "" {
		page.ID = uuid.New().String()
	}
	ts := now()
	page.CreatedAt, page.UpdatedAt = ts, ts
	return r.update(ctx, "create page", func(txn *badger.Txn) error {
		if ok, err := exists(txn, key(colPublications, page.PublicationID)); err != nil {
			return err
		} else if !ok {
			return ErrNotFound
		}
		if err := txn.Set(key(idxPagePublication, page.PublicationID, page.ID), nil); err != nil {
			return err
		}
		return setJSON(txn, key(colPages, page.ID), page)
	})
}

// GetPage retrieves a page by its ID.
func (r *DocumentRepository) GetPage(ctx context.Context, id string) (*models.Page, error) {
	var page models.Page
	err := r.view(ctx, "get page", func(txn *badger.Txn) error {
		return getJSON(txn, key(colPages, id), &page)
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// ListPagesForPublication lists a publication's pages by order.
func (r *DocumentRepository) ListPagesForPublication(ctx context.Context, publicationID string) ([]models.Page, error) {
	var pages []models.Page
	err := r.view(ctx, "list pages", func(txn *badger.Txn) (err error) {
		pages, err = loadPages(txn, publicationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pages, nil
}

// UpdatePage saves a page's content, template and order.
func (r *DocumentRepository) UpdatePage(ctx context.Context, page *models.Page) error {
	return r.update(ctx, "update page", func(txn *badger.Txn) error {
		var stored models.Page
		if err := getJSON(txn, key(colPages, page.ID), &stored); err != nil {
			return err
		}
		if stored.PublicationID != page.PublicationID {
			return ErrNotFound
		}
		page.CreatedAt = stored.CreatedAt
		page.UpdatedAt = now()
		return setJSON(txn, key(colPages, page.ID), page)
	})
}

// DeletePage deletes a page and closes the gap it leaves in the ordering.
func (r *DocumentRepository) DeletePage(ctx context.Context, publicationID, pageID string) error {
	return r.update(ctx, "delete page", func(txn *badger.Txn) error {
		var deleted models.Page
		if err := getJSON(txn, key(colPages, pageID), &deleted); err != nil {
			return err
		}
		if deleted.PublicationID != publicationID {
			return ErrNotFound
		}
		if err := txn.Delete(key(colPages, pageID)); err != nil {
			return err
		}
		if err := txn.Delete(key(idxPagePublication, publicationID, pageID)); err != nil {
			return err
		}
		pages, err := loadPages(txn, publicationID)
		if err != nil {
			return err
		}
		for i := range pages {
			if pages[i].Order <= deleted.Order {
				continue
			}
			pages[i].Order--
			if err := setJSON(txn, key(colPages, pages[i].ID), &pages[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateVersion stores a version snapshot.
func (r *DocumentRepository) CreateVersion(ctx context.Context, version *models.Version) error {
	if version.ID == "" {
		version.ID = uuid.New().String()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = now()
	}
	return r.update(ctx, "create version", func(txn *badger.Txn) error {
		if err := txn.Set(key(idxVersionPublication, version.PublicationID, version.ID), nil); err != nil {
			return err
		}
		return setJSON(txn, key(colVersions, version.ID), version)
	})
}

// ListVersions lists a publication's versions, oldest first.
func (r *DocumentRepository) ListVersions(ctx context.Context, publicationID string) ([]models.Version, error) {
	var versions []models.Version
	err := r.view(ctx, "list versions", func(txn *badger.Txn) error {
		ids, err := suffixes(txn, key(idxVersionPublication, publicationID, ""), 0)
		if err != nil {
			return err
		}
		versions = make([]models.Version, 0, len(ids))
		for _, id := range ids {
			var v models.Version
			if err := getJSON(txn, key(colVersions, id), &v); err != nil {
				return err
			}
			versions = append(versions, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortVersionsOldestFirst(versions)
	return versions, nil
}

// DeleteVersion deletes a version snapshot.
func (r *DocumentRepository) DeleteVersion(ctx context.Context, id string) error {
	return r.update(ctx, "delete version", func(txn *badger.Txn) error {
		var v models.Version
		if err := getJSON(txn, key(colVersions, id), &v); err != nil {
			return err
		}
		if err := txn.Delete(key(idxVersionPublication, v.PublicationID, id)); err != nil {
			return err
		}
		return txn.Delete(key(colVersions, id))
	})
}
