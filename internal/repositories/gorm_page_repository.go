package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"zines/internal/models"
)

// CreatePage creates a new page.
func (r *GORMRepository) CreatePage(ctx context.Context, page *models.Page) error {
	if page.ID == "" {
		page.ID = uuid.New().String()
	}
	ts := now()
	page.CreatedAt, page.UpdatedAt = ts, ts
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Publication{}).Where("id = ?", page.PublicationID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return tx.Omit("Publication").Create(page).Error
	})
	return r.normalize("create page", err)
}

// GetPage retrieves a page by its ID.
func (r *GORMRepository) GetPage(ctx context.Context, id string) (*models.Page, error) {
	var page models.Page
	if err := r.conn(ctx).First(&page, "id = ?", id).Error; err != nil {
		return nil, r.normalize("get page", err)
	}
	return &page, nil
}

// ListPagesForPublication lists a publication's pages by order.
func (r *GORMRepository) ListPagesForPublication(ctx context.Context, publicationID string) ([]models.Page, error) {
	var pages []models.Page
	err := r.conn(ctx).Where("publication_id = ?", publicationID).
		Order("page_order ASC").Order("id ASC").
		Find(&pages).Error
	if err != nil {
		return nil, r.normalize("list pages", err)
	}
	return pages, nil
}

// UpdatePage saves a page's content, template and order.
func (r *GORMRepository) UpdatePage(ctx context.Context, page *models.Page) error {
	page.UpdatedAt = now()
	res := r.conn(ctx).Model(&models.Page{}).
		Where("id = ? AND publication_id = ?", page.ID, page.PublicationID).
		Select("page_order", "content", "template", "updated_at").
		Updates(page)
	if res.Error != nil {
		return r.normalize("update page", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePage deletes a page and closes the gap it leaves in the ordering.
func (r *GORMRepository) DeletePage(ctx context.Context, publicationID, pageID string) error {
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var page models.Page
		if err := tx.Where("id = ? AND publication_id = ?", pageID, publicationID).First(&page).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Page{}, "id = ?", pageID).Error; err != nil {
			return err
		}
		return tx.Model(&models.Page{}).
			Where("publication_id = ? AND page_order > ?", publicationID, page.Order).
			UpdateColumn("page_order", gorm.Expr("page_order - 1")).Error
	})
	return r.normalize("delete page", err)
}

// CreateVersion stores a version snapshot.
func (r *GORMRepository) CreateVersion(ctx context.Context, version *models.Version) error {
	if version.ID == "" {
		version.ID = uuid.New().String()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = now()
	}
	if err := r.conn(ctx).Omit("Publication").Create(version).Error; err != nil {
		return r.normalize("create version", err)
	}
	return nil
}

// ListVersions lists a publication's versions, oldest first.
func (r *GORMRepository) ListVersions(ctx context.Context, publicationID string) ([]models.Version, error) {
	var versions []models.Version
	err := r.conn(ctx).Where("publication_id = ?", publicationID).
		Order("created_at ASC").Order("version_number ASC").
		Find(&versions).Error
	if err != nil {
		return nil, r.normalize("list versions", err)
	}
	return versions, nil
}

// DeleteVersion deletes a version snapshot.
func (r *GORMRepository) DeleteVersion(ctx context.Context, id string) error {
	res := r.conn(ctx).Delete(&models.Version{}, "id = ?", id)
	if res.Error != nil {
		return r.normalize("delete version", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
