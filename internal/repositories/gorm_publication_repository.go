package repositories

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"zines/internal/models"
)

var publicationColumns = []string{
	"title", "slug", "description", "cover_image", "status",
	"layout_type", "enable_pdf", "updated_at", "published_at",
}

// CreatePublication creates a new publication with its tag links.
func (r *GORMRepository) CreatePublication(ctx context.Context, pub *models.Publication) error {
	if pub.ID == "" {
		pub.ID = uuid.New().String()
	}
	ts := now()
	pub.CreatedAt, pub.UpdatedAt = ts, ts
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Creator").Create(pub).Error; err != nil {
			return err
		}
		return replaceTags(tx, pub.ID, pub.Tags)
	})
	if err != nil {
		return r.normalize("create publication", err)
	}
	pub.Tags = normalizedTags(pub.Tags)
	return nil
}

// GetPublicationByID retrieves a publication by its ID.
func (r *GORMRepository) GetPublicationByID(ctx context.Context, id string) (*models.Publication, error) {
	return r.firstPublication(ctx, "get publication", "id = ?", id)
}

// GetPublicationBySlug retrieves a publication by its creator-scoped slug.
func (r *GORMRepository) GetPublicationBySlug(ctx context.Context, creatorID, slug string) (*models.Publication, error) {
	return r.firstPublication(ctx, "get publication by slug", "creator_id = ? AND slug = ?", creatorID, slug)
}

// GetPublicationForUpdate reads a publication with SELECT ... FOR UPDATE, so
// the row stays locked until the surrounding transaction ends. sqlite has no
// row locks and serializes writers on its own.
func (r *GORMRepository) GetPublicationForUpdate(ctx context.Context, id string) (*models.Publication, error) {
	db := r.conn(ctx)
	if r.db.Dialector.Name() != "sqlite" {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.findPublication(ctx, db, "get publication for update", "id = ?", id)
}

func (r *GORMRepository) firstPublication(ctx context.Context, op, cond string, args ...interface{}) (*models.Publication, error) {
	return r.findPublication(ctx, r.conn(ctx), op, cond, args...)
}

func (r *GORMRepository) findPublication(ctx context.Context, db *gorm.DB, op, cond string, args ...interface{}) (*models.Publication, error) {
	var pub models.Publication
	if err := db.Where(cond, args...).First(&pub).Error; err != nil {
		return nil, r.normalize(op, err)
	}
	pubs := []models.Publication{pub}
	if err := r.loadTags(ctx, pubs); err != nil {
		return nil, err
	}
	return &pubs[0], nil
}

// ListPublicationsByCreator lists a creator's publications, newest-updated first.
func (r *GORMRepository) ListPublicationsByCreator(ctx context.Context, creatorID, status string) ([]models.Publication, error) {
	q := r.conn(ctx).Where("creator_id = ?", creatorID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return r.findPublications(ctx, "list publications by creator", q.Order("updated_at DESC").Order("id ASC"))
}

// ListPublicationsByStatus lists publications in a status, most recently published first.
func (r *GORMRepository) ListPublicationsByStatus(ctx context.Context, status string, limit int) ([]models.Publication, error) {
	q := r.conn(ctx).Where("status = ?", status).Order("published_at DESC").Order("id ASC")
	return r.findPublications(ctx, "list publications by status", withLimit(q, limit))
}

// ListPublished lists published publications, most recently published first.
func (r *GORMRepository) ListPublished(ctx context.Context, limit int) ([]models.Publication, error) {
	return r.ListPublicationsByStatus(ctx, models.StatusPublished, limit)
}

// ListMostViewed lists published publications by views, highest first.
func (r *GORMRepository) ListMostViewed(ctx context.Context, limit int) ([]models.Publication, error) {
	q := r.conn(ctx).Where("status = ?", models.StatusPublished).Order("views_count DESC").Order("id ASC")
	return r.findPublications(ctx, "list most viewed", withLimit(q, limit))
}

// SearchPublished filters published publications by text and tag.
func (r *GORMRepository) SearchPublished(ctx context.Context, query, tag string, limit int) ([]models.Publication, error) {
	q := r.conn(ctx).Where("status = ?", models.StatusPublished)
	if query != "" {
		like := "%" + query + "%"
		q = q.Where("(LOWER(title) LIKE LOWER(?) OR LOWER(description) LIKE LOWER(?))", like, like)
	}
	if tag != "" {
		sub := r.conn(ctx).Model(&models.PublicationTag{}).
			Select("publication_tags.publication_id").
			Joins("JOIN tags ON tags.id = publication_tags.tag_id").
			Where("tags.name = ?", tag)
		q = q.Where("id IN (?)", sub)
	}
	q = q.Order("published_at DESC").Order("id ASC")
	return r.findPublications(ctx, "search publications", withLimit(q, limit))
}

// ListFeed returns userID's own published work and that of every creator
// userID follows, in one query.
func (r *GORMRepository) ListFeed(ctx context.Context, userID string, limit int) ([]models.Publication, error) {
	followed := r.conn(ctx).Model(&models.Follow{}).Select("followed_id").Where("follower_id = ?", userID)
	q := r.conn(ctx).
		Where("status = ?", models.StatusPublished).
		Where("(creator_id = ? OR creator_id IN (?))", userID, followed).
		Order("published_at DESC").Order("id ASC")
	return r.findPublications(ctx, "list feed", withLimit(q, limit))
}

func (r *GORMRepository) findPublications(ctx context.Context, op string, q *gorm.DB) ([]models.Publication, error) {
	var pubs []models.Publication
	if err := q.Find(&pubs).Error; err != nil {
		return nil, r.normalize(op, err)
	}
	if err := r.loadTags(ctx, pubs); err != nil {
		return nil, err
	}
	return pubs, nil
}

// UpdatePublication saves the editable fields and tags. View counters are
// owned by the analytics operations.
func (r *GORMRepository) UpdatePublication(ctx context.Context, pub *models.Publication) error {
	pub.UpdatedAt = now()
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Publication{}).Where("id = ?", pub.ID).Select(publicationColumns).Updates(pub)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return replaceTags(tx, pub.ID, pub.Tags)
	})
	if err != nil {
		return r.normalize("update publication", err)
	}
	pub.Tags = normalizedTags(pub.Tags)
	return nil
}

// DeletePublication deletes a publication and everything that belongs to it.
func (r *GORMRepository) DeletePublication(ctx context.Context, id string) error {
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		for _, child := range []interface{}{&models.PublicationTag{}, &models.Page{}, &models.Version{}, &models.ViewEvent{}} {
			if err := tx.Where("publication_id = ?", id).Delete(child).Error; err != nil {
				return err
			}
		}
		res := tx.Where("id = ?", id).Delete(&models.Publication{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	return r.normalize("delete publication", err)
}

// replaceTags rewrites the tag links of a publication, creating tags on first use.
func replaceTags(tx *gorm.DB, publicationID string, tags []string) error {
	if err := tx.Where("publication_id = ?", publicationID).Delete(&models.PublicationTag{}).Error; err != nil {
		return err
	}
	for _, name := range normalizedTags(tags) {
		var tag models.Tag
		err := tx.Where(models.Tag{Name: name}).
			Attrs(models.Tag{ID: uuid.New().String()}).
			FirstOrCreate(&tag).Error
		if err != nil {
			return err
		}
		link := models.PublicationTag{PublicationID: publicationID, TagID: tag.ID}
		if err := tx.Omit("Publication", "Tag").Create(&link).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *GORMRepository) loadTags(ctx context.Context, pubs []models.Publication) error {
	if len(pubs) == 0 {
		return nil
	}
	ids := make([]string, len(pubs))
	for i := range pubs {
		ids[i] = pubs[i].ID
		pubs[i].Tags = []string{}
	}
	var rows []struct {
		PublicationID string
		Name          string
	}
	err := r.conn(ctx).Model(&models.PublicationTag{}).
		Select("publication_tags.publication_id, tags.name").
		Joins("JOIN tags ON tags.id = publication_tags.tag_id").
		Where("publication_tags.publication_id IN ?", ids).
		Order("tags.name ASC").
		Scan(&rows).Error
	if err != nil {
		return r.normalize("load tags", err)
	}
	index := make(map[string]int, len(pubs))
	for i := range pubs {
		index[pubs[i].ID] = i
	}
	for _, row := range rows {
		if i, ok := index[row.PublicationID]; ok {
			pubs[i].Tags = append(pubs[i].Tags, row.Name)
		}
	}
	return nil
}

// normalizedTags returns the distinct non-empty tags sorted by name.
func normalizedTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func withLimit(q *gorm.DB, limit int) *gorm.DB {
	if limit > 0 {
		return q.Limit(limit)
	}
	return q
}
