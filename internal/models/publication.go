package models

import "time"

// Publication statuses.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusUnlisted  = "unlisted"
)

// Layout types.
const (
	LayoutA5     = "A5"
	LayoutA4     = "A4"
	LayoutSquare = "square"
)

// Publication is a zine: a multi-page document owned by exactly one creator.
type Publication struct {
	ID            string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CreatorID     string     `json:"creator_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_publication_creator_slug,priority:1"`
	Title         string     `json:"title" gorm:"type:varchar(255);not null"`
	Slug          string     `json:"slug" gorm:"type:varchar(255);not null;uniqueIndex:idx_publication_creator_slug,priority:2"`
	Description   string     `json:"description" gorm:"type:text"`
	CoverImage    string     `json:"cover_image" gorm:"type:text"`
	Status        string     `json:"status" gorm:"type:varchar(20);not null;default:draft;index"`
	LayoutType    string     `json:"layout_type" gorm:"type:varchar(20);not null;default:A5"`
	EnablePDF     bool       `json:"enable_pdf" gorm:"not null"`
	Tags          []string   `json:"tags" gorm:"-"`
	ViewsCount    int        `json:"views_count" gorm:"not null;default:0"`
	UniqueReaders int        `json:"unique_readers" gorm:"not null;default:0"`
	AvgReadTime   float64    `json:"avg_read_time" gorm:"not null;default:0"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	PublishedAt   *time.Time `json:"published_at"`

	Creator *User `json:"-" gorm:"foreignKey:CreatorID;constraint:OnDelete:CASCADE"`
}

// IsVisibleTo reports whether viewerID may read the publication.
func (p *Publication) IsVisibleTo(viewerID string) bool {
	return p.Status != StatusDraft || (viewerID != "" && viewerID == p.CreatorID)
}

// Tag is a publication category label.
type Tag struct {
	ID       string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name     string `json:"name" gorm:"uniqueIndex;type:varchar(50);not null"`
	Category string `json:"category" gorm:"type:varchar(50)"`
}

// PublicationTag links a publication to a tag in the relational store.
type PublicationTag struct {
	PublicationID string `gorm:"primaryKey;type:varchar(36)"`
	TagID         string `gorm:"primaryKey;type:varchar(36)"`

	Publication *Publication `gorm:"foreignKey:PublicationID;constraint:OnDelete:CASCADE"`
	Tag         *Tag         `gorm:"foreignKey:TagID;constraint:OnDelete:CASCADE"`
}
