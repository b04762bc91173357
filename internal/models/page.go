package models

import "time"

// TemplateBlank is the template of an empty page.
const TemplateBlank = "blank"

// Page is one ordered unit of content within a publication. Order values of a
// publication's pages are always exactly 0..N-1.
type Page struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	PublicationID string    `json:"publication_id" gorm:"type:varchar(36);not null;index:idx_page_publication_order,priority:1"`
	Order         int       `json:"order" gorm:"column:page_order;not null;index:idx_page_publication_order,priority:2"`
	Content       Document  `json:"content"`
	Template      string    `json:"template" gorm:"type:varchar(50)"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Publication *Publication `json:"-" gorm:"foreignKey:PublicationID;constraint:OnDelete:CASCADE"`
}

// Version is a full snapshot of a publication's pages taken on save.
type Version struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	PublicationID string    `json:"publication_id" gorm:"type:varchar(36);not null;index"`
	VersionNumber int       `json:"version_number" gorm:"not null"`
	Snapshot      Document  `json:"snapshot"`
	CreatedBy     string    `json:"created_by" gorm:"type:varchar(36)"`
	CreatedAt     time.Time `json:"created_at"`

	Publication *Publication `json:"-" gorm:"foreignKey:PublicationID;constraint:OnDelete:CASCADE"`
}

// SnapshotPage is one page entry of a version snapshot.
type SnapshotPage struct {
	Order   int      `json:"order"`
	Content Document `json:"content"`
}

// Snapshot is the document stored in Version.Snapshot.
type Snapshot struct {
	Pages []SnapshotPage `json:"pages"`
}
