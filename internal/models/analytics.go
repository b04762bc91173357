package models

import "time"

// EventView is the only analytics event type recorded by the core.
const EventView = "view"

// ViewEvent records one reading session of a publication. There is at most one
// per (publication, session).
type ViewEvent struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	PublicationID string    `json:"publication_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_view_publication_session,priority:1"`
	SessionID     string    `json:"session_id" gorm:"type:varchar(100);not null;uniqueIndex:idx_view_publication_session,priority:2"`
	EventType     string    `json:"event_type" gorm:"type:varchar(50);not null;default:view;uniqueIndex:idx_view_publication_session,priority:3"`
	UserID        *string   `json:"user_id" gorm:"type:varchar(36)"`
	Referrer      string    `json:"referrer" gorm:"type:varchar(2048)"`
	ReadTime      *float64  `json:"read_time"`
	CreatedAt     time.Time `json:"created_at" gorm:"index"`

	Publication *Publication `json:"-" gorm:"foreignKey:PublicationID;constraint:OnDelete:CASCADE"`
}

// DailyViews is one bucket of the analytics summary.
type DailyViews struct {
	Date  string `json:"date"`
	Views int    `json:"views"`
}

// ReferrerCount is one row of the top-referrer table.
type ReferrerCount struct {
	Referrer string `json:"referrer"`
	Count    int    `json:"count"`
}

// AnalyticsSummary is the owner-facing analytics view of a publication.
type AnalyticsSummary struct {
	Views         int             `json:"views"`
	UniqueReaders int             `json:"unique_readers"`
	AvgReadTime   float64         `json:"avg_read_time"`
	DailyViews    []DailyViews    `json:"daily_views"`
	TopReferrers  []ReferrerCount `json:"top_referrers"`
}
