package repositories

import (
	"context"
	"time"

	"zines/internal/models"
)

// Kind names a storage backend.
type Kind string

const (
	KindRelational Kind = "relational"
	KindDocument   Kind = "document"
)

// UserRepository defines the interface for user data access.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	// SearchUsers matches username or bio, ordered by username.
	SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error)
}

// PublicationRepository defines the interface for publication data access.
type PublicationRepository interface {
	CreatePublication(ctx context.Context, pub *models.Publication) error
	GetPublicationByID(ctx context.Context, id string) (*models.Publication, error)
	// GetPublicationForUpdate is GetPublicationByID for use inside
	// Transaction. Concurrent transactions that read the same publication
	// this way are serialized.
	GetPublicationForUpdate(ctx context.Context, id string) (*models.Publication, error)
	GetPublicationBySlug(ctx context.Context, creatorID, slug string) (*models.Publication, error)
	// ListPublicationsByCreator returns newest-updated first. An empty status
	// matches every status.
	ListPublicationsByCreator(ctx context.Context, creatorID, status string) ([]models.Publication, error)
	// ListPublicationsByStatus returns most recently published first.
	ListPublicationsByStatus(ctx context.Context, status string, limit int) ([]models.Publication, error)
	ListPublished(ctx context.Context, limit int) ([]models.Publication, error)
	ListMostViewed(ctx context.Context, limit int) ([]models.Publication, error)
	// SearchPublished filters published work by a title/description substring
	// and an optional tag, most recently published first.
	SearchPublished(ctx context.Context, query, tag string, limit int) ([]models.Publication, error)
	UpdatePublication(ctx context.Context, pub *models.Publication) error
	// DeletePublication removes the publication with its pages, versions, view
	// events and tag links.
	DeletePublication(ctx context.Context, id string) error
}

// PageRepository defines the interface for page data access.
type PageRepository interface {
	CreatePage(ctx context.Context, page *models.Page) error
	GetPage(ctx context.Context, id string) (*models.Page, error)
	// ListPagesForPublication always returns pages sorted by order ascending.
	ListPagesForPublication(ctx context.Context, publicationID string) ([]models.Page, error)
	UpdatePage(ctx context.Context, page *models.Page) error
	// DeletePage removes the page and decrements the order of every later page
	// of the same publication in one step.
	DeletePage(ctx context.Context, publicationID, pageID string) error
}

// VersionRepository defines the interface for version snapshot data access.
type VersionRepository interface {
	CreateVersion(ctx context.Context, version *models.Version) error
	// ListVersions returns oldest first (created_at, then version_number).
	ListVersions(ctx context.Context, publicationID string) ([]models.Version, error)
	DeleteVersion(ctx context.Context, id string) error
}

// FollowRepository defines the interface for the follow graph. Follow and
// Unfollow keep both users' counters in step with the edge set and report
// whether the edge set changed.
type FollowRepository interface {
	Follow(ctx context.Context, followerID, followedID string) (bool, error)
	Unfollow(ctx context.Context, followerID, followedID string) (bool, error)
	IsFollowing(ctx context.Context, followerID, followedID string) (bool, error)
	// ListFollowers returns the users following userID, by username.
	ListFollowers(ctx context.Context, userID string) ([]models.User, error)
	// ListFollowing returns the users userID follows, by username.
	ListFollowing(ctx context.Context, userID string) ([]models.User, error)
}

// AnalyticsRepository defines the interface for view analytics.
type AnalyticsRepository interface {
	// RecordView always increments views_count. The first call for a
	// (publication, session) pair stores the event and increments
	// unique_readers; it returns true only then.
	RecordView(ctx context.Context, event *models.ViewEvent) (bool, error)
	// UpdateReadTime attaches seconds to the session's view event and
	// recomputes avg_read_time from every recorded read time. The recompute
	// reads all of the publication's view events, so a call costs O(n) in
	// its view count.
	UpdateReadTime(ctx context.Context, publicationID, sessionID string, seconds float64) error
	// ListViewEvents returns view events created at or after since, oldest first.
	ListViewEvents(ctx context.Context, publicationID string, since time.Time) ([]models.ViewEvent, error)
}

// NotificationRepository defines the interface for notification data access.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	// ListNotifications returns newest first.
	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	MarkNotificationsRead(ctx context.Context, userID string) error
}

// Repository is the content repository every higher-level component works
// against. Both implementations return the same entity types, the same
// orderings and the same error taxonomy.
type Repository interface {
	UserRepository
	PublicationRepository
	PageRepository
	VersionRepository
	FollowRepository
	AnalyticsRepository
	NotificationRepository

	Backend() Kind
	Ping(ctx context.Context) error
	// Transaction runs fn as one unit of work. Repository calls made through
	// the argument passed to fn commit or roll back together.
	Transaction(ctx context.Context, fn func(repo Repository) error) error
	Close() error
}

// FeedSource is implemented by backends that can build a reader's feed with a
// single query.
type FeedSource interface {
	ListFeed(ctx context.Context, userID string, limit int) ([]models.Publication, error)
}
