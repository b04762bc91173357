package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"zines/internal/metrics"
	"zines/internal/models"
	"zines/internal/repositories"
)

const (
	// MaxVersions is the number of snapshots kept per publication.
	MaxVersions = 10
	// MaxTags is the number of tags a publication may carry.
	MaxTags = 3

	ExploreLimit  = 50
	SearchLimit   = 30
	FeaturedLimit = 12

	maxCreateRetries = 3
)

// Visibility values accepted by Publish.
const (
	VisibilityPublic   = "public"
	VisibilityUnlisted = "unlisted"
)

// PublicationService handles business logic related to publications and
// their pages.
type PublicationService struct {
	repo    repositories.Repository
	events  EventPublisher
	metrics *metrics.Metrics
}

// NewPublicationService creates a new PublicationService. events and m may be nil.
func NewPublicationService(repo repositories.Repository, events EventPublisher, m *metrics.Metrics) *PublicationService {
	return &PublicationService{
		repo:    repo,
		events:  events,
		metrics: m,
	}
}

// EditorView is a publication with all of its pages, for its owner.
type EditorView struct {
	Publication *models.Publication `json:"publication"`
	Pages       []models.Page       `json:"pages"`
}

// ReaderView is what a reader sees of a publication.
type ReaderView struct {
	Publication *models.Publication `json:"publication"`
	Creator     *models.User        `json:"creator"`
	Pages       []models.Page       `json:"pages"`
}

// DetailsInput carries the editable publication fields. Nil fields are left
// unchanged.
type DetailsInput struct {
	Title       *string
	Description *string
	CoverImage  *string
	LayoutType  *string
	EnablePDF   *bool
}

// CreatePublication creates a draft publication with one blank page. The slug
// is derived from the title and made unique among the caller's publications.
func (s *PublicationService) CreatePublication(ctx context.Context, callerID, title, description string) (*models.Publication, error) {
	if callerID == "" {
		return nil, ErrUnauthorized
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}

	base := Slugify(title)
	var (
		pub *models.Publication
		err error
	)
	for attempt := 0; attempt < maxCreateRetries; attempt++ {
		pub, err = s.createDraft(ctx, callerID, title, description, base)
		if !errors.Is(err, repositories.ErrConflict) {
			break
		}
		log.Debug().Str("slug", base).Int("attempt", attempt+1).Msg("slug taken concurrently, retrying")
	}
	if err != nil {
		return nil, err
	}

	s.metrics.PublicationCreated()
	return pub, nil
}

func (s *PublicationService) createDraft(ctx context.Context, callerID, title, description, base string) (*models.Publication, error) {
	var pub *models.Publication
	err := s.repo.Transaction(ctx, func(tx repositories.Repository) error {
		slug, err := freeSlug(ctx, tx, callerID, base)
		if err != nil {
			return err
		}
		pub = &models.Publication{
			CreatorID:   callerID,
			Title:       title,
			Slug:        slug,
			Description: description,
			Status:      models.StatusDraft,
			LayoutType:  models.LayoutA5,
			EnablePDF:   true,
			Tags:        []string{},
		}
		if err := tx.CreatePublication(ctx, pub); err != nil {
			return err
		}
		return tx.CreatePage(ctx, &models.Page{
			PublicationID: pub.ID,
			Order:         0,
			Content:       models.EmptyPageContent(),
			Template:      models.TemplateBlank,
		})
	})
	if err != nil {
		return nil, err
	}
	return pub, nil
}

func freeSlug(ctx context.Context, repo repositories.Repository, creatorID, base string) (string, error) {
	for n := 0; n < MaxSlugAttempts; n++ {
		candidate := slugCandidate(base, n)
		_, err := repo.GetPublicationBySlug(ctx, creatorID, candidate)
		if errors.Is(err, repositories.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", ErrSlugExhausted
}

// SavePage writes a page and records a snapshot of the whole publication.
// An empty pageID appends a new page. The page write, the updated_at bump,
// the retention eviction and the snapshot commit together.
func (s *PublicationService) SavePage(ctx context.Context, callerID, publicationID, pageID string, content []byte) (*models.Page, error) {
	if callerID == "" {
		return nil, ErrUnauthorized
	}
	doc, err := models.NewDocument(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var (
		saved   *models.Page
		evicted int
	)
	err = s.repo.Transaction(ctx, func(tx repositories.Repository) error {
		pub, err := lockOwnedPublication(ctx, tx, callerID, publicationID)
		if err != nil {
			return err
		}
		pages, err := tx.ListPagesForPublication(ctx, pub.ID)
		if err != nil {
			return err
		}

		if pageID != "" {
			page := findPage(pages, pageID)
			if page == nil {
				return ErrInvalidPage
			}
			page.Content = doc
			if err := tx.UpdatePage(ctx, page); err != nil {
				return err
			}
			saved = page
		} else {
			page := &models.Page{
				PublicationID: pub.ID,
				Order:         nextOrder(pages),
				Content:       doc,
				Template:      models.TemplateBlank,
			}
			if err := tx.CreatePage(ctx, page); err != nil {
				return err
			}
			saved = page
		}

		if err := tx.UpdatePublication(ctx, pub); err != nil {
			return err
		}
		evicted, err = snapshot(ctx, tx, pub.ID, callerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PageSaved(pageID == "")
	for i := 0; i < evicted; i++ {
		s.metrics.VersionEvicted()
	}
	return saved, nil
}

// snapshot stores the publication's current pages as a new version, evicting
// the oldest versions beyond the retention limit first. It returns the number
// of evicted versions.
func snapshot(ctx context.Context, tx repositories.Repository, publicationID, createdBy string) (int, error) {
	pages, err := tx.ListPagesForPublication(ctx, publicationID)
	if err != nil {
		return 0, err
	}
	snap := models.Snapshot{Pages: make([]models.SnapshotPage, 0, len(pages))}
	for _, p := range pages {
		snap.Pages = append(snap.Pages, models.SnapshotPage{Order: p.Order, Content: p.Content})
	}
	doc, err := encodeDocument(snap)
	if err != nil {
		return 0, err
	}

	versions, err := tx.ListVersions(ctx, publicationID)
	if err != nil {
		return 0, err
	}
	evicted := 0
	for len(versions)-evicted >= MaxVersions {
		if err := tx.DeleteVersion(ctx, versions[evicted].ID); err != nil {
			return 0, err
		}
		evicted++
	}

	number := 1
	for _, v := range versions {
		if v.VersionNumber >= number {
			number = v.VersionNumber + 1
		}
	}
	err = tx.CreateVersion(ctx, &models.Version{
		PublicationID: publicationID,
		VersionNumber: number,
		Snapshot:      doc,
		CreatedBy:     createdBy,
	})
	return evicted, err
}

// AddPage appends a page pre-filled from a catalogue template. An empty
// templateID means blank.
func (s *PublicationService) AddPage(ctx context.Context, callerID, publicationID, templateID string) (*models.Page, error) {
	if callerID == "" {
		return nil, ErrUnauthorized
	}
	tmpl, ok := findTemplate(templateID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown template %q", ErrValidation, templateID)
	}

	var page *models.Page
	err := s.repo.Transaction(ctx, func(tx repositories.Repository) error {
		pub, err := lockOwnedPublication(ctx, tx, callerID, publicationID)
		if err != nil {
			return err
		}
		pages, err := tx.ListPagesForPublication(ctx, pub.ID)
		if err != nil {
			return err
		}
		page = &models.Page{
			PublicationID: pub.ID,
			Order:         nextOrder(pages),
			Content:       tmpl.Content(),
			Template:      tmpl.ID,
		}
		if err := tx.CreatePage(ctx, page); err != nil {
			return err
		}
		return tx.UpdatePublication(ctx, pub)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PageSaved(true)
	return page, nil
}

// DeletePage removes a page and closes the gap in the page order.
func (s *PublicationService) DeletePage(ctx context.Context, callerID, publicationID, pageID string) error {
	if callerID == "" {
		return ErrUnauthorized
	}
	return s.repo.Transaction(ctx, func(tx repositories.Repository) error {
		pub, err := lockOwnedPublication(ctx, tx, callerID, publicationID)
		if err != nil {
			return err
		}
		page, err := tx.GetPage(ctx, pageID)
		if err != nil {
			return err
		}
		if page.PublicationID != pub.ID {
			return ErrInvalidPage
		}
		if err := tx.DeletePage(ctx, pub.ID, page.ID); err != nil {
			return err
		}
		return tx.UpdatePublication(ctx, pub)
	})
}

// Publish makes a publication readable. Public visibility publishes it and,
// on the first transition to published, notifies every follower who has
// notifications enabled. published_at keeps the first publish time.
func (s *PublicationService) Publish(ctx context.Context, callerID, publicationID, visibility string, tags []string) (*models.Publication, error) {
	if callerID == "" {
		return nil, ErrUnauthorized
	}
	status, err := statusForVisibility(visibility)
	if err != nil {
		return nil, err
	}

	var (
		pub           *models.Publication
		link          string
		notifications []models.Notification
	)
	err = s.repo.Transaction(ctx, func(tx repositories.Repository) error {
		notifications = nil
		var err error
		pub, err = lockOwnedPublication(ctx, tx, callerID, publicationID)
		if err != nil {
			return err
		}
		creator, err := tx.GetUserByID(ctx, callerID)
		if err != nil {
			return err
		}
		link = ReaderLink(creator.Username, pub.Slug)

		wasPublished := pub.Status == models.StatusPublished
		pub.Status = status
		if pub.PublishedAt == nil {
			at := time.Now().UTC()
			pub.PublishedAt = &at
		}
		pub.Tags = NormalizeTags(tags)
		if err := tx.UpdatePublication(ctx, pub); err != nil {
			return err
		}
		if status != models.StatusPublished || wasPublished {
			return nil
		}

		followers, err := tx.ListFollowers(ctx, callerID)
		if err != nil {
			return err
		}
		for _, follower := range followers {
			if !follower.EmailNotifications {
				continue
			}
			n := models.Notification{
				UserID:  follower.ID,
				Type:    models.NotificationNewIssue,
				Title:   "New zine published",
				Message: fmt.Sprintf("%s published \"%s\"", creator.Username, pub.Title),
				Link:    link,
			}
			if err := tx.CreateNotification(ctx, &n); err != nil {
				return err
			}
			notifications = append(notifications, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Published(status)
	for range notifications {
		s.metrics.NotificationCreated(models.NotificationNewIssue)
	}
	emit(ctx, s.events, EventPublicationPublished, PublishedEvent{
		PublicationID: pub.ID,
		CreatorID:     pub.CreatorID,
		Status:        pub.Status,
		Link:          link,
	})
	emitNotifications(ctx, s.events, notifications)
	return pub, nil
}

// UpdateDetails edits a publication's metadata. The slug never changes.
func (s *PublicationService) UpdateDetails(ctx context.Context, callerID, publicationID string, in DetailsInput) (*models.Publication, error) {
	if callerID == "" {
		return nil, ErrUnauthorized
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if in.LayoutType != nil && !validLayout(*in.LayoutType) {
		return nil, fmt.Errorf("%w: unknown layout %q", ErrValidation, *in.LayoutType)
	}

	var pub *models.Publication
	err := s.repo.Transaction(ctx, func(tx repositories.Repository) error {
		var err error
		pub, err = lockOwnedPublication(ctx, tx, callerID, publicationID)
		if err != nil {
			return err
		}
		if in.Title != nil {
			pub.Title = strings.TrimSpace(*in.Title)
		}
		if in.Description != nil {
			pub.Description = *in.Description
		}
		if in.CoverImage != nil {
			pub.CoverImage = *in.CoverImage
		}
		if in.LayoutType != nil {
			pub.LayoutType = *in.LayoutType
		}
		if in.EnablePDF != nil {
			pub.EnablePDF = *in.EnablePDF
		}
		return tx.UpdatePublication(ctx, pub)
	})
	if err != nil {
		return nil, err
	}
	return pub, nil
}

// DeletePublication deletes a publication with its pages and versions.
func (s *PublicationService) DeletePublication(ctx context.Context, callerID, publicationID string) error {
	if callerID == "" {
		return ErrUnauthorized
	}
	return s.repo.Transaction(ctx, func(tx repositories.Repository) error {
		pub, err := lockOwnedPublication(ctx, tx, callerID, publicationID)
		if err != nil {
			return err
		}
		return tx.DeletePublication(ctx, pub.ID)
	})
}

// GetForEditor returns a publication and its pages to its owner.
func (s *PublicationService) GetForEditor(ctx context.Context, callerID, publicationID string) (*EditorView, error) {
	if callerID == "" {
		return nil, ErrUnauthorized
	}
	pub, err := ownedPublication(ctx, s.repo, callerID, publicationID)
	if err != nil {
		return nil, err
	}
	pages, err := s.repo.ListPagesForPublication(ctx, pub.ID)
	if err != nil {
		return nil, err
	}
	return &EditorView{Publication: pub, Pages: pages}, nil
}

// GetForReader resolves a publication by its creator's username and slug.
// Drafts are only visible to their creator; everyone else gets ErrNotFound.
func (s *PublicationService) GetForReader(ctx context.Context, viewerID, username, slug string) (*ReaderView, error) {
	creator, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	pub, err := s.repo.GetPublicationBySlug(ctx, creator.ID, slug)
	if err != nil {
		return nil, err
	}
	if !pub.IsVisibleTo(viewerID) {
		return nil, repositories.ErrNotFound
	}
	pages, err := s.repo.ListPagesForPublication(ctx, pub.ID)
	if err != nil {
		return nil, err
	}
	return &ReaderView{Publication: pub, Creator: creator, Pages: pages}, nil
}

// ListVersions returns a publication's snapshots, oldest first.
func (s *PublicationService) ListVersions(ctx context.Context, callerID, publicationID string) ([]models.Version, error) {
	if callerID == "" {
		return nil, ErrUnauthorized
	}
	if _, err := ownedPublication(ctx, s.repo, callerID, publicationID); err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, publicationID)
}

// ListMine returns every publication of the caller, newest-updated first.
func (s *PublicationService) ListMine(ctx context.Context, callerID string) ([]models.Publication, error) {
	if callerID == "" {
		return nil, ErrUnauthorized
	}
	return s.repo.ListPublicationsByCreator(ctx, callerID, "")
}

// ListByCreator returns a creator's publications. Viewers other than the
// creator only see published work.
func (s *PublicationService) ListByCreator(ctx context.Context, viewerID, username string) ([]models.Publication, error) {
	creator, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	status := models.StatusPublished
	if viewerID != "" && viewerID == creator.ID {
		status = ""
	}
	return s.repo.ListPublicationsByCreator(ctx, creator.ID, status)
}

// Explore lists published work, optionally filtered by a text query and a tag.
func (s *PublicationService) Explore(ctx context.Context, query, tag string, limit int) ([]models.Publication, error) {
	if limit <= 0 || limit > ExploreLimit {
		limit = ExploreLimit
	}
	return s.repo.SearchPublished(ctx, strings.TrimSpace(query), strings.ToLower(strings.TrimSpace(tag)), limit)
}

// Search matches published work by title or description.
func (s *PublicationService) Search(ctx context.Context, query string) ([]models.Publication, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.Publication{}, nil
	}
	return s.repo.SearchPublished(ctx, query, "", SearchLimit)
}

// Featured returns the most viewed published work.
func (s *PublicationService) Featured(ctx context.Context) ([]models.Publication, error) {
	return s.repo.ListMostViewed(ctx, FeaturedLimit)
}

// Templates returns the page template catalogue.
func (s *PublicationService) Templates() []Template {
	return Templates()
}

// ReaderLink is the reader-facing path of a publication.
func ReaderLink(username, slug string) string {
	return "/" + username + "/" + slug
}

// NormalizeTags trims, lower-cases and de-duplicates tags, keeping the first
// MaxTags.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, MaxTags)
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == MaxTags {
			break
		}
	}
	return out
}

func statusForVisibility(visibility string) (string, error) {
	switch visibility {
	case "", VisibilityPublic:
		return models.StatusPublished, nil
	case VisibilityUnlisted:
		return models.StatusUnlisted, nil
	default:
		return "", fmt.Errorf("%w: unknown visibility %q", ErrValidation, visibility)
	}
}

func validLayout(layout string) bool {
	switch layout {
	case models.LayoutA5, models.LayoutA4, models.LayoutSquare:
		return true
	}
	return false
}

func ownedPublication(ctx context.Context, repo repositories.Repository, callerID, publicationID string) (*models.Publication, error) {
	pub, err := repo.GetPublicationByID(ctx, publicationID)
	return checkOwner(pub, err, callerID)
}

// lockOwnedPublication is ownedPublication inside a transaction. Writers to
// the same publication wait for each other from here on, so page orders and
// version numbers read later in the transaction stay current.
func lockOwnedPublication(ctx context.Context, tx repositories.Repository, callerID, publicationID string) (*models.Publication, error) {
	pub, err := tx.GetPublicationForUpdate(ctx, publicationID)
	return checkOwner(pub, err, callerID)
}

func checkOwner(pub *models.Publication, err error, callerID string) (*models.Publication, error) {
	if err != nil {
		return nil, err
	}
	if pub.CreatorID != callerID {
		return nil, ErrUnauthorized
	}
	return pub, nil
}

func findPage(pages []models.Page, id string) *models.Page {
	for i := range pages {
		if pages[i].ID == id {
			return &pages[i]
		}
	}
	return nil
}

func nextOrder(pages []models.Page) int {
	next := 0
	for _, p := range pages {
		if p.Order >= next {
			next = p.Order + 1
		}
	}
	return next
}

// encodeDocument marshals v without HTML escaping so embedded documents keep
// their bytes.
func encodeDocument(v interface{}) (models.Document, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return models.Document(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
