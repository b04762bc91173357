package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"zines/internal/metrics"
	"zines/internal/models"
	"zines/internal/repositories"
)

const (
	summaryWindow     = 30 * 24 * time.Hour
	topReferrersLimit = 5
	directReferrer    = "Direct"
	dateLayout        = "2006-01-02"
)

// AnalyticsService records reads and summarises them for creators.
type AnalyticsService struct {
	repo    repositories.Repository
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewAnalyticsService creates a new AnalyticsService.
func NewAnalyticsService(repo repositories.Repository, m *metrics.Metrics) *AnalyticsService {
	return &AnalyticsService{
		repo:    repo,
		metrics: m,
		now:     time.Now,
	}
}

// ViewInput describes one view of a publication.
type ViewInput struct {
	PublicationID string
	SessionID     string
	UserID        string
	Referrer      string
}

// ViewResult reports the session the view was attributed to and whether it
// was the session's first view.
type ViewResult struct {
	SessionID string `json:"session_id"`
	First     bool   `json:"first"`
}

// RecordView counts a view. An empty session id gets a fresh one, which the
// caller should hand back on later calls.
func (s *AnalyticsService) RecordView(ctx context.Context, in ViewInput) (*ViewResult, error) {
	if in.PublicationID == "" {
		return nil, fmt.Errorf("%w: publication is required", ErrValidation)
	}
	session := in.SessionID
	if session == "" {
		session = uuid.New().String()
	}

	event := &models.ViewEvent{
		PublicationID: in.PublicationID,
		SessionID:     session,
		EventType:     models.EventView,
		Referrer:      in.Referrer,
	}
	if in.UserID != "" {
		user := in.UserID
		event.UserID = &user
	}
	first, err := s.repo.RecordView(ctx, event)
	if err != nil {
		return nil, err
	}

	s.metrics.ViewRecorded(first)
	return &ViewResult{SessionID: session, First: first}, nil
}

// UpdateReadTime attaches a read time in seconds to the session's view.
func (s *AnalyticsService) UpdateReadTime(ctx context.Context, publicationID, sessionID string, seconds float64) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session is required", ErrValidation)
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return fmt.Errorf("%w: read time must be a non-negative number", ErrValidation)
	}
	return s.repo.UpdateReadTime(ctx, publicationID, sessionID, seconds)
}

// Summary returns the analytics of a publication to its owner.
func (s *AnalyticsService) Summary(ctx context.Context, callerID, publicationID string) (*models.AnalyticsSummary, error) {
	if callerID == "" {
		return nil, ErrUnauthorized
	}
	pub, err := ownedPublication(ctx, s.repo, callerID, publicationID)
	if err != nil {
		return nil, err
	}
	events, err := s.repo.ListViewEvents(ctx, pub.ID, time.Time{})
	if err != nil {
		return nil, err
	}

	since := s.now().UTC().Add(-summaryWindow)
	return &models.AnalyticsSummary{
		Views:         pub.ViewsCount,
		UniqueReaders: pub.UniqueReaders,
		AvgReadTime:   math.Round(pub.AvgReadTime*10) / 10,
		DailyViews:    dailyViews(events, since),
		TopReferrers:  topReferrers(events, topReferrersLimit),
	}, nil
}

// dailyViews buckets the events created at or after since by UTC day, oldest
// day first. Days without views are omitted.
func dailyViews(events []models.ViewEvent, since time.Time) []models.DailyViews {
	counts := make(map[string]int)
	for _, e := range events {
		if e.CreatedAt.Before(since) {
			continue
		}
		counts[e.CreatedAt.UTC().Format(dateLayout)]++
	}
	out := make([]models.DailyViews, 0, len(counts))
	for day, n := range counts {
		out = append(out, models.DailyViews{Date: day, Views: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// topReferrers counts events per referrer, most frequent first. An empty
// referrer counts as a direct visit.
func topReferrers(events []models.ViewEvent, limit int) []models.ReferrerCount {
	counts := make(map[string]int)
	for _, e := range events {
		ref := e.Referrer
		if ref == "" {
			ref = directReferrer
		}
		counts[ref]++
	}
	out := make([]models.ReferrerCount, 0, len(counts))
	for ref, n := range counts {
		out = append(out, models.ReferrerCount{Referrer: ref, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Referrer < out[j].Referrer
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
