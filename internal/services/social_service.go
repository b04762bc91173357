package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"zines/internal/metrics"
	"zines/internal/models"
	"zines/internal/repositories"
)

const (
	// FeedLimit caps the number of items in a reader's feed.
	FeedLimit = 20
	// NotificationsLimit caps one page of notifications.
	NotificationsLimit = 50

	feedConcurrency = 8
)

// SocialService handles follows, feeds and notifications.
type SocialService struct {
	repo           repositories.Repository
	events         EventPublisher
	metrics        *metrics.Metrics
	feedPerCreator int
}

// NewSocialService creates a new SocialService. feedPerCreator bounds each
// creator's contribution to a merged feed; values <= 0 mean FeedLimit.
func NewSocialService(repo repositories.Repository, events EventPublisher, m *metrics.Metrics, feedPerCreator int) *SocialService {
	if feedPerCreator <= 0 || feedPerCreator > FeedLimit {
		feedPerCreator = FeedLimit
	}
	return &SocialService{
		repo:           repo,
		events:         events,
		metrics:        m,
		feedPerCreator: feedPerCreator,
	}
}

// Follow makes the caller follow followedID and notifies the followed user.
// Following yourself or someone already followed changes nothing and
// reports false.
func (s *SocialService) Follow(ctx context.Context, callerID, followedID string) (bool, error) {
	if callerID == "" {
		return false, ErrUnauthorized
	}
	if callerID == followedID {
		return false, nil
	}

	var notification *models.Notification
	err := s.repo.Transaction(ctx, func(tx repositories.Repository) error {
		notification = nil
		follower, err := tx.GetUserByID(ctx, callerID)
		if err != nil {
			return err
		}
		created, err := tx.Follow(ctx, callerID, followedID)
		if err != nil || !created {
			return err
		}
		notification = &models.Notification{
			UserID:  followedID,
			Type:    models.NotificationNewFollower,
			Title:   "New Follower",
			Message: fmt.Sprintf("%s started following you", follower.Username),
			Link:    "/" + follower.Username,
		}
		return tx.CreateNotification(ctx, notification)
	})
	if err != nil {
		return false, err
	}
	if notification == nil {
		return false, nil
	}

	s.metrics.FollowChanged("follow")
	s.metrics.NotificationCreated(models.NotificationNewFollower)
	emit(ctx, s.events, EventUserFollowed, FollowEvent{FollowerID: callerID, FollowedID: followedID})
	emitNotifications(ctx, s.events, []models.Notification{*notification})
	return true, nil
}

// Unfollow removes the caller's edge to followedID. It reports false when
// there was no edge.
func (s *SocialService) Unfollow(ctx context.Context, callerID, followedID string) (bool, error) {
	if callerID == "" {
		return false, ErrUnauthorized
	}
	if callerID == followedID {
		return false, nil
	}
	removed, err := s.repo.Unfollow(ctx, callerID, followedID)
	if err != nil {
		return false, err
	}
	if removed {
		s.metrics.FollowChanged("unfollow")
	}
	return removed, nil
}

// IsFollowing reports whether followerID follows followedID.
func (s *SocialService) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	if followerID == "" || followerID == followedID {
		return false, nil
	}
	return s.repo.IsFollowing(ctx, followerID, followedID)
}

// ListFollowers returns the followers of the named user.
func (s *SocialService) ListFollowers(ctx context.Context, username string) ([]models.User, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.repo.ListFollowers(ctx, user.ID)
}

// ListFollowing returns the users the named user follows.
func (s *SocialService) ListFollowing(ctx context.Context, username string) ([]models.User, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.repo.ListFollowing(ctx, user.ID)
}

// Feed returns the caller's own published work and that of every creator the
// caller follows, most recently published first, capped at FeedLimit.
func (s *SocialService) Feed(ctx context.Context, callerID string) ([]models.Publication, error) {
	if callerID == "" {
		return nil, ErrUnauthorized
	}
	if src, ok := s.repo.(repositories.FeedSource); ok {
		return src.ListFeed(ctx, callerID, FeedLimit)
	}
	return s.mergedFeed(ctx, callerID)
}

// mergedFeed builds the feed from one query per creator and merges the
// results.
func (s *SocialService) mergedFeed(ctx context.Context, callerID string) ([]models.Publication, error) {
	following, err := s.repo.ListFollowing(ctx, callerID)
	if err != nil {
		return nil, err
	}
	creators := make([]string, 0, len(following)+1)
	creators = append(creators, callerID)
	for _, u := range following {
		creators = append(creators, u.ID)
	}

	var (
		mu     sync.Mutex
		merged []models.Publication
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(feedConcurrency)
	for _, creatorID := range creators {
		g.Go(func() error {
			pubs, err := s.repo.ListPublicationsByCreator(gctx, creatorID, models.StatusPublished)
			if errors.Is(err, repositories.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			repositories.SortByPublishedDesc(pubs)
			if len(pubs) > s.feedPerCreator {
				pubs = pubs[:s.feedPerCreator]
			}
			mu.Lock()
			merged = append(merged, pubs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	repositories.SortByPublishedDesc(merged)
	if len(merged) > FeedLimit {
		merged = merged[:FeedLimit]
	}
	if merged == nil {
		merged = []models.Publication{}
	}
	return merged, nil
}

// Notifications returns the caller's latest notifications, then marks all of
// them read. The returned items carry their state from before the call.
func (s *SocialService) Notifications(ctx context.Context, callerID string) ([]models.Notification, error) {
	if callerID == "" {
		return nil, ErrUnauthorized
	}
	list, err := s.repo.ListNotifications(ctx, callerID, NotificationsLimit)
	if err != nil {
		return nil, err
	}
	if err := s.repo.MarkNotificationsRead(ctx, callerID); err != nil {
		return nil, err
	}
	return list, nil
}

// UnreadCount returns the number of unread notifications of the caller.
func (s *SocialService) UnreadCount(ctx context.Context, callerID string) (int, error) {
	if callerID == "" {
		return 0, ErrUnauthorized
	}
	return s.repo.CountUnreadNotifications(ctx, callerID)
}
