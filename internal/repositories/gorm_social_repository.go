package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"zines/internal/models"
)

// Follow adds the edge followerID -> followedID and bumps both counters.
func (r *GORMRepository) Follow(ctx context.Context, followerID, followedID string) (bool, error) {
	if followerID == followedID {
		return false, ErrInvalidInput
	}
	created := false
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var endpoints int64
		if err := tx.Model(&models.User{}).Where("id IN ?", []string{followerID, followedID}).Count(&endpoints).Error; err != nil {
			return err
		}
		if endpoints != 2 {
			return ErrNotFound
		}
		edge := models.Follow{FollowerID: followerID, FollowedID: followedID, CreatedAt: now()}
		res := tx.Omit("Follower", "Followed").Clauses(clause.OnConflict{DoNothing: true}).Create(&edge)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		created = true
		return adjustFollowCounters(tx, followerID, followedID, "+ 1")
	})
	if err != nil {
		return false, r.normalize("follow", err)
	}
	return created, nil
}

// Unfollow removes the edge followerID -> followedID and decrements both
// counters, never below zero.
func (r *GORMRepository) Unfollow(ctx context.Context, followerID, followedID string) (bool, error) {
	removed := false
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("follower_id = ? AND followed_id = ?", followerID, followedID).Delete(&models.Follow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		removed = true
		return adjustFollowCounters(tx, followerID, followedID, "- 1")
	})
	if err != nil {
		return false, r.normalize("unfollow", err)
	}
	return removed, nil
}

func adjustFollowCounters(tx *gorm.DB, followerID, followedID, delta string) error {
	if err := tx.Model(&models.User{}).Where("id = ?", followerID).
		UpdateColumn("following_count", gorm.Expr("CASE WHEN following_count "+delta+" < 0 THEN 0 ELSE following_count "+delta+" END")).
		Error; err != nil {
		return err
	}
	return tx.Model(&models.User{}).Where("id = ?", followedID).
		UpdateColumn("followers_count", gorm.Expr("CASE WHEN followers_count "+delta+" < 0 THEN 0 ELSE followers_count "+delta+" END")).
		Error
}

// IsFollowing reports whether the edge followerID -> followedID exists.
func (r *GORMRepository) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	var count int64
	err := r.conn(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Count(&count).Error
	if err != nil {
		return false, r.normalize("is following", err)
	}
	return count > 0, nil
}

// ListFollowers lists the users following userID.
func (r *GORMRepository) ListFollowers(ctx context.Context, userID string) ([]models.User, error) {
	return r.listFollowEdgeUsers(ctx, "list followers", "follows.follower_id = users.id", "follows.followed_id = ?", userID)
}

// ListFollowing lists the users userID follows.
func (r *GORMRepository) ListFollowing(ctx context.Context, userID string) ([]models.User, error) {
	return r.listFollowEdgeUsers(ctx, "list following", "follows.followed_id = users.id", "follows.follower_id = ?", userID)
}

func (r *GORMRepository) listFollowEdgeUsers(ctx context.Context, op, on, cond, userID string) ([]models.User, error) {
	var users []models.User
	err := r.conn(ctx).Model(&models.User{}).
		Select("users.*").
		Joins("JOIN follows ON "+on).
		Where(cond, userID).
		Order("users.username ASC").
		Find(&users).Error
	if err != nil {
		return nil, r.normalize(op, err)
	}
	return users, nil
}

// CreateNotification stores a notification.
func (r *GORMRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now()
	}
	if err := r.conn(ctx).Omit("User").Create(n).Error; err != nil {
		return r.normalize("create notification", err)
	}
	return nil
}

// ListNotifications lists a user's notifications, newest first.
func (r *GORMRepository) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	var ns []models.Notification
	q := r.conn(ctx).Where("user_id = ?", userID).Order("created_at DESC").Order("id DESC")
	if err := withLimit(q, limit).Find(&ns).Error; err != nil {
		return nil, r.normalize("list notifications", err)
	}
	return ns, nil
}

// CountUnreadNotifications counts a user's unread notifications.
func (r *GORMRepository) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var count int64
	err := r.conn(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, r.normalize("count unread notifications", err)
	}
	return int(count), nil
}

// MarkNotificationsRead marks every notification of a user as read.
func (r *GORMRepository) MarkNotificationsRead(ctx context.Context, userID string) error {
	err := r.conn(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		UpdateColumn("read", true).Error
	return r.normalize("mark notifications read", err)
}
