package repositories

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"zines/internal/models"
)

const (
	colFollows           = "follows"
	idxFollowsByFollowed = "follows.followed"
	colNotifications     = "notifications"
	idxNotificationUser  = "notifications.user"
)

// followKey is the deterministic edge key, so an edge exists at most once.
func followKey(followerID, followedID string) []byte {
	return key(colFollows, followerID+"_"+followedID)
}

// Follow adds the edge followerID -> followedID and bumps both counters.
func (r *DocumentRepository) Follow(ctx context.Context, followerID, followedID string) (bool, error) {
	if followerID == followedID {
		return false, ErrInvalidInput
	}
	created := false
	err := r.update(ctx, "follow", func(txn *badger.Txn) error {
		created = false
		ok, err := exists(txn, followKey(followerID, followedID))
		if err != nil || ok {
			return err
		}
		follower, err := loadUser(txn, followerID)
		if err != nil {
			return err
		}
		followed, err := loadUser(txn, followedID)
		if err != nil {
			return err
		}
		edge := models.Follow{FollowerID: followerID, FollowedID: followedID, CreatedAt: now()}
		if err := setJSON(txn, followKey(followerID, followedID), edge); err != nil {
			return err
		}
		if err := txn.Set(key(idxFollowsByFollowed, followedID, followerID), nil); err != nil {
			return err
		}
		follower.FollowingCount++
		followed.FollowersCount++
		if err := storeUser(txn, follower); err != nil {
			return err
		}
		created = true
		return storeUser(txn, followed)
	})
	return created, err
}

// Unfollow removes the edge followerID -> followedID and decrements both
// counters, never below zero.
func (r *DocumentRepository) Unfollow(ctx context.Context, followerID, followedID string) (bool, error) {
	removed := false
	err := r.update(ctx, "unfollow", func(txn *badger.Txn) error {
		removed = false
		ok, err := exists(txn, followKey(followerID, followedID))
		if err != nil || !ok {
			return err
		}
		if err := txn.Delete(followKey(followerID, followedID)); err != nil {
			return err
		}
		if err := txn.Delete(key(idxFollowsByFollowed, followedID, followerID)); err != nil {
			return err
		}
		for _, adjust := range []struct {
			id    string
			apply func(u *models.User)
		}{
			{followerID, func(u *models.User) { u.FollowingCount = floorDecrement(u.FollowingCount) }},
			{followedID, func(u *models.User) { u.FollowersCount = floorDecrement(u.FollowersCount) }},
		} {
			user, err := loadUser(txn, adjust.id)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			adjust.apply(user)
			if err := storeUser(txn, user); err != nil {
				return err
			}
		}
		removed = true
		return nil
	})
	return removed, err
}

func floorDecrement(n int) int {
	if n <= 0 {
		return 0
	}
	return n - 1
}

// IsFollowing reports whether the edge followerID -> followedID exists.
func (r *DocumentRepository) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	var ok bool
	err := r.view(ctx, "is following", func(txn *badger.Txn) (err error) {
		ok, err = exists(txn, followKey(followerID, followedID))
		return err
	})
	return ok, err
}

// ListFollowers lists the users following userID. Edges whose user is gone
// are skipped.
func (r *DocumentRepository) ListFollowers(ctx context.Context, userID string) ([]models.User, error) {
	var users []models.User
	err := r.view(ctx, "list followers", func(txn *badger.Txn) error {
		ids, err := suffixes(txn, key(idxFollowsByFollowed, userID, ""), 0)
		if err != nil {
			return err
		}
		users, err = usersByID(txn, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	sortUsersByUsername(users)
	return users, nil
}

// ListFollowing lists the users userID follows. Edges whose user is gone are
// skipped.
func (r *DocumentRepository) ListFollowing(ctx context.Context, userID string) ([]models.User, error) {
	var users []models.User
	err := r.view(ctx, "list following", func(txn *badger.Txn) error {
		ids, err := suffixes(txn, followKey(userID, ""), 0)
		if err != nil {
			return err
		}
		users, err = usersByID(txn, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	sortUsersByUsername(users)
	return users, nil
}

func loadNotifications(txn *badger.Txn, userID string) ([]models.Notification, error) {
	ids, err := suffixes(txn, key(idxNotificationUser, userID, ""), 0)
	if err != nil {
		return nil, err
	}
	ns := make([]models.Notification, 0, len(ids))
	for _, id := range ids {
		var n models.Notification
		if err := getJSON(txn, key(colNotifications, id), &n); err != nil {
			return nil, err
		}
		ns = append(ns, n)
	}
	sortNotificationsNewestFirst(ns)
	return ns, nil
}

// CreateNotification stores a notification.
func (r *DocumentRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now()
	}
	return r.update(ctx, "create notification", func(txn *badger.Txn) error {
		if err := txn.Set(key(idxNotificationUser, n.UserID, n.ID), nil); err != nil {
			return err
		}
		return setJSON(txn, key(colNotifications, n.ID), n)
	})
}

// ListNotifications lists a user's notifications, newest first.
func (r *DocumentRepository) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	var ns []models.Notification
	err := r.view(ctx, "list notifications", func(txn *badger.Txn) (err error) {
		ns, err = loadNotifications(txn, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ns) > limit {
		ns = ns[:limit]
	}
	return ns, nil
}

// CountUnreadNotifications counts a user's unread notifications.
func (r *DocumentRepository) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	count := 0
	err := r.view(ctx, "count unread notifications", func(txn *badger.Txn) error {
		ns, err := loadNotifications(txn, userID)
		if err != nil {
			return err
		}
		for _, n := range ns {
			if !n.Read {
				count++
			}
		}
		return nil
	})
	return count, err
}

// MarkNotificationsRead marks every notification of a user as read.
func (r *DocumentRepository) MarkNotificationsRead(ctx context.Context, userID string) error {
	return r.update(ctx, "mark notifications read", func(txn *badger.Txn) error {
		ns, err := loadNotifications(txn, userID)
		if err != nil {
			return err
		}
		for i := range ns {
			if ns[i].Read {
				continue
			}
			ns[i].Read = true
			if err := setJSON(txn, key(colNotifications, ns[i].ID), &ns[i]); err != nil {
				return err
			}
		}
		return nil
	})
}
