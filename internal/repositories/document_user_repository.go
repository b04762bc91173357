package repositories

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"zines/internal/models"
)

const (
	colUsers        = "users"
	idxUserUsername = "users.username"
	idxUserEmail    = "users.email"
	idxUserExternal = "users.external_id"
)

// userDocument carries the fields models.User keeps out of its JSON form.
type userDocument struct {
	models.User
	ExternalID string `json:"external_id"`
}

func loadUser(txn *badger.Txn, id string) (*models.User, error) {
	var doc userDocument
	if err := getJSON(txn, key(colUsers, id), &doc); err != nil {
		return nil, err
	}
	doc.User.ExternalID = doc.ExternalID
	return &doc.User, nil
}

func storeUser(txn *badger.Txn, user *models.User) error {
	return setJSON(txn, key(colUsers, user.ID), userDocument{User: *user, ExternalID: user.ExternalID})
}

func loadUserByIndex(txn *badger.Txn, index, value string) (*models.User, error) {
	id, err := getString(txn, key(index, value))
	if err != nil {
		return nil, err
	}
	return loadUser(txn, id)
}

// CreateUser creates a new user document and claims its unique keys.
func (r *DocumentRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	ts := now()
	user.CreatedAt, user.UpdatedAt = ts, ts
	return r.update(ctx, "create user", func(txn *badger.Txn) error {
		if ok, err := exists(txn, key(colUsers, user.ID)); err != nil {
			return err
		} else if ok {
			return ErrConflict
		}
		for _, idx := range [][2]string{
			{idxUserUsername, user.Username},
			{idxUserEmail, user.Email},
			{idxUserExternal, user.ExternalID},
		} {
			if err := claim(txn, key(idx[0], idx[1]), user.ID); err != nil {
				return err
			}
		}
		return storeUser(txn, user)
	})
}

// GetUserByID retrieves a user by their ID.
func (r *DocumentRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user *models.User
	err := r.view(ctx, "get user by id", func(txn *badger.Txn) (err error) {
		user, err = loadUser(txn, id)
		return err
	})
	return user, err
}

// GetUserByUsername retrieves a user by their username.
func (r *DocumentRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.userByIndex(ctx, "get user by username", idxUserUsername, username)
}

// GetUserByEmail retrieves a user by their email.
func (r *DocumentRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.userByIndex(ctx, "get user by email", idxUserEmail, email)
}

// GetUserByExternalID retrieves a user by the identity provider's id.
func (r *DocumentRepository) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return r.userByIndex(ctx, "get user by external id", idxUserExternal, externalID)
}

func (r *DocumentRepository) userByIndex(ctx context.Context, op, index, value string) (*models.User, error) {
	var user *models.User
	err := r.view(ctx, op, func(txn *badger.Txn) (err error) {
		user, err = loadUserByIndex(txn, index, value)
		return err
	})
	return user, err
}

// UpdateUser saves the profile fields, moving the username and email index
// entries when they change. Follow counters are left as stored.
func (r *DocumentRepository) UpdateUser(ctx context.Context, user *models.User) error {
	return r.update(ctx, "update user", func(txn *badger.Txn) error {
		stored, err := loadUser(txn, user.ID)
		if err != nil {
			return err
		}
		for _, idx := range [][3]string{
			{idxUserUsername, stored.Username, user.Username},
			{idxUserEmail, stored.Email, user.Email},
		} {
			if idx[1] == idx[2] {
				continue
			}
			if err := claim(txn, key(idx[0], idx[2]), user.ID); err != nil {
				return err
			}
			if err := txn.Delete(key(idx[0], idx[1])); err != nil {
				return err
			}
		}
		user.ExternalID = stored.ExternalID
		user.FollowersCount = stored.FollowersCount
		user.FollowingCount = stored.FollowingCount
		user.CreatedAt = stored.CreatedAt
		user.UpdatedAt = now()
		return storeUser(txn, user)
	})
}

// SearchUsers matches username or bio over at most scanLimit users.
func (r *DocumentRepository) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	var users []models.User
	err := r.view(ctx, "search users", func(txn *badger.Txn) error {
		docs, err := scanJSON[userDocument](txn, key(colUsers, ""), r.scanLimit)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if containsFold(doc.Username, query) || containsFold(doc.Bio, query) {
				doc.User.ExternalID = doc.ExternalID
				users = append(users, doc.User)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortUsersByUsername(users)
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// usersByID loads each id, skipping ids whose user no longer exists.
func usersByID(txn *badger.Txn, ids []string) ([]models.User, error) {
	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		user, err := loadUser(txn, id)
		if errors.Is(err, badger.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, nil
}
