package repositories

import (
	"context"

	"github.com/google/uuid"

	"zines/internal/models"
)

// CreateUser creates a new user in the database.
func (r *GORMRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	ts := now()
	user.CreatedAt, user.UpdatedAt = ts, ts
	if err := r.conn(ctx).Create(user).Error; err != nil {
		return r.normalize("create user", err)
	}
	return nil
}

// GetUserByID retrieves a user by their ID from the database.
func (r *GORMRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return r.firstUser(ctx, "get user by id", "id = ?", id)
}

// GetUserByUsername retrieves a user by their username from the database.
func (r *GORMRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.firstUser(ctx, "get user by username", "username = ?", username)
}

// GetUserByEmail retrieves a user by their email from the database.
func (r *GORMRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.firstUser(ctx, "get user by email", "email = ?", email)
}

// GetUserByExternalID retrieves a user by the identity provider's id.
func (r *GORMRepository) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return r.firstUser(ctx, "get user by external id", "external_id = ?", externalID)
}

func (r *GORMRepository) firstUser(ctx context.Context, op, cond string, arg string) (*models.User, error) {
	var user models.User
	if err := r.conn(ctx).First(&user, cond, arg).Error; err != nil {
		return nil, r.normalize(op, err)
	}
	return &user, nil
}

// UpdateUser saves every profile field. Follow counters are owned by Follow and
// Unfollow and are not written here.
func (r *GORMRepository) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = now()
	res := r.conn(ctx).Model(&models.User{}).Where("id = ?", user.ID).
		Select("username", "email", "display_name", "avatar_url", "bio", "website", "email_notifications", "updated_at").
		Updates(user)
	if res.Error != nil {
		return r.normalize("update user", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SearchUsers matches username or bio.
func (r *GORMRepository) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	var users []models.User
	like := "%" + query + "%"
	q := r.conn(ctx).Where("LOWER(username) LIKE LOWER(?) OR LOWER(bio) LIKE LOWER(?)", like, like).Order("username ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&users).Error; err != nil {
		return nil, r.normalize("search users", err)
	}
	return users, nil
}
