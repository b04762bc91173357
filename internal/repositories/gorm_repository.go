package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"zines/internal/models"
)

// GORMRepository is the relational implementation of Repository. Inside a
// Transaction, db is the transaction handle.
type GORMRepository struct {
	db *gorm.DB
}

// NewGORMRepository creates a new instance of GORMRepository.
func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{
		db: db,
	}
}

// AutoMigrate creates or updates every table the relational store uses.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Publication{},
		&models.Tag{},
		&models.PublicationTag{},
		&models.Page{},
		&models.Version{},
		&models.Follow{},
		&models.ViewEvent{},
		&models.Notification{},
	); err != nil {
		return fmt.Errorf("failed to migrate relational schema: %w", err)
	}
	return nil
}

// Backend reports KindRelational.
func (r *GORMRepository) Backend() Kind {
	return KindRelational
}

// Ping checks the database connection.
func (r *GORMRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return r.normalize("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return r.normalize("ping", err)
	}
	return nil
}

// Transaction runs fn inside a SQL transaction. An error returned by fn rolls
// back and is returned unchanged.
func (r *GORMRepository) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	var fnErr error
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&GORMRepository{db: tx})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	return r.normalize("transaction", err)
}

// Close closes the underlying connection pool.
func (r *GORMRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *GORMRepository) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// normalize maps a native gorm/driver error into the repository taxonomy and
// logs the original.
func (r *GORMRepository) normalize(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isTaxonomyError(err):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err):
		return fmt.Errorf("%w: %s", ErrConflict, op)
	}
	log.Error().Err(err).Str("backend", string(KindRelational)).Str("op", op).Msg("relational store operation failed")
	return fmt.Errorf("%w: %s", ErrUnavailable, op)
}

func isTaxonomyError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrUnavailable) || errors.Is(err, ErrInvalidInput)
}

// isUniqueViolation covers drivers whose errors gorm does not translate.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

func now() time.Time {
	return time.Now().UTC()
}
