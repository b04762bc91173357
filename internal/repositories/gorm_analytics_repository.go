package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"zines/internal/models"
)

// RecordView stores the session's first view event and bumps the counters.
func (r *GORMRepository) RecordView(ctx context.Context, event *models.ViewEvent) (bool, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.EventType == "" {
		event.EventType = models.EventView
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now()
	}
	first := false
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		upd := tx.Model(&models.Publication{}).Where("id = ?", event.PublicationID).
			UpdateColumn("views_count", gorm.Expr("views_count + 1"))
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return ErrNotFound
		}
		res := tx.Omit("Publication").Clauses(clause.OnConflict{DoNothing: true}).Create(event)
		if res.Error != nil {
			return res.Error
		}
		first = res.RowsAffected > 0
		if !first {
			return nil
		}
		return tx.Model(&models.Publication{}).Where("id = ?", event.PublicationID).
			UpdateColumn("unique_readers", gorm.Expr("unique_readers + 1")).Error
	})
	if err != nil {
		return false, r.normalize("record view", err)
	}
	return first, nil
}

// UpdateReadTime attaches a read time to the session's view event and
// recomputes the publication's average.
func (r *GORMRepository) UpdateReadTime(ctx context.Context, publicationID, sessionID string, seconds float64) error {
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ViewEvent{}).
			Where("publication_id = ? AND session_id = ? AND event_type = ?", publicationID, sessionID, models.EventView).
			UpdateColumn("read_time", seconds)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		var avg float64
		row := tx.Model(&models.ViewEvent{}).
			Select("COALESCE(AVG(read_time), 0)").
			Where("publication_id = ? AND read_time IS NOT NULL", publicationID).
			Row()
		if err := row.Scan(&avg); err != nil {
			return err
		}
		return tx.Model(&models.Publication{}).Where("id = ?", publicationID).
			UpdateColumn("avg_read_time", avg).Error
	})
	return r.normalize("update read time", err)
}

// ListViewEvents lists a publication's view events since a point in time.
func (r *GORMRepository) ListViewEvents(ctx context.Context, publicationID string, since time.Time) ([]models.ViewEvent, error) {
	var events []models.ViewEvent
	err := r.conn(ctx).Where("publication_id = ? AND created_at >= ?", publicationID, since.UTC()).
		Order("created_at ASC").Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, r.normalize("list view events", err)
	}
	return events, nil
}
