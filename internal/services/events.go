package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"zines/internal/models"
)

// Event types published after a unit of work commits.
const (
	EventNotificationCreated  = "notification.created"
	EventPublicationPublished = "publication.published"
	EventUserFollowed         = "user.followed"
)

// EventPublisher delivers domain events to an external broker. The
// rabbitmq.Client satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
}

// PublishedEvent is the payload of EventPublicationPublished.
type PublishedEvent struct {
	PublicationID string `json:"publication_id"`
	CreatorID     string `json:"creator_id"`
	Status        string `json:"status"`
	Link          string `json:"link"`
}

// FollowEvent is the payload of EventUserFollowed.
type FollowEvent struct {
	FollowerID string `json:"follower_id"`
	FollowedID string `json:"followed_id"`
}

// emit publishes one event. Delivery is best effort: the data is already
// committed, so a broker failure is logged and swallowed.
func emit(ctx context.Context, events EventPublisher, eventType string, payload interface{}) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, eventType, payload); err != nil {
		log.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

func emitNotifications(ctx context.Context, events EventPublisher, notifications []models.Notification) {
	for i := range notifications {
		emit(ctx, events, EventNotificationCreated, &notifications[i])
	}
}
