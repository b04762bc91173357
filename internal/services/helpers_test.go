package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"zines/internal/models"
	"zines/internal/repositories"
)

var ctx = context.Background()

func newUser(t *testing.T, repo repositories.Repository, name string, notify bool) *models.User {
	t.Helper()
	user := &models.User{
		ExternalID:         "ext-" + name,
		Username:           name,
		Email:              name + "@example.com",
		EmailNotifications: notify,
	}
	require.NoError(t, repo.CreateUser(ctx, user))
	return user
}

// publishAt publishes a publication with a fixed timestamp so orderings are
// deterministic.
func publishAt(t *testing.T, repo repositories.Repository, pubID string, at time.Time) {
	t.Helper()
	pub, err := repo.GetPublicationByID(ctx, pubID)
	require.NoError(t, err)
	pub.Status = models.StatusPublished
	at = at.UTC()
	pub.PublishedAt = &at
	require.NoError(t, repo.UpdatePublication(ctx, pub))
}

func slugs(pubs []models.Publication) []string {
	out := make([]string, len(pubs))
	for i, p := range pubs {
		out[i] = p.Slug
	}
	return out
}

// recordedEvent is one call to the recording publisher.
type recordedEvent struct {
	Type    string
	Payload interface{}
}

// recordingPublisher keeps every published event in memory.
type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Type: eventType, Payload: payload})
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []recordedEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
