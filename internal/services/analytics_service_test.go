package services_test

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zines/internal/repositories"
	"zines/internal/repositories/repotest"
	"zines/internal/services"
)

func TestAnalyticsService_RecordViewSessions(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		pubs := services.NewPublicationService(repo, nil, nil)
		svc := services.NewAnalyticsService(repo, nil)
		alice := newUser(t, repo, "alice", true)
		pub, err := pubs.CreatePublication(ctx, alice.ID, "Viewed", "")
		require.NoError(t, err)

		first, err := svc.RecordView(ctx, services.ViewInput{PublicationID: pub.ID, Referrer: "https://example.com"})
		require.NoError(t, err)
		assert.True(t, first.First)
		_, err = uuid.Parse(first.SessionID)
		assert.NoError(t, err, "a fresh session id is issued")

		repeat, err := svc.RecordView(ctx, services.ViewInput{PublicationID: pub.ID, SessionID: first.SessionID})
		require.NoError(t, err)
		assert.False(t, repeat.First)
		assert.Equal(t, first.SessionID, repeat.SessionID)

		other, err := svc.RecordView(ctx, services.ViewInput{PublicationID: pub.ID, SessionID: "s2", UserID: alice.ID})
		require.NoError(t, err)
		assert.True(t, other.First)

		stored, err := repo.GetPublicationByID(ctx, pub.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, stored.ViewsCount)
		assert.Equal(t, 2, stored.UniqueReaders)

		_, err = svc.RecordView(ctx, services.ViewInput{PublicationID: "missing", SessionID: "s1"})
		assert.ErrorIs(t, err, repositories.ErrNotFound)
		_, err = svc.RecordView(ctx, services.ViewInput{})
		assert.ErrorIs(t, err, services.ErrValidation)
	})
}

func TestAnalyticsService_ReadTime(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		pubs := services.NewPublicationService(repo, nil, nil)
		svc := services.NewAnalyticsService(repo, nil)
		alice := newUser(t, repo, "alice", true)
		pub, err := pubs.CreatePublication(ctx, alice.ID, "Timed", "")
		require.NoError(t, err)

		for _, s := range []string{"s1", "s2", "s3"} {
			_, err := svc.RecordView(ctx, services.ViewInput{PublicationID: pub.ID, SessionID: s})
			require.NoError(t, err)
		}
		require.NoError(t, svc.UpdateReadTime(ctx, pub.ID, "s1", 30))
		require.NoError(t, svc.UpdateReadTime(ctx, pub.ID, "s2", 45))

		stored, err := repo.GetPublicationByID(ctx, pub.ID)
		require.NoError(t, err)
		assert.InDelta(t, 37.5, stored.AvgReadTime, 1e-9)

		// A later reading replaces the session's earlier one.
		require.NoError(t, svc.UpdateReadTime(ctx, pub.ID, "s1", 60))
		stored, err = repo.GetPublicationByID(ctx, pub.ID)
		require.NoError(t, err)
		assert.InDelta(t, 52.5, stored.AvgReadTime, 1e-9)

		assert.ErrorIs(t, svc.UpdateReadTime(ctx, pub.ID, "unknown", 10), repositories.ErrNotFound)
		for _, bad := range []float64{-1, math.NaN(), math.Inf(1)} {
			assert.ErrorIs(t, svc.UpdateReadTime(ctx, pub.ID, "s3", bad), services.ErrValidation)
		}
		assert.ErrorIs(t, svc.UpdateReadTime(ctx, pub.ID, "", 10), services.ErrValidation)
	})
}

func TestAnalyticsService_Summary(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		pubs := services.NewPublicationService(repo, nil, nil)
		svc := services.NewAnalyticsService(repo, nil)
		alice := newUser(t, repo, "alice", true)
		bob := newUser(t, repo, "bob", true)
		pub, err := pubs.CreatePublication(ctx, alice.ID, "Counted", "")
		require.NoError(t, err)

		referrers := []string{"https://a.example", "https://a.example", "", "https://b.example", ""}
		for i, ref := range referrers {
			_, err := svc.RecordView(ctx, services.ViewInput{PublicationID: pub.ID, SessionID: string(rune('a' + i)), Referrer: ref})
			require.NoError(t, err)
		}
		require.NoError(t, svc.UpdateReadTime(ctx, pub.ID, "a", 10))
		require.NoError(t, svc.UpdateReadTime(ctx, pub.ID, "b", 10.26))

		_, err = svc.Summary(ctx, bob.ID, pub.ID)
		assert.ErrorIs(t, err, services.ErrUnauthorized)

		summary, err := svc.Summary(ctx, alice.ID, pub.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, summary.Views)
		assert.Equal(t, 5, summary.UniqueReaders)
		assert.Equal(t, 10.1, summary.AvgReadTime)

		require.Len(t, summary.DailyViews, 1)
		assert.Equal(t, time.Now().UTC().Format("2006-01-02"), summary.DailyViews[0].Date)
		assert.Equal(t, 5, summary.DailyViews[0].Views)

		require.Len(t, summary.TopReferrers, 3)
		assert.Equal(t, "Direct", summary.TopReferrers[0].Referrer)
		assert.Equal(t, 2, summary.TopReferrers[0].Count)
		assert.Equal(t, "https://a.example", summary.TopReferrers[1].Referrer)
		assert.Equal(t, 2, summary.TopReferrers[1].Count)
		assert.Equal(t, "https://b.example", summary.TopReferrers[2].Referrer)
	})
}
