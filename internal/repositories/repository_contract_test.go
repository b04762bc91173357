package repositories_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zines/internal/models"
	"zines/internal/repositories"
	"zines/internal/repositories/repotest"
)

var ctx = context.Background()

func newUser(t *testing.T, repo repositories.Repository, name string) *models.User {
	t.Helper()
	user := &models.User{
		ExternalID:         "ext-" + name,
		Username:           name,
		Email:              name + "@example.com",
		EmailNotifications: true,
	}
	require.NoError(t, repo.CreateUser(ctx, user))
	return user
}

func newPublication(t *testing.T, repo repositories.Repository, creator *models.User, slug string) *models.Publication {
	t.Helper()
	pub := &models.Publication{
		CreatorID:  creator.ID,
		Title:      "Title " + slug,
		Slug:       slug,
		Status:     models.StatusDraft,
		LayoutType: models.LayoutA5,
		EnablePDF:  true,
	}
	require.NoError(t, repo.CreatePublication(ctx, pub))
	return pub
}

func publish(t *testing.T, repo repositories.Repository, pub *models.Publication, at time.Time) {
	t.Helper()
	pub.Status = models.StatusPublished
	pub.PublishedAt = &at
	require.NoError(t, repo.UpdatePublication(ctx, pub))
}

func ids(pubs []models.Publication) []string {
	out := make([]string, len(pubs))
	for i, p := range pubs {
		out[i] = p.ID
	}
	return out
}

func TestRepository_Users(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		alice := newUser(t, repo, "alice")
		assert.NotEmpty(t, alice.ID)

		byID, err := repo.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", byID.Username)
		assert.Equal(t, "ext-alice", byID.ExternalID)
		assert.True(t, byID.EmailNotifications)

		byName, err := repo.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, byName.ID)

		byEmail, err := repo.GetUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, byEmail.ID)

		byExt, err := repo.GetUserByExternalID(ctx, "ext-alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, byExt.ID)

		_, err = repo.GetUserByUsername(ctx, "nobody")
		assert.ErrorIs(t, err, repositories.ErrNotFound)

		dup := &models.User{ExternalID: "ext-other", Username: "alice", Email: "other@example.com"}
		assert.ErrorIs(t, repo.CreateUser(ctx, dup), repositories.ErrConflict)
	})
}

func TestRepository_UpdateUserKeepsCountersAndMovesUsername(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		alice := newUser(t, repo, "alice")
		bob := newUser(t, repo, "bob")
		_, err := repo.Follow(ctx, bob.ID, alice.ID)
		require.NoError(t, err)

		alice.Username = "alice_zines"
		alice.Bio = "cut and paste"
		alice.FollowersCount = 99
		require.NoError(t, repo.UpdateUser(ctx, alice))

		got, err := repo.GetUserByUsername(ctx, "alice_zines")
		require.NoError(t, err)
		assert.Equal(t, "cut and paste", got.Bio)
		assert.Equal(t, 1, got.FollowersCount)

		_, err = repo.GetUserByUsername(ctx, "alice")
		assert.ErrorIs(t, err, repositories.ErrNotFound)

		bob.Username = "alice_zines"
		assert.ErrorIs(t, repo.UpdateUser(ctx, bob), repositories.ErrConflict)
	})
}

func TestRepository_SearchUsers(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		newUser(t, repo, "zed")
		newUser(t, repo, "amy_zine")
		carl := newUser(t, repo, "carl")
		carl.Bio = "makes ZINES about trains"
		require.NoError(t, repo.UpdateUser(ctx, carl))

		users, err := repo.SearchUsers(ctx, "zine", 10)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "amy_zine", users[0].Username)
		assert.Equal(t, "carl", users[1].Username)
	})
}

func TestRepository_PublicationSlugAndTags(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		alice := newUser(t, repo, "alice")
		bob := newUser(t, repo, "bob")
		pub := newPublication(t, repo, alice, "my-zine")

		got, err := repo.GetPublicationBySlug(ctx, alice.ID, "my-zine")
		require.NoError(t, err)
		assert.Equal(t, pub.ID, got.ID)
		assert.Equal(t, []string{}, got.Tags)

		dup := &models.Publication{CreatorID: alice.ID, Title: "again", Slug: "my-zine", Status: models.StatusDraft}
		assert.ErrorIs(t, repo.CreatePublication(ctx, dup), repositories.ErrConflict)

		// Slugs are scoped per creator.
		newPublication(t, repo, bob, "my-zine")

		pub.Tags = []string{"punk", "art"}
		require.NoError(t, repo.UpdatePublication(ctx, pub))
		got, err = repo.GetPublicationByID(ctx, pub.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"art", "punk"}, got.Tags)

		_, err = repo.GetPublicationBySlug(ctx, alice.ID, "missing")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestRepository_PublicationListings(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		alice := newUser(t, repo, "alice")
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

		older := newPublication(t, repo, alice, "older")
		newer := newPublication(t, repo, alice, "newer")
		draft := newPublication(t, repo, alice, "draft")
		publish(t, repo, older, base)
		publish(t, repo, newer, base.Add(time.Hour))
		newer.Description = "a zine about gardens"
		newer.Tags = []string{"garden"}
		require.NoError(t, repo.UpdatePublication(ctx, newer))

		published, err := repo.ListPublished(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{newer.ID, older.ID}, ids(published))

		limited, err := repo.ListPublicationsByStatus(ctx, models.StatusPublished, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{newer.ID}, ids(limited))

		all, err := repo.ListPublicationsByCreator(ctx, alice.ID, "")
		require.NoError(t, err)
		assert.Equal(t, []string{newer.ID, older.ID, draft.ID}, ids(all))

		drafts, err := repo.ListPublicationsByCreator(ctx, alice.ID, models.StatusDraft)
		require.NoError(t, err)
		assert.Equal(t, []string{draft.ID}, ids(drafts))

		found, err := repo.SearchPublished(ctx, "GARDEN", "", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{newer.ID}, ids(found))

		tagged, err := repo.SearchPublished(ctx, "", "garden", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{newer.ID}, ids(tagged))

		none, err := repo.SearchPublished(ctx, "draft", "", 10)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestRepository_UpdatePublicationKeepsCounters(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		alice := newUser(t, repo, "alice")
		pub := newPublication(t, repo, alice, "counted")
		_, err := repo.RecordView(ctx, &models.ViewEvent{PublicationID: pub.ID, SessionID: "s1"})
		require.NoError(t, err)

		pub.Title = "Renamed"
		pub.ViewsCount = 0
		require.NoError(t, repo.UpdatePublication(ctx, pub))

		got, err := repo.GetPublicationByID(ctx, pub.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Title)
		assert.Equal(t, 1, got.ViewsCount)
	})
}

func TestRepository_MostViewed(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		alice := newUser(t, repo, "alice")
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		quiet := newPublication(t, repo, alice, "quiet")
		popular := newPublication(t, repo, alice, "popular")
		publish(t, repo, quiet, base)
		publish(t, repo, popular, base)
		for i := 0; i < 3; i++ {
			_, err := repo.RecordView(ctx, &models.ViewEvent{PublicationID: popular.ID, SessionID: fmt.Sprintf("s%d", i)})
			require.NoError(t, err)
		}

		pubs, err := repo.ListMostViewed(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{popular.ID}, ids(pubs))
	})
}

func TestRepository_PagesRoundTripAndResequence(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		alice := newUser(t, repo, "alice")
		pub := newPublication(t, repo, alice, "pages")

		content := models.MustDocument(`{"blocks":[{"type":"text","x":10,"y":20,"text":"<b>hi</b> & bye"}]}`)
		var pages []*models.Page
		for i := 0; i < 4; i++ {
			page := &models.Page{PublicationID: pub.ID, Order: i, Content: content, Template: models.TemplateBlank}
			require.NoError(t, repo.CreatePage(ctx, page))
			pages = append(pages, page)
		}

		got, err := repo.GetPage(ctx, pages[0].ID)
		require.NoError(t, err)
		assert.Equal(t, string(content), string(got.Content))

		require.NoError(t, repo.DeletePage(ctx, pub.ID, pages[1].ID))
		list, err := repo.ListPagesForPublication(ctx, pub.ID)
		require.NoError(t, err)
		require.Len(t, list, 3)
		for i, p := range list {
			assert.Equal(t, i, p.Order)
		}
		assert.Equal(t, pages[0].ID, list[0].ID)
		assert.Equal(t, pages[2].ID, list[1].ID)
		assert.Equal(t, pages[3].ID, list[2].ID)

		assert.ErrorIs(t, repo.DeletePage(ctx, pub.ID, pages[1].ID), repositories.ErrNotFound)

		other := newPublication(t, repo, alice, "other")
		stray := list[0]
		stray.PublicationID = other.ID
		assert.ErrorIs(t, repo.UpdatePage(ctx, &stray), repositories.ErrNotFound)
		assert.ErrorIs(t, repo.DeletePage(ctx, other.ID, list[0].ID), repositories.ErrNotFound)

		updated := list[0]
		updated.Content = models.MustDocument(`{"blocks":[]}`)
		require.NoError(t, repo.UpdatePage(ctx, &updated))
		got, err = repo.GetPage(ctx, updated.ID)
		require.NoError(t, err)
		assert.Equal(t, `{"blocks":[]}`, string(got.Content))
	})
}

func TestRepository_Versions(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		alice := newUser(t, repo, "alice")
		pub := newPublication(t, repo, alice, "versions")
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

		for i := 3; i >= 1; i-- {
			v := &models.Version{
				PublicationID: pub.ID,
				VersionNumber: i,
				Snapshot:      models.MustDocument(`{"pages":[]}`),
				CreatedBy:     alice.ID,
				CreatedAt:     base.Add(time.Duration(i) * time.Minute),
			}
			require.NoError(t, repo.CreateVersion(ctx, v))
		}

		versions, err := repo.ListVersions(ctx, pub.ID)
		require.NoError(t, err)
		require.Len(t, versions, 3)
		assert.Equal(t, 1, versions[0].VersionNumber)
		assert.Equal(t, 3, versions[2].VersionNumber)

		require.NoError(t, repo.DeleteVersion(ctx, versions[0].ID))
		versions, err = repo.ListVersions(ctx, pub.ID)
		require.NoError(t, err)
		assert.Len(t, versions, 2)
		assert.ErrorIs(t, repo.DeleteVersion(ctx, "missing"), repositories.ErrNotFound)
	})
}

func TestRepository_DeletePublicationCascades(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		alice := newUser(t, repo, "alice")
		pub := newPublication(t, repo, alice, "doomed")
		page := &models.Page{PublicationID: pub.ID, Content: models.EmptyPageContent(), Template: models.TemplateBlank}
		require.NoError(t, repo.CreatePage(ctx, page))
		require.NoError(t, repo.CreateVersion(ctx, &models.Version{PublicationID: pub.ID, VersionNumber: 1, Snapshot: models.MustDocument(`{"pages":[]}`)}))
		_, err := repo.RecordView(ctx, &models.ViewEvent{PublicationID: pub.ID, SessionID: "s"})
		require.NoError(t, err)

		require.NoError(t, repo.DeletePublication(ctx, pub.ID))

		_, err = repo.GetPublicationByID(ctx, pub.ID)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
		_, err = repo.GetPage(ctx, page.ID)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
		versions, err := repo.ListVersions(ctx, pub.ID)
		require.NoError(t, err)
		assert.Empty(t, versions)
		events, err := repo.ListViewEvents(ctx, pub.ID, time.Time{})
		require.NoError(t, err)
		assert.Empty(t, events)

		// The slug is free again.
		newPublication(t, repo, alice, "doomed")
		assert.ErrorIs(t, repo.DeletePublication(ctx, pub.ID), repositories.ErrNotFound)
	})
}

func TestRepository_FollowCounters(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		alice := newUser(t, repo, "alice")
		bob := newUser(t, repo, "bob")
		carol := newUser(t, repo, "carol")

		created, err := repo.Follow(ctx, bob.ID, alice.ID)
		require.NoError(t, err)
		assert.True(t, created)
		created, err = repo.Follow(ctx, bob.ID, alice.ID)
		require.NoError(t, err)
		assert.False(t, created)
		_, err = repo.Follow(ctx, carol.ID, alice.ID)
		require.NoError(t, err)

		a, err := repo.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, a.FollowersCount)
		b, err := repo.GetUserByID(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, b.FollowingCount)

		following, err := repo.IsFollowing(ctx, bob.ID, alice.ID)
		require.NoError(t, err)
		assert.True(t, following)

		_, err = repo.Follow(ctx, alice.ID, alice.ID)
		assert.ErrorIs(t, err, repositories.ErrInvalidInput)
		_, err = repo.Follow(ctx, alice.ID, "missing")
		assert.ErrorIs(t, err, repositories.ErrNotFound)

		followers, err := repo.ListFollowers(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, followers, 2)
		assert.Equal(t, "bob", followers[0].Username)
		assert.Equal(t, "carol", followers[1].Username)

		followed, err := repo.ListFollowing(ctx, bob.ID)
		require.NoError(t, err)
		require.Len(t, followed, 1)
		assert.Equal(t, alice.ID, followed[0].ID)

		removed, err := repo.Unfollow(ctx, bob.ID, alice.ID)
		require.NoError(t, err)
		assert.True(t, removed)
		removed, err = repo.Unfollow(ctx, bob.ID, alice.ID)
		require.NoError(t, err)
		assert.False(t, removed)

		a, err = repo.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, a.FollowersCount)
		b, err = repo.GetUserByID(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, b.FollowingCount)
	})
}

func TestRepository_RecordViewAndReadTime(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		alice := newUser(t, repo, "alice")
		pub := newPublication(t, repo, alice, "read-me")

		first, err := repo.RecordView(ctx, &models.ViewEvent{PublicationID: pub.ID, SessionID: "s1", Referrer: "https://example.org"})
		require.NoError(t, err)
		assert.True(t, first)
		first, err = repo.RecordView(ctx, &models.ViewEvent{PublicationID: pub.ID, SessionID: "s1"})
		require.NoError(t, err)
		assert.False(t, first)
		first, err = repo.RecordView(ctx, &models.ViewEvent{PublicationID: pub.ID, SessionID: "s2"})
		require.NoError(t, err)
		assert.True(t, first)

		got, err := repo.GetPublicationByID(ctx, pub.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.ViewsCount)
		assert.Equal(t, 2, got.UniqueReaders)

		require.NoError(t, repo.UpdateReadTime(ctx, pub.ID, "s1", 30))
		require.NoError(t, repo.UpdateReadTime(ctx, pub.ID, "s2", 60))
		got, err = repo.GetPublicationByID(ctx, pub.ID)
		require.NoError(t, err)
		assert.InDelta(t, 45.0, got.AvgReadTime, 0.0001)

		assert.ErrorIs(t, repo.UpdateReadTime(ctx, pub.ID, "unknown", 10), repositories.ErrNotFound)

		events, err := repo.ListViewEvents(ctx, pub.ID, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "https://example.org", events[0].Referrer)

		later, err := repo.ListViewEvents(ctx, pub.ID, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, later)

		_, err = repo.RecordView(ctx, &models.ViewEvent{PublicationID: "missing", SessionID: "s1"})
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestRepository_AverageReadTimeCoversEveryEvent(t *testing.T) {
	backends := map[string]repositories.Repository{
		"relational": repotest.NewRelational(t),
		// The average is not subject to the scan limit.
		"document": repotest.NewDocument(t, repositories.WithScanLimit(3)),
	}
	for name, repo := range backends {
		alice := newUser(t, repo, "alice")
		pub := newPublication(t, repo, alice, "long-read")

		const sessions = 12
		for i := 0; i < sessions; i++ {
			session := fmt.Sprintf("s%02d", i)
			_, err := repo.RecordView(ctx, &models.ViewEvent{PublicationID: pub.ID, SessionID: session})
			require.NoError(t, err, name)
			require.NoError(t, repo.UpdateReadTime(ctx, pub.ID, session, float64(i)), name)
		}
		// A second report for a session replaces its read time.
		require.NoError(t, repo.UpdateReadTime(ctx, pub.ID, "s00", 12), name)

		got, err := repo.GetPublicationByID(ctx, pub.ID)
		require.NoError(t, err, name)
		// (1 + 2 + ... + 11 + 12) / 12
		assert.InDelta(t, 78.0/12, got.AvgReadTime, 0.0001, name)
	}
}

func TestRepository_Notifications(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		alice := newUser(t, repo, "alice")
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		for i := 0; i < 3; i++ {
			require.NoError(t, repo.CreateNotification(ctx, &models.Notification{
				UserID:    alice.ID,
				Type:      models.NotificationNewFollower,
				Title:     fmt.Sprintf("n%d", i),
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}))
		}

		ns, err := repo.ListNotifications(ctx, alice.ID, 2)
		require.NoError(t, err)
		require.Len(t, ns, 2)
		assert.Equal(t, "n2", ns[0].Title)
		assert.Equal(t, "n1", ns[1].Title)

		unread, err := repo.CountUnreadNotifications(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, unread)

		require.NoError(t, repo.MarkNotificationsRead(ctx, alice.ID))
		unread, err = repo.CountUnreadNotifications(ctx, alice.ID)
		require.NoError(t, err)
		assert.Zero(t, unread)
	})
}

func TestRepository_TransactionRollsBack(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		alice := newUser(t, repo, "alice")
		boom := errors.New("boom")

		err := repo.Transaction(ctx, func(tx repositories.Repository) error {
			pub := &models.Publication{CreatorID: alice.ID, Title: "t", Slug: "rolled-back", Status: models.StatusDraft}
			if err := tx.CreatePublication(ctx, pub); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = repo.GetPublicationBySlug(ctx, alice.ID, "rolled-back")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}

// captureLog sends the global logger to a buffer for the rest of the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestRepository_TransactionReturnsCallbackErrorUnchanged(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		alice := newUser(t, repo, "alice")
		pub := newPublication(t, repo, alice, "rules")
		logs := captureLog(t)
		denied := errors.New("caller may not edit")

		err := repo.Transaction(ctx, func(tx repositories.Repository) error {
			if _, err := tx.GetPublicationForUpdate(ctx, pub.ID); err != nil {
				return err
			}
			return denied
		})
		assert.Equal(t, denied, err)
		assert.NotErrorIs(t, err, repositories.ErrUnavailable)

		err = repo.Transaction(ctx, func(tx repositories.Repository) error {
			_, err := tx.GetPublicationForUpdate(ctx, "missing")
			return err
		})
		assert.Equal(t, repositories.ErrNotFound, err)
		assert.Empty(t, logs.String())
	})
}

func TestRepository_GetPublicationForUpdate(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		alice := newUser(t, repo, "alice")
		pub := newPublication(t, repo, alice, "locked")
		pub.Tags = []string{"risograph"}
		require.NoError(t, repo.UpdatePublication(ctx, pub))

		err := repo.Transaction(ctx, func(tx repositories.Repository) error {
			got, err := tx.GetPublicationForUpdate(ctx, pub.ID)
			if err != nil {
				return err
			}
			assert.Equal(t, pub.ID, got.ID)
			assert.Equal(t, []string{"risograph"}, got.Tags)
			got.Title = "Locked and edited"
			return tx.UpdatePublication(ctx, got)
		})
		require.NoError(t, err)

		got, err := repo.GetPublicationByID(ctx, pub.ID)
		require.NoError(t, err)
		assert.Equal(t, "Locked and edited", got.Title)

		_, err = repo.GetPublicationForUpdate(ctx, "missing")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestRepository_ConcurrentCountersMatchCommittedEffects(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		alice := newUser(t, repo, "alice")
		pub := newPublication(t, repo, alice, "busy")

		const workers = 16
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			committed int
			uniques   int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				first, err := repo.RecordView(ctx, &models.ViewEvent{PublicationID: pub.ID, SessionID: fmt.Sprintf("s%d", i%4)})
				if err != nil {
					assert.ErrorIs(t, err, repositories.ErrUnavailable)
					return
				}
				mu.Lock()
				committed++
				if first {
					uniques++
				}
				mu.Unlock()
			}(i)
		}
		wg.Wait()

		got, err := repo.GetPublicationByID(ctx, pub.ID)
		require.NoError(t, err)
		assert.Equal(t, committed, got.ViewsCount)
		assert.Equal(t, uniques, got.UniqueReaders)
		assert.LessOrEqual(t, got.UniqueReaders, 4)
	})
}

func TestRepository_ConcurrentFollowUnfollowNeverNegative(t *testing.T) {
	repotest.ForEachBackend(t, func(t *testing.T, repo repositories.Repository) {
		alice := newUser(t, repo, "alice")
		bob := newUser(t, repo, "bob")

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, _ = repo.Follow(ctx, bob.ID, alice.ID)
			}()
			go func() {
				defer wg.Done()
				_, _ = repo.Unfollow(ctx, bob.ID, alice.ID)
			}()
		}
		wg.Wait()

		following, err := repo.IsFollowing(ctx, bob.ID, alice.ID)
		require.NoError(t, err)
		want := 0
		if following {
			want = 1
		}
		a, err := repo.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		b, err := repo.GetUserByID(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, want, a.FollowersCount)
		assert.Equal(t, want, b.FollowingCount)
	})
}
