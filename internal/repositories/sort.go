package repositories

import (
	"sort"
	"strings"
	"time"

	"zines/internal/models"
)

// The sorters below define the caller-visible orderings. The document store
// applies them client-side; the relational store expresses the same keys in SQL.

func sortPagesByOrder(pages []models.Page) {
	sort.SliceStable(pages, func(i, j int) bool {
		if pages[i].Order != pages[j].Order {
			return pages[i].Order < pages[j].Order
		}
		return pages[i].ID < pages[j].ID
	})
}

func sortVersionsOldestFirst(versions []models.Version) {
	sort.SliceStable(versions, func(i, j int) bool {
		if !versions[i].CreatedAt.Equal(versions[j].CreatedAt) {
			return versions[i].CreatedAt.Before(versions[j].CreatedAt)
		}
		return versions[i].VersionNumber < versions[j].VersionNumber
	})
}

func publishedAt(p *models.Publication) time.Time {
	if p.PublishedAt == nil {
		return time.Time{}
	}
	return *p.PublishedAt
}

// SortByPublishedDesc orders publications most recently published first, ties
// broken by id so merged feeds are deterministic.
func SortByPublishedDesc(pubs []models.Publication) {
	sort.SliceStable(pubs, func(i, j int) bool {
		a, b := publishedAt(&pubs[i]), publishedAt(&pubs[j])
		if !a.Equal(b) {
			return a.After(b)
		}
		return pubs[i].ID < pubs[j].ID
	})
}

func sortByUpdatedDesc(pubs []models.Publication) {
	sort.SliceStable(pubs, func(i, j int) bool {
		if !pubs[i].UpdatedAt.Equal(pubs[j].UpdatedAt) {
			return pubs[i].UpdatedAt.After(pubs[j].UpdatedAt)
		}
		return pubs[i].ID < pubs[j].ID
	})
}

func sortByViewsDesc(pubs []models.Publication) {
	sort.SliceStable(pubs, func(i, j int) bool {
		if pubs[i].ViewsCount != pubs[j].ViewsCount {
			return pubs[i].ViewsCount > pubs[j].ViewsCount
		}
		return pubs[i].ID < pubs[j].ID
	})
}

func sortUsersByUsername(users []models.User) {
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
}

func sortNotificationsNewestFirst(ns []models.Notification) {
	sort.SliceStable(ns, func(i, j int) bool {
		if !ns[i].CreatedAt.Equal(ns[j].CreatedAt) {
			return ns[i].CreatedAt.After(ns[j].CreatedAt)
		}
		return ns[i].ID > ns[j].ID
	})
}

func sortEventsOldestFirst(events []models.ViewEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return events[i].ID < events[j].ID
	})
}

func limitPublications(pubs []models.Publication, limit int) []models.Publication {
	if limit > 0 && len(pubs) > limit {
		return pubs[:limit]
	}
	return pubs
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
