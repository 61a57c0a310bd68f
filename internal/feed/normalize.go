package feed

import (
	"cmp"
	"slices"

	"github.com/renix-codex/feedsync/internal/models"
)

// Normalize returns posts sorted by ascending id with duplicate ids removed.
// The last occurrence of an id wins. The input slice is not modified.
func Normalize(posts []models.Post) []models.Post {
	latest := make(map[int]int, len(posts))
	for i, p := range posts {
		latest[p.ID] = i
	}

	out := make([]models.Post, 0, len(latest))
	for i, p := range posts {
		if latest[p.ID] == i {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b models.Post) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// PostsFromRecords strips the local flag from persisted records.
func PostsFromRecords(records []models.PostRecord) []models.Post {
	out := make([]models.Post, 0, len(records))
	for _, r := range records {
		out = append(out, r.Post)
	}
	return out
}

// IsSortedUnique reports whether posts are strictly ascending by id.
func IsSortedUnique(posts []models.Post) bool {
	for i := 1; i < len(posts); i++ {
		if posts[i-1].ID >= posts[i].ID {
			return false
		}
	}
	return true
}
