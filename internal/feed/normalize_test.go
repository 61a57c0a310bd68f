package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renix-codex/feedsync/internal/models"
)

func TestNormalize_SortsByID(t *testing.T) {
	in := []models.Post{
		{UserID: 1, ID: 30, Title: "c"},
		{UserID: 1, ID: 10, Title: "a"},
		{UserID: 2, ID: 20, Title: "b"},
	}

	out := Normalize(in)

	require.Len(t, out, 3)
	assert.Equal(t, []int{10, 20, 30}, ids(out))
	assert.True(t, IsSortedUnique(out))
}

func TestNormalize_LastDuplicateWins(t *testing.T) {
	in := []models.Post{
		{ID: 2, Title: "first"},
		{ID: 1, Title: "one"},
		{ID: 2, Title: "second"},
	}

	out := Normalize(in)

	require.Len(t, out, 2)
	assert.Equal(t, "one", out[0].Title)
	assert.Equal(t, "second", out[1].Title)
}

func TestNormalize_EmptyInput(t *testing.T) {
	assert.Empty(t, Normalize(nil))
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	in := []models.Post{{ID: 2, Title: "T"}, {ID: 1, Title: "U"}}

	out := Normalize(in)
	out[0].Title = "CHANGED"

	assert.Equal(t, 2, in[0].ID)
	assert.Equal(t, "U", in[1].Title)
}

func TestPostsFromRecords_DropsLikedFlag(t *testing.T) {
	recs := []models.PostRecord{
		{Post: models.Post{ID: 1, Title: "a"}, Liked: true},
		{Post: models.Post{ID: 2, Title: "b"}},
	}

	posts := PostsFromRecords(recs)

	assert.Equal(t, []models.Post{{ID: 1, Title: "a"}, {ID: 2, Title: "b"}}, posts)
}

func TestIsSortedUnique(t *testing.T) {
	assert.True(t, IsSortedUnique(nil))
	assert.True(t, IsSortedUnique([]models.Post{{ID: 1}, {ID: 5}}))
	assert.False(t, IsSortedUnique([]models.Post{{ID: 1}, {ID: 1}}))
	assert.False(t, IsSortedUnique([]models.Post{{ID: 3}, {ID: 2}}))
}

func BenchmarkNormalize(b *testing.B) {
	posts := make([]models.Post, 0, 1000)
	for i := 1000; i > 0; i-- {
		posts = append(posts, models.Post{UserID: i % 10, ID: i, Title: "t", Body: "b"})
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Normalize(posts)
	}
}

func ids(posts []models.Post) []int {
	out := make([]int, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}
