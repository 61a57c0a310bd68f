package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvatarURL(t *testing.T) {
	tests := []struct {
		userID int
		want   string
	}{
		{0, "https://i.pravatar.cc/150?img=1"},
		{1, "https://i.pravatar.cc/150?img=2"},
		{69, "https://i.pravatar.cc/150?img=70"},
		{70, "https://i.pravatar.cc/150?img=1"},
		{-1, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Post{UserID: tt.userID}.AvatarURL(), "userId %d", tt.userID)
	}
}

func TestPostJSON(t *testing.T) {
	var p Post
	require.NoError(t, json.Unmarshal([]byte(`{"userId":4,"id":9,"title":"t","body":"b"}`), &p))
	assert.Equal(t, Post{UserID: 4, ID: 9, Title: "t", Body: "b"}, p)

	out, err := json.Marshal(FeedItem{Post: p, Liked: true, AvatarURL: p.AvatarURL()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"userId":4,"id":9,"title":"t","body":"b","liked":true,"avatarUrl":"https://i.pravatar.cc/150?img=5"}`, string(out))
}
