package models

import "fmt"

// avatarCount is the number of distinct avatars served by the avatar host.
const avatarCount = 70

const avatarURLFormat = "https://i.pravatar.cc/150?img=%d"

type Post struct {
	UserID int    `json:"userId"`
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// AvatarURL derives the author's avatar location from UserID.
// Returns "" for posts without a usable author.
func (p Post) AvatarURL() string {
	if p.UserID < 0 {
		return ""
	}
	return fmt.Sprintf(avatarURLFormat, p.UserID%avatarCount+1)
}

// PostRecord is a post as persisted locally. Liked is owned by the local
// store and never supplied by the remote source.
type PostRecord struct {
	Post
	Liked bool `json:"liked"`
}

// FeedItem is a visible post decorated for consumers.
type FeedItem struct {
	Post
	Liked     bool   `json:"liked"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}
