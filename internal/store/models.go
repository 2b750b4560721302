package store

import "time"

// ReactionType enumerates the reactions a confession can receive.
type ReactionType string

const (
	ReactionRelatable ReactionType = "relatable"
	ReactionSupport   ReactionType = "support"
)

// Valid reports whether t is one of the known reaction types.
func (t ReactionType) Valid() bool {
	return t == ReactionRelatable || t == ReactionSupport
}

// Confession is an anonymously authored post published to the channel.
// AuthorID is kept for ownership and cooldown checks only and is never
// displayed; AuthorToken is the encrypted, recoverable form.
type Confession struct {
	ID               int64
	AuthorID         int64
	AuthorToken      string
	ChannelChatID    int64
	ChannelMessageID int64
	Category         string
	Text             string
	CreatedAt        time.Time
}

// PostRef locates a confession's public post and its author.
type PostRef struct {
	ChatID    int64
	MessageID int64
	AuthorID  int64
}

// Ranked is a leaderboard row: a confession with its total reaction count.
type Ranked struct {
	ID        int64
	Text      string
	Reactions int
}

// AuthorPost is one of an author's own confessions with its reaction count.
type AuthorPost struct {
	ID        int64
	Text      string
	MessageID int64
	Reactions int
}
