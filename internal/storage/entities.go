package storage

import "time"

type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Chat is a private conversation between exactly two users. Participants are
// stored in ascending id order so at most one row exists per unordered pair.
type Chat struct {
	ID           int64     `json:"id"`
	Participants [2]int64  `json:"participants"`
	LastMessage  string    `json:"last_message"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasParticipant reports whether user belongs to the chat.
func (c Chat) HasParticipant(user int64) bool {
	return user == c.Participants[0] || user == c.Participants[1]
}

// OtherParticipant returns the peer of user in the chat.
// ok is false when user is not a participant.
func (c Chat) OtherParticipant(user int64) (peer int64, ok bool) {
	switch user {
	case c.Participants[0]:
		return c.Participants[1], true
	case c.Participants[1]:
		return c.Participants[0], true
	}
	return 0, false
}

type Message struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chat_id"`
	Sender    int64     `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
