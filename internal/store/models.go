package store

import "time"

const (
	PostKindText  = "text"
	PostKindLink  = "link"
	PostKindImage = "image"
)

type Post struct {
	ID          string
	UserID      string
	Kind        string
	Content     string
	LinkURL     string
	ImageURL    string
	CreatedAt   time.Time
	EditedAt    *time.Time
	EditHistory []EditHistoryEntry
}

// EditHistoryEntry is a prior version of a post's content, stamped with the
// time that version was current from.
type EditHistoryEntry struct {
	Content  string    `json:"content"`
	EditedAt time.Time `json:"edited_at"`
}

type Profile struct {
	ID          string
	Username    string
	DisplayName string
	AvatarURL   string
}
