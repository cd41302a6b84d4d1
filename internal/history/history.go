// Package history keeps the append-only edit log of a post.
package history

import (
	"time"

	"github.com/ShahafRSeza/feed-social/internal/store"
)

// Edit is the outcome of recording an edit: the values to persist.
type Edit struct {
	Content  string
	EditedAt time.Time
	History  []store.EditHistoryEntry
	Changed  bool
}

// RecordEdit snapshots the post's current content into its history and
// returns the state to persist for newContent. The previous entries are
// copied, never modified. The snapshot is stamped with the previous edit
// time, or the creation time for a post never edited before.
//
// Saving content identical to the current content records nothing.
func RecordEdit(post store.Post, newContent string, now time.Time) Edit {
	if newContent == post.Content {
		edit := Edit{Content: post.Content, History: clone(post.EditHistory)}
		if post.EditedAt != nil {
			edit.EditedAt = *post.EditedAt
		}
		return edit
	}
	stamp := post.CreatedAt
	if post.EditedAt != nil {
		stamp = *post.EditedAt
	}
	next := make([]store.EditHistoryEntry, len(post.EditHistory), len(post.EditHistory)+1)
	copy(next, post.EditHistory)
	next = append(next, store.EditHistoryEntry{Content: post.Content, EditedAt: stamp})
	return Edit{Content: newContent, EditedAt: now, History: next, Changed: true}
}

// Apply returns post with edit applied.
func (e Edit) Apply(post store.Post) store.Post {
	if !e.Changed {
		return post
	}
	at := e.EditedAt
	post.Content = e.Content
	post.EditedAt = &at
	post.EditHistory = e.History
	return post
}

func clone(entries []store.EditHistoryEntry) []store.EditHistoryEntry {
	out := make([]store.EditHistoryEntry, len(entries))
	copy(out, entries)
	return out
}
