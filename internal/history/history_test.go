package history

import (
	"testing"
	"time"

	"github.com/ShahafRSeza/feed-social/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordEditAppendsPriorContent(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	post := store.Post{ID: "p1", Content: "original", CreatedAt: created}

	first := RecordEdit(post, "second", created.Add(time.Hour))
	require.True(t, first.Changed)
	require.Len(t, first.History, 1)
	assert.Equal(t, store.EditHistoryEntry{Content: "original", EditedAt: created}, first.History[0])
	assert.Equal(t, "second", first.Content)

	post = first.Apply(post)
	require.NotNil(t, post.EditedAt)

	second := RecordEdit(post, "third", created.Add(2*time.Hour))
	require.Len(t, second.History, 2)
	assert.Equal(t, first.History[0], second.History[0])
	assert.Equal(t, "second", second.History[1].Content)
	assert.Equal(t, created.Add(time.Hour), second.History[1].EditedAt)
	assert.NotEqual(t, second.History[0].EditedAt, second.History[1].EditedAt)
	assert.NotEqual(t, second.History[0].Content, second.History[1].Content)
	assert.NotEqual(t, "third", second.History[1].Content)
}

func TestRecordEditDoesNotMutateInput(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	history := make([]store.EditHistoryEntry, 1, 4)
	history[0] = store.EditHistoryEntry{Content: "v0", EditedAt: created}
	edited := created.Add(time.Minute)
	post := store.Post{Content: "v1", CreatedAt: created, EditedAt: &edited, EditHistory: history}

	a := RecordEdit(post, "v2", created.Add(2*time.Minute))
	b := RecordEdit(post, "v3", created.Add(3*time.Minute))

	assert.Equal(t, "v1", a.History[1].Content)
	assert.Equal(t, "v1", b.History[1].Content)
	assert.Len(t, post.EditHistory, 1)
	assert.Equal(t, "v0", post.EditHistory[0].Content)
}

func TestRecordEditIdenticalContentIsNoop(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	post := store.Post{Content: "<b>same</b>", CreatedAt: created}

	edit := RecordEdit(post, "<b>same</b>", created.Add(time.Hour))
	assert.False(t, edit.Changed)
	assert.Empty(t, edit.History)
	assert.Equal(t, post, edit.Apply(post))
}

func TestRecordEditFormattingOnlyChangeCounts(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	post := store.Post{Content: "word", CreatedAt: created}

	edit := RecordEdit(post, "<b>word</b>", created.Add(time.Hour))
	assert.True(t, edit.Changed)
	assert.Len(t, edit.History, 1)
}
