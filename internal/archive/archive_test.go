package archive

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndListRevisions(t *testing.T) {
	svc := New(t.TempDir())
	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	first, err := svc.Record("post_1", Content{Kind: "text", Content: "hello"}, "alice", "Create post", t0)
	require.NoError(t, err)
	second, err := svc.Record("post_1", Content{Kind: "text", Content: "<b>hello</b>"}, "alice", "Edit post", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.NotEqual(t, first.Hash, second.Hash)

	revs, err := svc.Revisions("post_1", 0)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, second.Hash, revs[0].Hash)
	assert.Equal(t, "Edit post", revs[0].Message)
	assert.Equal(t, "alice", revs[1].Author)

	old, err := svc.ContentAt("post_1", first.Hash)
	require.NoError(t, err)
	assert.Equal(t, "hello", old.Content)
}

func TestRecordUnchangedContentReturnsHead(t *testing.T) {
	svc := New(t.TempDir())
	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	c := Content{Kind: "text", Content: "same"}

	a, err := svc.Record("p", c, "bob", "Create post", t0)
	require.NoError(t, err)
	b, err := svc.Record("p", c, "bob", "Edit post", t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, a.Hash, b.Hash)

	revs, err := svc.Revisions("p", 10)
	require.NoError(t, err)
	assert.Len(t, revs, 1)
}

func TestRevisionsOfUnknownPost(t *testing.T) {
	svc := New(t.TempDir())
	_, err := svc.Revisions("missing", 0)
	assert.True(t, errors.Is(err, ErrNoArchive))
}
