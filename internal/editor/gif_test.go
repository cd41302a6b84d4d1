package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ShahafRSeza/feed-social/internal/doc"
	"github.com/ShahafRSeza/feed-social/internal/gif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGIFs struct {
	hold map[string]chan struct{}

	mu      sync.Mutex
	queries []string
}

func (f *fakeGIFs) Search(ctx context.Context, query string) ([]gif.GIF, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if gate := f.hold[query]; gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	id := query
	if id == "" {
		id = "trending"
	}
	return []gif.GIF{{
		ID:         id + "-1",
		PreviewURL: "https://media.test/" + id + "-small.gif",
		FullURL:    "https://media.test/" + id + ".gif",
	}}, nil
}

func (f *fakeGIFs) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func waitForGIFs(t *testing.T, g *GIFPicker) GIFPanel {
	t.Helper()
	var panel GIFPanel
	require.Eventually(t, func() bool {
		panel = g.State()
		return !panel.Loading && len(panel.Results) > 0
	}, time.Second, 5*time.Millisecond)
	return panel
}

func TestGIFPickerLoadsTrendingOnOpen(t *testing.T) {
	provider := &fakeGIFs{}
	s := newTestSession(t, Options{GIFs: provider, GIFDelay: 20 * time.Millisecond})

	s.OpenGIFPicker()
	panel := waitForGIFs(t, s.GIFs())
	assert.True(t, panel.Open)
	assert.Equal(t, "trending-1", panel.Results[0].ID)
	assert.Equal(t, []string{""}, provider.Queries())
}

func TestGIFPickerDebouncesQueries(t *testing.T) {
	provider := &fakeGIFs{}
	s := newTestSession(t, Options{GIFs: provider, GIFDelay: 20 * time.Millisecond})
	g := s.GIFs()

	s.OpenGIFPicker()
	waitForGIFs(t, g)

	g.SetQuery("c")
	g.SetQuery("ca")
	g.SetQuery("cat")
	require.Eventually(t, func() bool {
		p := g.State()
		return !p.Loading && len(p.Results) == 1 && p.Results[0].ID == "cat-1"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"", "cat"}, provider.Queries())
}

func TestGIFPickerIgnoresStaleSearch(t *testing.T) {
	provider := &fakeGIFs{hold: map[string]chan struct{}{"": make(chan struct{})}}
	s := newTestSession(t, Options{GIFs: provider, GIFDelay: 10 * time.Millisecond})
	g := s.GIFs()

	s.OpenGIFPicker()
	g.SetQuery("dog")
	panel := waitForGIFs(t, g)
	assert.Equal(t, "dog-1", panel.Results[0].ID)

	close(provider.hold[""])
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "dog-1", g.State().Results[0].ID)
}

func TestInsertGIFAtCapturedCaret(t *testing.T) {
	provider := &fakeGIFs{}
	s := newTestSession(t, Options{GIFs: provider, GIFDelay: 10 * time.Millisecond})
	require.NoError(t, s.InsertText("ab"))
	s.Select(1, 1)

	s.OpenGIFPicker()
	waitForGIFs(t, s.GIFs())
	require.NoError(t, s.InsertGIF("trending-1"))

	assert.Equal(t,
		`a<img src="https://media.test/trending.gif" alt="gif" style="`+doc.EmbedStyle+`"/>b`,
		s.State().Markup)
	assert.False(t, s.GIFs().State().Open)
	assert.Equal(t, 2, s.State().Selection.Focus)
}

func TestInsertUnknownGIF(t *testing.T) {
	s := newTestSession(t, Options{GIFs: &fakeGIFs{}})
	var verr *ValidationError
	require.True(t, errors.As(s.InsertGIF("nope"), &verr))
	assert.Equal(t, "Unknown GIF.", verr.Message)
	assert.True(t, s.State().Empty)
}

func TestGIFPickerCloseClearsResults(t *testing.T) {
	s := newTestSession(t, Options{GIFs: &fakeGIFs{}, GIFDelay: 10 * time.Millisecond})
	s.OpenGIFPicker()
	waitForGIFs(t, s.GIFs())

	s.GIFs().Close()
	panel := s.GIFs().State()
	assert.False(t, panel.Open)
	assert.Empty(t, panel.Results)
}
