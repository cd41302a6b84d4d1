package editor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ShahafRSeza/feed-social/internal/assets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type progressLog struct {
	mu   sync.Mutex
	seen []int
}

func (p *progressLog) add(pct int) {
	p.mu.Lock()
	p.seen = append(p.seen, pct)
	p.mu.Unlock()
}

func (p *progressLog) values() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.seen...)
}

func TestSubmitRejectsEmptyDocument(t *testing.T) {
	s := newTestSession(t, Options{})
	require.NoError(t, s.InsertText("   "))

	called := false
	err := s.Submit(context.Background(), PublisherFunc(func(context.Context, Submission) error {
		called = true
		return nil
	}), nil)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Write something first.", verr.Message)
	assert.False(t, called)
}

func TestSubmitPublishesAndResets(t *testing.T) {
	s := newTestSession(t, Options{ProgressInterval: 5 * time.Millisecond})
	require.NoError(t, s.InsertText("hello"))
	s.Select(0, 5)
	require.NoError(t, s.Apply("bold", ""))

	var got Submission
	progress := &progressLog{}
	err := s.Submit(context.Background(), PublisherFunc(func(_ context.Context, sub Submission) error {
		got = sub
		time.Sleep(40 * time.Millisecond)
		return nil
	}), progress.add)
	require.NoError(t, err)

	assert.Equal(t, Submission{UserID: "user_1", Markup: "<b>hello</b>", Text: "hello"}, got)
	st := s.State()
	assert.True(t, st.Empty)
	assert.False(t, st.Submitting)

	seen := progress.values()
	require.GreaterOrEqual(t, len(seen), 2)
	assert.Equal(t, 0, seen[0])
	assert.Equal(t, 100, seen[len(seen)-1])
	for _, pct := range seen[1 : len(seen)-1] {
		assert.LessOrEqual(t, pct, 90)
	}
}

func TestSubmitFailureAllowsRetry(t *testing.T) {
	s := newTestSession(t, Options{ProgressInterval: 5 * time.Millisecond})
	require.NoError(t, s.InsertText("draft"))

	progress := &progressLog{}
	err := s.Submit(context.Background(), PublisherFunc(func(context.Context, Submission) error {
		return &assets.UploadError{Status: http.StatusBadGateway, Message: "upstream"}
	}), progress.add)
	var nerr *NetworkError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "submit", nerr.Op)
	assert.Equal(t, http.StatusBadGateway, nerr.Status)

	seen := progress.values()
	assert.Equal(t, 0, seen[len(seen)-1])
	assert.Equal(t, "draft", s.State().Text)

	require.NoError(t, s.Submit(context.Background(), PublisherFunc(func(context.Context, Submission) error {
		return nil
	}), nil))
	assert.True(t, s.State().Empty)
}

func TestSubmitBlocksEditsWhileRunning(t *testing.T) {
	s := newTestSession(t, Options{})
	require.NoError(t, s.InsertText("post"))

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Submit(context.Background(), PublisherFunc(func(context.Context, Submission) error {
			<-release
			return nil
		}), nil)
	}()
	require.Eventually(t, func() bool { return s.State().Submitting }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, s.InsertText("more"), ErrSubmitInProgress)
	assert.ErrorIs(t, s.Submit(context.Background(), PublisherFunc(func(context.Context, Submission) error {
		return nil
	}), nil), ErrSubmitInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.True(t, s.State().Empty)
}

func TestSubmitRequiresIdentity(t *testing.T) {
	s := New(Options{})
	t.Cleanup(s.Close)
	err := s.Submit(context.Background(), PublisherFunc(func(context.Context, Submission) error { return nil }), nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
