package editor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ShahafRSeza/feed-social/internal/directory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	profiles []directory.Profile
	err      error

	mu      sync.Mutex
	queries []string
	hold    map[string]chan struct{}
	started chan string
}

func (f *fakeDirectory) Lookup(ctx context.Context, prefix string, limit int) ([]directory.Profile, error) {
	f.mu.Lock()
	f.queries = append(f.queries, prefix)
	gate := f.hold[prefix]
	f.mu.Unlock()
	if f.started != nil {
		f.started <- prefix
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	var out []directory.Profile
	for _, p := range f.profiles {
		if strings.HasPrefix(strings.ToLower(p.Username), strings.ToLower(prefix)) && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeDirectory) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func testProfiles() []directory.Profile {
	return []directory.Profile{
		{ID: "u_alice", Username: "alice"},
		{ID: "u_albert", Username: "albert"},
		{ID: "u_anna", Username: "anna"},
		{ID: "u_bob", Username: "bob"},
	}
}

func waitForCandidates(t *testing.T, s *Session) *MentionQuery {
	t.Helper()
	var m *MentionQuery
	require.Eventually(t, func() bool {
		m = s.State().Mention
		return m != nil && !m.Loading
	}, time.Second, 5*time.Millisecond)
	return m
}

func usernames(ps []directory.Profile) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Username)
	}
	return out
}

func TestMentionSuggestsAndCommits(t *testing.T) {
	dir := &fakeDirectory{profiles: testProfiles()}
	s := newTestSession(t, Options{Directory: dir, MentionDelay: 10 * time.Millisecond})

	require.NoError(t, s.InsertText("hi @al"))
	m := waitForCandidates(t, s)
	assert.Equal(t, "al", m.Query)
	assert.Equal(t, 3, m.TriggerOffset)
	assert.Equal(t, []string{"alice", "albert"}, usernames(m.Candidates))

	handled, err := s.HandleKey(KeyEnter)
	require.NoError(t, err)
	assert.True(t, handled)

	st := s.State()
	assert.Nil(t, st.Mention)
	assert.Equal(t, "hi @alice\u00a0", st.Text)
	assert.Equal(t,
		"hi <a href=\"/u/alice\" class=\"mention\" data-mention=\"alice\" contenteditable=\"false\">@alice</a>\u00a0",
		st.Markup)
	assert.Equal(t, Range{Anchor: 10, Focus: 10}, st.Selection)
}

func TestMentionArrowKeysClamp(t *testing.T) {
	dir := &fakeDirectory{profiles: testProfiles()}
	s := newTestSession(t, Options{Directory: dir, MentionDelay: 10 * time.Millisecond})

	require.NoError(t, s.InsertText("@al"))
	waitForCandidates(t, s)

	for _, step := range []struct {
		key  string
		want int
	}{
		{KeyArrowUp, 0},
		{KeyArrowDown, 1},
		{KeyArrowDown, 1},
		{KeyArrowUp, 0},
		{KeyArrowDown, 1},
	} {
		handled, err := s.HandleKey(step.key)
		require.NoError(t, err)
		require.True(t, handled)
		assert.Equal(t, step.want, s.State().Mention.ActiveIndex, step.key)
	}

	_, err := s.HandleKey(KeyTab)
	require.NoError(t, err)
	assert.Equal(t, "@albert\u00a0", s.State().Text)
}

func TestMentionEscapeDismisses(t *testing.T) {
	dir := &fakeDirectory{profiles: testProfiles()}
	s := newTestSession(t, Options{Directory: dir, MentionDelay: 10 * time.Millisecond})

	require.NoError(t, s.InsertText("@b"))
	waitForCandidates(t, s)

	handled, err := s.HandleKey(KeyEscape)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Nil(t, s.State().Mention)

	handled, err = s.HandleKey(KeyEnter)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "@b\n", s.State().Text)
}

func TestMentionNeedsWordBoundary(t *testing.T) {
	dir := &fakeDirectory{profiles: testProfiles()}
	s := newTestSession(t, Options{Directory: dir, MentionDelay: 10 * time.Millisecond})

	require.NoError(t, s.InsertText("mail@al"))
	assert.Nil(t, s.State().Mention)

	require.NoError(t, s.InsertText(" @al "))
	assert.Nil(t, s.State().Mention)
}

func TestMentionDiscardsStaleAnswers(t *testing.T) {
	dir := &fakeDirectory{
		profiles: testProfiles(),
		hold:     map[string]chan struct{}{"a": make(chan struct{})},
		started:  make(chan string, 8),
	}
	s := newTestSession(t, Options{Directory: dir, MentionDelay: 10 * time.Millisecond})

	require.NoError(t, s.InsertText("@a"))
	select {
	case q := <-dir.started:
		require.Equal(t, "a", q)
	case <-time.After(time.Second):
		t.Fatal("lookup for \"a\" never started")
	}

	require.NoError(t, s.InsertText("l"))
	m := waitForCandidates(t, s)
	assert.Equal(t, []string{"alice", "albert"}, usernames(m.Candidates))

	close(dir.hold["a"])
	require.Eventually(t, func() bool {
		return len(dir.Queries()) == 2
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"alice", "albert"}, usernames(s.State().Mention.Candidates))
}

func TestMentionLookupFailureLeavesEmptyList(t *testing.T) {
	dir := &fakeDirectory{err: errors.New("directory down")}
	s := newTestSession(t, Options{Directory: dir, MentionDelay: 10 * time.Millisecond})

	require.NoError(t, s.InsertText("@al"))
	m := waitForCandidates(t, s)
	assert.Empty(t, m.Candidates)

	handled, err := s.HandleKey(KeyEnter)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "@al\n", s.State().Text)
}

func TestSelectMentionByIndex(t *testing.T) {
	dir := &fakeDirectory{profiles: testProfiles()}
	s := newTestSession(t, Options{Directory: dir, MentionDelay: 10 * time.Millisecond})

	require.NoError(t, s.InsertText("@a"))
	m := waitForCandidates(t, s)
	require.Len(t, m.Candidates, 3)

	require.NoError(t, s.SelectMention(2))
	assert.Equal(t, "@anna\u00a0", s.State().Text)

	require.NoError(t, s.SelectMention(5))
	assert.Equal(t, "@anna\u00a0", s.State().Text)
}
