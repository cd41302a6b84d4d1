package directory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/ShahafRSeza/feed-social/internal/logger"
	"github.com/ShahafRSeza/feed-social/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu      sync.Mutex
	healthy bool
	err     error
	users   []string
	calls   int
	indexed []Profile
}

func (f *fakeBackend) Healthy() bool { return f.healthy }

func (f *fakeBackend) Lookup(_ context.Context, prefix string, limit int) ([]Profile, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := []Profile{}
	for _, u := range f.users {
		if hasPrefixFold(u, prefix) && len(out) < limit {
			out = append(out, Profile{ID: "id-" + u, Username: u})
		}
	}
	return out, nil
}

func (f *fakeBackend) IndexProfiles(p []Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, p...)
	return nil
}

func usernames(ps []Profile) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Username)
	}
	return out
}

func TestLookupMatchesPrefixCaseInsensitively(t *testing.T) {
	backend := &fakeBackend{healthy: true, users: []string{"alice", "albert", "bob"}}
	svc := NewService(backend, &fakeBackend{healthy: true}, logger.NewLogger(logger.TestConfig()), nil)

	found, err := svc.Lookup(context.Background(), "AL", 8)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "albert"}, usernames(found))
}

func TestLookupFallsBackWhenPrimaryFails(t *testing.T) {
	primary := &fakeBackend{healthy: true, err: errors.New("down")}
	fallback := &fakeBackend{healthy: true, users: []string{"bob"}}
	svc := NewService(primary, fallback, logger.NewLogger(logger.TestConfig()), nil)

	found, err := svc.Lookup(context.Background(), "b", 8)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, usernames(found))
	assert.Equal(t, 1, primary.calls)
}

func TestLookupSkipsUnhealthyPrimary(t *testing.T) {
	primary := &fakeBackend{healthy: false, users: []string{"x"}}
	fallback := &fakeBackend{healthy: true, users: []string{"xavier"}}
	svc := NewService(primary, fallback, logger.NewLogger(logger.TestConfig()), nil)

	found, err := svc.Lookup(context.Background(), "x", 8)
	require.NoError(t, err)
	assert.Equal(t, []string{"xavier"}, usernames(found))
	assert.Zero(t, primary.calls)
}

func TestLookupClampsLimit(t *testing.T) {
	users := make([]string, 20)
	for i := range users {
		users[i] = "user" + string(rune('a'+i))
	}
	svc := NewService(nil, &fakeBackend{healthy: true, users: users}, logger.NewLogger(logger.TestConfig()), nil)

	found, err := svc.Lookup(context.Background(), "", 50)
	require.NoError(t, err)
	assert.Len(t, found, MaxResults)
}

func TestLookupResultsAreNotShared(t *testing.T) {
	svc := NewService(nil, &fakeBackend{healthy: true, users: []string{"alice"}}, logger.NewLogger(logger.TestConfig()), nil)
	a, err := svc.Lookup(context.Background(), "a", 8)
	require.NoError(t, err)
	a[0].Username = "mutated"
	b, err := svc.Lookup(context.Background(), "a", 8)
	require.NoError(t, err)
	assert.Equal(t, "alice", b[0].Username)
}

type fakeProfileStore struct {
	rows []store.Profile
}

func (f *fakeProfileStore) SearchProfilesByPrefix(_ context.Context, prefix string, limit int) ([]store.Profile, error) {
	var out []store.Profile
	for _, r := range f.rows {
		if hasPrefixFold(r.Username, prefix) && len(out) < limit {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (f *fakeProfileStore) ListProfiles(context.Context) ([]store.Profile, error) {
	return f.rows, nil
}

func TestReindexCopiesProfilesIntoPrimary(t *testing.T) {
	pg := NewPostgres(&fakeProfileStore{rows: []store.Profile{{ID: "1", Username: "alice"}, {ID: "2", Username: "bob"}}})
	primary := &fakeBackend{healthy: true}
	svc := NewService(primary, pg, logger.NewLogger(logger.TestConfig()), nil)

	svc.Reindex(context.Background(), pg)
	assert.Equal(t, []string{"alice", "bob"}, usernames(primary.indexed))

	found, err := pg.Lookup(context.Background(), "AL", 8)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, usernames(found))
}
