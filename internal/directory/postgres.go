package directory

import (
	"context"

	"github.com/ShahafRSeza/feed-social/internal/store"
)

type profileStore interface {
	SearchProfilesByPrefix(ctx context.Context, prefix string, limit int) ([]store.Profile, error)
	ListProfiles(ctx context.Context) ([]store.Profile, error)
}

// Postgres serves lookups straight from the profiles table.
type Postgres struct {
	store profileStore
}

func NewPostgres(s profileStore) *Postgres {
	return &Postgres{store: s}
}

// Healthy is always true: without Postgres nothing works anyway.
func (p *Postgres) Healthy() bool {
	return true
}

func (p *Postgres) Lookup(ctx context.Context, prefix string, limit int) ([]Profile, error) {
	rows, err := p.store.SearchProfilesByPrefix(ctx, prefix, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return fromStore(rows), nil
}

// All returns every profile, for reindexing.
func (p *Postgres) All(ctx context.Context) ([]Profile, error) {
	rows, err := p.store.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	return fromStore(rows), nil
}

func fromStore(rows []store.Profile) []Profile {
	out := make([]Profile, 0, len(rows))
	for _, r := range rows {
		out = append(out, Profile{ID: r.ID, Username: r.Username, DisplayName: r.DisplayName, AvatarURL: r.AvatarURL})
	}
	return out
}
