// Package directory looks up user profiles for @-mentions.
package directory

import (
	"context"
	"strings"
)

// MaxResults caps every lookup.
const MaxResults = 8

// Profile is the read-only view of a user the mention list shows.
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Backend answers prefix lookups. Matching is case-insensitive on the
// username; an empty prefix returns any profiles up to limit.
type Backend interface {
	Lookup(ctx context.Context, prefix string, limit int) ([]Profile, error)
	Healthy() bool
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxResults {
		return MaxResults
	}
	return limit
}

func hasPrefixFold(username, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(username), strings.ToLower(prefix))
}
