package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ShahafRSeza/feed-social/internal/logger"
	meili "github.com/meilisearch/meilisearch-go"
)

const idxProfiles = "feed_profiles"

// Meili serves lookups from a Meilisearch profile index.
type Meili struct {
	client  meili.ServiceManager
	log     logger.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the profile index.
// An unreachable server is tolerated; the health loop picks it up later.
func NewMeili(url, apiKey string, log logger.Logger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))
	m := &Meili{
		client: client,
		log:    log,
		done:   make(chan struct{}),
	}
	if _, err := client.Health(); err != nil {
		log.Warn("directory: meilisearch unavailable", "url", url, "err", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}
	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxProfiles,
		PrimaryKey: "id",
	}); err != nil {
		m.log.Debug("directory: create index (may already exist)", "index", idxProfiles, "err", err)
	}
	searchable := []string{"username", "displayName"}
	if _, err := m.client.Index(idxProfiles).UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warn("directory: update searchable attrs", "index", idxProfiles, "err", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info("directory: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Lookup runs a prefix query. Meilisearch tolerates typos, so hits that do
// not start with prefix are dropped here.
func (m *Meili) Lookup(_ context.Context, prefix string, limit int) ([]Profile, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	limit = clampLimit(limit)
	resp, err := m.client.Index(idxProfiles).Search(prefix, &meili.SearchRequest{
		Limit: int64(limit * 4),
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search profiles: %w", err)
	}
	out := make([]Profile, 0, limit)
	for _, hit := range resp.Hits {
		p := Profile{
			ID:          decodeString(hit, "id"),
			Username:    decodeString(hit, "username"),
			DisplayName: decodeString(hit, "displayName"),
			AvatarURL:   decodeString(hit, "avatarUrl"),
		}
		if p.Username == "" || !hasPrefixFold(p.Username, prefix) {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// IndexProfiles adds or replaces profiles in the index.
func (m *Meili) IndexProfiles(profiles []Profile) error {
	if len(profiles) == 0 {
		return nil
	}
	_, err := m.client.Index(idxProfiles).AddDocuments(profiles, nil)
	return err
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
