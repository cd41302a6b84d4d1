package directory

import (
	"context"
	"strconv"
	"strings"

	"github.com/ShahafRSeza/feed-social/internal/logger"
	"github.com/ShahafRSeza/feed-social/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// Indexer accepts profiles for the primary backend.
type Indexer interface {
	IndexProfiles(profiles []Profile) error
}

// Service tries the primary backend when healthy and falls back to the
// secondary one. Concurrent identical lookups share one backend call.
type Service struct {
	primary  Backend
	fallback Backend
	log      logger.Logger
	metrics  *metrics.Metrics
	group    singleflight.Group
}

// NewService wires the lookup chain. primary may be nil.
func NewService(primary, fallback Backend, log logger.Logger, m *metrics.Metrics) *Service {
	return &Service{primary: primary, fallback: fallback, log: log, metrics: m}
}

func (s *Service) Lookup(ctx context.Context, prefix string, limit int) ([]Profile, error) {
	limit = clampLimit(limit)
	key := strings.ToLower(prefix) + "\x00" + strconv.Itoa(limit)
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.lookup(ctx, prefix, limit)
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]Profile)
	out := make([]Profile, len(shared))
	copy(out, shared)
	return out, nil
}

func (s *Service) lookup(ctx context.Context, prefix string, limit int) ([]Profile, error) {
	if s.primary != nil && s.primary.Healthy() {
		found, err := s.primary.Lookup(ctx, prefix, limit)
		if err == nil {
			s.metrics.Lookup("primary")
			return found, nil
		}
		s.log.Warn("directory: primary lookup failed, falling back", "err", err)
	}
	s.metrics.Lookup("fallback")
	found, err := s.fallback.Lookup(ctx, prefix, limit)
	if err != nil {
		return nil, err
	}
	if found == nil {
		found = []Profile{}
	}
	return found, nil
}

// Index pushes a profile to the primary backend in the background.
func (s *Service) Index(p Profile) {
	ix, ok := s.primary.(Indexer)
	if !ok || !s.primary.Healthy() {
		return
	}
	go func() {
		if err := ix.IndexProfiles([]Profile{p}); err != nil {
			s.log.Warn("directory: index profile", "id", p.ID, "err", err)
		}
	}()
}

// Reindex copies every profile into the primary backend.
func (s *Service) Reindex(ctx context.Context, source interface {
	All(ctx context.Context) ([]Profile, error)
}) {
	ix, ok := s.primary.(Indexer)
	if !ok || !s.primary.Healthy() {
		return
	}
	all, err := source.All(ctx)
	if err != nil {
		s.log.Warn("directory: reindex load failed", "err", err)
		return
	}
	if err := ix.IndexProfiles(all); err != nil {
		s.log.Warn("directory: reindex profiles", "err", err)
	}
}
