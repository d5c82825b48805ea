package trending

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gramnet/pulse/internal/cache"
	"github.com/gramnet/pulse/internal/db"
	"github.com/gramnet/pulse/internal/models"
	"github.com/gramnet/pulse/pkg/logging"
)

// recencyWindow bounds how long a hashtag stays eligible after its
// last use.
const recencyWindow = 7 * 24 * time.Hour

// scorePerUse is the score added per recorded use.
const scorePerUse = 1

const maxHashtagLen = 100

// Service maintains the per-hashtag accumulators and serves the
// trending listing through the cache.
type Service struct {
	tags   *db.TrendingRepository
	cache  *cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewService creates a trending service.
func NewService(repo *db.Repository, c *cache.Cache, ttl time.Duration) *Service {
	return &Service{
		tags:   db.NewTrendingRepository(repo),
		cache:  c,
		ttl:    ttl,
		logger: logging.WithComponent("trending"),
	}
}

// Normalize canonicalizes a raw hashtag: leading '#' stripped,
// lowercased, surrounding space trimmed. Returns "" for tags that
// normalize to nothing or exceed the column width.
func Normalize(raw string) string {
	tag := strings.TrimSpace(raw)
	tag = strings.TrimPrefix(tag, "#")
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" || len(tag) > maxHashtagLen {
		return ""
	}
	return tag
}

// RecordUse bumps one hashtag's accumulator. Unusable tags are
// silently skipped.
func (s *Service) RecordUse(ctx context.Context, raw string) error {
	tag := Normalize(raw)
	if tag == "" {
		return nil
	}
	if err := s.tags.Bump(ctx, tag, scorePerUse, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to bump hashtag %q: %w", tag, err)
	}
	return nil
}

// RecordPostHashtags bumps every hashtag of a newly published post and
// drops the cached listing so the next read reflects the bumps. A tag
// appearing twice in one post counts twice, matching the accumulator
// being a usage counter rather than a post-set size.
func (s *Service) RecordPostHashtags(ctx context.Context, rawTags []string) error {
	recorded := 0
	for _, raw := range rawTags {
		if err := s.RecordUse(ctx, raw); err != nil {
			return err
		}
		if Normalize(raw) != "" {
			recorded++
		}
	}
	if recorded > 0 {
		s.invalidate(ctx)
	}
	return nil
}

// Top returns the highest-scoring hashtags used inside the recency
// window, read through the cache per requested limit.
func (s *Service) Top(ctx context.Context, limit int) ([]*models.TrendingHashtag, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	key := cache.TrendingKey(limit)
	var tags []*models.TrendingHashtag
	if err := s.cache.GetJSON(ctx, key, &tags); err == nil {
		return tags, nil
	} else if err != cache.ErrCacheMiss && err != cache.ErrCacheDisabled {
		s.logger.Warn("trending cache read failed", zap.Error(err))
	}

	tags, err := s.tags.Top(ctx, time.Now().UTC().Add(-recencyWindow), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trending hashtags: %w", err)
	}

	if err := s.cache.SetJSON(ctx, key, tags, s.ttl); err != nil && err != cache.ErrCacheDisabled {
		s.logger.Warn("trending cache write failed", zap.Error(err))
	}
	return tags, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.DeletePattern(ctx, cache.TrendingPattern()); err != nil && err != cache.ErrCacheDisabled {
		s.logger.Warn("trending cache invalidation failed", zap.Error(err))
	}
}
