package stories

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gramnet/pulse/internal/cache"
	"github.com/gramnet/pulse/internal/db"
	"github.com/gramnet/pulse/internal/models"
	"github.com/gramnet/pulse/pkg/logging"
)

// Service serves story reads behind the expiry predicate and owns the
// physical purge of expired rows. Visibility never depends on the
// purge having run: every read filters on expires_at itself.
type Service struct {
	stories *db.StoryRepository
	follows *db.FollowRepository
	cache   *cache.Cache
	logger  *zap.Logger
}

// NewService creates a stories service.
func NewService(repo *db.Repository, c *cache.Cache) *Service {
	return &Service{
		stories: db.NewStoryRepository(repo),
		follows: db.NewFollowRepository(repo),
		cache:   c,
		logger:  logging.WithComponent("stories"),
	}
}

// OwnerGroup is one owner's unexpired stories, newest first.
type OwnerGroup struct {
	Owner   models.UserSummary `json:"owner"`
	Stories []*models.Story    `json:"stories"`
}

// ActiveByOwner returns one owner's unexpired stories, newest first.
func (s *Service) ActiveByOwner(ctx context.Context, ownerID string) ([]*models.Story, error) {
	stories, err := s.stories.ActiveByOwners(ctx, []string{ownerID}, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to load stories: %w", err)
	}
	return stories, nil
}

// Feed returns the unexpired stories of the viewer and their accepted
// followees, grouped per owner with the viewer's own group first.
func (s *Service) Feed(ctx context.Context, viewerID string) ([]OwnerGroup, error) {
	following, err := s.follows.FollowingIDs(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load followees: %w", err)
	}
	owners := append([]string{viewerID}, following...)

	stories, err := s.stories.ActiveByOwners(ctx, owners, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to load stories: %w", err)
	}

	grouped := make(map[string][]*models.Story, len(owners))
	summaries := make(map[string]models.UserSummary, len(owners))
	for _, st := range stories {
		grouped[st.UserID] = append(grouped[st.UserID], st)
		if _, ok := summaries[st.UserID]; !ok {
			if st.Owner != nil {
				summaries[st.UserID] = st.Owner.Summary()
			} else {
				summaries[st.UserID] = models.UserSummary{ID: st.UserID}
			}
		}
	}

	groups := make([]OwnerGroup, 0, len(grouped))
	for _, ownerID := range owners {
		if own, ok := grouped[ownerID]; ok {
			groups = append(groups, OwnerGroup{Owner: summaries[ownerID], Stories: own})
		}
	}
	return groups, nil
}

// RecordView records viewerID having seen storyID. Self views and
// repeat views are silently absorbed; views of expired or missing
// stories are rejected.
func (s *Service) RecordView(ctx context.Context, storyID, viewerID string) (bool, error) {
	story, err := s.stories.GetByID(ctx, storyID)
	if err != nil {
		return false, fmt.Errorf("failed to load story: %w", err)
	}
	if story == nil || !story.Active(time.Now().UTC()) {
		return false, fmt.Errorf("story %s is not available", storyID)
	}
	if story.UserID == viewerID {
		return false, nil
	}

	inserted, err := s.stories.InsertView(ctx, storyID, viewerID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to record story view: %w", err)
	}
	return inserted, nil
}

// PurgeExpired deletes every story past its expiry and drops the
// cached story listings. Returns the number of stories removed.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	removed, err := s.stories.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired stories: %w", err)
	}
	if removed > 0 {
		if err := s.cache.DeletePattern(ctx, cache.StoriesPattern()); err != nil && err != cache.ErrCacheDisabled {
			s.logger.Warn("failed to invalidate story caches", zap.Error(err))
		}
		s.logger.Info("purged expired stories", zap.Int64("removed", removed))
	}
	return removed, nil
}
