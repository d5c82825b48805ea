package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gramnet/pulse/internal/cache"
	"github.com/gramnet/pulse/internal/db"
	"github.com/gramnet/pulse/internal/models"
)

// exploreWindow bounds how far back the explore ranking looks.
const exploreWindow = 7 * 24 * time.Hour

// Item is the denormalized post shape served in feed and explore
// pages and stored in the cache.
type Item struct {
	ID            string             `json:"id"`
	Author        models.UserSummary `json:"author"`
	Caption       string             `json:"caption"`
	MediaURLs     []string           `json:"mediaUrls"`
	MediaType     string             `json:"mediaType,omitempty"`
	Location      string             `json:"location,omitempty"`
	Hashtags      []string           `json:"hashtags"`
	LikesCount    int                `json:"likesCount"`
	CommentsCount int                `json:"commentsCount"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// OffsetPage is one offset-paginated feed or explore page.
type OffsetPage struct {
	Items      []Item `json:"items"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	Total      int64  `json:"total"`
	TotalPages int    `json:"totalPages"`
	HasNext    bool   `json:"hasNext"`
}

// CursorPage is one cursor-paginated feed page. NextCursor is nil when
// the page came back short, meaning there is nothing older to fetch.
type CursorPage struct {
	Items      []Item     `json:"items"`
	Limit      int        `json:"limit"`
	NextCursor *time.Time `json:"nextCursor"`
}

// Service serves home feed and explore pages through the cache
// coordinator and owns the invalidations that keep them coherent with
// post, like, comment and follow writes.
type Service struct {
	posts      *db.PostRepository
	follows    *db.FollowRepository
	coord      *Coordinator
	feedTTL    time.Duration
	exploreTTL time.Duration
}

// NewService creates a feed service.
func NewService(repo *db.Repository, coord *Coordinator, feedTTL, exploreTTL time.Duration) *Service {
	return &Service{
		posts:      db.NewPostRepository(repo),
		follows:    db.NewFollowRepository(repo),
		coord:      coord,
		feedTTL:    feedTTL,
		exploreTTL: exploreTTL,
	}
}

func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return page, limit
}

// Feed returns one offset page of the viewer's home feed: their own
// posts plus posts of accepted followees, newest first. Pages are
// cached per (viewer, page, limit).
func (s *Service) Feed(ctx context.Context, viewerID string, page, limit int) (*OffsetPage, error) {
	page, limit = clampPage(page, limit)

	var result OffsetPage
	err := s.coord.GetOrCompute(ctx, cache.FeedKey(viewerID, page, limit), s.feedTTL, &result,
		func(ctx context.Context) error {
			authorIDs, err := s.feedAuthors(ctx, viewerID)
			if err != nil {
				return err
			}

			posts, err := s.posts.ListByAuthors(ctx, authorIDs, limit, (page-1)*limit)
			if err != nil {
				return fmt.Errorf("failed to query feed: %w", err)
			}
			total, err := s.posts.CountByAuthors(ctx, authorIDs)
			if err != nil {
				return fmt.Errorf("failed to count feed: %w", err)
			}

			result = buildOffsetPage(posts, page, limit, total)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// FeedBefore returns feed items strictly older than cursor. A zero
// cursor starts from the top. Cursor pages are never cached: the
// cursor makes the read repeatable on its own, and the keyspace would
// be unbounded.
func (s *Service) FeedBefore(ctx context.Context, viewerID string, cursor time.Time, limit int) (*CursorPage, error) {
	_, limit = clampPage(1, limit)

	authorIDs, err := s.feedAuthors(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	posts, err := s.posts.ListByAuthorsBefore(ctx, authorIDs, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed: %w", err)
	}

	page := &CursorPage{
		Items: buildItems(posts),
		Limit: limit,
	}
	if len(posts) == limit {
		last := posts[len(posts)-1].CreatedAt
		page.NextCursor = &last
	}
	return page, nil
}

// Explore returns one page of recent posts by authors the viewer does
// not follow, ranked by engagement. The viewer is part of the cache
// key because the exclusion set differs per viewer.
func (s *Service) Explore(ctx context.Context, viewerID string, page, limit int) (*OffsetPage, error) {
	page, limit = clampPage(page, limit)

	var result OffsetPage
	err := s.coord.GetOrCompute(ctx, cache.ExploreKey(viewerID, page, limit), s.exploreTTL, &result,
		func(ctx context.Context) error {
			excluded, err := s.feedAuthors(ctx, viewerID)
			if err != nil {
				return err
			}
			since := time.Now().UTC().Add(-exploreWindow)

			posts, err := s.posts.ListExplore(ctx, excluded, since, limit, (page-1)*limit)
			if err != nil {
				return fmt.Errorf("failed to query explore: %w", err)
			}
			total, err := s.posts.CountExplore(ctx, excluded, since)
			if err != nil {
				return fmt.Errorf("failed to count explore: %w", err)
			}

			result = buildOffsetPage(posts, page, limit, total)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// feedAuthors is the viewer plus every accepted followee.
func (s *Service) feedAuthors(ctx context.Context, viewerID string) ([]string, error) {
	following, err := s.follows.FollowingIDs(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load followees: %w", err)
	}
	return append(following, viewerID), nil
}

// OnPostCreated drops every feed page, the explore namespace and the
// author's post listings. Feed pages are keyed per viewer, and which
// viewers see the new post depends on the follow graph, so the whole
// namespace goes.
func (s *Service) OnPostCreated(ctx context.Context, authorID string) {
	s.coord.InvalidatePattern(ctx,
		cache.FeedPattern(),
		cache.ExplorePattern(),
		cache.UserPostsPattern(authorID),
	)
}

// OnPostDeleted mirrors OnPostCreated and additionally drops the
// single-post entry.
func (s *Service) OnPostDeleted(ctx context.Context, authorID, postID string) {
	s.coord.Invalidate(ctx, cache.PostKey(postID))
	s.coord.InvalidatePattern(ctx,
		cache.FeedPattern(),
		cache.ExplorePattern(),
		cache.UserPostsPattern(authorID),
	)
}

// OnPostEngagement drops caches whose contents include the post's
// counters: the single post, its like listings, and explore pages
// whose ranking depends on the counters. Feed pages keep their stale
// counters until the TTL; ordering there does not depend on them.
func (s *Service) OnPostEngagement(ctx context.Context, postID string) {
	s.coord.Invalidate(ctx, cache.PostKey(postID))
	s.coord.InvalidatePattern(ctx,
		cache.PostLikesPattern(postID),
		cache.ExplorePattern(),
	)
}

// OnFollowChanged drops the viewer's cached pages after a follow is
// accepted or removed, since both feed membership and the explore
// exclusion set changed for that viewer.
func (s *Service) OnFollowChanged(ctx context.Context, followerID string) {
	s.coord.InvalidatePattern(ctx,
		cache.ViewerFeedPattern(followerID),
		cache.ViewerExplorePattern(followerID),
	)
}

func buildOffsetPage(posts []*models.Post, page, limit int, total int64) OffsetPage {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return OffsetPage{
		Items:      buildItems(posts),
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

func buildItems(posts []*models.Post) []Item {
	items := make([]Item, 0, len(posts))
	for _, p := range posts {
		item := Item{
			ID:            p.ID,
			Caption:       p.Caption,
			MediaURLs:     decodeStrings(p.MediaURLs),
			MediaType:     p.MediaType,
			Location:      p.Location,
			Hashtags:      decodeStrings(p.Hashtags),
			LikesCount:    p.LikesCount,
			CommentsCount: p.CommentsCount,
			CreatedAt:     p.CreatedAt,
		}
		if p.Author != nil {
			item.Author = p.Author.Summary()
		} else {
			item.Author = models.UserSummary{ID: p.UserID}
		}
		items = append(items, item)
	}
	return items
}

// decodeStrings parses a JSON-encoded string array column, returning
// an empty slice for null, empty or malformed values.
func decodeStrings(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}
