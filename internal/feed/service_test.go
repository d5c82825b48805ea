package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gramnet/pulse/internal/cache"
	"github.com/gramnet/pulse/internal/db"
	"github.com/gramnet/pulse/internal/models"
)

type fixture struct {
	svc   *Service
	db    *gorm.DB
	redis *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	// One shared in-memory database requires a single connection.
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := gdb.AutoMigrate(&models.User{}, &models.Post{}, &models.Follow{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	repo := db.NewRepository(gdb)
	return &fixture{
		svc:   NewService(repo, NewCoordinator(c), 5*time.Minute, 10*time.Minute),
		db:    gdb,
		redis: mr,
	}
}

func (f *fixture) seedUser(t *testing.T, id string) {
	t.Helper()
	u := &models.User{ID: id, Username: id, IsActive: true, CreatedAt: time.Now()}
	if err := f.db.Create(u).Error; err != nil {
		t.Fatalf("failed to seed user %s: %v", id, err)
	}
}

func (f *fixture) seedFollow(t *testing.T, follower, following, status string) {
	t.Helper()
	fl := &models.Follow{FollowerID: follower, FollowingID: following, Status: status, CreatedAt: time.Now()}
	if err := f.db.Create(fl).Error; err != nil {
		t.Fatalf("failed to seed follow: %v", err)
	}
}

func (f *fixture) seedPost(t *testing.T, id, author string, createdAt time.Time, opts ...func(*models.Post)) {
	t.Helper()
	p := &models.Post{ID: id, UserID: author, Caption: "c-" + id, CreatedAt: createdAt}
	for _, opt := range opts {
		opt(p)
	}
	if err := f.db.Create(p).Error; err != nil {
		t.Fatalf("failed to seed post %s: %v", id, err)
	}
}

func withCounts(likes, comments int) func(*models.Post) {
	return func(p *models.Post) {
		p.LikesCount = likes
		p.CommentsCount = comments
	}
}

func itemIDs(items []Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

func assertOrder(t *testing.T, items []Item, want ...string) {
	t.Helper()
	got := itemIDs(items)
	if len(got) != len(want) {
		t.Fatalf("expected %d items %v, got %v", len(want), want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestFeedMembershipAndOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, u := range []string{"alice", "bob", "carol", "dave"} {
		f.seedUser(t, u)
	}
	f.seedFollow(t, "alice", "bob", models.FollowStatusAccepted)
	f.seedFollow(t, "alice", "carol", models.FollowStatusPending)

	base := time.Now().UTC().Add(-time.Hour)
	f.seedPost(t, "p-own", "alice", base.Add(1*time.Minute))
	f.seedPost(t, "p-bob", "bob", base.Add(2*time.Minute))
	f.seedPost(t, "p-carol", "carol", base.Add(3*time.Minute))
	f.seedPost(t, "p-dave", "dave", base.Add(4*time.Minute))
	f.seedPost(t, "p-hidden", "bob", base.Add(5*time.Minute), func(p *models.Post) { p.IsHidden = true })
	f.seedPost(t, "p-archived", "bob", base.Add(6*time.Minute), func(p *models.Post) { p.IsArchived = true })

	page, err := f.svc.Feed(ctx, "alice", 1, 10)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	// Own posts plus accepted followees only, newest first. Pending
	// follows, strangers and non-visible posts stay out.
	assertOrder(t, page.Items, "p-bob", "p-own")
	if page.Total != 2 {
		t.Errorf("expected total 2, got %d", page.Total)
	}
	if page.Items[0].Author.Username != "bob" {
		t.Errorf("expected joined author bob, got %+v", page.Items[0].Author)
	}
}

func TestFeedPageCachedUntilInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "alice")
	f.seedPost(t, "p1", "alice", time.Now().UTC().Add(-time.Minute))

	if _, err := f.svc.Feed(ctx, "alice", 1, 10); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if !f.redis.Exists(cache.FeedKey("alice", 1, 10)) {
		t.Fatal("expected feed page to be cached")
	}

	// A row inserted behind the cache's back stays invisible.
	f.seedPost(t, "p2", "alice", time.Now().UTC())
	page, err := f.svc.Feed(ctx, "alice", 1, 10)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	assertOrder(t, page.Items, "p1")

	// The invalidation hook makes the next read recompute.
	f.svc.OnPostCreated(ctx, "alice")
	page, err = f.svc.Feed(ctx, "alice", 1, 10)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	assertOrder(t, page.Items, "p2", "p1")
}

func TestFeedWorksWithoutCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "alice")
	f.seedPost(t, "p1", "alice", time.Now().UTC().Add(-time.Minute))

	// Same service wiring but with the cache disabled entirely.
	repo := db.NewRepository(f.db)
	svc := NewService(repo, NewCoordinator(nil), 5*time.Minute, 10*time.Minute)

	page, err := svc.Feed(ctx, "alice", 1, 10)
	if err != nil {
		t.Fatalf("Feed failed without cache: %v", err)
	}
	assertOrder(t, page.Items, "p1")
}

func TestFeedBeforeCursorWalk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "alice")

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	for i := 1; i <= 5; i++ {
		f.seedPost(t, fmt.Sprintf("p%d", i), "alice", base.Add(time.Duration(i)*time.Minute))
	}

	first, err := f.svc.FeedBefore(ctx, "alice", time.Time{}, 2)
	if err != nil {
		t.Fatalf("FeedBefore failed: %v", err)
	}
	assertOrder(t, first.Items, "p5", "p4")
	if first.NextCursor == nil {
		t.Fatal("expected a next cursor on a full page")
	}

	second, err := f.svc.FeedBefore(ctx, "alice", *first.NextCursor, 2)
	if err != nil {
		t.Fatalf("FeedBefore failed: %v", err)
	}
	assertOrder(t, second.Items, "p3", "p2")

	// Replaying the same cursor returns the same page.
	replay, err := f.svc.FeedBefore(ctx, "alice", *first.NextCursor, 2)
	if err != nil {
		t.Fatalf("FeedBefore failed: %v", err)
	}
	assertOrder(t, replay.Items, "p3", "p2")

	last, err := f.svc.FeedBefore(ctx, "alice", *second.NextCursor, 2)
	if err != nil {
		t.Fatalf("FeedBefore failed: %v", err)
	}
	assertOrder(t, last.Items, "p1")
	if last.NextCursor != nil {
		t.Error("expected nil cursor on a short page")
	}

	// Cursor reads never touch the cache.
	if keys := f.redis.Keys(); len(keys) != 0 {
		t.Errorf("expected no cached keys after cursor reads, got %v", keys)
	}
}

func TestExploreRankingAndExclusion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, u := range []string{"alice", "bob", "carol", "dave"} {
		f.seedUser(t, u)
	}
	f.seedFollow(t, "alice", "bob", models.FollowStatusAccepted)

	now := time.Now().UTC()
	// Score = 2*likes + 3*comments.
	f.seedPost(t, "p-mid", "carol", now.Add(-2*time.Hour), withCounts(5, 0))  // 10
	f.seedPost(t, "p-top", "dave", now.Add(-3*time.Hour), withCounts(2, 4))   // 16
	f.seedPost(t, "p-low", "carol", now.Add(-1*time.Hour), withCounts(1, 1))  // 5
	f.seedPost(t, "p-self", "alice", now.Add(-time.Hour), withCounts(50, 50)) // excluded: own
	f.seedPost(t, "p-followed", "bob", now.Add(-time.Hour), withCounts(9, 9)) // excluded: followee
	f.seedPost(t, "p-stale", "dave", now.Add(-8*24*time.Hour), withCounts(99, 99))

	page, err := f.svc.Explore(ctx, "alice", 1, 10)
	if err != nil {
		t.Fatalf("Explore failed: %v", err)
	}
	assertOrder(t, page.Items, "p-top", "p-mid", "p-low")
}

func TestExploreTieBreaksNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "alice")
	f.seedUser(t, "bob")

	now := time.Now().UTC()
	f.seedPost(t, "p-old", "bob", now.Add(-2*time.Hour), withCounts(3, 2)) // 12
	f.seedPost(t, "p-new", "bob", now.Add(-1*time.Hour), withCounts(0, 4)) // 12

	page, err := f.svc.Explore(ctx, "alice", 1, 10)
	if err != nil {
		t.Fatalf("Explore failed: %v", err)
	}
	assertOrder(t, page.Items, "p-new", "p-old")
}

func TestExploreCacheIsViewerScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, u := range []string{"alice", "bob", "carol"} {
		f.seedUser(t, u)
	}
	f.seedFollow(t, "alice", "carol", models.FollowStatusAccepted)
	f.seedPost(t, "p1", "carol", time.Now().UTC().Add(-time.Hour), withCounts(1, 0))

	alicePage, err := f.svc.Explore(ctx, "alice", 1, 10)
	if err != nil {
		t.Fatalf("Explore failed: %v", err)
	}
	if len(alicePage.Items) != 0 {
		t.Errorf("expected followee's post excluded for alice, got %v", itemIDs(alicePage.Items))
	}

	// bob does not follow carol, so the same query must not reuse
	// alice's cached page.
	bobPage, err := f.svc.Explore(ctx, "bob", 1, 10)
	if err != nil {
		t.Fatalf("Explore failed: %v", err)
	}
	assertOrder(t, bobPage.Items, "p1")
}

func TestOnPostEngagementInvalidatesExplore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "alice")
	f.seedUser(t, "bob")

	now := time.Now().UTC()
	f.seedPost(t, "p1", "bob", now.Add(-2*time.Hour), withCounts(5, 0)) // 10
	f.seedPost(t, "p2", "bob", now.Add(-1*time.Hour), withCounts(1, 0)) // 2

	page, err := f.svc.Explore(ctx, "alice", 1, 10)
	if err != nil {
		t.Fatalf("Explore failed: %v", err)
	}
	assertOrder(t, page.Items, "p1", "p2")

	// The like write path bumps the counter and fires the hook.
	if err := f.db.Model(&models.Post{}).Where("id = ?", "p2").
		Update("likes_count", 10).Error; err != nil {
		t.Fatalf("failed to bump counter: %v", err)
	}
	f.svc.OnPostEngagement(ctx, "p2")

	page, err = f.svc.Explore(ctx, "alice", 1, 10)
	if err != nil {
		t.Fatalf("Explore failed: %v", err)
	}
	assertOrder(t, page.Items, "p2", "p1")
}

func TestOnFollowChangedInvalidatesOnlyViewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "alice")
	f.seedUser(t, "bob")
	f.seedPost(t, "p1", "alice", time.Now().UTC().Add(-time.Minute))

	if _, err := f.svc.Feed(ctx, "alice", 1, 10); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if _, err := f.svc.Feed(ctx, "bob", 1, 10); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	f.svc.OnFollowChanged(ctx, "alice")

	if f.redis.Exists(cache.FeedKey("alice", 1, 10)) {
		t.Error("expected alice's feed page invalidated")
	}
	if !f.redis.Exists(cache.FeedKey("bob", 1, 10)) {
		t.Error("expected bob's feed page untouched")
	}
}
