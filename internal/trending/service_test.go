package trending

import (
	"context"
	"sync"
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

func newFixture(t *testing.T) (*Service, *gorm.DB, *miniredis.Miniredis) {
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
	if err := gdb.AutoMigrate(&models.TrendingHashtag{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	return NewService(db.NewRepository(gdb), c, 30*time.Minute), gdb, mr
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"#GoLang", "golang"},
		{"golang", "golang"},
		{"  #Sunset  ", "sunset"},
		{"#", ""},
		{"", ""},
		{"   ", ""},
		{"#ALLCAPS", "allcaps"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecordUseUpserts(t *testing.T) {
	svc, gdb, _ := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.RecordUse(ctx, "#sunset"); err != nil {
			t.Fatalf("RecordUse failed: %v", err)
		}
	}
	// Different spellings of the same tag hit the same row.
	if err := svc.RecordUse(ctx, "SUNSET"); err != nil {
		t.Fatalf("RecordUse failed: %v", err)
	}

	var row models.TrendingHashtag
	if err := gdb.First(&row, "hashtag = ?", "sunset").Error; err != nil {
		t.Fatalf("failed to load row: %v", err)
	}
	if row.PostsCount != 4 {
		t.Errorf("expected posts_count 4, got %d", row.PostsCount)
	}
	if row.TrendScore != 4 {
		t.Errorf("expected trend_score 4, got %d", row.TrendScore)
	}

	var total int64
	gdb.Model(&models.TrendingHashtag{}).Count(&total)
	if total != 1 {
		t.Errorf("expected a single row, got %d", total)
	}
}

func TestRecordUseSkipsEmptyTags(t *testing.T) {
	svc, gdb, _ := newFixture(t)

	if err := svc.RecordUse(context.Background(), "  # "); err != nil {
		t.Fatalf("RecordUse failed: %v", err)
	}
	var total int64
	gdb.Model(&models.TrendingHashtag{}).Count(&total)
	if total != 0 {
		t.Errorf("expected no rows, got %d", total)
	}
}

func TestConcurrentBumpsLoseNothing(t *testing.T) {
	svc, gdb, _ := newFixture(t)
	ctx := context.Background()

	const workers = 8
	const bumpsPerWorker = 10

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < bumpsPerWorker; j++ {
				if err := svc.RecordUse(ctx, "#busy"); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("RecordUse failed: %v", err)
	}

	var row models.TrendingHashtag
	if err := gdb.First(&row, "hashtag = ?", "busy").Error; err != nil {
		t.Fatalf("failed to load row: %v", err)
	}
	if row.PostsCount != workers*bumpsPerWorker {
		t.Errorf("expected posts_count %d, got %d", workers*bumpsPerWorker, row.PostsCount)
	}
}

func TestTopOrderingAndWindow(t *testing.T) {
	svc, gdb, _ := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed := []models.TrendingHashtag{
		{Hashtag: "high", PostsCount: 3, TrendScore: 30, LastUsedAt: now.Add(-time.Hour)},
		{Hashtag: "mid-busy", PostsCount: 9, TrendScore: 20, LastUsedAt: now.Add(-time.Hour)},
		{Hashtag: "mid-quiet", PostsCount: 4, TrendScore: 20, LastUsedAt: now.Add(-time.Hour)},
		{Hashtag: "recent-tie", PostsCount: 4, TrendScore: 10, LastUsedAt: now.Add(-time.Hour)},
		{Hashtag: "older-tie", PostsCount: 4, TrendScore: 10, LastUsedAt: now.Add(-2 * time.Hour)},
		{Hashtag: "expired", PostsCount: 99, TrendScore: 999, LastUsedAt: now.Add(-8 * 24 * time.Hour)},
	}
	for i := range seed {
		if err := gdb.Create(&seed[i]).Error; err != nil {
			t.Fatalf("failed to seed: %v", err)
		}
	}

	tags, err := svc.Top(ctx, 10)
	if err != nil {
		t.Fatalf("Top failed: %v", err)
	}

	want := []string{"high", "mid-busy", "mid-quiet", "recent-tie", "older-tie"}
	if len(tags) != len(want) {
		t.Fatalf("expected %d tags, got %d", len(want), len(tags))
	}
	for i, w := range want {
		if tags[i].Hashtag != w {
			t.Errorf("position %d: expected %q, got %q", i, w, tags[i].Hashtag)
		}
	}
}

func TestTopCachedPerLimit(t *testing.T) {
	svc, gdb, mr := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, tag := range []string{"one", "two", "three"} {
		row := models.TrendingHashtag{Hashtag: tag, PostsCount: 1, TrendScore: 1, LastUsedAt: now}
		if err := gdb.Create(&row).Error; err != nil {
			t.Fatalf("failed to seed: %v", err)
		}
	}

	if _, err := svc.Top(ctx, 2); err != nil {
		t.Fatalf("Top failed: %v", err)
	}
	if !mr.Exists(cache.TrendingKey(2)) {
		t.Error("expected listing for limit 2 to be cached")
	}
	if mr.Exists(cache.TrendingKey(3)) {
		t.Error("did not expect listing for limit 3 to be cached")
	}

	tags, err := svc.Top(ctx, 2)
	if err != nil {
		t.Fatalf("Top failed: %v", err)
	}
	if len(tags) != 2 {
		t.Errorf("expected 2 tags from cache, got %d", len(tags))
	}
}

func TestRecordPostHashtagsInvalidatesListing(t *testing.T) {
	svc, _, mr := newFixture(t)
	ctx := context.Background()

	if err := svc.RecordUse(ctx, "#first"); err != nil {
		t.Fatalf("RecordUse failed: %v", err)
	}
	if _, err := svc.Top(ctx, 10); err != nil {
		t.Fatalf("Top failed: %v", err)
	}
	if !mr.Exists(cache.TrendingKey(10)) {
		t.Fatal("expected cached listing")
	}

	if err := svc.RecordPostHashtags(ctx, []string{"#first", "#second"}); err != nil {
		t.Fatalf("RecordPostHashtags failed: %v", err)
	}
	if mr.Exists(cache.TrendingKey(10)) {
		t.Error("expected cached listing to be invalidated")
	}

	tags, err := svc.Top(ctx, 10)
	if err != nil {
		t.Fatalf("Top failed: %v", err)
	}
	if len(tags) != 2 {
		t.Errorf("expected 2 tags after recompute, got %d", len(tags))
	}
	if tags[0].Hashtag != "first" {
		t.Errorf("expected %q on top, got %q", "first", tags[0].Hashtag)
	}
}
