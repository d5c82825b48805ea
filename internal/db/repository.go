package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gramnet/pulse/internal/models"
)

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying gorm handle for feature packages that
// build their own queries.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// UserRepository provides user-related database operations
type UserRepository struct {
	*Repository
}

// NewUserRepository creates a new user repository
func NewUserRepository(repo *Repository) *UserRepository {
	return &UserRepository{Repository: repo}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetByIDs retrieves multiple users by ID
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	var users []*models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// TouchLastActive updates a user's last-active timestamp.
func (r *UserRepository) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("last_active_at", at).Error
}

// NotificationRepository provides notification-related database operations
type NotificationRepository struct {
	*Repository
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(repo *Repository) *NotificationRepository {
	return &NotificationRepository{Repository: repo}
}

// Create inserts a single notification
func (r *NotificationRepository) Create(ctx context.Context, notif *models.Notification) error {
	return r.db.WithContext(ctx).Create(notif).Error
}

// CreateBatch inserts all notifications in one statement. Fan-out to
// dozens of recipients must not serialize into dozens of round trips.
func (r *NotificationRepository) CreateBatch(ctx context.Context, notifs []*models.Notification) error {
	if len(notifs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&notifs).Error
}

// CountUnread counts unread notifications for a recipient
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

// ListByRecipient retrieves a page of notifications, newest first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit, offset int) ([]*models.Notification, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ?", recipientID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var notifs []*models.Notification
	if err := query.
		Preload("Sender").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&notifs).Error; err != nil {
		return nil, 0, err
	}
	return notifs, total, nil
}

// MarkRead marks the given notifications read, scoped to the
// recipient so users cannot touch each other's rows. Returns the
// number of rows actually flipped.
func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id IN ? AND recipient_id = ? AND is_read = ?", ids, recipientID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// MarkAllRead marks every unread notification of a recipient read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// Delete removes one notification owned by the recipient.
func (r *NotificationRepository) Delete(ctx context.Context, recipientID string, id int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Delete(&models.Notification{})
	return res.RowsAffected > 0, res.Error
}

// DeleteRead removes all read notifications of a recipient.
func (r *NotificationRepository) DeleteRead(ctx context.Context, recipientID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("recipient_id = ? AND is_read = ?", recipientID, true).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}

// PostRepository provides post-related database operations
type PostRepository struct {
	*Repository
}

// NewPostRepository creates a new post repository
func NewPostRepository(repo *Repository) *PostRepository {
	return &PostRepository{Repository: repo}
}

// GetByID retrieves a post by ID
func (r *PostRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &post, nil
}

// OwnerOf returns the owning user of a post, or "" if the post does
// not exist.
func (r *PostRepository) OwnerOf(ctx context.Context, postID string) (string, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Select("user_id").
		Where("id = ?", postID).
		First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return post.UserID, nil
}

// visiblePosts scopes a query to posts that may appear in feeds.
func visiblePosts(db *gorm.DB) *gorm.DB {
	return db.Where("is_archived = ? AND is_hidden = ?", false, false)
}

// ListByAuthors returns one offset page of visible posts by the given
// authors, newest first, with the author joined in.
func (r *PostRepository) ListByAuthors(ctx context.Context, authorIDs []string, limit, offset int) ([]*models.Post, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}
	var posts []*models.Post
	err := visiblePosts(r.db.WithContext(ctx)).
		Where("user_id IN ?", authorIDs).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Preload("Author").
		Find(&posts).Error
	return posts, err
}

// CountByAuthors counts visible posts by the given authors.
func (r *PostRepository) CountByAuthors(ctx context.Context, authorIDs []string) (int64, error) {
	if len(authorIDs) == 0 {
		return 0, nil
	}
	var count int64
	err := visiblePosts(r.db.WithContext(ctx).Model(&models.Post{})).
		Where("user_id IN ?", authorIDs).
		Count(&count).Error
	return count, err
}

// ListByAuthorsBefore returns visible posts by the given authors
// strictly older than cursor, newest first. A zero cursor means from
// the top.
func (r *PostRepository) ListByAuthorsBefore(ctx context.Context, authorIDs []string, cursor time.Time, limit int) ([]*models.Post, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}
	q := visiblePosts(r.db.WithContext(ctx)).
		Where("user_id IN ?", authorIDs)
	if !cursor.IsZero() {
		q = q.Where("created_at < ?", cursor)
	}
	var posts []*models.Post
	err := q.Order("created_at DESC").
		Limit(limit).
		Preload("Author").
		Find(&posts).Error
	return posts, err
}

// ListExplore returns one page of recent visible posts excluding the
// given authors, ranked by engagement. Likes weigh 2, comments 3, ties
// break newest first.
func (r *PostRepository) ListExplore(ctx context.Context, excludeAuthorIDs []string, since time.Time, limit, offset int) ([]*models.Post, error) {
	q := visiblePosts(r.db.WithContext(ctx)).
		Where("created_at > ?", since)
	if len(excludeAuthorIDs) > 0 {
		q = q.Where("user_id NOT IN ?", excludeAuthorIDs)
	}
	var posts []*models.Post
	err := q.Order("(likes_count * 2 + comments_count * 3) DESC").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Preload("Author").
		Find(&posts).Error
	return posts, err
}

// CountExplore counts the posts ListExplore ranks over.
func (r *PostRepository) CountExplore(ctx context.Context, excludeAuthorIDs []string, since time.Time) (int64, error) {
	q := visiblePosts(r.db.WithContext(ctx).Model(&models.Post{})).
		Where("created_at > ?", since)
	if len(excludeAuthorIDs) > 0 {
		q = q.Where("user_id NOT IN ?", excludeAuthorIDs)
	}
	var count int64
	err := q.Count(&count).Error
	return count, err
}

// FollowRepository provides follow-graph database operations
type FollowRepository struct {
	*Repository
}

// NewFollowRepository creates a new follow repository
func NewFollowRepository(repo *Repository) *FollowRepository {
	return &FollowRepository{Repository: repo}
}

// FollowerIDs returns the IDs of users following userID with an
// accepted follow, newest followers first.
func (r *FollowRepository) FollowerIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Select("follower_id").
		Where("following_id = ? AND status = ?", userID, models.FollowStatusAccepted).
		Order("created_at DESC").
		Scan(&ids).Error
	return ids, err
}

// FollowingIDs returns the IDs of users userID follows (accepted only).
func (r *FollowRepository) FollowingIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Select("following_id").
		Where("follower_id = ? AND status = ?", userID, models.FollowStatusAccepted).
		Scan(&ids).Error
	return ids, err
}

// StoryRepository provides story database operations
type StoryRepository struct {
	*Repository
}

// NewStoryRepository creates a new story repository
func NewStoryRepository(repo *Repository) *StoryRepository {
	return &StoryRepository{Repository: repo}
}

// GetByID retrieves a story regardless of expiry. Callers decide
// whether an expired story is acceptable.
func (r *StoryRepository) GetByID(ctx context.Context, id string) (*models.Story, error) {
	var story models.Story
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&story).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &story, nil
}

// ActiveByOwners returns unexpired stories by the given owners, newest
// first, with the owner joined in.
func (r *StoryRepository) ActiveByOwners(ctx context.Context, ownerIDs []string, now time.Time) ([]*models.Story, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	var stories []*models.Story
	err := r.db.WithContext(ctx).
		Where("user_id IN ? AND expires_at > ?", ownerIDs, now).
		Order("created_at DESC").
		Preload("Owner").
		Find(&stories).Error
	return stories, err
}

// InsertView records one viewer seeing one story, bumping the view
// counter only on first sight. Returns true when the view was new.
func (r *StoryRepository) InsertView(ctx context.Context, storyID, viewerID string, at time.Time) (bool, error) {
	view := models.StoryView{StoryID: storyID, ViewerID: viewerID, ViewedAt: at}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&view)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	err := r.db.WithContext(ctx).Model(&models.Story{}).
		Where("id = ?", storyID).
		UpdateColumn("views_count", gorm.Expr("views_count + 1")).Error
	return true, err
}

// DeleteExpired removes stories whose expiry has passed, views first
// so no view rows orphan. Returns the number of stories removed.
func (r *StoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("story_id IN (?)", tx.Model(&models.Story{}).Select("id").Where("expires_at <= ?", now)).
			Delete(&models.StoryView{}).Error; err != nil {
			return err
		}
		res := tx.Where("expires_at <= ?", now).Delete(&models.Story{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return nil
	})
	return removed, err
}

// TrendingRepository provides hashtag accumulator database operations
type TrendingRepository struct {
	*Repository
}

// NewTrendingRepository creates a new trending repository
func NewTrendingRepository(repo *Repository) *TrendingRepository {
	return &TrendingRepository{Repository: repo}
}

// Bump upserts one hashtag row, atomically incrementing both counters
// and refreshing the recency stamp. Concurrent bumps of the same tag
// serialize inside the database, never in application code.
func (r *TrendingRepository) Bump(ctx context.Context, hashtag string, scoreDelta int64, usedAt time.Time) error {
	row := models.TrendingHashtag{
		Hashtag:    hashtag,
		PostsCount: 1,
		TrendScore: scoreDelta,
		LastUsedAt: usedAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "hashtag"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"posts_count":  gorm.Expr("trending_hashtags.posts_count + 1"),
			"trend_score":  gorm.Expr("trending_hashtags.trend_score + ?", scoreDelta),
			"last_used_at": usedAt,
		}),
	}).Create(&row).Error
}

// Top returns the highest-scoring hashtags used since the cutoff.
// Score descending, then usage count, then recency.
func (r *TrendingRepository) Top(ctx context.Context, since time.Time, limit int) ([]*models.TrendingHashtag, error) {
	var tags []*models.TrendingHashtag
	err := r.db.WithContext(ctx).
		Where("last_used_at > ?", since).
		Order("trend_score DESC").
		Order("posts_count DESC").
		Order("last_used_at DESC").
		Limit(limit).
		Find(&tags).Error
	return tags, err
}

// CommentRepository provides comment-related database operations
type CommentRepository struct {
	*Repository
}

// NewCommentRepository creates a new comment repository
func NewCommentRepository(repo *Repository) *CommentRepository {
	return &CommentRepository{Repository: repo}
}

// AuthorOf returns the author of a comment, or "" if it does not exist.
func (r *CommentRepository) AuthorOf(ctx context.Context, commentID string) (string, error) {
	var comment models.Comment
	err := r.db.WithContext(ctx).
		Select("user_id").
		Where("id = ?", commentID).
		First(&comment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return comment.UserID, nil
}
