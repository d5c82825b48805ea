package notify

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/gramnet/pulse/internal/cache"
	"github.com/gramnet/pulse/internal/db"
	"github.com/gramnet/pulse/internal/models"
	"github.com/gramnet/pulse/internal/realtime"
	"github.com/gramnet/pulse/pkg/logging"
)

// Service creates notification records, keeps the unread counters
// coherent, and pushes live events to connected recipients.
//
// A store failure on insert is surfaced to the caller; failures of the
// cache invalidation or the live push are logged and swallowed, so a
// like that persisted never looks failed because a push did not land.
//
// Calls are not idempotent: the same entry twice makes two rows.
// Callers dedupe (a like toggled off and on again within one request
// should not notify twice).
type Service struct {
	notifs    *db.NotificationRepository
	users     *db.UserRepository
	follows   *db.FollowRepository
	cache     *cache.Cache
	router    *realtime.Router
	unreadTTL time.Duration
	logger    *zap.Logger
}

// NewService creates a notification service.
func NewService(repo *db.Repository, c *cache.Cache, router *realtime.Router, unreadTTL time.Duration) *Service {
	return &Service{
		notifs:    db.NewNotificationRepository(repo),
		users:     db.NewUserRepository(repo),
		follows:   db.NewFollowRepository(repo),
		cache:     c,
		router:    router,
		unreadTTL: unreadTTL,
		logger:    logging.WithComponent("notify"),
	}
}

// Entry describes one notification to create. SenderID is "" for
// system notifications. Ref IDs are optional.
type Entry struct {
	RecipientID string
	SenderID    string
	Type        string
	Title       string
	Message     string
	PostID      string
	CommentID   string
	StoryID     string
}

func (e Entry) toModel(now time.Time) *models.Notification {
	return &models.Notification{
		RecipientID: e.RecipientID,
		SenderID:    nullString(e.SenderID),
		Type:        e.Type,
		Title:       e.Title,
		Message:     e.Message,
		PostID:      nullString(e.PostID),
		CommentID:   nullString(e.CommentID),
		StoryID:     nullString(e.StoryID),
		CreatedAt:   now,
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// NotifyOne inserts one record, invalidates the recipient's unread
// counter, and pushes the record live. Only the insert can fail the
// call; the two side effects are each attempted regardless of the
// other's outcome.
func (s *Service) NotifyOne(ctx context.Context, entry Entry) (*models.Notification, error) {
	if !models.ValidNotifyType(entry.Type) {
		return nil, fmt.Errorf("unknown notification type %q", entry.Type)
	}

	notif := entry.toModel(time.Now().UTC())
	if err := s.notifs.Create(ctx, notif); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	s.invalidateUnread(ctx, entry.RecipientID)
	s.push(ctx, notif)

	return notif, nil
}

// NotifyMany inserts all entries in one batched write, invalidates the
// unread counter once per distinct recipient, then pushes to each
// connected recipient individually. A recipient listed twice gets two
// rows but one invalidation.
func (s *Service) NotifyMany(ctx context.Context, entries []Entry) ([]*models.Notification, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	for _, e := range entries {
		if !models.ValidNotifyType(e.Type) {
			return nil, fmt.Errorf("unknown notification type %q", e.Type)
		}
	}

	now := time.Now().UTC()
	notifs := make([]*models.Notification, len(entries))
	for i, e := range entries {
		notifs[i] = e.toModel(now)
	}

	if err := s.notifs.CreateBatch(ctx, notifs); err != nil {
		return nil, fmt.Errorf("failed to create notifications: %w", err)
	}

	// Dedup happens after the rows are built: the row count stays N
	// while the invalidation count is the number of distinct recipients.
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.RecipientID]; ok {
			continue
		}
		seen[e.RecipientID] = struct{}{}
		s.invalidateUnread(ctx, e.RecipientID)
	}

	// One sender lookup for the whole batch, not one per row.
	senders := s.senderSummaries(ctx, notifs)
	for _, n := range notifs {
		var sender *models.UserSummary
		if n.SenderID.Valid {
			if summary, ok := senders[n.SenderID.String]; ok {
				sender = &summary
			}
		}
		s.pushWithSender(n, sender)
	}

	return notifs, nil
}

// NotifyFollowers fans the template out to every accepted follower of
// userID, one row per follower. The template's recipient and sender
// are overwritten; a user with no followers notifies nobody.
func (s *Service) NotifyFollowers(ctx context.Context, userID string, template Entry) ([]*models.Notification, error) {
	followers, err := s.follows.FollowerIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load followers: %w", err)
	}

	entries := make([]Entry, len(followers))
	for i, followerID := range followers {
		e := template
		e.RecipientID = followerID
		e.SenderID = userID
		entries[i] = e
	}
	return s.NotifyMany(ctx, entries)
}

// UnreadCount returns the recipient's unread total, read through the
// cache and lazily recomputed from the rows on a miss.
func (s *Service) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	key := cache.UnreadCountKey(recipientID)

	if val, err := s.cache.Get(ctx, key); err == nil {
		if count, perr := strconv.ParseInt(val, 10, 64); perr == nil {
			return count, nil
		}
	}

	count, err := s.notifs.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	if err := s.cache.Set(ctx, key, count, s.unreadTTL); err != nil && err != cache.ErrCacheDisabled {
		s.logger.Warn("failed to cache unread count",
			zap.String("recipient_id", recipientID), zap.Error(err))
	}

	return count, nil
}

// Page describes offset pagination of a notification listing.
type Page struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

// List returns one page of a recipient's notifications, newest first.
func (s *Service) List(ctx context.Context, recipientID string, unreadOnly bool, page, limit int) ([]*models.Notification, Page, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	notifs, total, err := s.notifs.ListByRecipient(ctx, recipientID, unreadOnly, limit, (page-1)*limit)
	if err != nil {
		return nil, Page{}, fmt.Errorf("failed to list notifications: %w", err)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return notifs, Page{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}, nil
}

// MarkRead flips the given notifications to read and invalidates the
// recipient's unread counter.
func (s *Service) MarkRead(ctx context.Context, recipientID string, ids []int64) (int64, error) {
	updated, err := s.notifs.MarkRead(ctx, recipientID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	s.invalidateUnread(ctx, recipientID)
	return updated, nil
}

// MarkAllRead flips every unread notification of the recipient.
func (s *Service) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	updated, err := s.notifs.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	s.invalidateUnread(ctx, recipientID)
	return updated, nil
}

// Delete removes one notification owned by the recipient.
func (s *Service) Delete(ctx context.Context, recipientID string, id int64) (bool, error) {
	deleted, err := s.notifs.Delete(ctx, recipientID, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete notification: %w", err)
	}
	if deleted {
		s.invalidateUnread(ctx, recipientID)
	}
	return deleted, nil
}

// DeleteRead removes every read notification of the recipient.
func (s *Service) DeleteRead(ctx context.Context, recipientID string) (int64, error) {
	deleted, err := s.notifs.DeleteRead(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete read notifications: %w", err)
	}
	return deleted, nil
}

// invalidateUnread drops the cached counter so the next read
// recomputes. Cache trouble is logged, never surfaced: the row is the
// truth and the counter will converge.
func (s *Service) invalidateUnread(ctx context.Context, recipientID string) {
	err := s.cache.Delete(ctx, cache.UnreadCountKey(recipientID))
	if err != nil && err != cache.ErrCacheDisabled {
		s.logger.Warn("failed to invalidate unread counter",
			zap.String("recipient_id", recipientID), zap.Error(err))
	}
}

// push delivers the record live to any connected recipient. Absent
// recipients are skipped; push failures stay inside the router.
func (s *Service) push(ctx context.Context, notif *models.Notification) {
	var sender *models.UserSummary
	if notif.SenderID.Valid {
		u, err := s.users.GetByID(ctx, notif.SenderID.String)
		if err != nil {
			s.logger.Warn("failed to resolve notification sender",
				zap.String("sender_id", notif.SenderID.String), zap.Error(err))
		} else if u != nil {
			summary := u.Summary()
			sender = &summary
		}
	}
	s.pushWithSender(notif, sender)
}

func (s *Service) pushWithSender(notif *models.Notification, sender *models.UserSummary) {
	if !s.router.Presence().IsOnline(notif.RecipientID) {
		return
	}

	s.router.EmitToUser(notif.RecipientID, realtime.Event{
		Kind: realtime.KindNotification,
		Payload: realtime.NotificationPayload{
			ID:        notif.ID,
			Type:      notif.Type,
			Title:     notif.Title,
			Message:   notif.Message,
			PostID:    notif.PostID.String,
			CommentID: notif.CommentID.String,
			StoryID:   notif.StoryID.String,
			CreatedAt: notif.CreatedAt,
			Sender:    sender,
		},
	})
}

// senderSummaries resolves the distinct senders of a batch in one
// query. A failed lookup degrades to sender-less payloads.
func (s *Service) senderSummaries(ctx context.Context, notifs []*models.Notification) map[string]models.UserSummary {
	seen := make(map[string]struct{}, len(notifs))
	ids := make([]string, 0, len(notifs))
	for _, n := range notifs {
		if !n.SenderID.Valid {
			continue
		}
		if _, ok := seen[n.SenderID.String]; ok {
			continue
		}
		seen[n.SenderID.String] = struct{}{}
		ids = append(ids, n.SenderID.String)
	}
	if len(ids) == 0 {
		return nil
	}

	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to resolve notification senders", zap.Error(err))
		return nil
	}
	summaries := make(map[string]models.UserSummary, len(users))
	for _, u := range users {
		summaries[u.ID] = u.Summary()
	}
	return summaries
}
