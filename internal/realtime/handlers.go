package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gramnet/pulse/internal/models"
)

// Directory resolves the identities interaction handlers need. The
// store-backed implementation lives with the repositories.
type Directory interface {
	UserSummary(ctx context.Context, userID string) (*models.UserSummary, error)
	PostOwner(ctx context.Context, postID string) (string, error)
	CommentAuthor(ctx context.Context, commentID string) (string, error)
}

// RegisterInteractionHandlers wires the full set of inbound events
// into the dispatcher: channel membership, interaction fan-out,
// typing indicators, presence queries and heartbeats.
func RegisterInteractionHandlers(d *Dispatcher, router *Router, dir Directory) {
	h := &interactionHandlers{router: router, dir: dir}

	d.Register(KindJoinRoom, h.joinRoom)
	d.Register(KindLeaveRoom, h.leaveRoom)
	d.Register(KindLikePost, h.likePost)
	d.Register(KindNewComment, h.newComment)
	d.Register(KindFollowUser, h.newFollow)
	d.Register(KindStoryViewed, h.storyViewed)
	d.Register(KindTypingStart, h.typingStart)
	d.Register(KindTypingStop, h.typingStop)
	d.Register(KindGetOnlineStatus, h.getOnlineStatus)
	d.Register(KindPing, h.ping)
}

type interactionHandlers struct {
	router *Router
	dir    Directory
}

func (h *interactionHandlers) sender(ctx context.Context, conn Conn) (models.UserSummary, error) {
	summary, err := h.dir.UserSummary(ctx, conn.UserID())
	if err != nil {
		return models.UserSummary{}, fmt.Errorf("failed to resolve sender: %w", err)
	}
	if summary == nil {
		return models.UserSummary{}, fmt.Errorf("unknown sender %s", conn.UserID())
	}
	return *summary, nil
}

func (h *interactionHandlers) joinRoom(ctx context.Context, conn Conn, payload json.RawMessage) error {
	var p RoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid join_room payload: %w", err)
	}
	h.router.JoinChannel(conn.ID(), p.Room)
	return nil
}

func (h *interactionHandlers) leaveRoom(ctx context.Context, conn Conn, payload json.RawMessage) error {
	var p RoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid leave_room payload: %w", err)
	}
	h.router.LeaveChannel(conn.ID(), p.Room)
	return nil
}

// likePost notifies the post owner personally (unless they liked their
// own post) and updates everyone watching the post's channel.
func (h *interactionHandlers) likePost(ctx context.Context, conn Conn, payload json.RawMessage) error {
	var p LikePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid like_post payload: %w", err)
	}

	ownerID, err := h.dir.PostOwner(ctx, p.PostID)
	if err != nil {
		return fmt.Errorf("failed to look up post %s: %w", p.PostID, err)
	}
	if ownerID == "" {
		return nil
	}

	now := time.Now().UTC()

	if ownerID != conn.UserID() {
		sender, err := h.sender(ctx, conn)
		if err != nil {
			return err
		}
		h.router.EmitToUser(ownerID, Event{Kind: KindPostLiked, Payload: LikePayload{
			PostID:    p.PostID,
			IsLiked:   p.IsLiked,
			User:      sender,
			Timestamp: now,
		}})
	}

	h.router.EmitToChannel(PostChannel(p.PostID), Event{Kind: KindPostLikeUpdate, Payload: LikePayload{
		PostID:    p.PostID,
		IsLiked:   p.IsLiked,
		UserID:    conn.UserID(),
		Timestamp: now,
	}}, "")
	return nil
}

// newComment notifies the post owner, the post's watchers, and when
// replying, the parent comment's author.
func (h *interactionHandlers) newComment(ctx context.Context, conn Conn, payload json.RawMessage) error {
	var p CommentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid new_comment payload: %w", err)
	}

	ownerID, err := h.dir.PostOwner(ctx, p.PostID)
	if err != nil {
		return fmt.Errorf("failed to look up post %s: %w", p.PostID, err)
	}
	if ownerID == "" {
		return nil
	}

	sender, err := h.sender(ctx, conn)
	if err != nil {
		return err
	}

	comment := CommentPayload{
		ID:        p.ID,
		PostID:    p.PostID,
		ParentID:  p.ParentID,
		Content:   p.Content,
		User:      sender,
		Timestamp: time.Now().UTC(),
	}

	if ownerID != conn.UserID() {
		h.router.EmitToUser(ownerID, Event{Kind: KindNewComment, Payload: comment})
	}

	h.router.EmitToChannel(PostChannel(p.PostID), Event{Kind: KindCommentAdded, Payload: comment}, "")

	if p.ParentID != "" {
		parentAuthor, err := h.dir.CommentAuthor(ctx, p.ParentID)
		if err != nil {
			return fmt.Errorf("failed to look up comment %s: %w", p.ParentID, err)
		}
		if parentAuthor != "" && parentAuthor != conn.UserID() {
			h.router.EmitToUser(parentAuthor, Event{Kind: KindCommentReply, Payload: comment})
		}
	}
	return nil
}

func (h *interactionHandlers) newFollow(ctx context.Context, conn Conn, payload json.RawMessage) error {
	var p FollowPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid new_follow payload: %w", err)
	}

	sender, err := h.sender(ctx, conn)
	if err != nil {
		return err
	}

	h.router.EmitToUser(p.FollowedUserID, Event{Kind: KindNewFollower, Payload: FollowPayload{
		Follower:  sender,
		Status:    p.Status,
		Timestamp: time.Now().UTC(),
	}})
	return nil
}

func (h *interactionHandlers) storyViewed(ctx context.Context, conn Conn, payload json.RawMessage) error {
	var p StoryViewPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid story_viewed payload: %w", err)
	}

	// Owners are not told about their own views.
	if p.StoryOwnerID == conn.UserID() {
		return nil
	}

	sender, err := h.sender(ctx, conn)
	if err != nil {
		return err
	}

	h.router.EmitToUser(p.StoryOwnerID, Event{Kind: KindStoryView, Payload: StoryViewPayload{
		StoryID:   p.StoryID,
		Viewer:    sender,
		Timestamp: time.Now().UTC(),
	}})
	return nil
}

// typingStart excludes the typist from the conversation broadcast.
func (h *interactionHandlers) typingStart(ctx context.Context, conn Conn, payload json.RawMessage) error {
	var p TypingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid typing_start payload: %w", err)
	}

	sender, err := h.sender(ctx, conn)
	if err != nil {
		return err
	}

	h.router.EmitToChannel(ConversationChannel(p.ConversationID), Event{
		Kind: KindUserTyping,
		Payload: TypingPayload{
			ConversationID: p.ConversationID,
			UserID:         conn.UserID(),
			Username:       sender.Username,
			Timestamp:      time.Now().UTC(),
		},
	}, conn.ID())
	return nil
}

func (h *interactionHandlers) typingStop(ctx context.Context, conn Conn, payload json.RawMessage) error {
	var p TypingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid typing_stop payload: %w", err)
	}

	h.router.EmitToChannel(ConversationChannel(p.ConversationID), Event{
		Kind: KindUserStoppedTyping,
		Payload: TypingPayload{
			ConversationID: p.ConversationID,
			UserID:         conn.UserID(),
			Timestamp:      time.Now().UTC(),
		},
	}, conn.ID())
	return nil
}

func (h *interactionHandlers) getOnlineStatus(ctx context.Context, conn Conn, payload json.RawMessage) error {
	var p OnlineStatusQuery
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid get_online_status payload: %w", err)
	}

	status := h.router.Presence().OnlineAmong(p.UserIDs)
	return conn.Send(Event{Kind: KindOnlineStatus, Payload: OnlineStatusPayload(status)})
}

func (h *interactionHandlers) ping(ctx context.Context, conn Conn, payload json.RawMessage) error {
	return conn.Send(Event{Kind: KindPong, Payload: PongPayload{Timestamp: time.Now().UTC()}})
}
