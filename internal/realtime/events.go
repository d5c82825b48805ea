package realtime

import (
	"encoding/json"
	"time"

	"github.com/gramnet/pulse/internal/models"
)

// Kind enumerates every event that crosses the transport, in both
// directions. Inbound kinds are requests from connections; outbound
// kinds are pushed by the router.
type Kind string

// Outbound event kinds
const (
	KindNotification      Kind = "notification"
	KindPostLiked         Kind = "post_liked"
	KindPostLikeUpdate    Kind = "post_like_update"
	KindNewComment        Kind = "new_comment"
	KindCommentAdded      Kind = "comment_added"
	KindCommentReply      Kind = "comment_reply"
	KindNewFollower       Kind = "new_follower"
	KindStoryView         Kind = "story_view"
	KindUserTyping        Kind = "user_typing"
	KindUserStoppedTyping Kind = "user_stopped_typing"
	KindOnlineStatus      Kind = "online_status"
	KindPong              Kind = "pong"
	KindError             Kind = "error"
)

// Inbound event kinds. A client comment arrives as "new_comment", the
// same name the owner receives it under.
const (
	KindJoinRoom        Kind = "join_room"
	KindLeaveRoom       Kind = "leave_room"
	KindLikePost        Kind = "like_post"
	KindFollowUser      Kind = "new_follow"
	KindStoryViewed     Kind = "story_viewed"
	KindTypingStart     Kind = "typing_start"
	KindTypingStop      Kind = "typing_stop"
	KindGetOnlineStatus Kind = "get_online_status"
	KindPing            Kind = "ping"
)

// Event is the outbound envelope: an enumerated kind plus a
// kind-specific payload, so consumers match on the tag instead of
// trusting untyped fields.
type Event struct {
	Kind    Kind        `json:"event"`
	Payload interface{} `json:"payload"`
}

// InboundEvent is the wire shape of a client request; the payload
// stays raw until the dispatcher decodes it into the kind's type.
type InboundEvent struct {
	Kind    Kind            `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// LikePayload carries a like/unlike interaction.
type LikePayload struct {
	PostID    string             `json:"postId"`
	IsLiked   bool               `json:"isLiked"`
	User      models.UserSummary `json:"user,omitempty"`
	UserID    string             `json:"userId,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// CommentPayload carries a new comment, optionally a reply.
type CommentPayload struct {
	ID        string             `json:"id"`
	PostID    string             `json:"postId"`
	ParentID  string             `json:"parentId,omitempty"`
	Content   string             `json:"content"`
	User      models.UserSummary `json:"user"`
	Timestamp time.Time          `json:"timestamp"`
}

// FollowPayload announces a new follower; Status distinguishes an
// accepted follow from a pending request to a private account.
type FollowPayload struct {
	FollowedUserID string             `json:"followedUserId,omitempty"`
	Follower       models.UserSummary `json:"follower"`
	Status         string             `json:"status"`
	Timestamp      time.Time          `json:"timestamp"`
}

// StoryViewPayload tells a story owner who watched.
type StoryViewPayload struct {
	StoryID      string             `json:"storyId"`
	StoryOwnerID string             `json:"storyOwnerId,omitempty"`
	Viewer       models.UserSummary `json:"viewer"`
	Timestamp    time.Time          `json:"timestamp"`
}

// TypingPayload drives typing indicators in a conversation channel.
type TypingPayload struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	Username       string    `json:"username,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// RoomPayload joins or leaves a named channel.
type RoomPayload struct {
	Room string `json:"room"`
}

// OnlineStatusQuery asks for the presence of a set of users.
type OnlineStatusQuery struct {
	UserIDs []string `json:"userIds"`
}

// OnlineStatusPayload answers an OnlineStatusQuery.
type OnlineStatusPayload map[string]bool

// PongPayload answers a heartbeat.
type PongPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// ErrorPayload reports a failed inbound event back to its sender.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NotificationPayload is the live twin of a stored notification row.
type NotificationPayload struct {
	ID        int64               `json:"id"`
	Type      string              `json:"type"`
	Title     string              `json:"title"`
	Message   string              `json:"message"`
	Sender    *models.UserSummary `json:"sender,omitempty"`
	PostID    string              `json:"postId,omitempty"`
	CommentID string              `json:"commentId,omitempty"`
	StoryID   string              `json:"storyId,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
}

// Channel name helpers. Channels are the named delivery scopes
// connections subscribe to.

// UserChannel is the personal channel every authenticated connection
// joins on handshake.
func UserChannel(userID string) string {
	return "user:" + userID
}

// PostChannel scopes delivery to viewers of one post.
func PostChannel(postID string) string {
	return "post:" + postID
}

// ConversationChannel scopes typing indicators to one conversation.
func ConversationChannel(conversationID string) string {
	return "conversation:" + conversationID
}
