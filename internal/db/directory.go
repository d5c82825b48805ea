package db

import (
	"context"

	"github.com/gramnet/pulse/internal/models"
)

// Directory is the store-backed identity resolver handed to the
// realtime layer. It keeps gorm out of the transport packages.
type Directory struct {
	users    *UserRepository
	posts    *PostRepository
	comments *CommentRepository
}

// NewDirectory creates a directory over the shared repository.
func NewDirectory(repo *Repository) *Directory {
	return &Directory{
		users:    NewUserRepository(repo),
		posts:    NewPostRepository(repo),
		comments: NewCommentRepository(repo),
	}
}

// UserSummary resolves the embeddable shape of a user, or nil when
// the user does not exist or is deactivated.
func (d *Directory) UserSummary(ctx context.Context, userID string) (*models.UserSummary, error) {
	user, err := d.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, nil
	}
	summary := user.Summary()
	return &summary, nil
}

// PostOwner resolves the owning user of a post, "" if absent.
func (d *Directory) PostOwner(ctx context.Context, postID string) (string, error) {
	return d.posts.OwnerOf(ctx, postID)
}

// CommentAuthor resolves the author of a comment, "" if absent.
func (d *Directory) CommentAuthor(ctx context.Context, commentID string) (string, error) {
	return d.comments.AuthorOf(ctx, commentID)
}
