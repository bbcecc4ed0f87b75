// Package store persists users, posts (with their comments) and named
// counters. Two backends implement Store: MongoStore, the document store the
// board is deployed on, and SQLStore (gorm + sqlite) for local runs and tests.
package store

import (
	"context"
	"errors"

	"messageboard/models"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateUsername = errors.New("username already exists")
)

// PostSequence names the counter that numbers posts.
const PostSequence = "posts"

type SortOrder int

const (
	SortRecent SortOrder = iota // created_at desc
	SortViews                   // views desc, then created_at desc
)

// PostFilter is the store-neutral output of the post query builder.
// Text is matched case-insensitively as a substring of each of Fields;
// AuthorIDs matches posts written by any of the ids. All clauses are OR-ed.
// A filter with no clauses matches every post; Empty matches none.
type PostFilter struct {
	Text      string
	Fields    []string
	AuthorIDs []string
	Empty     bool
}

// SearchFields are the post fields a text search may target.
var SearchFields = map[string]bool{"title": true, "body": true}

type ListOptions struct {
	Skip  int
	Limit int
	Sort  SortOrder
}

type Store interface {
	Migrate(ctx context.Context) error
	Close(ctx context.Context) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	// GetUserCredentials is the only read that returns the password hash.
	GetUserCredentials(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	FindUserIDs(ctx context.Context, username string, exact bool) ([]string, error)
	// UpdateUser writes username, name and email, and the hash when set.
	UpdateUser(ctx context.Context, user *models.User) error

	// NextSequence atomically increments the named counter and returns the new value.
	NextSequence(ctx context.Context, name string) (int64, error)

	CreatePost(ctx context.Context, post *models.Post) error
	// GetPost returns the post with its comments, authors populated.
	GetPost(ctx context.Context, id string) (*models.Post, error)
	CountPosts(ctx context.Context, filter PostFilter) (int64, error)
	// ListPosts returns posts without comments, authors populated.
	ListPosts(ctx context.Context, filter PostFilter, opts ListOptions) ([]models.Post, error)
	UpdatePost(ctx context.Context, post *models.Post) error
	DeletePost(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) error

	AddComment(ctx context.Context, postID string, comment *models.Comment) error
	DeleteComment(ctx context.Context, postID, commentID string) error
}

type userLookup func(ctx context.Context, ids []string) (map[string]*models.User, error)

// populate resolves author references on posts and their comments.
func populate(ctx context.Context, lookup userLookup, posts ...*models.Post) error {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, p := range posts {
		add(p.AuthorID)
		for _, c := range p.Comments {
			add(c.AuthorID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	users, err := lookup(ctx, ids)
	if err != nil {
		return err
	}
	for _, p := range posts {
		p.Author = users[p.AuthorID]
		for i := range p.Comments {
			p.Comments[i].Author = users[p.Comments[i].AuthorID]
		}
	}
	return nil
}

func postPointers(posts []models.Post) []*models.Post {
	out := make([]*models.Post, len(posts))
	for i := range posts {
		out[i] = &posts[i]
	}
	return out
}
