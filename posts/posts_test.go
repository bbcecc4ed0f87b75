package posts

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messageboard/models"
	"messageboard/store"
	"messageboard/testutil"
)

func setupTest(t *testing.T) (*store.SQLStore, http.Handler) {
	s := testutil.NewStore(t)
	router := testutil.NewRouter(t, s, NewPostsModule(s, nil))
	return s, router
}

func allPosts(t *testing.T, s store.Store) []models.Post {
	posts, err := s.ListPosts(context.Background(), store.PostFilter{}, store.ListOptions{})
	require.NoError(t, err)
	return posts
}

func TestIndex_Pagination(t *testing.T) {
	s, router := setupTest(t)
	alice := testutil.CreateUser(t, s, "alice", "secret123")
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 7; i++ {
		testutil.CreatePost(t, s, alice, fmt.Sprintf("Post number %d", i), "", base.Add(time.Duration(i)*time.Minute))
	}

	client := testutil.NewClient(t, router)
	w := client.Get("/posts?page=2&limit=5")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Post number 1")
	assert.Contains(t, w.Body.String(), "Post number 0")
	assert.NotContains(t, w.Body.String(), "Post number 2")
}

func TestIndex_Search(t *testing.T) {
	s, router := setupTest(t)
	alice := testutil.CreateUser(t, s, "alice", "secret123")
	bobby := testutil.CreateUser(t, s, "bobby", "secret123")
	now := time.Now()
	testutil.CreatePost(t, s, alice, "Learning ABC", "", now)
	testutil.CreatePost(t, s, alice, "Other topic", "", now.Add(time.Second))
	testutil.CreatePost(t, s, bobby, "Bobby writes", "", now.Add(2*time.Second))

	client := testutil.NewClient(t, router)

	w := client.Get("/posts?searchType=title&searchText=abc")
	assert.Contains(t, w.Body.String(), "Learning ABC")
	assert.NotContains(t, w.Body.String(), "Other topic")

	w = client.Get("/posts?searchType=title&searchText=ab")
	assert.Contains(t, w.Body.String(), "Other topic", "short text disables the filter")

	w = client.Get("/posts?searchType=author!&searchText=bobby")
	assert.Contains(t, w.Body.String(), "Bobby writes")
	assert.NotContains(t, w.Body.String(), "Learning ABC")

	w = client.Get("/posts?searchType=author&searchText=nobody")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "There is no data to show")
}

func TestCreate_RequiresLogin(t *testing.T) {
	s, router := setupTest(t)
	client := testutil.NewClient(t, router)

	w := client.Post("/posts", url.Values{"title": {"hello"}})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
	assert.Empty(t, allPosts(t, s))

	w = client.Get("/login")
	assert.Contains(t, w.Body.String(), "Please login first")
}

func TestCreate(t *testing.T) {
	s, router := setupTest(t)
	alice := testutil.CreateUser(t, s, "alice", "secret123")
	client := testutil.NewClient(t, router)
	client.Login("alice", "secret123")

	w := client.Post("/posts?page=3&limit=10", url.Values{"title": {"First"}, "body": {"hello"}})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/posts?limit=10&page=1", w.Header().Get("Location"))

	w = client.Post("/posts", url.Values{"title": {"Second"}})
	assert.Equal(t, http.StatusFound, w.Code)

	posts := allPosts(t, s)
	require.Len(t, posts, 2)
	assert.Equal(t, "Second", posts[0].Title)
	assert.Equal(t, int64(2), posts[0].Number)
	assert.Equal(t, int64(1), posts[1].Number)
	for _, p := range posts {
		assert.Equal(t, alice.ID, p.AuthorID)
		assert.Zero(t, p.Views)
	}
}

func TestCreate_ValidationError(t *testing.T) {
	s, router := setupTest(t)
	testutil.CreateUser(t, s, "alice", "secret123")
	client := testutil.NewClient(t, router)
	client.Login("alice", "secret123")

	w := client.Post("/posts", url.Values{"body": {"kept body"}})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/posts/new", w.Header().Get("Location"))
	assert.Empty(t, allPosts(t, s))

	w = client.Get("/posts/new")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Title is required!")
	assert.Contains(t, w.Body.String(), "kept body")

	w = client.Get("/posts/new")
	assert.NotContains(t, w.Body.String(), "Title is required!", "flash is shown once")
}

// longBody is larger than a cookie session can carry.
var longBody = strings.Repeat("lorem ipsum dolor ", 300)

func TestCreate_LongBodyValidationError(t *testing.T) {
	s, router := setupTest(t)
	testutil.CreateUser(t, s, "alice", "secret123")
	client := testutil.NewClient(t, router)
	client.Login("alice", "secret123")

	w := client.Post("/posts", url.Values{"title": {""}, "body": {longBody}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Title is required!")
	assert.Contains(t, w.Body.String(), longBody)
	assert.Empty(t, allPosts(t, s))

	// the session survives and holds no stale flash
	w = client.Get("/posts/new")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "Title is required!")
}

func TestUpdate_LongBodyValidationError(t *testing.T) {
	s, router := setupTest(t)
	alice := testutil.CreateUser(t, s, "alice", "secret123")
	post := testutil.CreatePost(t, s, alice, "Long one", "short", time.Now())
	client := testutil.NewClient(t, router)
	client.Login("alice", "secret123")

	w := client.Post("/posts/"+post.ID+"?_method=put", url.Values{"title": {""}, "body": {longBody}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Title is required!")
	assert.Contains(t, w.Body.String(), longBody)

	got, err := s.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Long one", got.Title)
	assert.Equal(t, "short", got.Body)
}

func TestShow_IncrementsViews(t *testing.T) {
	s, router := setupTest(t)
	alice := testutil.CreateUser(t, s, "alice", "secret123")
	post := testutil.CreatePost(t, s, alice, "Readable", "**bold** text", time.Now())
	client := testutil.NewClient(t, router)

	for i := 1; i <= 3; i++ {
		w := client.Get("/posts/" + post.ID)
		require.Equal(t, http.StatusOK, w.Code)

		got, err := s.GetPost(context.Background(), post.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(i), got.Views)
	}

	w := client.Get("/posts/" + post.ID)
	assert.Contains(t, w.Body.String(), "<strong>bold</strong>")
	assert.Contains(t, w.Body.String(), "alice")
}

func TestShow_NotFound(t *testing.T) {
	_, router := setupTest(t)
	client := testutil.NewClient(t, router)

	w := client.Get("/posts/does-not-exist")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOwnership(t *testing.T) {
	s, router := setupTest(t)
	alice := testutil.CreateUser(t, s, "alice", "secret123")
	testutil.CreateUser(t, s, "bobby", "secret123")
	post := testutil.CreatePost(t, s, alice, "Alice's post", "original", time.Now())

	client := testutil.NewClient(t, router)
	client.Login("bobby", "secret123")

	w := client.Get("/posts/" + post.ID + "/edit")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = client.Post("/posts/"+post.ID+"?_method=put", url.Values{"title": {"hijacked"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "You don&#39;t have permission")

	w = client.Post("/posts/"+post.ID+"?_method=delete", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	got, err := s.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice's post", got.Title)
	assert.Equal(t, "original", got.Body)
	assert.Nil(t, got.UpdatedAt)

	// still logged in after being refused
	w = client.Get("/posts/new")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateAndDelete_ByOwner(t *testing.T) {
	s, router := setupTest(t)
	alice := testutil.CreateUser(t, s, "alice", "secret123")
	post := testutil.CreatePost(t, s, alice, "Draft", "body", time.Now())

	client := testutil.NewClient(t, router)
	client.Login("alice", "secret123")

	w := client.Get("/posts/" + post.ID + "/edit")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Draft")

	w = client.Post("/posts/"+post.ID+"?_method=put", url.Values{"title": {""}})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/posts/"+post.ID+"/edit", w.Header().Get("Location"))

	w = client.Post("/posts/"+post.ID, url.Values{"_method": {"PUT"}, "title": {"Final"}, "body": {"new body"}})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/posts/"+post.ID, w.Header().Get("Location"))

	got, err := s.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Final", got.Title)
	assert.Equal(t, "new body", got.Body)
	assert.NotNil(t, got.UpdatedAt)
	assert.Equal(t, post.Number, got.Number)

	w = client.Post("/posts/"+post.ID+"?_method=delete", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Empty(t, allPosts(t, s))
}

func TestComments(t *testing.T) {
	s, router := setupTest(t)
	alice := testutil.CreateUser(t, s, "alice", "secret123")
	testutil.CreateUser(t, s, "bobby", "secret123")
	post := testutil.CreatePost(t, s, alice, "Discuss", "", time.Now())

	bob := testutil.NewClient(t, router)
	bob.Login("bobby", "secret123")

	w := bob.Post("/posts/"+post.ID+"/comments", url.Values{"body": {""}})
	assert.Equal(t, http.StatusFound, w.Code)
	w = bob.Get("/posts/" + post.ID)
	assert.Contains(t, w.Body.String(), "Body is required!")

	w = bob.Post("/posts/"+post.ID+"/comments", url.Values{"body": {"nice post"}})
	assert.Equal(t, http.StatusFound, w.Code)

	got, err := s.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	require.Len(t, got.Comments, 1)
	comment := got.Comments[0]
	assert.Equal(t, "nice post", comment.Body)
	require.NotNil(t, comment.Author)
	assert.Equal(t, "bobby", comment.Author.Username)

	w = bob.Post("/posts/missing/comments", url.Values{"body": {"hello"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	ali := testutil.NewClient(t, router)
	ali.Login("alice", "secret123")
	w = ali.Post("/posts/"+post.ID+"/comments/"+comment.ID+"?_method=delete", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = bob.Post("/posts/"+post.ID+"/comments/"+comment.ID+"?_method=delete", nil)
	assert.Equal(t, http.StatusFound, w.Code)

	got, err = s.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Comments)

	w = bob.Post("/posts/"+post.ID+"/comments/"+comment.ID+"?_method=delete", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
