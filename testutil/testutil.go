// Package testutil wires the board the way the server does, on an
// in-memory sqlite store, for handler tests.
package testutil

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"messageboard/auth"
	"messageboard/common"
	"messageboard/models"
	"messageboard/render"
	"messageboard/store"
)

type Module interface {
	RegisterRoutes(router *gin.Engine)
}

func NewStore(t testing.TB) *store.SQLStore {
	t.Helper()
	s, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func NewRouter(t testing.TB, s store.Store, modules ...Module) http.Handler {
	t.Helper()
	auth.Cost = bcrypt.MinCost

	gin.SetMode(gin.TestMode)
	router := gin.New()
	cookieStore := cookie.NewStore([]byte("secret"))
	router.Use(sessions.Sessions("test-session", cookieStore))
	require.NoError(t, render.Load(router))

	authModule := auth.NewAuthModule(s)
	router.Use(authModule.LoadUser)
	authModule.RegisterRoutes(router)
	for _, m := range modules {
		m.RegisterRoutes(router)
	}
	router.NoRoute(common.NotFound)

	return common.MethodOverride(router)
}

func CreateUser(t testing.TB, s store.Store, username, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Name:         username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	require.NoError(t, s.CreateUser(context.Background(), user))
	user.PasswordHash = ""
	return user
}

func CreatePost(t testing.TB, s store.Store, author *models.User, title, body string, createdAt time.Time) *models.Post {
	t.Helper()
	ctx := context.Background()
	number, err := s.NextSequence(ctx, store.PostSequence)
	require.NoError(t, err)

	post := &models.Post{
		ID:        uuid.NewString(),
		Number:    number,
		Title:     title,
		Body:      body,
		AuthorID:  author.ID,
		CreatedAt: createdAt,
	}
	require.NoError(t, s.CreatePost(ctx, post))
	return post
}

// Client is a browser stand-in that keeps the session cookie between
// requests.
type Client struct {
	t       testing.TB
	handler http.Handler
	cookies map[string]*http.Cookie
}

func NewClient(t testing.TB, handler http.Handler) *Client {
	return &Client{t: t, handler: handler, cookies: map[string]*http.Cookie{}}
}

func (c *Client) Do(method, target string, form url.Values) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, ck := range c.cookies {
		req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}

	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)

	for _, ck := range w.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return w
}

func (c *Client) Get(target string) *httptest.ResponseRecorder {
	return c.Do(http.MethodGet, target, nil)
}

func (c *Client) Post(target string, form url.Values) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	return c.Do(http.MethodPost, target, form)
}

// Login posts the login form and fails the test unless it succeeds.
func (c *Client) Login(username, password string) {
	c.t.Helper()
	w := c.Post("/login", url.Values{"username": {username}, "password": {password}})
	require.Equal(c.t, http.StatusFound, w.Code)
	require.Equal(c.t, "/", w.Header().Get("Location"))
}

// MemoryCache is an in-process cache.Cache for tests. Values go through
// JSON like they do in Redis.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	Hits    int
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string][]byte{}}
}

func (m *MemoryCache) Get(_ context.Context, key string, dest interface{}) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.entries[key]
	if !ok || json.Unmarshal(data, dest) != nil {
		return false
	}
	m.Hits++
	return true
}

func (m *MemoryCache) Set(_ context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.entries[key] = data
	m.mu.Unlock()
}

func (m *MemoryCache) Invalidate(context.Context) {
	m.mu.Lock()
	m.entries = map[string][]byte{}
	m.mu.Unlock()
}

func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
