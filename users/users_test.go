package users

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"messageboard/store"
	"messageboard/testutil"
	"messageboard/validation"
)

func setupTest(t *testing.T) (*store.SQLStore, http.Handler) {
	s := testutil.NewStore(t)
	router := testutil.NewRouter(t, s, NewUsersModule(s))
	return s, router
}

func signUpForm(username, password, confirmation string) url.Values {
	return url.Values{
		"username":             {username},
		"name":                 {"Someone"},
		"email":                {"someone@example.com"},
		"password":             {password},
		"passwordConfirmation": {confirmation},
	}
}

func TestCreate_HashesPassword(t *testing.T) {
	s, router := setupTest(t)
	client := testutil.NewClient(t, router)

	w := client.Post("/users", signUpForm("alice", "secret123", "secret123"))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/users", w.Header().Get("Location"))

	creds, err := s.GetUserCredentials(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", creds.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte("secret123")))

	client.Login("alice", "secret123")
}

func TestCreate_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		form    url.Values
		field   string
		message string
	}{
		{"mismatched confirmation", signUpForm("alice", "secret123", "secret124"), "passwordConfirmation", "Password Confirmation does not matched!"},
		{"weak password", signUpForm("alice", "password", "password"), "password", "Should be minimum 8 characters of alphabet and number combination!"},
		{"short username", signUpForm("al", "secret123", "secret123"), "username", "Should be 4-12 characters!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, router := setupTest(t)
			client := testutil.NewClient(t, router)

			w := client.Post("/users", tt.form)
			assert.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, "/users/new", w.Header().Get("Location"))

			users, err := s.ListUsers(context.Background())
			require.NoError(t, err)
			assert.Empty(t, users)

			w = client.Get("/users/new")
			assert.Contains(t, w.Body.String(), tt.message)
			assert.Contains(t, w.Body.String(), "someone@example.com")
			assert.NotContains(t, w.Body.String(), "secret12")
		})
	}
}

func TestCreate_DuplicateUsername(t *testing.T) {
	s, router := setupTest(t)
	testutil.CreateUser(t, s, "alice", "secret123")
	client := testutil.NewClient(t, router)

	w := client.Post("/users", signUpForm("alice", "secret123", "secret123"))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/users/new", w.Header().Get("Location"))

	w = client.Get("/users/new")
	assert.Contains(t, w.Body.String(), "This username already exists!")
}

func TestIndexAndShow(t *testing.T) {
	s, router := setupTest(t)
	bobby := testutil.CreateUser(t, s, "bobby", "secret123")
	testutil.CreateUser(t, s, "alice", "secret123")
	testutil.CreatePost(t, s, bobby, "Bobby's first", "", time.Now())
	client := testutil.NewClient(t, router)

	w := client.Get("/users")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Less(t, strings.Index(body, "/users/alice"), strings.Index(body, "/users/bobby"))

	w = client.Get("/users/bobby")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Bobby&#39;s first")
	assert.NotContains(t, w.Body.String(), "/users/bobby/edit")

	w = client.Get("/users/nobody")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func updateForm(current string) url.Values {
	return url.Values{
		"username":        {"alice"},
		"name":            {"Alice New"},
		"email":           {"alice@example.com"},
		"currentPassword": {current},
	}
}

func TestUpdate_RequiresCurrentPassword(t *testing.T) {
	s, router := setupTest(t)
	testutil.CreateUser(t, s, "alice", "secret123")
	client := testutil.NewClient(t, router)
	client.Login("alice", "secret123")

	before, err := s.GetUserCredentials(context.Background(), "alice")
	require.NoError(t, err)

	for _, current := range []string{"", "wrongpass1"} {
		form := updateForm(current)
		form.Set("newPassword", "another99")
		form.Set("passwordConfirmation", "another99")

		w := client.Post("/users/alice?_method=put", form)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/users/alice/edit", w.Header().Get("Location"))

		after, err := s.GetUserCredentials(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, before.PasswordHash, after.PasswordHash)
		assert.Equal(t, before.Name, after.Name)
		assert.Equal(t, before.Email, after.Email)
	}

	w := client.Get("/users/alice/edit")
	assert.Contains(t, w.Body.String(), "Current Password is invalid!")
}

func TestUpdate_Success(t *testing.T) {
	s, router := setupTest(t)
	testutil.CreateUser(t, s, "alice", "secret123")
	client := testutil.NewClient(t, router)
	client.Login("alice", "secret123")

	form := updateForm("secret123")
	form.Set("username", "alice2")
	form.Set("newPassword", "another99")
	form.Set("passwordConfirmation", "another99")

	w := client.Post("/users/alice?_method=put", form)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/users/alice2", w.Header().Get("Location"))

	_, err := s.GetUserByUsername(context.Background(), "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)

	user, err := s.GetUserByUsername(context.Background(), "alice2")
	require.NoError(t, err)
	assert.Equal(t, "Alice New", user.Name)

	// the session follows the renamed user
	w = client.Get("/users/alice2/edit")
	assert.Equal(t, http.StatusOK, w.Code)

	fresh := testutil.NewClient(t, router)
	fresh.Login("alice2", "another99")
}

func TestUpdate_KeepsPasswordWhenNotChanged(t *testing.T) {
	s, router := setupTest(t)
	testutil.CreateUser(t, s, "alice", "secret123")
	client := testutil.NewClient(t, router)
	client.Login("alice", "secret123")

	w := client.Post("/users/alice?_method=put", updateForm("secret123"))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/users/alice", w.Header().Get("Location"))

	testutil.NewClient(t, router).Login("alice", "secret123")
}

func TestUpdate_UsernameTaken(t *testing.T) {
	s, router := setupTest(t)
	testutil.CreateUser(t, s, "alice", "secret123")
	testutil.CreateUser(t, s, "bobby", "secret123")
	client := testutil.NewClient(t, router)
	client.Login("alice", "secret123")

	form := updateForm("secret123")
	form.Set("username", "bobby")
	w := client.Post("/users/alice?_method=put", form)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/users/alice/edit", w.Header().Get("Location"))

	w = client.Get("/users/alice/edit")
	assert.Contains(t, w.Body.String(), "This username already exists!")
}

func TestEdit_OnlySelf(t *testing.T) {
	s, router := setupTest(t)
	testutil.CreateUser(t, s, "alice", "secret123")
	testutil.CreateUser(t, s, "bobby", "secret123")

	anonymous := testutil.NewClient(t, router)
	w := anonymous.Get("/users/alice/edit")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	bob := testutil.NewClient(t, router)
	bob.Login("bobby", "secret123")

	w = bob.Get("/users/alice/edit")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = bob.Post("/users/alice?_method=put", updateForm("secret123"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	user, err := s.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Name)
}

func TestRegister(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	user, err := Register(ctx, s, validation.UserCandidate{
		Username:             "carol",
		Name:                 "Carol",
		Password:             "secret123",
		PasswordConfirmation: "secret123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Empty(t, user.PasswordHash)

	_, err = Register(ctx, s, validation.UserCandidate{
		Username:             "carol",
		Name:                 "Carol",
		Password:             "secret123",
		PasswordConfirmation: "secret123",
	})
	assert.ErrorIs(t, err, store.ErrDuplicateUsername)

	_, err = Register(ctx, s, validation.UserCandidate{Username: "dave"})
	var fieldErrs validation.FieldErrors
	assert.ErrorAs(t, err, &fieldErrs)
}

func TestCreate_UsernameCharset(t *testing.T) {
	s, router := setupTest(t)
	client := testutil.NewClient(t, router)

	for _, username := range []string{"a/bcd", "ab?cd", "ab cd"} {
		w := client.Post("/users", signUpForm(username, "secret123", "secret123"))
		assert.Equal(t, "/users/new", w.Header().Get("Location"), username)
		assert.Contains(t, client.Get("/users/new").Body.String(), "Should contain only letters and numbers!")
	}

	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestProfileLinksEscapeUsername(t *testing.T) {
	s, router := setupTest(t)
	testutil.CreateUser(t, s, "ab?cd", "secret123")
	client := testutil.NewClient(t, router)

	w := client.Get("/users")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `href="/users/ab%3Fcd"`)

	w = client.Get("/users/ab%3Fcd")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ab?cd")
}

func TestUpdate_RedirectEscapesUsername(t *testing.T) {
	s, router := setupTest(t)
	testutil.CreateUser(t, s, "ab?cd", "secret123")
	client := testutil.NewClient(t, router)
	client.Login("ab?cd", "secret123")

	form := updateForm("secret123")
	form.Set("username", "ab?cd")
	w := client.Post("/users/ab%3Fcd?_method=put", form)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/users/ab%3Fcd/edit", w.Header().Get("Location"))
}
