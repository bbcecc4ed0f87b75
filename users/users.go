package users

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messageboard/auth"
	"messageboard/common"
	"messageboard/models"
	"messageboard/store"
	"messageboard/validation"
)

const (
	userKey = "user"

	// RecentPosts is how many of a user's posts the profile shows.
	RecentPosts = 5
)

type UsersModule struct {
	store store.Store
}

func NewUsersModule(s store.Store) *UsersModule {
	return &UsersModule{store: s}
}

func (u *UsersModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/users", u.index)
	router.GET("/users/new", u.newUser)
	router.POST("/users", u.create)
	router.GET("/users/:username", u.show)

	self := router.Group("/users/:username", auth.RequireLogin, u.loadUser, u.requireSelf)
	{
		self.GET("/edit", u.edit)
		self.PUT("", u.update)
	}
}

// Register validates a sign-up and stores the new user with a hashed
// password. Rejections come back as validation.FieldErrors or
// store.ErrDuplicateUsername.
func Register(ctx context.Context, s store.Store, form validation.UserCandidate) (*models.User, error) {
	if errs := validation.ValidateUser(form, validation.Create); len(errs) > 0 {
		return nil, errs
	}

	if err := usernameAvailable(ctx, s, form.Username); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(form.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     form.Username,
		Name:         form.Name,
		Email:        form.Email,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := s.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

func usernameAvailable(ctx context.Context, s store.Store, username string) error {
	_, err := s.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		return store.ErrDuplicateUsername
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return err
	}
}

// rejected reports whether err is a form problem to flash back rather
// than a failure to report.
func rejected(err error) bool {
	var fieldErrs validation.FieldErrors
	return errors.As(err, &fieldErrs) || errors.Is(err, store.ErrDuplicateUsername)
}

// formUser is what gets flashed back to a form; never the passwords.
func formUser(form validation.UserCandidate) models.User {
	return models.User{Username: form.Username, Name: form.Name, Email: form.Email}
}

func profilePath(username string) string {
	return "/users/" + url.PathEscape(username)
}

func (u *UsersModule) loadUser(c *gin.Context) {
	user, err := u.store.GetUserByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.Set(userKey, user)
	c.Next()
}

func (u *UsersModule) requireSelf(c *gin.Context) {
	user := c.MustGet(userKey).(*models.User)
	if !auth.IsOwner(user.ID, common.Current(c).User) {
		common.Forbidden(c)
		return
	}
	c.Next()
}

func (u *UsersModule) index(c *gin.Context) {
	users, err := u.store.ListUsers(c.Request.Context())
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.HTML(http.StatusOK, "users_index.html", common.Page(c, gin.H{
		"title": "Users",
		"users": users,
	}))
}

func (u *UsersModule) newUser(c *gin.Context) {
	rc := common.Current(c)
	var user models.User
	errs := map[string]string{}
	rc.Flash(userKey, &user)
	rc.Flash("errors", &errs)

	u.renderNew(c, http.StatusOK, user, errs)
}

func (u *UsersModule) renderNew(c *gin.Context, status int, user models.User, errs map[string]string) {
	c.HTML(status, "users_new.html", common.Page(c, gin.H{
		"title":  "Sign Up",
		"user":   user,
		"errors": errs,
	}))
}

func (u *UsersModule) create(c *gin.Context) {
	rc := common.Current(c)

	var form validation.UserCandidate
	if err := c.ShouldBind(&form); err != nil {
		common.RespondError(c, err)
		return
	}

	_, err := Register(c.Request.Context(), u.store, form)
	if err != nil {
		if rejected(err) {
			errs := common.ParseError(err).Map()
			rc.AddFlash(userKey, formUser(form))
			rc.AddFlash("errors", errs)
			common.RedirectBack(c, "/users/new", func(status int) {
				u.renderNew(c, status, formUser(form), errs)
			})
			return
		}
		common.RespondError(c, err)
		return
	}

	common.Redirect(c, "/users")
}

func (u *UsersModule) show(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := u.store.GetUserByUsername(ctx, c.Param("username"))
	if err != nil {
		common.RespondError(c, err)
		return
	}

	posts, err := u.store.ListPosts(ctx,
		store.PostFilter{AuthorIDs: []string{user.ID}},
		store.ListOptions{Limit: RecentPosts, Sort: store.SortRecent},
	)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.HTML(http.StatusOK, "users_show.html", common.Page(c, gin.H{
		"title":  user.Username,
		"user":   user,
		"posts":  posts,
		"isSelf": auth.IsOwner(user.ID, common.Current(c).User),
	}))
}

func (u *UsersModule) edit(c *gin.Context) {
	rc := common.Current(c)
	user := c.MustGet(userKey).(*models.User)

	form := *user
	errs := map[string]string{}
	rc.Flash(userKey, &form)
	rc.Flash("errors", &errs)

	u.renderEdit(c, http.StatusOK, user.Username, form, errs)
}

func (u *UsersModule) renderEdit(c *gin.Context, status int, username string, form models.User, errs map[string]string) {
	c.HTML(status, "users_edit.html", common.Page(c, gin.H{
		"title":    "Edit User",
		"username": username,
		"user":     form,
		"errors":   errs,
	}))
}

func (u *UsersModule) update(c *gin.Context) {
	ctx := c.Request.Context()
	rc := common.Current(c)
	user := c.MustGet(userKey).(*models.User)

	var form validation.UserCandidate
	if err := c.ShouldBind(&form); err != nil {
		common.RespondError(c, err)
		return
	}

	err := u.applyUpdate(ctx, user, form)
	if err != nil {
		if rejected(err) {
			errs := common.ParseError(err).Map()
			rc.AddFlash(userKey, formUser(form))
			rc.AddFlash("errors", errs)
			common.RedirectBack(c, profilePath(user.Username)+"/edit", func(status int) {
				u.renderEdit(c, status, user.Username, formUser(form), errs)
			})
			return
		}
		common.RespondError(c, err)
		return
	}

	common.Redirect(c, profilePath(form.Username))
}

// applyUpdate checks the current password against the stored hash before
// writing anything. An empty new password keeps the old one.
func (u *UsersModule) applyUpdate(ctx context.Context, user *models.User, form validation.UserCandidate) error {
	creds, err := u.store.GetUserCredentials(ctx, user.Username)
	if err != nil {
		return err
	}
	form.StoredHash = creds.PasswordHash

	if errs := validation.ValidateUser(form, validation.Update); len(errs) > 0 {
		return errs
	}

	if form.Username != user.Username {
		if err := usernameAvailable(ctx, u.store, form.Username); err != nil {
			return err
		}
	}

	updated := models.User{
		ID:       user.ID,
		Username: form.Username,
		Name:     form.Name,
		Email:    form.Email,
	}
	if form.NewPassword != "" {
		hash, err := auth.HashPassword(form.NewPassword)
		if err != nil {
			return err
		}
		updated.PasswordHash = hash
	}
	return u.store.UpdateUser(ctx, &updated)
}
