package auth

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"messageboard/common"
	"messageboard/models"
	"messageboard/store"
	"messageboard/validation"
)

const MsgInvalidCredentials = "Incorrect username or password"

var ErrInvalidCredentials = errors.New(MsgInvalidCredentials)

// Cost is the bcrypt work factor used by HashPassword.
var Cost = bcrypt.DefaultCost

type AuthModule struct {
	store store.Store
}

func NewAuthModule(s store.Store) *AuthModule {
	return &AuthModule{store: s}
}

func (a *AuthModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/login", a.loginPage)
	router.POST("/login", a.loginPost)
	router.GET("/logout", a.logout)
}

// LoadUser builds the request context for every request, re-reading the
// session user so a deleted account or a renamed one is picked up at once.
func (a *AuthModule) LoadUser(c *gin.Context) {
	rc := common.NewRequestContext(c, nil)

	if id := rc.UserID(); id != "" {
		user, err := a.store.GetUserByID(c.Request.Context(), id)
		switch {
		case err == nil:
			rc.User = user
		case errors.Is(err, store.ErrNotFound):
			log.Printf("session refers to missing user %s, clearing", id)
			rc.Logout()
			if err := rc.Save(); err != nil {
				log.Printf("error saving session: %v", err)
			}
		default:
			c.Set(common.ContextKey, rc)
			common.RespondError(c, err)
			return
		}
	}

	c.Set(common.ContextKey, rc)
	c.Next()
}

// RequireLogin sends anonymous visitors to the login page.
func RequireLogin(c *gin.Context) {
	rc := common.Current(c)
	if !rc.IsAuthenticated() {
		rc.AddFlash("errors", map[string]string{"login": common.MsgLoginFirst})
		common.Redirect(c, "/login")
		c.Abort()
		return
	}
	c.Next()
}

// IsOwner reports whether user is the recorded owner.
func IsOwner(ownerID string, user *models.User) bool {
	return user != nil && ownerID != "" && ownerID == user.ID
}

// Authenticate checks a username and password against the stored hash.
// Unknown users and wrong passwords are indistinguishable to the caller.
func Authenticate(ctx context.Context, s store.Store, username, password string) (*models.User, error) {
	user, err := s.GetUserCredentials(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	user.PasswordHash = ""
	return user, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), Cost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func (a *AuthModule) loginPage(c *gin.Context) {
	rc := common.Current(c)
	if rc.IsAuthenticated() {
		c.Redirect(http.StatusFound, "/")
		return
	}

	var username string
	errs := map[string]string{}
	rc.Flash("username", &username)
	rc.Flash("errors", &errs)

	renderLogin(c, http.StatusOK, username, errs)
}

func renderLogin(c *gin.Context, status int, username string, errs map[string]string) {
	c.HTML(status, "login.html", common.Page(c, gin.H{
		"title":    "Login",
		"username": username,
		"errors":   errs,
	}))
}

// loginFailed sends the user back to the login form with the typed username.
func loginFailed(c *gin.Context, username string, errs map[string]string) {
	rc := common.Current(c)
	rc.AddFlash("username", username)
	rc.AddFlash("errors", errs)
	common.RedirectBack(c, "/login", func(status int) {
		renderLogin(c, status, username, errs)
	})
}

func (a *AuthModule) loginPost(c *gin.Context) {
	rc := common.Current(c)
	username := c.PostForm("username")
	password := c.PostForm("password")

	var errs validation.FieldErrors
	if username == "" {
		errs.Add("username", "Username is required!")
	}
	if password == "" {
		errs.Add("password", "Password is required!")
	}
	if len(errs) > 0 {
		loginFailed(c, username, errs.Map())
		return
	}

	user, err := Authenticate(c.Request.Context(), a.store, username, password)
	if errors.Is(err, ErrInvalidCredentials) {
		loginFailed(c, username, map[string]string{"login": MsgInvalidCredentials})
		return
	}
	if err != nil {
		common.RespondError(c, err)
		return
	}

	rc.Login(user.ID)
	rc.User = user
	common.Redirect(c, "/")
}

func (a *AuthModule) logout(c *gin.Context) {
	rc := common.Current(c)
	rc.Logout()
	common.Redirect(c, "/")
}
