package common

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"messageboard/models"
)

const (
	ContextKey = "request_context"

	sessionUserKey  = "user_id"
	sessionFlashKey = "flash"
)

// RequestContext is built once per request by the auth middleware and
// carries the current user and the flash left by the previous request.
type RequestContext struct {
	User *models.User

	session sessions.Session
	flash   map[string]json.RawMessage
	pending map[string]interface{}
}

// NewRequestContext consumes the flash stored in the session. The flash is
// stored as a JSON string so the cookie store never has to gob-encode
// arbitrary types.
func NewRequestContext(c *gin.Context, user *models.User) *RequestContext {
	session := sessions.Default(c)
	rc := &RequestContext{
		User:    user,
		session: session,
		flash:   map[string]json.RawMessage{},
		pending: map[string]interface{}{},
	}

	if raw, ok := session.Get(sessionFlashKey).(string); ok {
		if err := json.Unmarshal([]byte(raw), &rc.flash); err != nil {
			log.Printf("discarding unreadable flash: %v", err)
		}
		session.Delete(sessionFlashKey)
		if err := session.Save(); err != nil {
			log.Printf("error saving session: %v", err)
		}
	}
	return rc
}

// Current returns the request context installed by the auth middleware,
// creating an anonymous one when none was installed.
func Current(c *gin.Context) *RequestContext {
	if v, ok := c.Get(ContextKey); ok {
		if rc, ok := v.(*RequestContext); ok {
			return rc
		}
	}
	rc := NewRequestContext(c, nil)
	c.Set(ContextKey, rc)
	return rc
}

func (rc *RequestContext) IsAuthenticated() bool {
	return rc.User != nil
}

// UserID returns the id bound to the session, or "".
func (rc *RequestContext) UserID() string {
	id, _ := rc.session.Get(sessionUserKey).(string)
	return id
}

func (rc *RequestContext) HasFlash() bool {
	return len(rc.flash) > 0
}

// Flash decodes the flashed value under key into dest and reports whether
// it was present.
func (rc *RequestContext) Flash(key string, dest interface{}) bool {
	raw, ok := rc.flash[key]
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		log.Printf("bad flash %q: %v", key, err)
		return false
	}
	return true
}

// AddFlash queues a value for the next request. It is written by Save.
func (rc *RequestContext) AddFlash(key string, value interface{}) {
	rc.pending[key] = value
}

func (rc *RequestContext) Login(userID string) {
	rc.session.Clear()
	rc.session.Set(sessionUserKey, userID)
}

func (rc *RequestContext) Logout() {
	rc.User = nil
	rc.session.Clear()
}

// Save writes the session, including any queued flash. Call it before
// redirecting.
func (rc *RequestContext) Save() error {
	if len(rc.pending) > 0 {
		data, err := json.Marshal(rc.pending)
		if err != nil {
			return err
		}
		rc.session.Set(sessionFlashKey, string(data))
		rc.pending = map[string]interface{}{}
	}
	return rc.session.Save()
}

// Page adds the values every layout needs to a template payload.
func Page(c *gin.Context, h gin.H) gin.H {
	if h == nil {
		h = gin.H{}
	}
	rc := Current(c)
	h["currentUser"] = rc.User
	h["isAuthenticated"] = rc.IsAuthenticated()
	return h
}

// Redirect saves the session and redirects with 302.
func Redirect(c *gin.Context, location string) {
	if err := Current(c).Save(); err != nil {
		log.Printf("error saving session: %v", err)
	}
	c.Redirect(http.StatusFound, location)
}

// RedirectBack returns the user to a form with the queued flash. A cookie
// session holds about 4 KB, so when the flash does not fit it is dropped and
// renderInPlace answers the request instead (the form again, with 422).
func RedirectBack(c *gin.Context, location string, renderInPlace func(status int)) {
	rc := Current(c)
	if err := rc.Save(); err != nil {
		log.Printf("flash does not fit the session, rendering in place: %v", err)
		rc.session.Delete(sessionFlashKey)
		if err := rc.session.Save(); err != nil {
			log.Printf("error saving session: %v", err)
		}
		renderInPlace(http.StatusUnprocessableEntity)
		return
	}
	c.Redirect(http.StatusFound, location)
}
