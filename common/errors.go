package common

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"messageboard/store"
	"messageboard/validation"
)

const (
	MsgLoginFirst        = "Please login first"
	MsgNoPermission      = "You don't have permission"
	MsgNotFound          = "Page not found"
	MsgDuplicateUsername = "This username already exists!"
)

// RespondError answers a failed store call: missing records get the 404
// page, anything else is logged and returned as a 500 JSON body.
func RespondError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		NotFound(c)
		return
	}
	log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func NotFound(c *gin.Context) {
	c.HTML(http.StatusNotFound, "error.html", Page(c, gin.H{
		"title":   "Not Found",
		"status":  http.StatusNotFound,
		"message": MsgNotFound,
	}))
	c.Abort()
}

// Forbidden rejects an authenticated user acting on someone else's
// resource. The session is left intact.
func Forbidden(c *gin.Context) {
	c.HTML(http.StatusForbidden, "error.html", Page(c, gin.H{
		"title":   "Forbidden",
		"status":  http.StatusForbidden,
		"message": MsgNoPermission,
	}))
	c.Abort()
}

// ParseError normalizes a failed create or update into field errors.
func ParseError(err error) validation.FieldErrors {
	var fieldErrs validation.FieldErrors
	switch {
	case errors.As(err, &fieldErrs):
		return fieldErrs
	case errors.Is(err, store.ErrDuplicateUsername):
		return validation.FieldErrors{{Field: "username", Message: MsgDuplicateUsername}}
	default:
		return validation.FieldErrors{{Field: "unhandled", Message: err.Error()}}
	}
}
