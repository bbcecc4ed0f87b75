package cache

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"messageboard/common"
)

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

type page struct {
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

// PageMiddleware caches the HTML rendered for anonymous GET requests that
// carry no flash. Mount it after the auth middleware.
func PageMiddleware(store Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		rc := common.Current(c)
		if rc.IsAuthenticated() || rc.HasFlash() {
			c.Next()
			return
		}

		key := "page:" + c.Request.URL.RequestURI()
		var cached page
		if store.Get(c.Request.Context(), key, &cached) {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, cached.ContentType, []byte(cached.Body))
			c.Abort()
			return
		}

		c.Header("X-Cache", "MISS")

		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
		}
		c.Writer = writer

		c.Next()

		contentType := c.Writer.Header().Get("Content-Type")
		if c.Writer.Status() == http.StatusOK && strings.HasPrefix(contentType, "text/html") {
			store.Set(c.Request.Context(), key, page{ContentType: contentType, Body: writer.body.String()})
		}
	}
}
