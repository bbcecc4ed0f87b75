package common

import (
	"net/http"
	"strings"
)

const methodOverrideParam = "_method"

var overridable = map[string]bool{
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// MethodOverride lets HTML forms reach PUT and DELETE routes by posting a
// _method field (query string or form body). It wraps the engine because
// gin picks the route before any middleware runs.
func MethodOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			method := r.URL.Query().Get(methodOverrideParam)
			if method == "" {
				method = r.PostFormValue(methodOverrideParam)
			}
			method = strings.ToUpper(method)
			if overridable[method] {
				r.Method = method
			}
		}
		next.ServeHTTP(w, r)
	})
}
