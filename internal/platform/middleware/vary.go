package middleware

import (
	"net/http"
	"strings"
)

// Vary returns middleware that adds Accept to the Vary header. Error
// responses are negotiated between JSON and CBOR, so caches must key on it.
// The CORS middleware adds Origin on its own.
func Vary() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addVary(w.Header(), "Accept")
			next.ServeHTTP(w, r)
		})
	}
}

func addVary(h http.Header, field string) {
	for _, v := range h.Values("Vary") {
		for _, existing := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(existing), field) {
				return
			}
		}
	}
	h.Add("Vary", field)
}
