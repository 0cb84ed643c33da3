package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// AuthCookie is the name of the login cookie.
const AuthCookie = "authenticated"

// CookieValue derives the cookie content from the password, so changing the
// password logs everybody out.
func CookieValue(password string) string {
	sum := sha256.Sum256([]byte("livedetect:" + password))
	return hex.EncodeToString(sum[:])
}

// AuthMiddleware checks that the user is logged in. An empty password disables it.
func AuthMiddleware(password string) func(http.Handler) http.Handler {
	expected := CookieValue(password)

	return func(next http.Handler) http.Handler {
		if password == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The login page, its assets, the login endpoint and the scrape endpoint stay public
			if r.URL.Path == "/login" ||
				r.URL.Path == "/auth/login" ||
				r.URL.Path == "/metrics" ||
				strings.HasPrefix(r.URL.Path, "/static/css/") ||
				strings.HasPrefix(r.URL.Path, "/static/js/") {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(AuthCookie)
			if err != nil || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(expected)) != 1 {
				// API and websocket calls get 401, pages are redirected to the login form
				if strings.HasPrefix(r.URL.Path, "/api/") ||
					r.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
					r.Header.Get("Content-Type") == "application/json" {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
