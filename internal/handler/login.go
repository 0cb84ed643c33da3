package handler

import (
	"crypto/subtle"
	"net/http"

	"livedetect/internal/config"
	"livedetect/internal/logger"
	"livedetect/internal/middleware"
)

// LoginHandler handles POST /auth/login by validating password and issuing an auth cookie.
func LoginHandler(config *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		password := r.FormValue("password")
		if subtle.ConstantTimeCompare([]byte(password), []byte(config.Password)) != 1 {
			logger.Warning("Failed login attempt from %s", r.RemoteAddr)
			http.Error(w, "Invalid password", http.StatusUnauthorized)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     middleware.AuthCookie,
			Value:    middleware.CookieValue(config.Password),
			Path:     "/",
			MaxAge:   2592000, // 30 days
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// LogoutHandler clears the auth cookie and returns to the login page.
func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AuthCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
