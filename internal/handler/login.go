package handler

import (
	"crypto/subtle"
	"net/http"

	"fieldcapture/internal/config"
	"fieldcapture/internal/logger"
	"fieldcapture/internal/middleware"

	"golang.org/x/crypto/bcrypt"
)

// LoginHandler handles POST /auth/login by validating the password and issuing an auth cookie.
func LoginHandler(config *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		password := r.FormValue("password")
		if !checkPassword(config, password) {
			logger.Warning("Failed login attempt from %s", r.RemoteAddr)
			http.Error(w, "Invalid password", http.StatusUnauthorized)
			return
		}

		token, err := middleware.SessionToken(config)
		if err != nil {
			logger.Error("Error signing session: %v", err)
			http.Error(w, "Failed to log in", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     middleware.AuthCookie,
			Value:    token,
			Path:     "/",
			MaxAge:   int(middleware.SessionDuration.Seconds()),
			HttpOnly: true,
		})
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// LogoutHandler clears the authentication cookie and redirects to the login page.
func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:   middleware.AuthCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// checkPassword prefers the bcrypt hash when one is configured.
func checkPassword(config *config.Config, password string) bool {
	if config.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(config.PasswordHash), []byte(password)) == nil
	}
	if config.Password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(config.Password), []byte(password)) == 1
}
