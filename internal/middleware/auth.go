package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"fieldcapture/internal/config"

	"github.com/golang-jwt/jwt/v4"
)

// AuthCookie marks a logged-in browser.
const AuthCookie = "authenticated"

const (
	sessionIssuer   = "fieldcapture"
	SessionDuration = 30 * 24 * time.Hour
)

func sessionKey(cfg *config.Config) []byte {
	if cfg.PasswordHash != "" {
		return []byte(cfg.PasswordHash)
	}
	return []byte(cfg.Password)
}

// SessionToken issues the cookie value set at login: an HS256 token keyed by the
// configured password secret. Changing the password invalidates issued cookies.
func SessionToken(cfg *config.Config) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    sessionIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(SessionDuration)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sessionKey(cfg))
}

// ValidSession reports whether value is an unexpired token issued by SessionToken for cfg.
func ValidSession(cfg *config.Config, value string) bool {
	if value == "" {
		return false
	}
	token, err := jwt.ParseWithClaims(value, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return sessionKey(cfg), nil
	})
	if err != nil || !token.Valid {
		return false
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	return ok && claims.Issuer == sessionIssuer
}

// AuthMiddleware requires the auth cookie when a password is configured.
// The login page, the login endpoint and static assets stay public.
func AuthMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.AuthEnabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(AuthCookie)
			if err != nil || !ValidSession(cfg, cookie.Value) {
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

func isPublic(path string) bool {
	return path == "/login" ||
		path == "/auth/login" ||
		path == "/api/health" ||
		strings.HasPrefix(path, "/static/") ||
		strings.HasPrefix(path, "/css/") ||
		strings.HasPrefix(path, "/js/")
}
