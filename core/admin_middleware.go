package core

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

// sessionFromContext pulls the cookie session set by SessionMiddleware.
func sessionFromContext(c *gin.Context) *sessions.Session {
	sessionAny, _ := c.Get("session")
	sess, _ := sessionAny.(*sessions.Session)
	return sess
}

// cookieTokenMatches reports whether the cookie's token matches the store's
// current session. A stale cookie from a previous login does not pass.
func cookieTokenMatches(c *gin.Context, store *SessionStore) (Session, bool) {
	cookieSess := sessionFromContext(c)
	if cookieSess == nil {
		return Session{}, false
	}
	token, _ := cookieSess.Values["token"].(string)
	current, ok := store.Current()
	if !ok || token == "" || token != current.Token {
		return Session{}, false
	}
	return current, true
}

// RequireLogin aborts with 401 unless a valid authenticated session backs the
// request cookie.
func RequireLogin(store *SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := cookieTokenMatches(c, store); !ok {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "login required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminOnly ensures the authenticated session carries the admin role.
func AdminOnly(store *SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := cookieTokenMatches(c, store)
		if !ok {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "login required")
			c.Abort()
			return
		}
		if !sess.User.IsAdmin() {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "admin role required")
			c.Abort()
			return
		}
		c.Next()
	}
}
