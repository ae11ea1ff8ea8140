package app

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// basicAuthMiddleware returns a Gin middleware that enforces Basic Auth for one realm.
// If enabled is false, authentication is disabled (pass-through).
func basicAuthMiddleware(realm string, enabled bool, username, password string) gin.HandlerFunc {
	challenge := `Basic realm="` + realm + `"`
	return func(c *gin.Context) {
		// Skip auth if disabled
		if !enabled {
			c.Next()
			return
		}

		user, pass, hasAuth := c.Request.BasicAuth()
		if !hasAuth {
			c.Header("WWW-Authenticate", challenge)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		// Constant-time comparison to prevent timing attacks
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1

		if !userMatch || !passMatch {
			c.Header("WWW-Authenticate", challenge)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Next()
	}
}

// metricsAuthMiddleware guards /metrics.
func metricsAuthMiddleware(enabled bool, username, password string) gin.HandlerFunc {
	return basicAuthMiddleware("metrics", enabled, username, password)
}

// adminAuthMiddleware guards the admin API. The routes are only mounted
// when a password is configured, so auth is always enforced here.
func adminAuthMiddleware(username, password string) gin.HandlerFunc {
	return basicAuthMiddleware("admin", true, username, password)
}
