package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const sessionKey = "sessionID"

// sessionMiddleware makes sure every browser carries a session cookie
// holding a uuid and exposes it to handlers.
func (s *Server) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(s.cfg.SessionCookie)
		if err != nil || uuid.Validate(id) != nil {
			id = uuid.NewString()
		}

		maxAge := int(s.sessionTTL.Seconds())
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(s.cfg.SessionCookie, id, maxAge, "/", "", false, true)
		c.Set(sessionKey, id)
		c.Next()
	}
}

func sessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}
