package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Sessions are issued by the web frontend; this service only reads them.
const (
	SessionCookieName  = "sharehouse.sid"
	SessionRedisPrefix = "session:"
	sessionTTL         = 24 * time.Hour
)

// SessionUser is the shape stored in the session under "user".
type SessionUser struct {
	ID       uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	IsStaff  bool      `json:"is_staff"`
}

// Session loads the session from redis and puts its user into Locals. A
// touched session has its TTL extended.
func Session(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sid := sessionID(c.Cookies(SessionCookieName))
		if sid != "" && rdb != nil {
			key := SessionRedisPrefix + sid
			b, err := rdb.Get(c.UserContext(), key).Bytes()
			switch {
			case err == nil:
				var data struct {
					User *SessionUser `json:"user"`
				}
				if err := json.Unmarshal(b, &data); err != nil {
					log.Warn().Err(err).Msg("session payload not understood")
				} else if data.User != nil && data.User.ID != uuid.Nil {
					c.Locals(userLocal, *data.User)
					rdb.Expire(context.Background(), key, sessionTTL)
				}
			case err != redis.Nil:
				log.Error().Err(err).Msg("session lookup failed")
			}
		}
		return c.Next()
	}
}

// sessionID strips the connect-style "s:" prefix and signature.
func sessionID(cookie string) string {
	if strings.HasPrefix(cookie, "s:") {
		cookie = strings.SplitN(cookie[2:], ".", 2)[0]
	}
	return cookie
}

// CurrentUser returns the authenticated user, if any.
func CurrentUser(c *fiber.Ctx) (SessionUser, bool) {
	u, ok := c.Locals(userLocal).(SessionUser)
	return u, ok && u.ID != uuid.Nil
}

// SetUser puts u into Locals. Used by the ext-secret middleware and tests.
func SetUser(c *fiber.Ctx, u SessionUser) {
	c.Locals(userLocal, u)
}
