package httpx

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/campus-market/internal/user"
)

// UserIDHeader carries the authenticated user id set by the edge proxy.
const UserIDHeader = "X-User-ID"

const userKey = "user"

// Resolver hands out the signed-in session for a user id.
type Resolver interface {
	Resolve(ctx context.Context, id string) (*user.Session, error)
}

// Session resolves the caller from UserIDHeader and stores the current user
// on the context. Unknown or deactivated users are refused.
func Session(sessions Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := sessions.Resolve(c.Request.Context(), c.GetHeader(UserIDHeader))
		if err != nil {
			Error(c, err)
			return
		}
		u := sess.Current()
		if u == nil {
			Error(c, user.ErrInactive)
			return
		}
		c.Set(userKey, *u)
		c.Next()
	}
}

// CurrentUser returns the user stored by Session.
func CurrentUser(c *gin.Context) user.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(user.User); ok {
			return u
		}
	}
	return user.User{}
}
