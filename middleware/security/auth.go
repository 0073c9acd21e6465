package security

import (
	"net/http"
	"strings"

	"SCProject/service/auth"
	errs "SCProject/tools/errs"

	"github.com/gin-gonic/gin"
)

// Context key the downstream handlers read the caller identity from.
const CtxUserIDKey = "userID"

// UserID returns the authenticated caller id set by Middleware.
func UserID(c *gin.Context) int64 {
	v, ok := c.Get(CtxUserIDKey)
	if !ok {
		return 0
	}
	id, _ := v.(int64)
	return id
}

// Middleware authenticates a request through the given resolver. The
// credential is taken from the Authorization header (Bearer or raw) with
// the "token" query param as fallback; both go through auth.Normalize.
func Middleware(resolver auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := bearerToken(c)
		if credential == "" {
			credential = c.Query("token")
		}

		uid, err := resolver.Resolve(c.Request.Context(), credential)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.Code(err))
			return
		}

		c.Set(CtxUserIDKey, uid)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authz := strings.TrimSpace(c.GetHeader("Authorization"))
	if authz == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return authz[len("bearer "):]
	}
	return authz
}
