package middleware

import (
	midsec "SCProject/middleware/security"
	"SCProject/service/auth"

	"github.com/gin-gonic/gin"
)

// RouteOpt config per route
type RouteOpt struct {
	IsAuth bool
}

var authMW gin.HandlerFunc

// Init installs the auth middleware used by the route wrappers below.
// Call once from main() before registering routes.
func Init(resolver auth.Resolver) {
	authMW = midsec.Middleware(resolver)
}

func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.IsAuth {
		r.GET(path, authMW, handler)
	} else {
		r.GET(path, handler)
	}
}

func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.IsAuth {
		r.POST(path, authMW, handler)
	} else {
		r.POST(path, handler)
	}
}

func DELETE(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.IsAuth {
		r.DELETE(path, authMW, handler)
	} else {
		r.DELETE(path, handler)
	}
}
