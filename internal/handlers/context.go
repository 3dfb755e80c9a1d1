package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/reviewhub/internal/middleware"
	"github.com/charlesng35/reviewhub/internal/services"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// identityFromContext reads the caller set by middleware.Auth. Missing values yield an empty
// identity, which the services reject as unauthenticated.
func identityFromContext(c *gin.Context) services.Identity {
	return services.Identity{
		UserID: c.GetString(middleware.CtxUserIDKey),
		Email:  c.GetString(middleware.CtxEmailKey),
	}
}
