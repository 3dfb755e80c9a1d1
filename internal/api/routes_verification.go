package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/reviewhub/internal/handlers"
)

func registerVerificationRoutes(api *gin.RouterGroup, handler *handlers.DomainVerificationHandler) {
	if api == nil || handler == nil {
		return
	}

	group := api.Group("/verification")
	group.GET("", handler.Status)
	group.DELETE("", handler.Abandon)
	group.POST("/request", handler.Request)
	group.POST("/submit", handler.Submit)
}
