package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/reviewhub/internal/handlers"
)

func registerWebsiteRoutes(api *gin.RouterGroup, handler *handlers.WebsiteHandler) {
	if api == nil || handler == nil {
		return
	}

	api.GET("/websites/:domain", handler.Get)
}
