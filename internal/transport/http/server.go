package http

import (
	"github.com/gin-gonic/gin"

	"gopherai-docqa/internal/bootstrap"
	"gopherai-docqa/internal/transport/http/handler"
	"gopherai-docqa/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), middleware.CORS())
	router.MaxMultipartMemory = 8 << 20

	healthHandler := handler.NewHealthHandler(app)
	docqaHandler := handler.NewDocQAHandler(app.Service, app.Config.MaxUploadBytes(), app.Logger)

	router.GET("/healthz", healthHandler.Check)
	router.POST("/upload", docqaHandler.Upload)
	router.POST("/chat", docqaHandler.Chat)

	v1 := router.Group("/api/v1")
	v1.POST("/upload", docqaHandler.Upload)
	v1.POST("/chat", docqaHandler.Chat)

	sessionGroup := v1.Group("/sessions")
	sessionGroup.GET("/:id/history", docqaHandler.History)
	sessionGroup.GET("/:id/transcript", docqaHandler.Transcript)
	sessionGroup.DELETE("/:id", docqaHandler.DeleteSession)

	return router
}
