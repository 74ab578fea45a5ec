package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/coursecraft-backend/internal/handlers"
)

type RouterConfig struct {
	CourseHandler    *handlers.CourseHandler
	CourseGenHandler *handlers.CourseGenHandler
	SSEHandler       *handlers.SSEHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-User-ID"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	// SSE
	router.GET("/sse/stream", cfg.SSEHandler.SSEStream)
	router.POST("/sse/subscribe", cfg.SSEHandler.SSESubscribe)
	router.POST("/sse/unsubscribe", cfg.SSEHandler.SSEUnsubscribe)

	api := router.Group("/api")
	{
		api.POST("/courses", cfg.CourseHandler.CreateCourse)
		api.GET("/courses", cfg.CourseHandler.ListUserCourses)
		api.GET("/courses/:id", cfg.CourseHandler.GetCourse)
		api.GET("/courses/slug/:slug", cfg.CourseHandler.GetCourseBySlug)
		api.GET("/courses/:id/generation", cfg.CourseGenHandler.GetLatestForCourse)
		api.GET("/course-generation-runs/:id", cfg.CourseGenHandler.GetRunByID)
	}

	return router
}
