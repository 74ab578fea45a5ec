package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/coursecraft-backend/internal/db"
	"github.com/yungbote/coursecraft-backend/internal/handlers"
	"github.com/yungbote/coursecraft-backend/internal/logger"
	"github.com/yungbote/coursecraft-backend/internal/repos"
	"github.com/yungbote/coursecraft-backend/internal/server"
	"github.com/yungbote/coursecraft-backend/internal/services"
	"github.com/yungbote/coursecraft-backend/internal/sse"
	"github.com/yungbote/coursecraft-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	courseRepo := repos.NewCourseRepo(thePG, log)
	courseModuleRepo := repos.NewCourseModuleRepo(thePG, log)
	courseUnitRepo := repos.NewCourseUnitRepo(thePG, log)
	courseGenRunRepo := repos.NewCourseGenerationRunRepo(thePG, log)

	// SSE
	log.Info("Setting up SSE hub now...")
	sseHub := sse.NewSSEHub(log)

	// Services
	log.Info("Setting up Services from main...")
	openaiClient, err := services.NewOpenAIClient(log)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}
	genAI := services.NewAIGenerationService(openaiClient, log)
	wikipediaService := services.NewWikipediaService(log)
	slugService := services.NewSlugService(courseRepo, log)
	courseService := services.NewCourseService(thePG, log, courseRepo, courseModuleRepo, courseUnitRepo, courseGenRunRepo)
	courseGenService := services.NewCourseGenerationService(
		thePG,
		log,
		sseHub,
		courseRepo,
		courseModuleRepo,
		courseUnitRepo,
		courseGenRunRepo,
		slugService,
		genAI,
		wikipediaService,
	)
	courseGenService.StartWorker(context.Background())

	// Handlers
	log.Info("Setting up handlers from main...")
	sseHandler := handlers.NewSSEHandler(log, sseHub)
	courseHandler := handlers.NewCourseHandler(log, courseService, courseGenService)
	courseGenHandler := handlers.NewCourseGenHandler(courseService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		CourseHandler:    courseHandler,
		CourseGenHandler: courseGenHandler,
		SSEHandler:       sseHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
