package main

import (
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/voxprep/voxprep/config"
	"github.com/voxprep/voxprep/internal/api/handlers"
	"github.com/voxprep/voxprep/internal/api/middleware"
	"github.com/voxprep/voxprep/internal/api/routes"
	"github.com/voxprep/voxprep/internal/cache"
	"github.com/voxprep/voxprep/internal/logger"
	"github.com/voxprep/voxprep/internal/models"
	pgrepo "github.com/voxprep/voxprep/internal/repositories/postgres"
	"github.com/voxprep/voxprep/internal/services"
)

func main() {
	_ = godotenv.Load()

	l := logger.New()

	// Init PostgreSQL
	if err := config.InitPostgres(); err != nil {
		log.Fatalf("PostgreSQL init error: %v", err)
	}
	if err := config.PostgresDB.AutoMigrate(&models.TranscriptRecord{}, &models.AnalysisRecord{}); err != nil {
		log.Fatalf("PostgreSQL migrate error: %v", err)
	}
	l.Info("PostgreSQL connected")

	// Init Redis (prompt cache); the server runs without it
	var promptCache cache.Cache
	if err := config.InitRedis(); err != nil {
		l.WithError(err).Warn("Redis unavailable, running without prompt cache")
	} else {
		promptCache = cache.NewRedisCache(config.RedisClient)
		l.Info("Redis connected")
	}

	transcripts := services.NewTranscriptService(pgrepo.NewTranscriptRepo(config.PostgresDB))
	analysis := services.NewAnalysisService(pgrepo.NewAnalysisRepo(config.PostgresDB), promptCache, 10*time.Minute)

	r := gin.New()
	r.Use(middleware.RequestLogger(l), gin.Recovery())

	routes.RegisterRoutes(r, routes.Deps{
		Transcript: handlers.NewTranscriptHandler(transcripts),
		Analysis:   handlers.NewAnalysisHandler(analysis),
		Live:       handlers.NewLiveHandler(l),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
