package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/voxprep/voxprep/internal/api/handlers"
)

type Deps struct {
	Transcript *handlers.TranscriptHandler
	Analysis   *handlers.AnalysisHandler
	Live       *handlers.LiveHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	v1 := r.Group("/v1")
	v1.POST("/transcripts", d.Transcript.Save)
	v1.GET("/transcripts/:session_id", d.Transcript.Get)
	v1.GET("/analysis/:session_id", d.Analysis.Get)
	v1.PUT("/analysis/:session_id", d.Analysis.Seed)

	// WebSocket stub agent
	r.GET("/ws/live/:session_id", d.Live.Serve)
}
