package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voxprep/voxprep/internal/services"
	"github.com/voxprep/voxprep/internal/utils"
)

type AnalysisHandler struct {
	analysis services.AnalysisService
}

func NewAnalysisHandler(analysis services.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{analysis: analysis}
}

func (h *AnalysisHandler) Get(c *gin.Context) {
	sessionID := c.Param("session_id")
	rec, err := h.analysis.GetPrompt(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": rec.SessionID, "prompt": rec.Prompt})
}

type seedPromptRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

// Seed stands in for the external resume-analysis pipeline during local
// development and tests.
func (h *AnalysisHandler) Seed(c *gin.Context) {
	sessionID := c.Param("session_id")

	var req seedPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "AnalysisHandler.Seed", "invalid payload", err))
		return
	}

	if err := h.analysis.SeedPrompt(c.Request.Context(), sessionID, req.Prompt); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "prompt seeded"})
}
