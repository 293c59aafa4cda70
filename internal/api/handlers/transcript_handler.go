package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voxprep/voxprep/internal/services"
	"github.com/voxprep/voxprep/internal/utils"
)

type TranscriptHandler struct {
	transcripts services.TranscriptService
}

func NewTranscriptHandler(transcripts services.TranscriptService) *TranscriptHandler {
	return &TranscriptHandler{transcripts: transcripts}
}

type saveTranscriptRequest struct {
	SessionID  string   `json:"session_id" binding:"required"`
	Transcript []string `json:"transcript" binding:"required"`
}

func (h *TranscriptHandler) Save(c *gin.Context) {
	var req saveTranscriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "TranscriptHandler.Save", "invalid payload", err))
		return
	}

	if err := h.transcripts.Save(c.Request.Context(), req.SessionID, req.Transcript); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "transcript saved"})
}

func (h *TranscriptHandler) Get(c *gin.Context) {
	sessionID := c.Param("session_id")
	text, err := h.transcripts.Get(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "transcript": text})
}
