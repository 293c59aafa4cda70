package services

import (
	"context"
	"errors"
	"strings"

	"github.com/voxprep/voxprep/internal/models"
	pgrepo "github.com/voxprep/voxprep/internal/repositories/postgres"
	"github.com/voxprep/voxprep/internal/utils"
)

type TranscriptService interface {
	Save(ctx context.Context, sessionID string, segments []string) error
	Get(ctx context.Context, sessionID string) (string, error)
}

type transcriptService struct {
	transcripts pgrepo.TranscriptRepo
}

func NewTranscriptService(transcripts pgrepo.TranscriptRepo) TranscriptService {
	return &transcriptService{transcripts: transcripts}
}

func (s *transcriptService) Save(ctx context.Context, sessionID string, segments []string) error {
	const op = "TranscriptService.Save"

	if sessionID == "" || len(segments) == 0 {
		return utils.E(utils.CodeInvalidArgument, op, "session_id and transcript segments are required", nil)
	}

	records := make([]models.TranscriptRecord, 0, len(segments))
	for _, segment := range segments {
		records = append(records, models.TranscriptRecord{SessionID: sessionID, Content: segment})
	}

	if err := s.transcripts.Insert(ctx, records); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to save transcript", err)
	}
	return nil
}

func (s *transcriptService) Get(ctx context.Context, sessionID string) (string, error) {
	const op = "TranscriptService.Get"

	if sessionID == "" {
		return "", utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	rows, err := s.transcripts.ListBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return "", utils.E(utils.CodeNotFound, op, "transcript not found", err)
		}
		return "", utils.E(utils.CodeInternal, op, "failed to load transcript", err)
	}
	if len(rows) == 0 {
		return "", utils.E(utils.CodeNotFound, op, "transcript not found", nil)
	}

	parts := make([]string, 0, len(rows))
	for _, row := range rows {
		parts = append(parts, row.Content)
	}
	return strings.Join(parts, "\n"), nil
}
