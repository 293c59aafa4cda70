package services

import (
	"context"
	"errors"
	"time"

	"github.com/voxprep/voxprep/internal/cache"
	"github.com/voxprep/voxprep/internal/models"
	pgrepo "github.com/voxprep/voxprep/internal/repositories/postgres"
	"github.com/voxprep/voxprep/internal/utils"
)

type AnalysisService interface {
	GetPrompt(ctx context.Context, sessionID string) (*models.AnalysisRecord, error)
	SeedPrompt(ctx context.Context, sessionID, prompt string) error
}

type analysisService struct {
	prompts pgrepo.AnalysisRepo
	cache   cache.Cache
	ttl     time.Duration
}

func NewAnalysisService(prompts pgrepo.AnalysisRepo, c cache.Cache, ttl time.Duration) AnalysisService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &analysisService{prompts: prompts, cache: c, ttl: ttl}
}

func cacheKey(sessionID string) string { return "analysis:prompt:" + sessionID }

// GetPrompt reads through the cache. A miss that is also absent in Postgres
// means the analysis pipeline has not produced the prompt yet: NOT_READY.
func (s *analysisService) GetPrompt(ctx context.Context, sessionID string) (*models.AnalysisRecord, error) {
	const op = "AnalysisService.GetPrompt"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	if s.cache != nil {
		if val, ok, err := s.cache.Get(ctx, cacheKey(sessionID)); err == nil && ok {
			return &models.AnalysisRecord{SessionID: sessionID, Prompt: val}, nil
		}
	}

	rec, err := s.prompts.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotReady, op, "analysis prompt not ready", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load analysis prompt", err)
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, cacheKey(sessionID), rec.Prompt, s.ttl)
	}
	return rec, nil
}

func (s *analysisService) SeedPrompt(ctx context.Context, sessionID, prompt string) error {
	const op = "AnalysisService.SeedPrompt"

	if sessionID == "" || prompt == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id and prompt are required", nil)
	}

	rec := &models.AnalysisRecord{SessionID: sessionID, Prompt: prompt, CreatedAt: time.Now().UTC()}
	if err := s.prompts.Upsert(ctx, rec); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to seed analysis prompt", err)
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, cacheKey(sessionID))
	}
	return nil
}
