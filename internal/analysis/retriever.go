// Package analysis resolves the precomputed interview prompt for a session.
// The prompt is produced by an external pipeline and may not exist yet when
// the room is opened, so retrieval polls with bounded retries.
package analysis

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voxprep/voxprep/internal/models"
	"github.com/voxprep/voxprep/internal/utils"
)

// PromptSource is the session store read side.
type PromptSource interface {
	FetchPrompt(ctx context.Context, sessionID string) (*models.AnalysisPrompt, error)
}

type Retriever struct {
	Source   PromptSource
	Attempts int           // default 5
	Delay    time.Duration // fixed delay between attempts, default 2s
	Logger   *logrus.Logger
}

// FetchPrompt polls the store until the prompt is ready. A NOT_READY answer
// is retried up to the attempt bound; any other failure is terminal with no
// further retries. Exhausting the bound yields a distinct NOT_FOUND error so
// callers can present different guidance than for a server error.
func (r *Retriever) FetchPrompt(ctx context.Context, sessionID string) (*models.AnalysisPrompt, error) {
	const op = "Retriever.FetchPrompt"

	if r.Source == nil {
		return nil, utils.E(utils.CodeInternal, op, "prompt source is not set", nil)
	}
	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 5
	}
	delay := r.Delay
	if delay <= 0 {
		delay = 2000 * time.Millisecond
	}
	log := r.Logger
	if log == nil {
		log = logrus.New()
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		prompt, err := r.Source.FetchPrompt(ctx, sessionID)
		if err == nil {
			return prompt, nil
		}
		if !utils.IsCode(err, utils.CodeNotReady) {
			return nil, err
		}

		log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"attempt":    attempt,
		}).Debug("analysis prompt not ready")

		if attempt == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, utils.E(utils.CodeCancelled, op, "prompt polling cancelled", ctx.Err())
		case <-timer.C:
		}
	}

	return nil, utils.E(utils.CodeNotFound, op,
		"analysis prompt not found after "+strconv.Itoa(attempts)+" attempts", nil)
}
