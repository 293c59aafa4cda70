// Package storeclient talks to the external Session Store: the service that
// persists finalized transcripts and serves precomputed interview prompts.
package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxprep/voxprep/internal/models"
	"github.com/voxprep/voxprep/internal/utils"
)

const maxBodyBytes = 1 << 20

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type transcriptPayload struct {
	SessionID  string   `json:"session_id"`
	Transcript []string `json:"transcript"`
}

type promptResponse struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// SaveTranscript persists the fully joined transcript text for a session.
func (c *Client) SaveTranscript(ctx context.Context, sessionID, text string) error {
	const op = "StoreClient.SaveTranscript"

	if sessionID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	body, err := json.Marshal(transcriptPayload{SessionID: sessionID, Transcript: []string{text}})
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to encode transcript", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcripts", bytes.NewReader(body))
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return utils.E(utils.CodeUnavailable, op, "session store unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return utils.E(utils.CodeInternal, op, "session store rejected transcript: "+readDetail(resp.Body), nil)
	}
	return nil
}

// FetchPrompt retrieves the precomputed interview prompt for a session.
// A 404 means the analysis pipeline has not produced it yet and maps to
// NOT_READY; any other non-200 status is terminal.
func (c *Client) FetchPrompt(ctx context.Context, sessionID string) (*models.AnalysisPrompt, error) {
	const op = "StoreClient.FetchPrompt"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/analysis/"+sessionID, nil)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to build request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "session store unreachable", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var pr promptResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&pr); err != nil {
			return nil, utils.E(utils.CodeInternal, op, "invalid prompt payload", err)
		}
		return &models.AnalysisPrompt{SessionID: sessionID, Payload: pr.Prompt}, nil
	case http.StatusNotFound:
		return nil, utils.E(utils.CodeNotReady, op, "analysis prompt not ready", nil)
	default:
		return nil, utils.E(utils.CodeInternal, op, "session store error: "+readDetail(resp.Body), nil)
	}
}

func readDetail(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil {
		if er.Message != "" {
			return er.Message
		}
		if er.Detail != "" {
			return er.Detail
		}
	}
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return "no detail"
	}
	return s
}
