package models

// AnalysisPrompt is the precomputed interview prompt for one session.
// Fetched once, immutable thereafter.
type AnalysisPrompt struct {
	SessionID string `json:"session_id"`
	Payload   string `json:"payload"`
}
