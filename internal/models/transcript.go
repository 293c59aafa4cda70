package models

import "time"

// TranscriptRecord is the store-server row for one persisted segment.
type TranscriptRecord struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SessionID string    `gorm:"column:session_id;type:uuid;index" json:"session_id"`
	Content   string    `gorm:"column:content;type:text" json:"content"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (TranscriptRecord) TableName() string { return "transcripts" }

// AnalysisRecord is the store-server row holding a session's interview prompt.
type AnalysisRecord struct {
	SessionID string    `gorm:"column:session_id;type:uuid;primaryKey" json:"session_id"`
	Prompt    string    `gorm:"column:prompt;type:text" json:"prompt"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (AnalysisRecord) TableName() string { return "analysis_prompts" }
