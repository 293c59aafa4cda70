package postgres

import (
	"context"
	"time"

	"github.com/voxprep/voxprep/internal/models"
	"gorm.io/gorm"
)

type TranscriptRepo interface {
	Insert(ctx context.Context, records []models.TranscriptRecord) error
	ListBySession(ctx context.Context, sessionID string) ([]models.TranscriptRecord, error)
}

type transcriptRepo struct {
	db *gorm.DB
}

func NewTranscriptRepo(db *gorm.DB) TranscriptRepo {
	return &transcriptRepo{db: db}
}

func (r *transcriptRepo) Insert(ctx context.Context, records []models.TranscriptRecord) error {
	now := time.Now().UTC()
	for i := range records {
		if records[i].CreatedAt.IsZero() {
			records[i].CreatedAt = now
		}
	}
	return r.db.WithContext(ctx).Create(&records).Error
}

func (r *transcriptRepo) ListBySession(ctx context.Context, sessionID string) ([]models.TranscriptRecord, error) {
	var rows []models.TranscriptRecord
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}
