package postgres

import (
	"context"
	"errors"

	"github.com/voxprep/voxprep/internal/models"
	"github.com/voxprep/voxprep/internal/utils"
	"gorm.io/gorm"
)

type AnalysisRepo interface {
	Upsert(ctx context.Context, rec *models.AnalysisRecord) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.AnalysisRecord, error)
}

type analysisRepo struct {
	db *gorm.DB
}

func NewAnalysisRepo(db *gorm.DB) AnalysisRepo {
	return &analysisRepo{db: db}
}

func (r *analysisRepo) Upsert(ctx context.Context, rec *models.AnalysisRecord) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

func (r *analysisRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.AnalysisRecord, error) {
	var row models.AnalysisRecord
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}
