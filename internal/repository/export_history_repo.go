package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/calin/convohist/internal/domain"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no history record matches the lookup.
var ErrNotFound = errors.New("export history record not found")

// ExportHistoryRepository persists export audit records. Unlike the job
// registry these rows outlive the retention window.
type ExportHistoryRepository struct {
	db *gorm.DB
}

// NewExportHistoryRepository creates a new export history repository.
func NewExportHistoryRepository(db *gorm.DB) *ExportHistoryRepository {
	return &ExportHistoryRepository{db: db}
}

// Create inserts a new history record.
func (r *ExportHistoryRepository) Create(ctx context.Context, h *domain.ExportHistory) error {
	if err := r.db.WithContext(ctx).Create(h).Error; err != nil {
		return fmt.Errorf("failed to create export history record: %w", err)
	}
	return nil
}

// ListByLocation returns a location's history records, newest first.
func (r *ExportHistoryRepository) ListByLocation(ctx context.Context, locationID string, limit, offset int) ([]domain.ExportHistory, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var records []domain.ExportHistory
	err := r.db.WithContext(ctx).
		Where("location_id = ?", locationID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list export history: %w", err)
	}
	return records, nil
}

// GetByJobID returns the history record for one job id, or ErrNotFound.
func (r *ExportHistoryRepository) GetByJobID(ctx context.Context, jobID string) (*domain.ExportHistory, error) {
	var record domain.ExportHistory
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up export history: %w", err)
	}
	return &record, nil
}
