// Package repository provides data access implementations.
package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tvjuke/tvjuke/internal/models"
)

// probeRecordRepository implements ProbeRecordRepository using GORM.
type probeRecordRepository struct {
	db *gorm.DB
}

// NewProbeRecordRepository creates a new ProbeRecordRepository.
func NewProbeRecordRepository(db *gorm.DB) ProbeRecordRepository {
	return &probeRecordRepository{db: db}
}

// GetByPath retrieves a probe record by absolute file path.
func (r *probeRecordRepository) GetByPath(ctx context.Context, path string) (*models.ProbeRecord, error) {
	var rec models.ProbeRecord
	if err := r.db.WithContext(ctx).First(&rec, "path = ?", path).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Upsert creates or replaces the record for its path.
func (r *probeRecordRepository) Upsert(ctx context.Context, rec *models.ProbeRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validating probe record: %w", err)
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"size", "mod_time",
			"duration", "width", "height", "fps", "video_codec",
			"has_audio", "audio_channels", "channel_layout",
			"audio_codec", "sample_rate", "audio_bitrate",
			"container_bitrate",
			"updated_at",
		}),
	}).Create(rec).Error
}

// Delete removes the record for a path.
func (r *probeRecordRepository) Delete(ctx context.Context, path string) error {
	return r.db.WithContext(ctx).Where("path = ?", path).Delete(&models.ProbeRecord{}).Error
}

// DeleteStale removes records not updated since the given time.
func (r *probeRecordRepository) DeleteStale(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("updated_at < ?", olderThan).
		Delete(&models.ProbeRecord{})
	return res.RowsAffected, res.Error
}

// Count returns the number of cached records.
func (r *probeRecordRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.ProbeRecord{}).Count(&n).Error
	return n, err
}
