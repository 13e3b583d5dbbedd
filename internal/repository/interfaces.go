// Package repository defines data access interfaces for tvjuke entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/tvjuke/tvjuke/internal/models"
)

// ProbeRecordRepository defines operations for the probe cache.
type ProbeRecordRepository interface {
	// GetByPath retrieves a probe record by absolute file path.
	// Returns nil with no error when no record exists.
	GetByPath(ctx context.Context, path string) (*models.ProbeRecord, error)
	// Upsert creates or replaces the record for its path.
	Upsert(ctx context.Context, rec *models.ProbeRecord) error
	// Delete removes the record for a path.
	Delete(ctx context.Context, path string) error
	// DeleteStale removes records not updated since the given time.
	DeleteStale(ctx context.Context, olderThan time.Time) (int64, error)
	// Count returns the number of cached records.
	Count(ctx context.Context) (int64, error)
}
