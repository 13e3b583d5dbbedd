package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tvjuke/tvjuke/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ProbeRecord{}))
	return db
}

func sampleRecord(path string) *models.ProbeRecord {
	return &models.ProbeRecord{
		Path:          path,
		Size:          4096,
		ModTime:       time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Duration:      95.4,
		Width:         1920,
		Height:        1080,
		FPS:           23.976,
		VideoCodec:    "h264",
		HasAudio:      true,
		AudioChannels: 2,
		ChannelLayout: "stereo",
		AudioCodec:    "aac",
	}
}

func TestProbeRecordRepo_UpsertAndGet(t *testing.T) {
	repo := NewProbeRecordRepository(setupTestDB(t))
	ctx := context.Background()

	rec := sampleRecord("/videos/a.mkv")
	require.NoError(t, repo.Upsert(ctx, rec))

	got, err := repo.GetByPath(ctx, "/videos/a.mkv")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(4096), got.Size)
	assert.Equal(t, "stereo", got.ChannelLayout)
	assert.True(t, got.Matches(4096, rec.ModTime))
	assert.False(t, got.Matches(4097, rec.ModTime))
}

func TestProbeRecordRepo_GetMissing(t *testing.T) {
	repo := NewProbeRecordRepository(setupTestDB(t))

	got, err := repo.GetByPath(context.Background(), "/nope.mkv")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProbeRecordRepo_UpsertReplacesOnConflict(t *testing.T) {
	repo := NewProbeRecordRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, sampleRecord("/videos/a.mkv")))

	updated := sampleRecord("/videos/a.mkv")
	updated.Size = 8192
	updated.AudioChannels = 6
	updated.ChannelLayout = "5.1"
	require.NoError(t, repo.Upsert(ctx, updated))

	got, err := repo.GetByPath(ctx, "/videos/a.mkv")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(8192), got.Size)
	assert.Equal(t, 6, got.AudioChannels)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestProbeRecordRepo_UpsertValidates(t *testing.T) {
	repo := NewProbeRecordRepository(setupTestDB(t))

	err := repo.Upsert(context.Background(), &models.ProbeRecord{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestProbeRecordRepo_Delete(t *testing.T) {
	repo := NewProbeRecordRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, sampleRecord("/videos/a.mkv")))
	require.NoError(t, repo.Delete(ctx, "/videos/a.mkv"))

	got, err := repo.GetByPath(ctx, "/videos/a.mkv")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProbeRecordRepo_DeleteStale(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProbeRecordRepository(db)
	ctx := context.Background()

	old := sampleRecord("/videos/old.mkv")
	require.NoError(t, repo.Upsert(ctx, old))
	// Backdate the row so it falls outside the retention window.
	require.NoError(t, db.Model(&models.ProbeRecord{}).
		Where("path = ?", old.Path).
		Update("updated_at", time.Now().Add(-48*time.Hour)).Error)

	require.NoError(t, repo.Upsert(ctx, sampleRecord("/videos/new.mkv")))

	removed, err := repo.DeleteStale(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
