package services

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fyerfyer/siwz-mapper/internal/models"
	"github.com/fyerfyer/siwz-mapper/internal/repository"
)

// setupStatusManager 创建基于内存SQLite的测试状态管理器
func setupStatusManager(t *testing.T) *DocumentStatusManager {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Failed to connect to test database")

	require.NoError(t, db.Migrator().DropTable(&models.Document{}, &models.ExtractionRecord{}))
	require.NoError(t, db.AutoMigrate(&models.Document{}, &models.ExtractionRecord{}))

	testLogger := logrus.New()
	testLogger.SetLevel(logrus.ErrorLevel)

	repo := repository.NewDocumentRepositoryWithDB(db)
	return NewDocumentStatusManager(repo, testLogger)
}

func TestDocumentLifecycle(t *testing.T) {
	manager := setupStatusManager(t)
	ctx := context.Background()

	t.Run("mark as uploaded", func(t *testing.T) {
		err := manager.MarkAsUploaded(ctx, "doc-1", "siwz_przetarg.pdf", "/data/files/doc-1.pdf", 4096)
		require.NoError(t, err)

		doc, err := manager.GetDocument(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, models.DocStatusUploaded, doc.Status)
		assert.Equal(t, "pdf", doc.FileType)
		assert.Equal(t, int64(4096), doc.FileSize)
		assert.Equal(t, 0, doc.Progress)
		assert.False(t, doc.UploadedAt.IsZero())
	})

	t.Run("mark as processing", func(t *testing.T) {
		require.NoError(t, manager.MarkAsProcessing(ctx, "doc-1"))

		status, err := manager.GetStatus(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, models.DocStatusProcessing, status)
	})

	t.Run("stage and progress updates", func(t *testing.T) {
		require.NoError(t, manager.MarkStage(ctx, "doc-1", models.StageClassifying))
		require.NoError(t, manager.UpdateProgress(ctx, "doc-1", 40))

		doc, err := manager.GetDocument(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, models.StageClassifying, doc.CurrentStage)
		assert.Equal(t, 40, doc.Progress)
	})

	t.Run("mark as completed", func(t *testing.T) {
		require.NoError(t, manager.MarkAsCompleted(ctx, "doc-1", 120, 3))

		doc, err := manager.GetDocument(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, models.DocStatusCompleted, doc.Status)
		assert.Equal(t, 120, doc.SegmentCount)
		assert.Equal(t, 3, doc.VariantCount)
		assert.Equal(t, models.StageCompleted, doc.CurrentStage)
		assert.Equal(t, 100, doc.Progress)
		assert.NotNil(t, doc.ProcessedAt)
	})
}

func TestInvalidStatusTransitions(t *testing.T) {
	manager := setupStatusManager(t)
	ctx := context.Background()

	require.NoError(t, manager.MarkAsUploaded(ctx, "doc-1", "oferta.pdf", "/data/files/doc-1.pdf", 1024))
	require.NoError(t, manager.MarkAsProcessing(ctx, "doc-1"))
	require.NoError(t, manager.MarkAsCompleted(ctx, "doc-1", 10, 1))

	t.Run("completed document cannot restart processing", func(t *testing.T) {
		err := manager.MarkAsProcessing(ctx, "doc-1")
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrInvalidDocumentStatus)
	})

	t.Run("completed document cannot complete again", func(t *testing.T) {
		err := manager.MarkAsCompleted(ctx, "doc-1", 10, 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrInvalidDocumentStatus)
	})

	t.Run("progress requires processing state", func(t *testing.T) {
		err := manager.UpdateProgress(ctx, "doc-1", 50)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not in processing state")
	})

	t.Run("missing document", func(t *testing.T) {
		err := manager.MarkAsProcessing(ctx, "doc-missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrDocumentNotFound)
	})
}

func TestFailedDocumentRetry(t *testing.T) {
	manager := setupStatusManager(t)
	ctx := context.Background()

	require.NoError(t, manager.MarkAsUploaded(ctx, "doc-1", "siwz.pdf", "/data/files/doc-1.pdf", 1024))
	require.NoError(t, manager.MarkAsProcessing(ctx, "doc-1"))
	require.NoError(t, manager.MarkAsFailed(ctx, "doc-1", "classification request timed out"))

	doc, err := manager.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, doc.Status)
	assert.Equal(t, "classification request timed out", doc.Error)

	// 失败的文档可以重新进入处理流程
	require.NoError(t, manager.MarkAsProcessing(ctx, "doc-1"))

	status, err := manager.GetStatus(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusProcessing, status)
}

func TestValidateStateTransition(t *testing.T) {
	manager := setupStatusManager(t)

	tests := []struct {
		name    string
		from    models.DocumentStatus
		to      models.DocumentStatus
		wantErr bool
	}{
		{"uploaded to processing", models.DocStatusUploaded, models.DocStatusProcessing, false},
		{"uploaded to completed", models.DocStatusUploaded, models.DocStatusCompleted, false},
		{"uploaded to failed", models.DocStatusUploaded, models.DocStatusFailed, false},
		{"processing to completed", models.DocStatusProcessing, models.DocStatusCompleted, false},
		{"processing to failed", models.DocStatusProcessing, models.DocStatusFailed, false},
		{"failed retry", models.DocStatusFailed, models.DocStatusProcessing, false},
		{"completed is terminal", models.DocStatusCompleted, models.DocStatusProcessing, true},
		{"processing to uploaded", models.DocStatusProcessing, models.DocStatusUploaded, true},
		{"failed to completed", models.DocStatusFailed, models.DocStatusCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := manager.ValidateStateTransition(tt.from, tt.to)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestListAndDeleteDocuments(t *testing.T) {
	manager := setupStatusManager(t)
	ctx := context.Background()

	require.NoError(t, manager.MarkAsUploaded(ctx, "doc-1", "siwz_a.pdf", "/data/files/doc-1.pdf", 100))
	require.NoError(t, manager.MarkAsUploaded(ctx, "doc-2", "siwz_b.pdf", "/data/files/doc-2.pdf", 200))

	docs, total, err := manager.ListDocuments(ctx, 0, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, docs, 2)

	require.NoError(t, manager.DeleteDocument(ctx, "doc-1"))

	_, err = manager.GetDocument(ctx, "doc-1")
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)
}

func TestGetFileType(t *testing.T) {
	assert.Equal(t, "pdf", getFileType("siwz_2024.pdf"))
	assert.Equal(t, "md", getFileType("opis.md"))
	assert.Equal(t, "", getFileType("bez_rozszerzenia"))
}
