package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestQueue 基于miniredis创建测试队列
func setupTestQueue(t *testing.T) Queue {
	t.Helper()

	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.RedisAddr = mr.Addr()

	queue, err := NewRedisQueue(cfg)
	require.NoError(t, err, "Failed to create redis queue")
	t.Cleanup(func() {
		queue.Close()
	})

	return queue
}

func TestEnqueueAndGetTask(t *testing.T) {
	queue := setupTestQueue(t)
	ctx := context.Background()

	payload := DocumentProcessPayload{
		FilePath: "data/files/doc-1.pdf",
		FileName: "doc-1.pdf",
		FileType: "pdf",
	}

	taskID, err := queue.Enqueue(ctx, TaskDocumentProcess, "doc-1", payload)
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, taskID, task.ID)
	assert.Equal(t, TaskDocumentProcess, task.Type)
	assert.Equal(t, "doc-1", task.DocumentID)
	assert.Equal(t, StatusPending, task.Status)
	assert.False(t, task.CreatedAt.IsZero())

	var loaded DocumentProcessPayload
	require.NoError(t, UnmarshalPayload(task.Payload, &loaded))
	assert.Equal(t, payload, loaded)

	t.Run("tasks by document", func(t *testing.T) {
		tasks, err := queue.GetTasksByDocument(ctx, "doc-1")
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, taskID, tasks[0].ID)

		tasks, err = queue.GetTasksByDocument(ctx, "doc-unknown")
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})

	t.Run("missing task", func(t *testing.T) {
		_, err := queue.GetTask(ctx, "no-such-task")
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})
}

func TestUpdateTaskStatus(t *testing.T) {
	queue := setupTestQueue(t)
	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskDocumentProcess, "doc-1", nil)
	require.NoError(t, err)

	t.Run("processing sets start time", func(t *testing.T) {
		require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, ""))

		task, err := queue.GetTask(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, task.Status)
		require.NotNil(t, task.StartedAt)
		assert.Nil(t, task.CompletedAt)
	})

	t.Run("completed with result", func(t *testing.T) {
		result := DocumentProcessResult{
			DocumentID:   "doc-1",
			SegmentCount: 12,
			VariantCount: 2,
		}
		require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, result, ""))

		task, err := queue.GetTask(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, task.Status)
		require.NotNil(t, task.CompletedAt)

		var loaded DocumentProcessResult
		require.NoError(t, UnmarshalPayload(task.Result, &loaded))
		assert.Equal(t, 12, loaded.SegmentCount)
		assert.Equal(t, 2, loaded.VariantCount)
	})

	t.Run("failed with error message", func(t *testing.T) {
		failedID, err := queue.Enqueue(ctx, TaskDocumentRemap, "doc-2", nil)
		require.NoError(t, err)

		require.NoError(t, queue.UpdateTaskStatus(ctx, failedID, StatusFailed, nil, "dictionary file not found"))

		task, err := queue.GetTask(ctx, failedID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, task.Status)
		assert.Equal(t, "dictionary file not found", task.Error)
	})

	t.Run("update missing task", func(t *testing.T) {
		err := queue.UpdateTaskStatus(ctx, "no-such-task", StatusCompleted, nil, "")
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})
}

func TestDeleteTask(t *testing.T) {
	queue := setupTestQueue(t)
	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskDocumentProcess, "doc-1", nil)
	require.NoError(t, err)

	require.NoError(t, queue.DeleteTask(ctx, taskID))

	_, err = queue.GetTask(ctx, taskID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	tasks, err := queue.GetTasksByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestWaitForFinishedTask(t *testing.T) {
	queue := setupTestQueue(t)
	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskDocumentProcess, "doc-1", nil)
	require.NoError(t, err)
	require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, nil, ""))

	// 已完成的任务立即返回，不进入订阅等待
	task, err := queue.WaitForTask(ctx, taskID, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
}

func TestPayloadHelpers(t *testing.T) {
	t.Run("nil payload", func(t *testing.T) {
		data, err := MarshalPayload(nil)
		require.NoError(t, err)
		assert.Equal(t, "{}", string(data))
	})

	t.Run("roundtrip", func(t *testing.T) {
		data, err := MarshalPayload(DocumentRemapPayload{
			DocumentID:     "doc-1",
			DictionaryPath: "data/dict/slownik_v2.xlsx",
		})
		require.NoError(t, err)

		var loaded DocumentRemapPayload
		require.NoError(t, UnmarshalPayload(data, &loaded))
		assert.Equal(t, "doc-1", loaded.DocumentID)
		assert.Equal(t, "data/dict/slownik_v2.xlsx", loaded.DictionaryPath)
	})

	t.Run("empty data", func(t *testing.T) {
		var loaded DocumentProcessPayload
		require.NoError(t, UnmarshalPayload(nil, &loaded))
		assert.Empty(t, loaded.FilePath)
	})
}

func TestTaskInfoProgress(t *testing.T) {
	tests := []struct {
		status   TaskStatus
		progress float64
	}{
		{StatusPending, 0.0},
		{StatusProcessing, 50.0},
		{StatusCompleted, 100.0},
		{StatusFailed, 50.0},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			info := NewTaskInfo(&Task{ID: "t1", Status: tt.status})
			assert.Equal(t, tt.progress, info.Progress)
		})
	}
}
