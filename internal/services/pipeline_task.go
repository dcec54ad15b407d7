package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/siwz-mapper/pkg/taskqueue"
)

// PipelineTaskHandler 管线任务处理器
// 在任务队列工作者中执行文档处理任务
type PipelineTaskHandler struct {
	pipeline *PipelineService // 管线服务
	logger   *logrus.Logger   // 日志记录器
}

// NewPipelineTaskHandler 创建管线任务处理器
func NewPipelineTaskHandler(pipeline *PipelineService, logger *logrus.Logger) *PipelineTaskHandler {
	if logger == nil {
		logger = logrus.New()
	}

	return &PipelineTaskHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// GetTaskTypes 返回此处理器支持的任务类型
func (h *PipelineTaskHandler) GetTaskTypes() []taskqueue.TaskType {
	return []taskqueue.TaskType{
		taskqueue.TaskDocumentProcess,
		taskqueue.TaskDocumentRemap,
	}
}

// ProcessTask 处理任务
func (h *PipelineTaskHandler) ProcessTask(ctx context.Context, task *taskqueue.Task) error {
	h.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"task_type":   task.Type,
		"document_id": task.DocumentID,
	}).Info("Processing pipeline task")

	switch task.Type {
	case taskqueue.TaskDocumentProcess:
		return h.processDocument(ctx, task)
	case taskqueue.TaskDocumentRemap:
		return h.remapDocument(ctx, task)
	default:
		return fmt.Errorf("unsupported task type: %s", task.Type)
	}
}

// processDocument 执行完整的文档处理管线
func (h *PipelineTaskHandler) processDocument(ctx context.Context, task *taskqueue.Task) error {
	var payload taskqueue.DocumentProcessPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	result, err := h.pipeline.RunPipeline(ctx, task.DocumentID, payload.FilePath)
	if err != nil {
		h.pipeline.failDocument(ctx, task.DocumentID, err.Error())
		return err
	}

	if err := h.pipeline.GetStatusManager().MarkAsCompleted(ctx, task.DocumentID, result.SegmentCount, result.VariantCount); err != nil {
		h.logger.WithError(err).Error("Failed to mark document as completed")
	}

	// 将结果写回任务记录
	if queue := h.pipeline.GetTaskQueue(); queue != nil {
		if err := queue.UpdateTaskStatus(ctx, task.ID, taskqueue.StatusProcessing, result, ""); err != nil {
			h.logger.WithError(err).Warn("Failed to attach result to task")
		}
	}

	return nil
}

// remapDocument 使用新词典重跑映射阶段
func (h *PipelineTaskHandler) remapDocument(ctx context.Context, task *taskqueue.Task) error {
	var payload taskqueue.DocumentRemapPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	return h.pipeline.RemapDocument(ctx, task.DocumentID, payload.DictionaryPath)
}
