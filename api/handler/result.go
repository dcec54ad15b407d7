package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/siwz-mapper/api/middleware"
	"github.com/fyerfyer/siwz-mapper/api/model"
	"github.com/fyerfyer/siwz-mapper/internal/models"
	"github.com/fyerfyer/siwz-mapper/internal/services"
	"github.com/fyerfyer/siwz-mapper/pkg/taskqueue"
)

// ResultHandler 处理提取和映射结果相关的API请求
type ResultHandler struct {
	pipeline *services.PipelineService // 管线服务
	logger   *logrus.Logger            // 日志记录器
}

// NewResultHandler 创建新的结果处理器
func NewResultHandler(pipeline *services.PipelineService) *ResultHandler {
	return &ResultHandler{
		pipeline: pipeline,
		logger:   middleware.GetLogger(),
	}
}

// GetDocumentResult 获取文档的完整映射结果
// GET /api/documents/:id/result
func (h *ResultHandler) GetDocumentResult(c *gin.Context) {
	var req model.DocumentResultRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "Nieprawidłowy identyfikator dokumentu"))
		return
	}

	result, err := h.pipeline.GetResults(c.Request.Context(), req.ID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrDocumentNotFound) {
			status = http.StatusNotFound
		}

		h.logger.WithFields(logrus.Fields{
			"error":   err.Error(),
			"file_id": req.ID,
		}).Error("Failed to get document result")

		c.JSON(status, model.NewErrorResponse(status, "Nie udało się pobrać wyników dokumentu"))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(result))
}

// GetDocumentItems 获取文档每个方案的服务条目
// GET /api/documents/:id/items
func (h *ResultHandler) GetDocumentItems(c *gin.Context) {
	var req model.DocumentResultRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "Nieprawidłowy identyfikator dokumentu"))
		return
	}

	items, err := h.pipeline.GetExtractedItems(c.Request.Context(), req.ID)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":   err.Error(),
			"file_id": req.ID,
		}).Error("Failed to get extracted items")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"Nie udało się pobrać pozycji usług",
		))
		return
	}

	resp := model.VariantItemsResponse{
		FileID: req.ID,
		Items:  items,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// RemapDocument 使用新词典重新映射文档
// POST /api/documents/:id/remap
func (h *ResultHandler) RemapDocument(c *gin.Context) {
	var uriReq model.DocumentResultRequest
	if err := c.ShouldBindUri(&uriReq); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "Nieprawidłowy identyfikator dokumentu"))
		return
	}

	var req model.DocumentRemapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "Nieprawidłowe parametry żądania"))
		return
	}

	// 有队列时走异步路径
	if queue := h.pipeline.GetTaskQueue(); queue != nil {
		payload := taskqueue.DocumentRemapPayload{
			DocumentID:     uriReq.ID,
			DictionaryPath: req.DictionaryPath,
		}

		taskID, err := queue.Enqueue(c.Request.Context(), taskqueue.TaskDocumentRemap, uriReq.ID, payload)
		if err != nil {
			h.logger.WithError(err).Error("Failed to enqueue remap task")

			c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
				http.StatusInternalServerError,
				"Nie udało się zaplanować ponownego mapowania",
			))
			return
		}

		c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{
			"file_id": uriReq.ID,
			"task_id": taskID,
		}))
		return
	}

	if err := h.pipeline.RemapDocument(c.Request.Context(), uriReq.ID, req.DictionaryPath); err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":   err.Error(),
			"file_id": uriReq.ID,
		}).Error("Failed to remap document")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"Nie udało się ponownie zmapować dokumentu",
		))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{
		"file_id": uriReq.ID,
		"success": true,
	}))
}
