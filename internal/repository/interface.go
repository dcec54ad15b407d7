package repository

import "github.com/fyerfyer/siwz-mapper/internal/models"

// DocumentRepository 文档仓储接口
// 负责文档元数据和提取结果的存储和检索
type DocumentRepository interface {
	// Create 创建文档记录
	Create(doc *models.Document) error

	// Update 更新文档记录
	Update(doc *models.Document) error

	// GetByID 根据ID获取文档
	GetByID(id string) (*models.Document, error)

	// List 列出文档列表，支持分页和筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error)

	// Delete 删除文档及其提取结果
	Delete(id string) error

	// UpdateStatus 更新文档状态
	UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error

	// UpdateStage 更新文档当前处理阶段
	UpdateStage(id string, stage models.ProcessStage) error

	// UpdateProgress 更新文档处理进度
	UpdateProgress(id string, progress int) error

	// SaveExtractionRecords 批量保存方案提取结果
	SaveExtractionRecords(records []*models.ExtractionRecord) error

	// GetExtractionRecords 获取文档的所有提取结果
	GetExtractionRecords(docID string) ([]*models.ExtractionRecord, error)

	// DeleteExtractionRecords 删除文档的所有提取结果
	DeleteExtractionRecords(docID string) error
}
