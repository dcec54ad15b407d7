package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentStatus 文档处理状态类型
type DocumentStatus string

const (
	// DocStatusUploaded 文档已上传，等待处理
	DocStatusUploaded DocumentStatus = "uploaded"
	// DocStatusProcessing 文档处理中
	DocStatusProcessing DocumentStatus = "processing"
	// DocStatusCompleted 文档处理完成
	DocStatusCompleted DocumentStatus = "completed"
	// DocStatusFailed 文档处理失败
	DocStatusFailed DocumentStatus = "failed"
)

// ProcessStage 文档处理阶段
type ProcessStage string

const (
	// StageParsing 解析阶段（PDF提取片段）
	StageParsing ProcessStage = "parsing"
	// StageSegmenting 语义分块阶段
	StageSegmenting ProcessStage = "segmenting"
	// StageClassifying LLM分类阶段
	StageClassifying ProcessStage = "classifying"
	// StageAggregating 方案聚合阶段
	StageAggregating ProcessStage = "aggregating"
	// StageExtracting 服务条目提取阶段
	StageExtracting ProcessStage = "extracting"
	// StageMapping 编码映射阶段
	StageMapping ProcessStage = "mapping"
	// StageCompleted 处理完成
	StageCompleted ProcessStage = "completed"
)

// Document 文档数据模型
// 用于存储上传的SIWZ文档的元数据和处理状态
type Document struct {
	ID            string         `gorm:"primaryKey"`         // 文档ID，主键
	FileName      string         `gorm:"not null"`           // 文件名
	FileType      string         `gorm:"not null"`           // 文件类型
	FilePath      string         `gorm:"not null"`           // 文件路径
	FileSize      int64          `gorm:"not null"`           // 文件大小（字节）
	Status        DocumentStatus `gorm:"not null;index"`     // 处理状态
	UploadedAt    time.Time      `gorm:"not null;index"`     // 上传时间
	ProcessedAt   *time.Time     `gorm:"index"`              // 处理完成时间
	UpdatedAt     time.Time      `gorm:"not null;index"`     // 更新时间
	Progress      int            `gorm:"not null;default:0"` // 处理进度（0-100）
	Error         string         `gorm:"type:text"`          // 错误信息
	SegmentCount  int            `gorm:"not null;default:0"` // 提取的片段数量
	VariantCount  int            `gorm:"not null;default:0"` // 识别出的方案数量
	Metadata      datatypes.JSON `gorm:"type:json"`          // 元数据，JSON格式
	CurrentStage  ProcessStage   `gorm:"size:20"`            // 当前处理阶段
	CurrentTaskID string         `gorm:"size:50;index"`      // 当前关联的任务ID
	RetryCount    int            `gorm:"default:0"`          // 重试次数
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (d *Document) BeforeCreate(tx *gorm.DB) (err error) {
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now()
	}
	d.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (d *Document) BeforeUpdate(tx *gorm.DB) (err error) {
	d.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (Document) TableName() string {
	return "documents"
}

// ExtractionRecord 提取结果数据模型
// 保存一次完整管线运行的结构化输出
type ExtractionRecord struct {
	ID         uint           `gorm:"primaryKey;autoIncrement"` // 记录ID
	DocumentID string         `gorm:"not null;index"`           // 所属文档ID
	VariantID  string         `gorm:"not null;index"`           // 方案ID
	Header     string         `gorm:"type:text"`                // 方案标题文本
	Items      datatypes.JSON `gorm:"type:json"`                // 服务条目列表，JSON格式
	Result     datatypes.JSON `gorm:"type:json"`                // 方案映射结果，JSON格式
	CreatedAt  time.Time      `gorm:"not null"`                 // 创建时间
}

// TableName 明确指定表名
func (ExtractionRecord) TableName() string {
	return "extraction_records"
}
