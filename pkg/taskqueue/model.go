package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskDocumentProcess 文档完整处理任务（解析到映射的全流程）
	TaskDocumentProcess TaskType = "document_process"
	// TaskDocumentRemap 文档重新映射任务（使用新版词典重跑映射阶段）
	TaskDocumentRemap TaskType = "document_remap"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	DocumentID  string          `json:"document_id"`  // 关联的文档ID
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷数据，不同任务类型对应不同结构
	Result      json.RawMessage `json:"result"`       // 任务结果数据，不同任务类型对应不同结构
	Error       string          `json:"error"`        // 错误信息（如果处理失败）
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	Attempts    int             `json:"attempts"`     // 尝试次数
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// DocumentProcessPayload 文档完整处理任务载荷
type DocumentProcessPayload struct {
	FilePath string            `json:"file_path"` // 文件存储路径
	FileName string            `json:"file_name"` // 文件名
	FileType string            `json:"file_type"` // 文件类型
	Metadata map[string]string `json:"metadata"`  // 元数据
}

// DocumentProcessResult 文档完整处理任务结果
type DocumentProcessResult struct {
	DocumentID   string `json:"document_id"`   // 文档ID
	SegmentCount int    `json:"segment_count"` // 提取的片段数量
	BlockCount   int    `json:"block_count"`   // 语义块数量
	VariantCount int    `json:"variant_count"` // 识别出的方案数量
	ItemCount    int    `json:"item_count"`    // 提取的服务条目数量
	Error        string `json:"error"`         // 错误信息（如果有）
}

// DocumentRemapPayload 文档重新映射任务载荷
type DocumentRemapPayload struct {
	DocumentID     string `json:"document_id"`     // 文档ID
	DictionaryPath string `json:"dictionary_path"` // 词典文件路径
}
