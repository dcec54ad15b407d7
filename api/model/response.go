package model

import (
	"time"

	"github.com/fyerfyer/siwz-mapper/internal/models"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// DocumentUploadResponse 文档上传响应
type DocumentUploadResponse struct {
	FileID   string `json:"file_id"`  // 文件ID
	FileName string `json:"filename"` // 文件名
	Status   string `json:"status"`   // 文档状态：uploaded、processing、completed、failed
}

// DocumentStatusResponse 文档状态查询响应
type DocumentStatusResponse struct {
	FileID    string `json:"file_id"`            // 文档ID
	Status    string `json:"status"`             // 处理状态
	Stage     string `json:"stage,omitempty"`    // 当前处理阶段
	Progress  int    `json:"progress"`           // 处理进度（0-100）
	FileName  string `json:"filename"`           // 文件名
	Error     string `json:"error,omitempty"`    // 错误信息（如果有）
	Segments  int    `json:"segments,omitempty"` // 片段数量（处理完成后）
	Variants  int    `json:"variants,omitempty"` // 方案数量（处理完成后）
	CreatedAt string `json:"created_at"`         // 创建时间
	UpdatedAt string `json:"updated_at"`         // 更新时间
}

// DocumentInfo 文档信息
type DocumentInfo struct {
	FileID     string    `json:"file_id"`     // 文件ID
	FileName   string    `json:"filename"`    // 文件名
	Status     string    `json:"status"`      // 状态
	Stage      string    `json:"stage"`       // 当前处理阶段
	UploadTime time.Time `json:"upload_time"` // 上传时间
	Segments   int       `json:"segments"`    // 片段数量
	Variants   int       `json:"variants"`    // 方案数量
}

// DocumentListResponse 文档列表响应
type DocumentListResponse struct {
	Total     int64          `json:"total"`     // 总数量
	Page      int            `json:"page"`      // 当前页码
	PageSize  int            `json:"page_size"` // 每页大小
	Documents []DocumentInfo `json:"documents"` // 文档列表
}

// DocumentDeleteResponse 文档删除响应
type DocumentDeleteResponse struct {
	Success bool   `json:"success"` // 是否成功
	FileID  string `json:"file_id"` // 文件ID
}

// VariantItemsResponse 方案服务条目响应
type VariantItemsResponse struct {
	FileID string                                  `json:"file_id"` // 文档ID
	Items  map[string][]*models.VariantServiceItem `json:"items"`   // 每个方案的服务条目
}

// ConvertToDocumentInfo 将文档模型转换为响应信息
func ConvertToDocumentInfo(docs []*models.Document) []DocumentInfo {
	infos := make([]DocumentInfo, len(docs))
	for i, doc := range docs {
		infos[i] = DocumentInfo{
			FileID:     doc.ID,
			FileName:   doc.FileName,
			Status:     string(doc.Status),
			Stage:      string(doc.CurrentStage),
			UploadTime: doc.UploadedAt,
			Segments:   doc.SegmentCount,
			Variants:   doc.VariantCount,
		}
	}
	return infos
}
