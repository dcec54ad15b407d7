package models

import "fmt"

// BBox PDF中的边界框坐标
type BBox struct {
	Page int     `json:"page"` // 页码（从1开始）
	X0   float64 `json:"x0"`   // 左边界
	Y0   float64 `json:"y0"`   // 下边界
	X1   float64 `json:"x1"`   // 右边界
	Y1   float64 `json:"y1"`   // 上边界
}

// PdfSegment 从PDF中提取的带位置信息的文本片段
// 由文档加载器产生，是整条管线的最小处理单元
type PdfSegment struct {
	SegmentID    string `json:"segment_id"`              // 片段唯一标识符
	Text         string `json:"text"`                    // 提取的文本内容
	Page         int    `json:"page"`                    // 页码（从1开始）
	BBox         *BBox  `json:"bbox,omitempty"`          // 边界框（可选）
	StartChar    *int   `json:"start_char,omitempty"`    // 文档内起始字符偏移（可选）
	EndChar      *int   `json:"end_char,omitempty"`      // 文档内结束字符偏移（可选）
	SectionLabel string `json:"section_label,omitempty"` // 章节标签，例如 "Wariant 1"
	VariantID    string `json:"variant_id,omitempty"`    // 所属方案ID（由聚合器填写）
}

// Validate 校验片段的不变量
func (s *PdfSegment) Validate() error {
	if s.Page < 1 {
		return fmt.Errorf("segment %s: page must be >= 1, got %d", s.SegmentID, s.Page)
	}
	if s.BBox != nil && s.BBox.Page != s.Page {
		return fmt.Errorf("segment %s: bbox.page (%d) must match segment page (%d)",
			s.SegmentID, s.BBox.Page, s.Page)
	}
	if s.StartChar != nil && *s.StartChar < 0 {
		return fmt.Errorf("segment %s: start_char must be >= 0", s.SegmentID)
	}
	if s.EndChar != nil && *s.EndChar < 0 {
		return fmt.Errorf("segment %s: end_char must be >= 0", s.SegmentID)
	}
	if s.StartChar != nil && s.EndChar != nil && *s.EndChar < *s.StartChar {
		return fmt.Errorf("segment %s: end_char (%d) must be >= start_char (%d)",
			s.SegmentID, *s.EndChar, *s.StartChar)
	}
	return nil
}

// Clone 返回片段的深拷贝
// 聚合器写入VariantID时使用拷贝，避免修改共享状态
func (s *PdfSegment) Clone() *PdfSegment {
	c := *s
	if s.BBox != nil {
		b := *s.BBox
		c.BBox = &b
	}
	if s.StartChar != nil {
		v := *s.StartChar
		c.StartChar = &v
	}
	if s.EndChar != nil {
		v := *s.EndChar
		c.EndChar = &v
	}
	return &c
}

// SemanticBlock 由多个PdfSegment组成的语义块
// 作为块级LLM分类的基本单元，一次分段运行后不再修改
type SemanticBlock struct {
	BlockID   string        `json:"block_id"`            // 块唯一标识符
	Text      string        `json:"text"`                // 成员片段文本按阅读顺序以换行符拼接
	Segments  []*PdfSegment `json:"segments"`            // 底层片段（阅读顺序）
	PageStart int           `json:"page_start"`          // 起始页（含）
	PageEnd   int           `json:"page_end"`            // 结束页（含）
	BBox      *BBox         `json:"bbox,omitempty"`      // 所有成员边界框的并集（可选）
	TypeHint  string        `json:"type_hint,omitempty"` // 布局提示："heading"、"table" 等
}
