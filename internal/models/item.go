package models

// BlockCategory 块类别标识
// 类别来自Excel词典，是动态的，因此用字符串表示，
// 实际取值如 "Kardiologia__Konsultacje" 或 "unknown"
type BlockCategory = string

// ItemExtra 服务条目的附加信息
// 用有类型的结构表示已知可选字段，而不是任意map
type ItemExtra struct {
	SourceLine        string   `json:"source_line,omitempty"`        // 产生该条目的原始行
	LineIdxInSegment  int      `json:"line_idx_in_segment"`          // 行在源片段内的索引
	IsBlockHeader     bool     `json:"is_block_header,omitempty"`    // 是否为块标题行 "N. ..."
	IsSubItem         bool     `json:"is_sub_item,omitempty"`        // 是否为子条目行 "N.M. ..."
	ContinuationLines []string `json:"continuation_lines,omitempty"` // 附加到该条目的未编号续行
}

// VariantServiceItem 从方案中提取出的一条待映射服务
type VariantServiceItem struct {
	VariantID       string        `json:"variant_id"`                  // 所属方案ID，例如 "V1"
	BlockNo         string        `json:"block_no,omitempty"`          // 文档中的块编号（"4"、"14"...）
	BlockHeadingRaw string        `json:"block_heading_raw,omitempty"` // 块的原始标题
	BlockCategory   BlockCategory `json:"block_category"`              // 类别ID，未知时为 "unknown"
	ServiceLocalID  string        `json:"service_local_id,omitempty"`  // 服务的局部编号（"4.1"、"14.3"...）
	ServiceText     string        `json:"service_text"`                // 服务文本（后续映射到词典）

	IsProphylaxis            bool `json:"is_prophylaxis"`             // 是否来自方案的预防保健部分
	IsOccupationalMedicine   bool `json:"is_occupational_medicine"`   // 职业医学（预留）
	IsTelemedicine           bool `json:"is_telemedicine"`            // 远程医疗（预留）
	IsPricingOnly            bool `json:"is_pricing_only"`            // 仅价格行，不是服务定义（预留）

	SourceSegmentID string    `json:"source_segment_id"` // 来源片段ID
	Page            int       `json:"page"`              // 页码
	Extra           ItemExtra `json:"extra"`             // 附加信息
}
