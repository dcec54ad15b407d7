package models

// VariantGroup 一个方案及其下属片段的分组
// 四组片段恰好不重叠地划分该方案在输入序列中占有的半开区间
type VariantGroup struct {
	VariantID           string        `json:"variant_id"`                    // 方案标识符，例如 "V1"、"V2"
	HeaderSegment       *PdfSegment   `json:"header_segment,omitempty"`      // 触发该方案的标题片段（可选）
	BodySegments        []*PdfSegment `json:"body_segments"`                 // 方案正文片段
	ProphylaxisSegments []*PdfSegment `json:"prophylaxis_segments"`          // 预防保健片段
	OtherSegments       []*PdfSegment `json:"other_segments"`                // 区间内其他标签的片段（general、pricing_table等）
}

// SegmentCount 该方案内片段总数
func (vg *VariantGroup) SegmentCount() int {
	count := len(vg.BodySegments) + len(vg.ProphylaxisSegments) + len(vg.OtherSegments)
	if vg.HeaderSegment != nil {
		count++
	}
	return count
}
