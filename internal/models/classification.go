package models

// Label 分类标签类型
type Label string

const (
	// LabelIrrelevant 引言、法律条款、元信息等无关内容
	LabelIrrelevant Label = "irrelevant"
	// LabelGeneral 总体范围描述，不属于具体方案
	LabelGeneral Label = "general"
	// LabelVariantHeader 引入具体医疗方案的标题，例如 "WARIANT 1"
	LabelVariantHeader Label = "variant_header"
	// LabelVariantBody 属于某个方案的服务列表和描述
	LabelVariantBody Label = "variant_body"
	// LabelProphylaxis 预防保健计划段落
	LabelProphylaxis Label = "prophylaxis"
	// LabelPricingTable 报价表格，"Wariant 1-4" 只是价格列而非方案定义
	LabelPricingTable Label = "pricing_table"
)

// ValidLabels 允许的分类标签集合
var ValidLabels = map[Label]bool{
	LabelIrrelevant:    true,
	LabelGeneral:       true,
	LabelVariantHeader: true,
	LabelVariantBody:   true,
	LabelProphylaxis:   true,
	LabelPricingTable:  true,
}

// SegmentClassification 单个片段（或投影前的语义块）的分类结果
// 由外部LLM分类器产生；IsProphylaxis与Label的一致性在构造时强制保证
type SegmentClassification struct {
	SegmentID     string  `json:"segment_id"`             // 被分类对象的ID
	Label         Label   `json:"label"`                  // 分类标签
	VariantHint   string  `json:"variant_hint,omitempty"` // 方案编号/名称提示，例如 "1"、"MAX"
	IsProphylaxis bool    `json:"is_prophylaxis"`         // 是否属于预防保健计划
	Confidence    float64 `json:"confidence"`             // 置信度 0.0-1.0
	Rationale     string  `json:"rationale"`              // 分类理由（波兰语）
}

// NewSegmentClassification 创建分类结果
// IsProphylaxis恒等于 label == prophylaxis，按构造保证而非事后校验
func NewSegmentClassification(segmentID string, label Label, variantHint string, confidence float64, rationale string) SegmentClassification {
	return SegmentClassification{
		SegmentID:     segmentID,
		Label:         label,
		VariantHint:   variantHint,
		IsProphylaxis: label == LabelProphylaxis,
		Confidence:    confidence,
		Rationale:     rationale,
	}
}

// Valid 检查标签是否在允许集合内且置信度在范围内
func (c *SegmentClassification) Valid() bool {
	return ValidLabels[c.Label] && c.Confidence >= 0.0 && c.Confidence <= 1.0
}
