package models

import "strings"

// ServiceEntry 医疗服务词典条目
type ServiceEntry struct {
	Code        string   `json:"code"`                  // 服务编码，唯一
	Name        string   `json:"name"`                  // 服务名称
	Category    string   `json:"category"`              // 主类别
	Subcategory string   `json:"subcategory,omitempty"` // 子类别（可选）
	Synonyms    []string `json:"synonyms"`              // 别名列表
}

// SearchText 生成用于检索的拼接文本
func (e *ServiceEntry) SearchText() string {
	parts := []string{e.Code, e.Name, e.Category}
	if e.Subcategory != "" {
		parts = append(parts, e.Subcategory)
	}
	parts = append(parts, e.Synonyms...)
	return strings.Join(parts, " | ")
}

// MappingType 实体到服务编码的映射关系类型
type MappingType string

const (
	// MappingOneToOne 一对一映射
	MappingOneToOne MappingType = "1-1"
	// MappingOneToMany 一对多映射
	MappingOneToMany MappingType = "1-m"
	// MappingManyToOne 多对一映射
	MappingManyToOne MappingType = "m-1"
	// MappingOneToNone 未找到匹配
	MappingOneToNone MappingType = "1-0"
)

// CandidateService 候选服务匹配
type CandidateService struct {
	Code   string  `json:"code"`   // 服务编码
	Name   string  `json:"name"`   // 服务名称
	Score  float64 `json:"score"`  // 匹配分数 0.0-1.0
	Reason string  `json:"reason"` // 匹配理由
}

// EntityMapping 服务条目到词典编码的映射结果
type EntityMapping struct {
	EntityID      string             `json:"entity_id"`      // 被映射的条目ID
	MappingType   MappingType        `json:"mapping_type"`   // 映射关系类型
	PrimaryCodes  []string           `json:"primary_codes"`  // 主映射编码
	AltCandidates []CandidateService `json:"alt_candidates"` // 备选候选（top-k）
	Rationale     string             `json:"rationale"`      // 映射决策说明
	Confidence    float64            `json:"confidence"`     // 映射置信度
}

// VariantResult 单个方案的映射结果
type VariantResult struct {
	VariantID        string          `json:"variant_id"`        // 方案标识符
	CoreCodes        []string        `json:"core_codes"`        // 核心服务编码
	ProphylaxisCodes []string        `json:"prophylaxis_codes"` // 预防保健服务编码
	Mappings         []EntityMapping `json:"mappings"`          // 详细映射列表
}

// DocumentResult 整份SIWZ文档的完整映射结果
type DocumentResult struct {
	DocID    string                 `json:"doc_id"`   // 文档标识符
	Variants []VariantResult        `json:"variants"` // 每个方案的结果
	Metadata map[string]interface{} `json:"metadata"` // 附加元数据（时间戳、版本等）
}
