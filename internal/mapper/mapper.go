package mapper

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/siwz-mapper/internal/models"
)

// polishFolding 波兰语变音字符到ASCII的映射，匹配前先归一化
var polishFolding = map[rune]rune{
	'ą': 'a', 'ć': 'c', 'ę': 'e', 'ł': 'l', 'ń': 'n',
	'ó': 'o', 'ś': 's', 'ź': 'z', 'ż': 'z',
}

// ServiceMapper 服务编码映射器
// 把提取出的服务条目映射到词典编码。
// 使用词袋重叠的词法评分作为基线策略：词典规模只有几百条，
// 归一化后的token重叠已经能给出可解释且稳定的候选排序。
type ServiceMapper struct {
	entries   []*models.ServiceEntry
	tokens    []map[string]bool // 与entries对齐的检索token集合
	topK      int               // 返回的候选数量
	threshold float64           // 自动映射的最低分数
	logger    *logrus.Logger
}

// MapperOption 映射器配置选项
type MapperOption func(*ServiceMapper)

// WithTopK 设置候选数量
func WithTopK(k int) MapperOption {
	return func(m *ServiceMapper) {
		if k > 0 {
			m.topK = k
		}
	}
}

// WithThreshold 设置自动映射的最低分数
func WithThreshold(threshold float64) MapperOption {
	return func(m *ServiceMapper) {
		m.threshold = threshold
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) MapperOption {
	return func(m *ServiceMapper) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewServiceMapper 创建新的服务映射器
func NewServiceMapper(entries []*models.ServiceEntry, opts ...MapperOption) *ServiceMapper {
	m := &ServiceMapper{
		entries:   entries,
		topK:      5,
		threshold: 0.5,
		logger:    logrus.New(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.tokens = make([]map[string]bool, len(entries))
	for i, entry := range entries {
		m.tokens[i] = tokenize(entry.SearchText())
	}

	return m
}

// MapVariants 为每个方案的服务条目生成映射结果
func (m *ServiceMapper) MapVariants(itemsByVariant map[string][]*models.VariantServiceItem) []models.VariantResult {
	variantIDs := make([]string, 0, len(itemsByVariant))
	for id := range itemsByVariant {
		variantIDs = append(variantIDs, id)
	}
	sort.Strings(variantIDs)

	results := make([]models.VariantResult, 0, len(variantIDs))
	for _, variantID := range variantIDs {
		results = append(results, m.mapVariant(variantID, itemsByVariant[variantID]))
	}
	return results
}

// mapVariant 映射单个方案的所有条目
func (m *ServiceMapper) mapVariant(variantID string, items []*models.VariantServiceItem) models.VariantResult {
	result := models.VariantResult{
		VariantID:        variantID,
		CoreCodes:        []string{},
		ProphylaxisCodes: []string{},
		Mappings:         []models.EntityMapping{},
	}

	coreSeen := make(map[string]bool)
	prophSeen := make(map[string]bool)

	for i, item := range items {
		// 块标题行描述的是整个块而不是单条服务，不参与编码映射
		if item.Extra.IsBlockHeader {
			continue
		}

		entityID := fmt.Sprintf("%s_item_%03d", variantID, i)
		mapping := m.MapItem(entityID, item)
		result.Mappings = append(result.Mappings, mapping)

		for _, code := range mapping.PrimaryCodes {
			if item.IsProphylaxis {
				if !prophSeen[code] {
					prophSeen[code] = true
					result.ProphylaxisCodes = append(result.ProphylaxisCodes, code)
				}
			} else if !coreSeen[code] {
				coreSeen[code] = true
				result.CoreCodes = append(result.CoreCodes, code)
			}
		}
	}

	m.logger.WithFields(logrus.Fields{
		"variant_id":  variantID,
		"mappings":    len(result.Mappings),
		"core":        len(result.CoreCodes),
		"prophylaxis": len(result.ProphylaxisCodes),
	}).Info("Mapped variant items")

	return result
}

// MapItem 映射单个服务条目，返回主编码与top-k备选
func (m *ServiceMapper) MapItem(entityID string, item *models.VariantServiceItem) models.EntityMapping {
	query := tokenize(item.ServiceText)

	type scored struct {
		idx   int
		score float64
	}

	var candidates []scored
	for i := range m.entries {
		if score := overlapScore(query, m.tokens[i]); score > 0 {
			candidates = append(candidates, scored{idx: i, score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > m.topK {
		candidates = candidates[:m.topK]
	}

	mapping := models.EntityMapping{
		EntityID:      entityID,
		MappingType:   models.MappingOneToNone,
		PrimaryCodes:  []string{},
		AltCandidates: []models.CandidateService{},
		Rationale:     "Brak wystarczająco podobnej pozycji w słowniku",
		Confidence:    0.0,
	}

	for _, c := range candidates {
		entry := m.entries[c.idx]
		mapping.AltCandidates = append(mapping.AltCandidates, models.CandidateService{
			Code:   entry.Code,
			Name:   entry.Name,
			Score:  c.score,
			Reason: fmt.Sprintf("Dopasowanie leksykalne (%.2f)", c.score),
		})
	}

	if len(candidates) > 0 && candidates[0].score >= m.threshold {
		best := m.entries[candidates[0].idx]
		mapping.MappingType = models.MappingOneToOne
		mapping.PrimaryCodes = []string{best.Code}
		mapping.Confidence = candidates[0].score
		mapping.Rationale = fmt.Sprintf("Dopasowano do %q na podstawie podobieństwa tekstu", best.Name)
	}

	return mapping
}

// tokenize 归一化并切分文本为token集合
// 小写化、折叠波兰语变音字符、按非字母数字切分，丢弃长度<3的token
func tokenize(text string) map[string]bool {
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		if folded, ok := polishFolding[r]; ok {
			r = folded
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}

	tokens := make(map[string]bool)
	for _, tok := range strings.Fields(sb.String()) {
		if len(tok) >= 3 {
			tokens[tok] = true
		}
	}
	return tokens
}

// overlapScore 查询token被词条覆盖的比例
func overlapScore(query, entry map[string]bool) float64 {
	if len(query) == 0 {
		return 0.0
	}
	matched := 0
	for tok := range query {
		if entry[tok] {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}
