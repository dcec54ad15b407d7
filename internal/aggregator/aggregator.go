package aggregator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/siwz-mapper/internal/models"
)

// 典型"编号服务行"模式："11. coś tam"
var numberedItemPattern = regexp.MustCompile(`^\s*\d{1,3}\.\s`)

// defaultHeaderKeywords 暗示"这是方案/套餐标题"的关键词
// 用于区分真正的方案标题和单个服务的名称
var defaultHeaderKeywords = []string{
	"wariant", // WARIANT 1, WARIANT 2...
	"pakiet",  // Pakiet Standard, Pakiet Max
	"zestaw",
	"plan",
	"program",
	"grupa",
	"opcja", // Opcja Standard / Plus
	"standard",
	"rozszerzon", // rozszerzony / rozszerzona
	"max",
	"maks",
	"plus",
	"rodzina",
	"dzieci",
}

// VariantAggregator 方案聚合器
// 将分类后的片段聚合为方案：
// 1. 只有通过文本启发式筛选的 variant_header 片段才被当作真正的方案标题；
// 2. 每个标题之后的片段按标签归入 body / prophylaxis / other，直到下一个标题；
// 3. 没有任何标题通过筛选时，假定单一默认方案。
type VariantAggregator struct {
	defaultVariantID    string
	minHeaderConfidence float64
	useHeaderHeuristics bool
	headerKeywords      []string
	logger              *logrus.Logger
}

// Option 聚合器配置选项函数类型
type Option func(*VariantAggregator)

// WithDefaultVariantID 设置未检测到标题时使用的默认方案ID
func WithDefaultVariantID(id string) Option {
	return func(a *VariantAggregator) {
		if id != "" {
			a.defaultVariantID = id
		}
	}
}

// WithMinHeaderConfidence 设置接受方案标题所需的最低置信度
func WithMinHeaderConfidence(confidence float64) Option {
	return func(a *VariantAggregator) {
		a.minHeaderConfidence = confidence
	}
}

// WithHeaderHeuristics 设置是否启用标题文本启发式
func WithHeaderHeuristics(enabled bool) Option {
	return func(a *VariantAggregator) {
		a.useHeaderHeuristics = enabled
	}
}

// WithHeaderKeywords 设置自定义标题关键词列表
func WithHeaderKeywords(keywords []string) Option {
	return func(a *VariantAggregator) {
		if len(keywords) > 0 {
			lowered := make([]string, 0, len(keywords))
			for _, kw := range keywords {
				lowered = append(lowered, strings.ToLower(kw))
			}
			a.headerKeywords = lowered
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(a *VariantAggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewVariantAggregator 创建新的方案聚合器
func NewVariantAggregator(opts ...Option) *VariantAggregator {
	a := &VariantAggregator{
		defaultVariantID:    "V1",
		minHeaderConfidence: 0.6,
		useHeaderHeuristics: true,
		headerKeywords:      defaultHeaderKeywords,
		logger:              logrus.New(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// headerCandidate 通过筛选的方案标题及其在序列中的位置
type headerCandidate struct {
	index     int
	variantID string
	segment   *models.PdfSegment
	class     models.SegmentClassification
}

// Aggregate 将片段聚合为方案
// 返回写入了VariantID的片段拷贝和方案分组列表。
// 两个输入序列长度不一致时返回错误；输入为空时返回空结果。
func (a *VariantAggregator) Aggregate(
	segments []*models.PdfSegment,
	classifications []models.SegmentClassification,
) ([]*models.PdfSegment, []*models.VariantGroup, error) {
	if len(segments) != len(classifications) {
		return nil, nil, models.NewLengthMismatchError(len(segments), len(classifications))
	}

	if len(segments) == 0 {
		a.logger.Warn("No segments to aggregate")
		return []*models.PdfSegment{}, []*models.VariantGroup{}, nil
	}

	a.logger.WithField("segments", len(segments)).Info("Aggregating segments into variants")

	headers := a.extractVariantHeaders(segments, classifications)

	if len(headers) == 0 {
		a.logger.WithField("default_variant", a.defaultVariantID).
			Info("No variant headers found after heuristics, using single default variant")
		updated, group := a.aggregateSingleVariant(segments, classifications)
		return updated, []*models.VariantGroup{group}, nil
	}

	updated, groups := a.aggregateMultipleVariants(segments, classifications, headers)
	return updated, groups, nil
}

// VariantIDs 提取方案分组的ID列表
func (a *VariantAggregator) VariantIDs(groups []*models.VariantGroup) []string {
	ids := make([]string, 0, len(groups))
	for _, vg := range groups {
		ids = append(ids, vg.VariantID)
	}
	return ids
}

// isValidHeaderCandidate 判断给定(片段, 分类)是否应作为真正的方案标题
// 分类器的原始输出会过度检测标题（编号服务行和附件标题都很像标题），
// 这里用廉价可解释的信号在标签和置信度之上换取精度
func (a *VariantAggregator) isValidHeaderCandidate(
	segment *models.PdfSegment,
	cls models.SegmentClassification,
) bool {
	if cls.Label != models.LabelVariantHeader {
		return false
	}

	text := strings.TrimSpace(segment.Text)
	if text == "" {
		return false
	}

	lowered := strings.ToLower(text)

	if cls.Confidence < a.minHeaderConfidence {
		a.logger.WithFields(logrus.Fields{
			"segment_id": segment.SegmentID,
			"confidence": cls.Confidence,
		}).Debug("Skipping header candidate (low confidence)")
		return false
	}

	if !a.useHeaderHeuristics {
		return true
	}

	firstLine := lowered
	if idx := strings.IndexAny(lowered, "\r\n"); idx >= 0 {
		firstLine = lowered[:idx]
	}
	firstLine = strings.TrimSpace(firstLine)

	// 看起来像典型的编号服务行："11. Coś tam"
	if numberedItemPattern.MatchString(firstLine) && !a.containsKeyword(lowered) {
		a.logger.WithField("segment_id", segment.SegmentID).
			Debug("Skipping header candidate (looks like numbered service, no header keyword)")
		return false
	}

	// "Załącznik nr 2 A..." 之类的附件标题按元信息处理
	if strings.Contains(lowered, "załącznik") && !a.containsKeyword(lowered) {
		a.logger.WithField("segment_id", segment.SegmentID).
			Debug("Skipping header candidate (looks like attachment heading, no header keyword)")
		return false
	}

	// 含关键词即认为是合理的方案标题
	if a.containsKeyword(lowered) {
		return true
	}

	a.logger.WithFields(logrus.Fields{
		"segment_id": segment.SegmentID,
		"first_line": firstLine,
	}).Debug("Skipping header candidate (no strong header signal)")
	return false
}

// containsKeyword 判断文本是否包含任一标题关键词
func (a *VariantAggregator) containsKeyword(lowered string) bool {
	for _, kw := range a.headerKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// extractVariantHeaders 提取通过筛选的方案标题及其位置
// 被拒绝的候选即使带有variant_hint也被静默丢弃
func (a *VariantAggregator) extractVariantHeaders(
	segments []*models.PdfSegment,
	classifications []models.SegmentClassification,
) []headerCandidate {
	var headers []headerCandidate

	for i, seg := range segments {
		cls := classifications[i]
		if !a.isValidHeaderCandidate(seg, cls) {
			continue
		}

		var variantID string
		if cls.VariantHint != "" {
			variantID = fmt.Sprintf("V%s", cls.VariantHint)
		} else {
			variantID = fmt.Sprintf("V%d", len(headers)+1)
		}

		headers = append(headers, headerCandidate{
			index:     i,
			variantID: variantID,
			segment:   seg,
			class:     cls,
		})
		a.logger.WithFields(logrus.Fields{
			"index":      i,
			"variant_id": variantID,
			"segment_id": seg.SegmentID,
		}).Debug("Accepted variant header")
	}

	a.logger.WithField("headers", len(headers)).Info("Extracted variant headers after heuristics")
	return headers
}

// aggregateSingleVariant 所有片段归入单一默认方案
func (a *VariantAggregator) aggregateSingleVariant(
	segments []*models.PdfSegment,
	classifications []models.SegmentClassification,
) ([]*models.PdfSegment, *models.VariantGroup) {
	variantID := a.defaultVariantID

	updated := make([]*models.PdfSegment, 0, len(segments))
	group := &models.VariantGroup{VariantID: variantID}

	for i, seg := range segments {
		cls := classifications[i]
		copied := seg.Clone()
		copied.VariantID = variantID

		switch cls.Label {
		case models.LabelVariantBody:
			group.BodySegments = append(group.BodySegments, copied)
		case models.LabelProphylaxis:
			group.ProphylaxisSegments = append(group.ProphylaxisSegments, copied)
		default:
			group.OtherSegments = append(group.OtherSegments, copied)
		}

		updated = append(updated, copied)
	}

	a.logger.WithFields(logrus.Fields{
		"variant_id":  variantID,
		"body":        len(group.BodySegments),
		"prophylaxis": len(group.ProphylaxisSegments),
		"other":       len(group.OtherSegments),
	}).Info("Created single variant")

	return updated, group
}

// aggregateMultipleVariants 按接受的标题位置把片段划分为多个方案
// 每个标题开启一个半开区间，到下一个标题（或序列末尾）为止；
// 区间内所有片段（包括标题自身）都拿到该区间的VariantID。
// 第一个标题之前的片段保持VariantID为空。
func (a *VariantAggregator) aggregateMultipleVariants(
	segments []*models.PdfSegment,
	classifications []models.SegmentClassification,
	headers []headerCandidate,
) ([]*models.PdfSegment, []*models.VariantGroup) {
	var updated []*models.PdfSegment
	var groups []*models.VariantGroup

	// 第一个标题之前的片段原样保留，VariantID为空
	for j := 0; j < headers[0].index; j++ {
		updated = append(updated, segments[j].Clone())
	}

	for hi, header := range headers {
		startIdx := header.index
		endIdx := len(segments)
		if hi+1 < len(headers) {
			endIdx = headers[hi+1].index
		}

		headerCopy := header.segment.Clone()
		headerCopy.VariantID = header.variantID

		group := &models.VariantGroup{
			VariantID:     header.variantID,
			HeaderSegment: headerCopy,
		}

		for j := startIdx; j < endIdx; j++ {
			cls := classifications[j]
			copied := segments[j].Clone()
			copied.VariantID = header.variantID

			switch {
			case j == startIdx && cls.Label == models.LabelVariantHeader:
				// 标题片段本身已记录在HeaderSegment中，不再分类
			case cls.Label == models.LabelVariantBody:
				group.BodySegments = append(group.BodySegments, copied)
			case cls.Label == models.LabelProphylaxis:
				group.ProphylaxisSegments = append(group.ProphylaxisSegments, copied)
			default:
				// general、pricing_table、irrelevant、区间内的额外标题等
				group.OtherSegments = append(group.OtherSegments, copied)
			}

			updated = append(updated, copied)
		}

		groups = append(groups, group)

		a.logger.WithFields(logrus.Fields{
			"variant_id":  group.VariantID,
			"body":        len(group.BodySegments),
			"prophylaxis": len(group.ProphylaxisSegments),
			"other":       len(group.OtherSegments),
		}).Info("Created variant")
	}

	return updated, groups
}
