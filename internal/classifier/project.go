package classifier

import (
	"github.com/fyerfyer/siwz-mapper/internal/models"
)

// ProjectToSegments 把块级分类结果投影到底层片段
// 每个语义块的标签、方案提示、预防保健标志、置信度和理由原样复制到
// 它的每个成员片段上，只把SegmentID换成片段自己的ID。
// 输出顺序为：先按块顺序，块内按片段顺序，正好对应扁平化后的片段序列，
// 可以直接与VariantAggregator的输入对齐。
// 两个输入长度不一致时返回错误。
func ProjectToSegments(
	blocks []*models.SemanticBlock,
	blockClasses []models.SegmentClassification,
) ([]models.SegmentClassification, error) {
	if len(blocks) != len(blockClasses) {
		return nil, models.NewLengthMismatchError(len(blocks), len(blockClasses))
	}

	var perSegment []models.SegmentClassification

	for i, block := range blocks {
		cls := blockClasses[i]
		for _, seg := range block.Segments {
			perSegment = append(perSegment, models.SegmentClassification{
				SegmentID:     seg.SegmentID,
				Label:         cls.Label,
				VariantHint:   cls.VariantHint,
				IsProphylaxis: cls.IsProphylaxis,
				Confidence:    cls.Confidence,
				Rationale:     cls.Rationale,
			})
		}
	}

	return perSegment, nil
}

// FlattenBlocks 按块顺序展开所有底层片段
// 与ProjectToSegments的输出顺序一致
func FlattenBlocks(blocks []*models.SemanticBlock) []*models.PdfSegment {
	var segments []*models.PdfSegment
	for _, block := range blocks {
		segments = append(segments, block.Segments...)
	}
	return segments
}
