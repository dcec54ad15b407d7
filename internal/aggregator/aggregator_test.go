package aggregator

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/siwz-mapper/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func seg(id, text string) *models.PdfSegment {
	return &models.PdfSegment{SegmentID: id, Text: text, Page: 1}
}

func cls(id string, label models.Label, hint string, confidence float64) models.SegmentClassification {
	return models.NewSegmentClassification(id, label, hint, confidence, "")
}

// TestAggregateEmptyInput 空输入返回空结果而非错误
func TestAggregateEmptyInput(t *testing.T) {
	a := NewVariantAggregator(WithLogger(testLogger()))

	updated, groups, err := a.Aggregate(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, updated)
	assert.Empty(t, groups)
}

// TestAggregateLengthMismatch 片段和分类长度不一致时报错
func TestAggregateLengthMismatch(t *testing.T) {
	a := NewVariantAggregator(WithLogger(testLogger()))

	segments := []*models.PdfSegment{seg("seg_1", "tekst")}
	_, _, err := a.Aggregate(segments, []models.SegmentClassification{})
	require.Error(t, err)
}

// TestAggregateTwoVariants 两个标题把文档划分成两个方案
// 标题前的引言保持未分配，每个方案收纳到下一个标题为止的片段
func TestAggregateTwoVariants(t *testing.T) {
	a := NewVariantAggregator(WithLogger(testLogger()))

	segments := []*models.PdfSegment{
		seg("seg_0", "Specyfikacja Istotnych Warunków Zamówienia"),
		seg("seg_1", "WARIANT 1 zakres podstawowy"),
		seg("seg_2", "1. konsultacje internistyczne"),
		seg("seg_3", "Program profilaktyki zdrowotnej obejmuje szczepienia"),
		seg("seg_4", "WARIANT 2 zakres rozszerzony"),
		seg("seg_5", "1. konsultacje specjalistyczne"),
	}
	classifications := []models.SegmentClassification{
		cls("seg_0", models.LabelIrrelevant, "", 0.9),
		cls("seg_1", models.LabelVariantHeader, "1", 0.95),
		cls("seg_2", models.LabelVariantBody, "", 0.9),
		cls("seg_3", models.LabelProphylaxis, "", 0.85),
		cls("seg_4", models.LabelVariantHeader, "2", 0.95),
		cls("seg_5", models.LabelVariantBody, "", 0.9),
	}

	updated, groups, err := a.Aggregate(segments, classifications)
	require.NoError(t, err)

	require.Len(t, groups, 2)
	assert.Equal(t, "V1", groups[0].VariantID)
	assert.Equal(t, "V2", groups[1].VariantID)

	// 方案1：标题 + 正文 + 预防保健
	require.NotNil(t, groups[0].HeaderSegment)
	assert.Equal(t, "seg_1", groups[0].HeaderSegment.SegmentID)
	require.Len(t, groups[0].BodySegments, 1)
	assert.Equal(t, "seg_2", groups[0].BodySegments[0].SegmentID)
	require.Len(t, groups[0].ProphylaxisSegments, 1)
	assert.Equal(t, "seg_3", groups[0].ProphylaxisSegments[0].SegmentID)

	// 方案2
	require.Len(t, groups[1].BodySegments, 1)
	assert.Equal(t, "seg_5", groups[1].BodySegments[0].SegmentID)

	// 更新后的片段序列与输入等长，标题前的片段VariantID为空
	require.Len(t, updated, len(segments))
	assert.Equal(t, "", updated[0].VariantID)
	assert.Equal(t, "V1", updated[1].VariantID)
	assert.Equal(t, "V1", updated[2].VariantID)
	assert.Equal(t, "V1", updated[3].VariantID)
	assert.Equal(t, "V2", updated[4].VariantID)
	assert.Equal(t, "V2", updated[5].VariantID)

	// 聚合不修改输入片段
	assert.Equal(t, "", segments[1].VariantID)
}

// TestAggregateSingleDefaultVariant 没有标题时所有片段归入单一默认方案
func TestAggregateSingleDefaultVariant(t *testing.T) {
	a := NewVariantAggregator(
		WithDefaultVariantID("wariant_1"),
		WithLogger(testLogger()),
	)

	segments := []*models.PdfSegment{
		seg("seg_0", "Przedmiotem zamówienia są usługi medyczne."),
		seg("seg_1", "1. badania wstępne"),
		seg("seg_2", "Program profilaktyczny dla pracowników"),
	}
	classifications := []models.SegmentClassification{
		cls("seg_0", models.LabelGeneral, "", 0.9),
		cls("seg_1", models.LabelVariantBody, "", 0.9),
		cls("seg_2", models.LabelProphylaxis, "", 0.8),
	}

	updated, groups, err := a.Aggregate(segments, classifications)
	require.NoError(t, err)

	require.Len(t, groups, 1)
	group := groups[0]
	assert.Equal(t, "wariant_1", group.VariantID)
	assert.Nil(t, group.HeaderSegment)
	assert.Len(t, group.BodySegments, 1)
	assert.Len(t, group.ProphylaxisSegments, 1)
	assert.Len(t, group.OtherSegments, 1)

	for _, s := range updated {
		assert.Equal(t, "wariant_1", s.VariantID)
	}
}

// TestAggregatePartition 每个片段恰好归入一个分组字段
func TestAggregatePartition(t *testing.T) {
	a := NewVariantAggregator(WithLogger(testLogger()))

	segments := []*models.PdfSegment{
		seg("seg_0", "WARIANT 1"),
		seg("seg_1", "1. konsultacje"),
		seg("seg_2", "Tabela cenowa Wariant 1-4"),
		seg("seg_3", "szczepienia ochronne przeciw grypie"),
	}
	classifications := []models.SegmentClassification{
		cls("seg_0", models.LabelVariantHeader, "1", 0.95),
		cls("seg_1", models.LabelVariantBody, "", 0.9),
		cls("seg_2", models.LabelPricingTable, "", 0.85),
		cls("seg_3", models.LabelProphylaxis, "", 0.8),
	}

	_, groups, err := a.Aggregate(segments, classifications)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	group := groups[0]
	total := len(group.BodySegments) + len(group.ProphylaxisSegments) + len(group.OtherSegments)
	if group.HeaderSegment != nil {
		total++
	}
	assert.Equal(t, len(segments), total)

	// pricing_table落入other而不是body
	require.Len(t, group.OtherSegments, 1)
	assert.Equal(t, "seg_2", group.OtherSegments[0].SegmentID)
}

// TestHeaderHeuristics 启发式过滤分类器过度检测的标题
func TestHeaderHeuristics(t *testing.T) {
	a := NewVariantAggregator(WithLogger(testLogger()))

	t.Run("numbered service line rejected", func(t *testing.T) {
		segments := []*models.PdfSegment{
			seg("seg_0", "11. konsultacje kardiologiczne"),
			seg("seg_1", "opis szczegółowy"),
		}
		classifications := []models.SegmentClassification{
			cls("seg_0", models.LabelVariantHeader, "", 0.9),
			cls("seg_1", models.LabelVariantBody, "", 0.9),
		}

		_, groups, err := a.Aggregate(segments, classifications)
		require.NoError(t, err)

		// 编号行且无关键词：被拒绝，退回单一默认方案
		require.Len(t, groups, 1)
		assert.Equal(t, "V1", groups[0].VariantID)
		assert.Nil(t, groups[0].HeaderSegment)
	})

	t.Run("numbered line with keyword accepted", func(t *testing.T) {
		segments := []*models.PdfSegment{
			seg("seg_0", "1. Pakiet Standard"),
			seg("seg_1", "zakres usług"),
		}
		classifications := []models.SegmentClassification{
			cls("seg_0", models.LabelVariantHeader, "", 0.9),
			cls("seg_1", models.LabelVariantBody, "", 0.9),
		}

		_, groups, err := a.Aggregate(segments, classifications)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		require.NotNil(t, groups[0].HeaderSegment)
		assert.Equal(t, "seg_0", groups[0].HeaderSegment.SegmentID)
	})

	t.Run("attachment heading rejected", func(t *testing.T) {
		segments := []*models.PdfSegment{
			seg("seg_0", "Załącznik nr 2A do umowy"),
		}
		classifications := []models.SegmentClassification{
			cls("seg_0", models.LabelVariantHeader, "", 0.9),
		}

		_, groups, err := a.Aggregate(segments, classifications)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Nil(t, groups[0].HeaderSegment)
	})

	t.Run("low confidence rejected", func(t *testing.T) {
		segments := []*models.PdfSegment{
			seg("seg_0", "WARIANT 1"),
		}
		classifications := []models.SegmentClassification{
			cls("seg_0", models.LabelVariantHeader, "1", 0.3),
		}

		_, groups, err := a.Aggregate(segments, classifications)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Nil(t, groups[0].HeaderSegment)
	})

	t.Run("heuristics disabled accepts any header", func(t *testing.T) {
		disabled := NewVariantAggregator(
			WithHeaderHeuristics(false),
			WithLogger(testLogger()),
		)

		segments := []*models.PdfSegment{
			seg("seg_0", "11. konsultacje kardiologiczne"),
		}
		classifications := []models.SegmentClassification{
			cls("seg_0", models.LabelVariantHeader, "", 0.9),
		}

		_, groups, err := disabled.Aggregate(segments, classifications)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		require.NotNil(t, groups[0].HeaderSegment)
	})
}

// TestVariantIDFromHint 标题带VariantHint时方案ID来自提示
func TestVariantIDFromHint(t *testing.T) {
	a := NewVariantAggregator(WithLogger(testLogger()))

	segments := []*models.PdfSegment{
		seg("seg_0", "Pakiet MAX"),
		seg("seg_1", "zakres rozszerzony"),
	}
	classifications := []models.SegmentClassification{
		cls("seg_0", models.LabelVariantHeader, "MAX", 0.95),
		cls("seg_1", models.LabelVariantBody, "", 0.9),
	}

	_, groups, err := a.Aggregate(segments, classifications)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "VMAX", groups[0].VariantID)
}

// TestVariantIDs 提取分组的ID列表
func TestVariantIDs(t *testing.T) {
	a := NewVariantAggregator(WithLogger(testLogger()))

	groups := []*models.VariantGroup{
		{VariantID: "V1"},
		{VariantID: "V2"},
	}
	assert.Equal(t, []string{"V1", "V2"}, a.VariantIDs(groups))
}
