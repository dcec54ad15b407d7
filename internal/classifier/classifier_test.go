package classifier

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/siwz-mapper/internal/cache"
	"github.com/fyerfyer/siwz-mapper/internal/llm"
	"github.com/fyerfyer/siwz-mapper/internal/models"
)

// mockLLMClient 返回预设响应序列的模拟大模型客户端
type mockLLMClient struct {
	responses []string
	errs      []error
	calls     int
}

func (m *mockLLMClient) Chat(ctx context.Context, messages []llm.Message, options ...llm.ChatOption) (*llm.Response, error) {
	idx := m.calls
	m.calls++
	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx >= len(m.responses) {
		return nil, errors.New("no more mock responses")
	}
	return &llm.Response{Text: m.responses[idx], ModelName: "mock"}, nil
}

func (m *mockLLMClient) Name() string {
	return "mock"
}

func block(id, text string) *models.SemanticBlock {
	return &models.SemanticBlock{
		BlockID:   id,
		Text:      text,
		PageStart: 1,
		PageEnd:   1,
	}
}

func classificationJSON(label string, hint *string, confidence float64) string {
	hintJSON := "null"
	if hint != nil {
		hintJSON = fmt.Sprintf("%q", *hint)
	}
	return fmt.Sprintf(`{"block_id":"ignored","label":%q,"variant_hint":%s,"is_prophylaxis":%t,"confidence":%f,"rationale":"test"}`,
		label, hintJSON, label == "prophylaxis", confidence)
}

// TestClassifyBlockParsesResponse 正常响应解析为分类结果
func TestClassifyBlockParsesResponse(t *testing.T) {
	hint := "1"
	client := &mockLLMClient{
		responses: []string{classificationJSON("variant_header", &hint, 0.95)},
	}
	bc := NewBlockClassifier(client)

	cls, err := bc.ClassifyBlock(context.Background(), block("blk_0001", "WARIANT 1"), "", "")
	require.NoError(t, err)

	// block_id以调用方提供的为准，忽略模型编造的值
	assert.Equal(t, "blk_0001", cls.SegmentID)
	assert.Equal(t, models.LabelVariantHeader, cls.Label)
	assert.Equal(t, "1", cls.VariantHint)
	assert.False(t, cls.IsProphylaxis)
	assert.Equal(t, 0.95, cls.Confidence)
}

// TestClassifyBlockStripsMarkdownFences 容忍markdown代码块包裹的响应
func TestClassifyBlockStripsMarkdownFences(t *testing.T) {
	fenced := "```json\n" + classificationJSON("general", nil, 0.8) + "\n```"
	client := &mockLLMClient{responses: []string{fenced}}
	bc := NewBlockClassifier(client)

	cls, err := bc.ClassifyBlock(context.Background(), block("blk_0001", "opis ogólny"), "", "")
	require.NoError(t, err)
	assert.Equal(t, models.LabelGeneral, cls.Label)
}

// TestClassifyBlockProphylaxisConsistency IsProphylaxis恒等于标签判断
func TestClassifyBlockProphylaxisConsistency(t *testing.T) {
	// 模型自称is_prophylaxis=false，但标签是prophylaxis，以标签为准
	response := `{"label":"prophylaxis","variant_hint":null,"is_prophylaxis":false,"confidence":0.9,"rationale":"test"}`
	client := &mockLLMClient{responses: []string{response}}
	bc := NewBlockClassifier(client)

	cls, err := bc.ClassifyBlock(context.Background(), block("blk_0001", "program profilaktyki"), "", "")
	require.NoError(t, err)
	assert.Equal(t, models.LabelProphylaxis, cls.Label)
	assert.True(t, cls.IsProphylaxis)
}

// TestClassifyBlockRetryOnParseError 第一次解析失败后带严格指令重试
func TestClassifyBlockRetryOnParseError(t *testing.T) {
	client := &mockLLMClient{
		responses: []string{
			"to nie jest JSON",
			classificationJSON("variant_body", nil, 0.85),
		},
	}
	bc := NewBlockClassifier(client)

	cls, err := bc.ClassifyBlock(context.Background(), block("blk_0001", "1.1. internista"), "", "")
	require.NoError(t, err)
	assert.Equal(t, models.LabelVariantBody, cls.Label)
	assert.Equal(t, 2, client.calls)
}

// TestClassifyBlockInvalidLabel 不在允许集合内的标签报错
func TestClassifyBlockInvalidLabel(t *testing.T) {
	bad := `{"label":"unknown_label","variant_hint":null,"is_prophylaxis":false,"confidence":0.9,"rationale":"test"}`
	client := &mockLLMClient{responses: []string{bad, bad}}
	bc := NewBlockClassifier(client)

	_, err := bc.ClassifyBlock(context.Background(), block("blk_0001", "tekst"), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid label")
}

// TestClassifyBlocksFallback 单个块彻底失败时降级为irrelevant而不中断
func TestClassifyBlocksFallback(t *testing.T) {
	client := &mockLLMClient{
		responses: []string{
			classificationJSON("general", nil, 0.9),
			"źle", "źle", // 第二个块两次都失败
			classificationJSON("variant_body", nil, 0.8),
		},
	}
	bc := NewBlockClassifier(client)

	blocks := []*models.SemanticBlock{
		block("blk_0000", "opis"),
		block("blk_0001", "niejasny tekst"),
		block("blk_0002", "1.1. internista"),
	}

	results, err := bc.ClassifyBlocks(context.Background(), blocks)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, models.LabelGeneral, results[0].Label)

	// 降级结果
	assert.Equal(t, "blk_0001", results[1].SegmentID)
	assert.Equal(t, models.LabelIrrelevant, results[1].Label)
	assert.Less(t, results[1].Confidence, 0.5)
	assert.Contains(t, results[1].Rationale, "[FALLBACK]")

	assert.Equal(t, models.LabelVariantBody, results[2].Label)
}

// TestClassifyBlocksEmptyInput 空输入返回空结果
func TestClassifyBlocksEmptyInput(t *testing.T) {
	bc := NewBlockClassifier(&mockLLMClient{})

	results, err := bc.ClassifyBlocks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// TestClassifyBlockCache 相同块的第二次分类命中缓存，不再调用LLM
func TestClassifyBlockCache(t *testing.T) {
	client := &mockLLMClient{
		responses: []string{classificationJSON("general", nil, 0.9)},
	}

	memCache, err := cache.NewMemoryCache(cache.Config{
		Type:            "memory",
		DefaultTTL:      time.Minute,
		CleanupInterval: time.Minute,
	})
	require.NoError(t, err)

	bc := NewBlockClassifier(client, WithCache(memCache, time.Minute))

	blk := block("blk_0001", "opis ogólny zamówienia")
	ctx := context.Background()

	first, err := bc.ClassifyBlock(ctx, blk, "", "")
	require.NoError(t, err)

	second, err := bc.ClassifyBlock(ctx, blk, "", "")
	require.NoError(t, err)

	assert.Equal(t, first.Label, second.Label)
	assert.Equal(t, 1, client.calls, "second classification should be served from cache")
}

// TestParseClassificationResponse 响应解析的边界情况
func TestParseClassificationResponse(t *testing.T) {
	t.Run("variant hint null string", func(t *testing.T) {
		resp := `{"label":"variant_header","variant_hint":"null","is_prophylaxis":false,"confidence":0.9,"rationale":""}`
		cls, err := parseClassificationResponse(resp, "blk_0001")
		require.NoError(t, err)
		assert.Equal(t, "", cls.VariantHint)
	})

	t.Run("confidence out of range", func(t *testing.T) {
		resp := `{"label":"general","variant_hint":null,"is_prophylaxis":false,"confidence":1.5,"rationale":""}`
		_, err := parseClassificationResponse(resp, "blk_0001")
		require.Error(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := parseClassificationResponse("nie-json", "blk_0001")
		require.Error(t, err)
	})
}

// TestProjectToSegments 块级分类投影到底层片段
func TestProjectToSegments(t *testing.T) {
	blocks := []*models.SemanticBlock{
		{
			BlockID: "blk_0000",
			Segments: []*models.PdfSegment{
				{SegmentID: "seg_1", Page: 1},
				{SegmentID: "seg_2", Page: 1},
			},
		},
		{
			BlockID: "blk_0001",
			Segments: []*models.PdfSegment{
				{SegmentID: "seg_3", Page: 2},
			},
		},
	}
	classes := []models.SegmentClassification{
		models.NewSegmentClassification("blk_0000", models.LabelVariantBody, "", 0.9, "treść"),
		models.NewSegmentClassification("blk_0001", models.LabelProphylaxis, "", 0.8, "profilaktyka"),
	}

	projected, err := ProjectToSegments(blocks, classes)
	require.NoError(t, err)
	require.Len(t, projected, 3)

	assert.Equal(t, "seg_1", projected[0].SegmentID)
	assert.Equal(t, models.LabelVariantBody, projected[0].Label)
	assert.Equal(t, "seg_2", projected[1].SegmentID)
	assert.Equal(t, models.LabelVariantBody, projected[1].Label)
	assert.Equal(t, "seg_3", projected[2].SegmentID)
	assert.True(t, projected[2].IsProphylaxis)

	// 与FlattenBlocks的输出一一对应
	flat := FlattenBlocks(blocks)
	require.Len(t, flat, len(projected))
	for i := range flat {
		assert.Equal(t, flat[i].SegmentID, projected[i].SegmentID)
	}
}

// TestProjectToSegmentsLengthMismatch 长度不一致时报错
func TestProjectToSegmentsLengthMismatch(t *testing.T) {
	blocks := []*models.SemanticBlock{{BlockID: "blk_0000"}}
	_, err := ProjectToSegments(blocks, nil)
	require.Error(t, err)
}
