package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/siwz-mapper/internal/cache"
	"github.com/fyerfyer/siwz-mapper/internal/llm"
	"github.com/fyerfyer/siwz-mapper/internal/models"
)

// blockResponse 分类器的原始JSON响应结构
type blockResponse struct {
	BlockID       string  `json:"block_id"`
	Label         string  `json:"label"`
	VariantHint   *string `json:"variant_hint"`
	IsProphylaxis bool    `json:"is_prophylaxis"`
	Confidence    float64 `json:"confidence"`
	Rationale     string  `json:"rationale"`
}

// BlockClassifier 语义块分类器
// 通过LLM把语义块分类到六个固定标签之一。
// 分类结果可以缓存（按模型+提示词哈希），重复处理同一文档时不再调用LLM。
// 解析失败时先带更严格的指令重试一次，仍失败则降级为低置信度的irrelevant。
type BlockClassifier struct {
	client   llm.Client     // 大模型客户端
	cache    cache.Cache    // 分类结果缓存（可选）
	cacheTTL time.Duration  // 缓存过期时间
	logger   *logrus.Logger // 日志记录器
}

// ClassifierOption 分类器配置选项
type ClassifierOption func(*BlockClassifier)

// WithCache 设置分类结果缓存
func WithCache(c cache.Cache, ttl time.Duration) ClassifierOption {
	return func(bc *BlockClassifier) {
		bc.cache = c
		bc.cacheTTL = ttl
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) ClassifierOption {
	return func(bc *BlockClassifier) {
		if logger != nil {
			bc.logger = logger
		}
	}
}

// NewBlockClassifier 创建新的语义块分类器
func NewBlockClassifier(client llm.Client, opts ...ClassifierOption) *BlockClassifier {
	bc := &BlockClassifier{
		client:   client,
		cacheTTL: 24 * time.Hour,
		logger:   logrus.New(),
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// ClassifyBlocks 按顺序分类多个语义块
// 相邻块的文本作为上下文传给分类器；单个块失败不会中断整体，
// 失败的块得到低置信度的irrelevant降级结果。
// 返回的结果与输入块一一对应且保持顺序。
func (bc *BlockClassifier) ClassifyBlocks(ctx context.Context, blocks []*models.SemanticBlock) ([]models.SegmentClassification, error) {
	if len(blocks) == 0 {
		bc.logger.Warn("No blocks to classify")
		return []models.SegmentClassification{}, nil
	}

	bc.logger.WithField("blocks", len(blocks)).Info("Classifying semantic blocks")

	results := make([]models.SegmentClassification, 0, len(blocks))
	labelCounts := make(map[models.Label]int)

	for i, block := range blocks {
		prevText := ""
		if i > 0 {
			prevText = blocks[i-1].Text
		}
		nextText := ""
		if i < len(blocks)-1 {
			nextText = blocks[i+1].Text
		}

		cls, err := bc.ClassifyBlock(ctx, block, prevText, nextText)
		if err != nil {
			bc.logger.WithError(err).WithField("block_id", block.BlockID).
				Error("Failed to classify block, falling back to irrelevant")
			cls = fallbackClassification(block.BlockID, err)
		}

		results = append(results, cls)
		labelCounts[cls.Label]++

		if (i+1)%10 == 0 {
			bc.logger.WithFields(logrus.Fields{
				"done":  i + 1,
				"total": len(blocks),
			}).Info("Classification progress")
		}
	}

	bc.logger.WithField("labels", labelCounts).Info("Classification complete")
	return results, nil
}

// ClassifyBlock 分类单个语义块
func (bc *BlockClassifier) ClassifyBlock(ctx context.Context, block *models.SemanticBlock, prevText, nextText string) (models.SegmentClassification, error) {
	userPrompt := buildBlockUserPrompt(block, prevText, nextText)

	// 先查缓存
	cacheKey := bc.cacheKey(userPrompt)
	if bc.cache != nil {
		if cached, found, err := bc.cache.Get(cacheKey); err == nil && found {
			var cls models.SegmentClassification
			if err := json.Unmarshal([]byte(cached), &cls); err == nil && cls.Valid() {
				cls.SegmentID = block.BlockID
				bc.logger.WithField("block_id", block.BlockID).Debug("Classification cache hit")
				return cls, nil
			}
		}
	}

	cls, err := bc.classifyOnce(ctx, block.BlockID, userPrompt)
	if err != nil {
		// 带更严格的指令重试一次
		bc.logger.WithError(err).WithField("block_id", block.BlockID).
			Warn("Parse error on first attempt, retrying with strict instruction")

		cls, err = bc.classifyOnce(ctx, block.BlockID, userPrompt+retryInstruction)
		if err != nil {
			return models.SegmentClassification{}, err
		}
		bc.logger.WithField("block_id", block.BlockID).Info("Retry successful")
	}

	bc.logger.WithFields(logrus.Fields{
		"block_id":   block.BlockID,
		"label":      cls.Label,
		"confidence": cls.Confidence,
	}).Debug("Classified block")

	// 写入缓存，失败不影响结果
	if bc.cache != nil {
		if data, err := json.Marshal(cls); err == nil {
			if err := bc.cache.Set(cacheKey, string(data), bc.cacheTTL); err != nil {
				bc.logger.WithError(err).Warn("Failed to cache classification result")
			}
		}
	}

	return cls, nil
}

// classifyOnce 调用LLM并解析一次响应
func (bc *BlockClassifier) classifyOnce(ctx context.Context, blockID, userPrompt string) (models.SegmentClassification, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPromptBlock},
		{Role: llm.RoleUser, Content: userPrompt},
	}

	resp, err := bc.client.Chat(ctx, messages)
	if err != nil {
		return models.SegmentClassification{}, err
	}

	return parseClassificationResponse(resp.Text, blockID)
}

// cacheKey 计算缓存键：模型名 + 提示词的SHA-256哈希
func (bc *BlockClassifier) cacheKey(userPrompt string) string {
	sum := sha256.Sum256([]byte(systemPromptBlock + "\x00" + userPrompt))
	return fmt.Sprintf("siwz:classify:%s:%s", bc.client.Name(), hex.EncodeToString(sum[:16]))
}

// parseClassificationResponse 把LLM的原始响应解析为分类结果
// 容忍markdown代码块包裹；标签不在允许集合内或置信度越界时报错。
// block_id以调用方提供的为准，模型可能会编造这个字段。
func parseClassificationResponse(response, blockID string) (models.SegmentClassification, error) {
	cleaned := stripMarkdownFences(strings.TrimSpace(response))

	var raw blockResponse
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return models.SegmentClassification{}, fmt.Errorf("invalid classification JSON: %w", err)
	}

	label := models.Label(raw.Label)
	if !models.ValidLabels[label] {
		return models.SegmentClassification{}, fmt.Errorf("invalid label %q in classification response", raw.Label)
	}
	if raw.Confidence < 0.0 || raw.Confidence > 1.0 {
		return models.SegmentClassification{}, fmt.Errorf("confidence %f out of range [0,1]", raw.Confidence)
	}

	hint := ""
	if raw.VariantHint != nil {
		hint = strings.TrimSpace(*raw.VariantHint)
		if strings.EqualFold(hint, "null") {
			hint = ""
		}
	}

	return models.NewSegmentClassification(blockID, label, hint, raw.Confidence, raw.Rationale), nil
}

// stripMarkdownFences 去除响应外层的markdown代码块标记
func stripMarkdownFences(response string) string {
	if !strings.HasPrefix(response, "```") {
		return response
	}

	lines := strings.Split(response, "\n")
	start := 0
	if strings.HasPrefix(lines[0], "```") {
		start = 1
	}
	end := len(lines)
	if end > start && strings.HasPrefix(strings.TrimSpace(lines[end-1]), "```") {
		end--
	}
	return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
}

// fallbackClassification 解析彻底失败时的降级结果
func fallbackClassification(blockID string, cause error) models.SegmentClassification {
	msg := cause.Error()
	if len(msg) > 100 {
		msg = msg[:100]
	}
	return models.SegmentClassification{
		SegmentID:     blockID,
		Label:         models.LabelIrrelevant,
		IsProphylaxis: false,
		Confidence:    0.1,
		Rationale:     fmt.Sprintf("[FALLBACK] Nie udało się sparsować odpowiedzi modelu: %s", msg),
	}
}
