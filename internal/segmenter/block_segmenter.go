package segmenter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/fyerfyer/siwz-mapper/internal/models"
)

// 章节标记模式："Rozdział"、"§"、"1. "、"I. " 等
var headingPattern = regexp.MustCompile(`(?i)^\s*(rozdział|§|\d+\.\s|[ivxlcdm]+\.\s)`)

// 表格行模式：出现两段以上的宽空白（3个以上空格）或制表符
var tableLikePattern = regexp.MustCompile(`(\s{3,}|\t).*?(\s{3,}|\t)`)

// Config 分块器配置
type Config struct {
	MaxCharsPerBlock int     // 每个语义块的软字符上限（用于LLM提示词）
	YGapThreshold    float64 // 判定新块的垂直间距阈值（PDF单位）
	XShiftThreshold  float64 // 判定新列/新区域的水平偏移阈值
}

// DefaultConfig 返回默认分块器配置
func DefaultConfig() Config {
	return Config{
		MaxCharsPerBlock: 2500,
		YGapThreshold:    8.0,
		XShiftThreshold:  40.0,
	}
}

// BlockSegmenter 语义分块器
// 将PDF加载器输出的原始片段按布局和文本启发式合并为更大的语义块：
// 标题强制另起新块，同一逻辑段落的连续片段合并，表格整体保留。
// 分块器不修改PdfSegment本身，只负责分组。
type BlockSegmenter struct {
	config Config
}

// NewBlockSegmenter 创建新的语义分块器
func NewBlockSegmenter(config Config) *BlockSegmenter {
	return &BlockSegmenter{config: config}
}

// Group 将原始片段分组为语义块
// 片段先按(page, y0, x0)排序，缺少边界框时两轴都按0.0处理，保证排序确定。
// 空白片段被跳过。纯函数，输入为空时输出为空。
func (s *BlockSegmenter) Group(segments []*models.PdfSegment) []*models.SemanticBlock {
	if len(segments) == 0 {
		return nil
	}

	sorted := make([]*models.PdfSegment, len(segments))
	copy(sorted, segments)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		ay, by := bboxY0(a), bboxY0(b)
		if ay != by {
			return ay < by
		}
		return bboxX0(a) < bboxX0(b)
	})

	var blocks []*models.SemanticBlock
	var currentSegments []*models.PdfSegment
	var currentTexts []string

	flush := func() {
		if len(currentSegments) == 0 {
			currentTexts = nil
			return
		}
		text := strings.TrimSpace(strings.Join(currentTexts, "\n"))
		if text == "" {
			currentSegments = nil
			currentTexts = nil
			return
		}

		block := &models.SemanticBlock{
			BlockID:   fmt.Sprintf("blk_%04d", len(blocks)),
			Text:      text,
			Segments:  append([]*models.PdfSegment(nil), currentSegments...),
			PageStart: currentSegments[0].Page,
			PageEnd:   currentSegments[len(currentSegments)-1].Page,
			BBox:      unionBBox(currentSegments),
			TypeHint:  s.inferBlockType(text),
		}
		blocks = append(blocks, block)

		currentSegments = nil
		currentTexts = nil
	}

	for _, seg := range sorted {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		if len(currentSegments) == 0 {
			currentSegments = append(currentSegments, seg)
			currentTexts = append(currentTexts, text)
			continue
		}

		prev := currentSegments[len(currentSegments)-1]

		// 标题总是先冲刷当前块再另起新块
		if isHeading(text) || s.shouldStartNewBlock(prev, seg, currentTexts) {
			flush()
		}
		currentSegments = append(currentSegments, seg)
		currentTexts = append(currentTexts, text)
	}

	flush()
	return blocks
}

// isHeading 标题启发式，针对波兰语SIWZ类文档：
// 短大写行、以冒号结尾的行、以 "ROZDZIAŁ"、"§"、"1."、"I." 开头的行
func isHeading(text string) bool {
	stripped := strings.TrimSpace(text)

	if len([]rune(stripped)) <= 80 && isUpper(stripped) {
		return true
	}
	if strings.HasSuffix(stripped, ":") && len([]rune(stripped)) <= 120 {
		return true
	}
	return headingPattern.MatchString(stripped)
}

// isUpper 判断字符串是否为大写形式（等价于其自身的大写且包含字母）
func isUpper(s string) bool {
	if s == "" {
		return false
	}
	upper := strings.ToUpper(s)
	if s != upper {
		return false
	}
	// 纯数字或符号不算大写标题
	return strings.ToLower(s) != s
}

// inferBlockType 推断粗粒度块类型，仅作为提示，语义仍以LLM为准
func (s *BlockSegmenter) inferBlockType(text string) string {
	if isHeading(text) {
		return "heading"
	}
	if tableLikePattern.MatchString(text) {
		return "table"
	}
	return ""
}

// shouldStartNewBlock 判断当前片段是否应开启新块而不是并入当前块
func (s *BlockSegmenter) shouldStartNewBlock(prev, curr *models.PdfSegment, currentTexts []string) bool {
	// 跨页总是开启新块
	if prev.Page != curr.Page {
		return true
	}

	// 软字符上限按字符数计，+1算上拼接用的换行符
	currentLen := 0
	for _, t := range currentTexts {
		currentLen += utf8.RuneCountInString(t)
	}
	if currentLen+1+utf8.RuneCountInString(curr.Text) >= s.config.MaxCharsPerBlock {
		return true
	}

	// 布局线索：大的垂直间距或明显的水平偏移
	if prev.BBox != nil && curr.BBox != nil {
		yGap := curr.BBox.Y0 - prev.BBox.Y1
		xShift := curr.BBox.X0 - prev.BBox.X0
		if xShift < 0 {
			xShift = -xShift
		}

		if yGap > s.config.YGapThreshold {
			return true
		}
		if xShift > s.config.XShiftThreshold {
			// 很可能是新列或页面上的另一区域
			return true
		}
	}

	return false
}

// unionBBox 计算所有存在的成员边界框的并集，全部缺失时返回nil
func unionBBox(segments []*models.PdfSegment) *models.BBox {
	var union *models.BBox
	for _, seg := range segments {
		if seg.BBox == nil {
			continue
		}
		if union == nil {
			b := *seg.BBox
			union = &b
			continue
		}
		if seg.BBox.X0 < union.X0 {
			union.X0 = seg.BBox.X0
		}
		if seg.BBox.Y0 < union.Y0 {
			union.Y0 = seg.BBox.Y0
		}
		if seg.BBox.X1 > union.X1 {
			union.X1 = seg.BBox.X1
		}
		if seg.BBox.Y1 > union.Y1 {
			union.Y1 = seg.BBox.Y1
		}
	}
	return union
}

func bboxY0(s *models.PdfSegment) float64 {
	if s.BBox == nil {
		return 0.0
	}
	return s.BBox.Y0
}

func bboxX0(s *models.PdfSegment) float64 {
	if s.BBox == nil {
		return 0.0
	}
	return s.BBox.X0
}
