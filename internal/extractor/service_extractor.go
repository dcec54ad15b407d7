package extractor

import (
	"regexp"
	"sort"
	"strings"

	"github.com/fyerfyer/siwz-mapper/internal/models"
)

var (
	// "15." 纯编号行
	pureNumRe = regexp.MustCompile(`^(\d+)\.\s*$`)
	// "15.1. cholesterol..." 子条目行（描述可为空）
	subNumRe = regexp.MustCompile(`^(\d+)\.(\d+)\.\s*(.*)$`)
	// "15. Diagnostyka ..." 带描述的顶层编号行
	topWithTextRe = regexp.MustCompile(`^(\d+)\.\s+(.+)$`)
)

// streamLine 行流中的一行
// 记录来源片段、是否来自预防保健部分以及行在片段内的索引
type streamLine struct {
	segment          *models.PdfSegment
	isProphylaxis    bool
	text             string
	lineIdxInSegment int
}

// ServiceExtractor 服务条目提取器
// 从VariantGroup的正文文本中重建编号大纲结构：
//
//	顶层行  "X. ..."   -> 块标题（block_no = "X"）
//	子层行  "X.Y. ..." -> 单条服务（service_local_id = "X.Y"）
//
// 未编号的行作为续行附加到最近的条目。
// 上游PDF提取会把编号和标题拆到相邻两行，提取前先修复这类断行。
type ServiceExtractor struct{}

// NewServiceExtractor 创建新的服务条目提取器
func NewServiceExtractor() *ServiceExtractor {
	return &ServiceExtractor{}
}

// ExtractFromVariants 对方案分组列表逐一提取服务条目
// 返回 variant_id 到条目列表的映射，供下游编码映射阶段使用
func (e *ServiceExtractor) ExtractFromVariants(groups []*models.VariantGroup) map[string][]*models.VariantServiceItem {
	result := make(map[string][]*models.VariantServiceItem, len(groups))
	for _, vg := range groups {
		result[vg.VariantID] = e.Extract(vg)
	}
	return result
}

// Extract 提取单个方案的服务条目
// 步骤：
// 1) 构建行流（body + prophylaxis + other，修复断行）；
// 2) 扫描整个行流收集块标题映射 { "4": "...", "10": "..." }；
// 3) 带状态单遍解析（当前块、当前条目、续行）。
// 先收集标题再解析，保证 "4.X" 即使出现在 "4. ..." 之前也拿到正确标题。
func (e *ServiceExtractor) Extract(vg *models.VariantGroup) []*models.VariantServiceItem {
	lineStream := e.buildLineStream(vg)
	topHeadings := e.collectTopHeadings(lineStream)

	var items []*models.VariantServiceItem

	var currentBlockNo string
	var currentBlockHeading string
	currentBlockCategory := "unknown"

	var currentItem *models.VariantServiceItem

	for _, line := range lineStream {
		raw := line.text
		text := strings.TrimSpace(raw)
		if text == "" {
			// 空行中断续行归属
			currentItem = nil
			continue
		}

		isProph := line.isProphylaxis
		seg := line.segment

		// ---------- 子条目 X.Y. ------------------------------------
		if m := subNumRe.FindStringSubmatch(text); m != nil {
			prefix := m[1]
			subNo := m[2]
			rest := strings.TrimSpace(m[3])

			// 前缀变化（如 10.* -> 11.*）= 新块；相同前缀不重开块上下文，
			// 避免同一 "X.Y" 前缀跨多个物理片段时产生多余的块标题切换
			if currentBlockNo != prefix {
				currentBlockNo = prefix
				currentBlockHeading = topHeadings[prefix]
				currentBlockCategory = blockCategory(isProph)
			}

			item := &models.VariantServiceItem{
				VariantID:       vg.VariantID,
				BlockNo:         currentBlockNo,
				BlockHeadingRaw: currentBlockHeading,
				BlockCategory:   currentBlockCategory,
				ServiceLocalID:  prefix + "." + subNo,
				ServiceText:     rest,
				IsProphylaxis:   isProph,
				SourceSegmentID: seg.SegmentID,
				Page:            seg.Page,
				Extra: models.ItemExtra{
					SourceLine:       raw,
					LineIdxInSegment: line.lineIdxInSegment,
					IsSubItem:        true,
				},
			}
			items = append(items, item)
			currentItem = item
			continue
		}

		// ---------- 顶层 X. ...（块标题） ---------------------------
		if m := topWithTextRe.FindStringSubmatch(text); m != nil {
			num := m[1]
			rest := strings.TrimSpace(m[2])

			currentBlockNo = num
			// 以标题映射为准，缺失时退回本行自身的描述
			if heading, ok := topHeadings[num]; ok {
				currentBlockHeading = heading
			} else {
				currentBlockHeading = rest
			}
			currentBlockCategory = blockCategory(isProph)

			item := &models.VariantServiceItem{
				VariantID:       vg.VariantID,
				BlockNo:         currentBlockNo,
				BlockHeadingRaw: currentBlockHeading,
				BlockCategory:   currentBlockCategory,
				ServiceLocalID:  num,
				ServiceText:     currentBlockHeading,
				IsProphylaxis:   isProph,
				SourceSegmentID: seg.SegmentID,
				Page:            seg.Page,
				Extra: models.ItemExtra{
					SourceLine:       raw,
					LineIdxInSegment: line.lineIdxInSegment,
					IsBlockHeader:    true,
				},
			}
			items = append(items, item)
			currentItem = item
			continue
		}

		// ---------- 未编号行 = 续行 ---------------------------------
		if currentItem != nil {
			currentItem.Extra.ContinuationLines = append(currentItem.Extra.ContinuationLines, raw)
		}
		// 没有打开的条目时，无上下文的散行直接忽略
	}

	return items
}

// blockCategory 根据预防保健标志确定块类别
func blockCategory(isProphylaxis bool) string {
	if isProphylaxis {
		return "prophylaxis"
	}
	return "unknown"
}

// buildLineStream 把方案的片段拼成一条行流
// body、prophylaxis和other片段合并后按(page, start_char, segment_id)排序，
// 每个片段的文本按换行拆成行，并继承来源列表的预防保健标志。
func (e *ServiceExtractor) buildLineStream(vg *models.VariantGroup) []streamLine {
	type segWithFlag struct {
		segment       *models.PdfSegment
		isProphylaxis bool
	}

	var segs []segWithFlag
	for _, seg := range vg.BodySegments {
		segs = append(segs, segWithFlag{segment: seg})
	}
	for _, seg := range vg.ProphylaxisSegments {
		segs = append(segs, segWithFlag{segment: seg, isProphylaxis: true})
	}
	for _, seg := range vg.OtherSegments {
		segs = append(segs, segWithFlag{segment: seg})
	}

	sort.SliceStable(segs, func(i, j int) bool {
		a, b := segs[i].segment, segs[j].segment
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		as, bs := startChar(a), startChar(b)
		if as != bs {
			return as < bs
		}
		return a.SegmentID < b.SegmentID
	})

	var raw []streamLine
	for _, sf := range segs {
		for idx, ln := range splitLines(sf.segment.Text) {
			raw = append(raw, streamLine{
				segment:          sf.segment,
				isProphylaxis:    sf.isProphylaxis,
				text:             ln,
				lineIdxInSegment: idx,
			})
		}
	}

	return e.mergeBrokenNumberedLines(raw)
}

// collectTopHeadings 扫描整个行流，收集所有 "X. Coś tam" 行构成标题映射
// 同一编号出现多次时后者覆盖前者。
// 隐含假设：同一方案流内不会用相同的顶层编号表达不同含义。
func (e *ServiceExtractor) collectTopHeadings(lineStream []streamLine) map[string]string {
	topHeadings := make(map[string]string)

	for _, line := range lineStream {
		text := strings.TrimSpace(line.text)
		m := topWithTextRe.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		topHeadings[m[1]] = strings.TrimSpace(m[2])
	}

	return topHeadings
}

// mergeBrokenNumberedLines 修复被上游拆断的编号行
//
//	"15."   + "Diagnostyka miażdżycy ..." -> "15. Diagnostyka miażdżycy ..."
//	"15.1." + "cholesterol – ..."         -> "15.1. cholesterol – ..."
//
// 仅当下一行本身不像编号行时才合并
func (e *ServiceExtractor) mergeBrokenNumberedLines(lineStream []streamLine) []streamLine {
	merged := make([]streamLine, 0, len(lineStream))
	n := len(lineStream)

	i := 0
	for i < n {
		cur := lineStream[i]
		stripped := strings.TrimSpace(cur.text)

		// "15."
		if m := pureNumRe.FindStringSubmatch(stripped); m != nil && i+1 < n {
			next := strings.TrimSpace(lineStream[i+1].text)
			if next != "" && isPlainProse(next) {
				newCur := cur
				newCur.text = m[1] + ". " + next
				merged = append(merged, newCur)
				i += 2
				continue
			}
		}

		// "15.1." 后面没有描述
		if m := subNumRe.FindStringSubmatch(stripped); m != nil && strings.TrimSpace(m[3]) == "" && i+1 < n {
			next := strings.TrimSpace(lineStream[i+1].text)
			if next != "" && isPlainProse(next) {
				newCur := cur
				newCur.text = m[1] + "." + m[2] + ". " + next
				merged = append(merged, newCur)
				i += 2
				continue
			}
		}

		merged = append(merged, cur)
		i++
	}

	return merged
}

// splitLines 把片段文本按换行拆成行
// 文本以换行符结尾时不产生多余的空行，空文本产生零行，
// 避免片段尾部的幻影空行切断跨片段的续行归属
func splitLines(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// startChar 片段的起始字符偏移，缺失时按0处理
func startChar(s *models.PdfSegment) int {
	if s.StartChar == nil {
		return 0
	}
	return *s.StartChar
}

// isPlainProse 判断一行是否为普通文本（自身不是任何编号行形式）
func isPlainProse(line string) bool {
	return !pureNumRe.MatchString(line) &&
		!subNumRe.MatchString(line) &&
		!topWithTextRe.MatchString(line)
}
