package document

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fyerfyer/siwz-mapper/internal/models"
)

// Parser 文档解析器接口
// 负责把不同格式的文档解析为带位置信息的文本片段，
// 片段是后续分块、分类和聚合的输入
type Parser interface {
	// Parse 解析文档，返回按页序排列的片段
	Parse(filePath string) ([]*models.PdfSegment, error)

	// ParseReader 从Reader解析文档，filename用于确定文档类型
	ParseReader(r io.Reader, filename string) ([]*models.PdfSegment, error)
}

// ContentType 表示文档的内容类型
type ContentType string

const (
	// PDF 文档类型
	PDF ContentType = "pdf"
	// Markdown 文档类型
	Markdown ContentType = "markdown"
	// PlainText 纯文本类型
	PlainText ContentType = "plaintext"
	// Unknown 未知类型
	Unknown ContentType = "unknown"
)

// ParserFactory 解析器工厂函数，根据文件类型创建对应的解析器
func ParserFactory(filePath string) (Parser, error) {
	contentType := detectContentType(filePath)

	switch contentType {
	case PDF:
		return NewPDFParser(), nil
	case Markdown:
		return NewMarkdownParser(), nil
	case PlainText:
		return NewPlainTextParser(), nil
	default:
		return nil, errors.New("unsupported document type")
	}
}

// detectContentType 根据文件扩展名检测内容类型
func detectContentType(filePath string) ContentType {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".pdf":
		return PDF
	case ".md", ".markdown":
		return Markdown
	case ".txt":
		return PlainText
	default:
		return Unknown
	}
}

var pageNormalizer = NewTextNormalizer(DefaultNormalizerConfig())

// segmentsFromPageText 把一页文本规范化后按空行拆成片段
// 片段按行位置赋予合成的边界框（行高lineHeight，自上而下），
// 并从startOffset起累计字符偏移。返回片段列表和更新后的偏移。
func segmentsFromPageText(text string, page int, startOffset int, withBBox bool) ([]*models.PdfSegment, int) {
	const lineHeight = 12.0
	const pageWidth = 500.0

	normalized := pageNormalizer.Normalize(strings.ReplaceAll(text, "\r\n", "\n"))
	paragraphs := strings.Split(normalized, "\n\n")

	var segments []*models.PdfSegment
	offset := startOffset
	lineNo := 0

	for _, para := range paragraphs {
		trimmed := strings.TrimSpace(para)
		lineCount := strings.Count(para, "\n") + 1
		if trimmed == "" {
			lineNo += lineCount
			continue
		}

		var bbox *models.BBox
		if withBBox {
			bbox = &models.BBox{
				Page: page,
				X0:   50.0,
				Y0:   float64(lineNo) * lineHeight,
				X1:   pageWidth,
				Y1:   float64(lineNo+lineCount) * lineHeight,
			}
		}

		start := offset
		end := offset + len(trimmed)
		// 片段之间隐含一个分隔符
		offset = end + 1

		segments = append(segments, &models.PdfSegment{
			SegmentID: fmt.Sprintf("seg_p%d_b%d", page, len(segments)),
			Text:      trimmed,
			Page:      page,
			BBox:      bbox,
			StartChar: &start,
			EndChar:   &end,
		})

		lineNo += lineCount + 1
	}

	return segments, offset
}
