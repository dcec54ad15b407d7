package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/fyerfyer/siwz-mapper/internal/models"
)

// 提取结果文件名中的页码，例如 "content_p12.txt"、"page_3.txt"
// 只认扩展名前的数字，避免文件名里其它数字（如临时文件的随机后缀）干扰
var pageNumPattern = regexp.MustCompile(`(\d+)\.txt$`)

// PDFParser PDF文档解析器
// 用pdfcpu按页提取文本，每页再按空行拆成片段，
// 保留页码（从1开始）、合成边界框和全文档字符偏移，供引用和高亮使用
type PDFParser struct {
	extractBBoxes bool // 是否生成合成边界框
}

// NewPDFParser 创建一个新的PDF解析器
func NewPDFParser() Parser {
	return &PDFParser{extractBBoxes: true}
}

// Parse 解析PDF文件并提取带位置信息的片段
func (p *PDFParser) Parse(filePath string) ([]*models.PdfSegment, error) {
	// 创建临时目录用于存放提取的文本
	tmpDir, err := os.MkdirTemp("", "pdfcpu_extract_")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	conf := model.NewDefaultConfiguration()

	// 提取文本到临时目录，每页一个文件
	if err := api.ExtractContentFile(filePath, tmpDir, nil, conf); err != nil {
		return nil, fmt.Errorf("failed to extract text from PDF: %v", err)
	}

	return p.collectSegments(tmpDir)
}

// ParseReader 从Reader解析PDF内容
func (p *PDFParser) ParseReader(r io.Reader, filename string) ([]*models.PdfSegment, error) {
	// pdfcpu的内容提取需要文件路径，先落到临时文件
	tmpFile, err := os.CreateTemp("", "siwz_upload_*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return nil, fmt.Errorf("failed to buffer PDF content: %v", err)
	}
	tmpFile.Close()

	return p.Parse(tmpFile.Name())
}

// collectSegments 读取提取目录中的每页文本并转换为片段
func (p *PDFParser) collectSegments(dir string) ([]*models.PdfSegment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read extracted text dir: %v", err)
	}

	type pageFile struct {
		page int
		name string
	}

	var pages []pageFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		pages = append(pages, pageFile{
			page: pageNumberFromName(entry.Name(), len(pages)+1),
			name: entry.Name(),
		})
	}

	// 按页码排序
	sort.Slice(pages, func(i, j int) bool {
		return pages[i].page < pages[j].page
	})

	var segments []*models.PdfSegment
	charOffset := 0

	for _, pf := range pages {
		data, err := os.ReadFile(filepath.Join(dir, pf.name))
		if err != nil {
			continue
		}

		pageSegments, nextOffset := segmentsFromPageText(string(data), pf.page, charOffset, p.extractBBoxes)
		segments = append(segments, pageSegments...)
		charOffset = nextOffset
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("no text content found in PDF")
	}

	return segments, nil
}

// pageNumberFromName 从提取文件名解析页码，解析失败时用顺序值兜底
func pageNumberFromName(name string, fallback int) int {
	m := pageNumPattern.FindStringSubmatch(name)
	if m == nil {
		return fallback
	}
	page, err := strconv.Atoi(m[1])
	if err != nil || page < 1 {
		return fallback
	}
	return page
}
