package document

import (
	"fmt"
	"io"
	"os"

	"github.com/fyerfyer/siwz-mapper/internal/models"
)

// PlainTextParser 纯文本解析器
type PlainTextParser struct{}

// NewPlainTextParser 创建一个新的纯文本解析器
func NewPlainTextParser() Parser {
	return &PlainTextParser{}
}

// Parse 解析纯文本文件
func (p *PlainTextParser) Parse(filePath string) ([]*models.PdfSegment, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open text file: %v", err)
	}
	defer file.Close()

	return p.ParseReader(file, filePath)
}

// ParseReader 从Reader解析纯文本内容
// 纯文本同样没有页的概念，片段都落在第1页
func (p *PlainTextParser) ParseReader(r io.Reader, filename string) ([]*models.PdfSegment, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read text file: %v", err)
	}

	segments, _ := segmentsFromPageText(string(content), 1, 0, false)
	return segments, nil
}
