package document

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// 行尾断词模式："dodat-\nkowy" -> "dodatkowy"
	hyphenationPattern   = regexp.MustCompile(`(\p{L}+)-\s*\n\s*(\p{L}+)`)
	multiSpacePattern    = regexp.MustCompile(` +`)
	aroundNewlinePattern = regexp.MustCompile(` *\n *`)
	multiNewlinePattern  = regexp.MustCompile(`\n{3,}`)
)

// 零宽字符与软连字符，PDF提取的常见残留
var invisibleReplacer = strings.NewReplacer(
	"​", "",
	"‌", "",
	"‍", "",
	"\uFEFF", "",
	"­", "",
)

// 弯引号（含波兰语低位引号）统一为直引号
var quoteReplacer = strings.NewReplacer(
	"“", `"`,
	"”", `"`,
	"„", `"`,
	"‟", `"`,
	"‘", "'",
	"’", "'",
	"‚", "'",
	"‛", "'",
)

// NormalizerConfig 文本规范化配置
type NormalizerConfig struct {
	NormalizeUnicode bool // Unicode NFC规范化
	FixWhitespace    bool // 清理多余空白
	FixHyphenation   bool // 修复行尾断词
	NormalizeQuotes  bool // 弯引号转直引号
}

// DefaultNormalizerConfig 返回默认规范化配置，全部清理开启
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{
		NormalizeUnicode: true,
		FixWhitespace:    true,
		FixHyphenation:   true,
		NormalizeQuotes:  true,
	}
}

// TextNormalizer 文本规范化器
// 对PDF提取的文本做轻量清理：Unicode NFC、零宽字符、
// 行尾断词、弯引号和多余空白，在分片时逐片应用
type TextNormalizer struct {
	config NormalizerConfig
}

// NewTextNormalizer 创建新的文本规范化器
func NewTextNormalizer(config NormalizerConfig) *TextNormalizer {
	return &TextNormalizer{config: config}
}

// Normalize 规范化一段文本
func (n *TextNormalizer) Normalize(text string) string {
	if text == "" {
		return text
	}

	if n.config.NormalizeUnicode {
		text = norm.NFC.String(text)
	}

	text = invisibleReplacer.Replace(text)

	if n.config.FixHyphenation {
		text = hyphenationPattern.ReplaceAllString(text, "$1$2")
	}
	if n.config.NormalizeQuotes {
		text = quoteReplacer.Replace(text)
	}
	if n.config.FixWhitespace {
		text = n.fixWhitespace(text)
	}

	return text
}

// fixWhitespace 清理空白：制表符转空格、连续空格折叠、
// 行首行尾空格去除、三个以上连续换行压到两个
func (n *TextNormalizer) fixWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\t", " ")
	text = multiSpacePattern.ReplaceAllString(text, " ")
	text = aroundNewlinePattern.ReplaceAllString(text, "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	return multiNewlinePattern.ReplaceAllString(text, "\n\n")
}
