package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNormalizeWhitespace 多余空白清理：制表符、连续空格、行首行尾空格、过多空行
func TestNormalizeWhitespace(t *testing.T) {
	n := NewTextNormalizer(DefaultNormalizerConfig())

	assert.Equal(t, "przykładowy tekst\n\nz błędami",
		n.Normalize("przykładowy  tekst\n\nz    błędami"))
	assert.Equal(t, "kolumna pierwsza kolumna druga",
		n.Normalize("kolumna pierwsza\tkolumna druga"))
	assert.Equal(t, "linia\ndruga",
		n.Normalize(" linia \n druga "))
	assert.Equal(t, "akapit\n\nnastępny",
		n.Normalize("akapit\n\n\n\nnastępny"))
}

// TestNormalizeHyphenation 行尾断词修复
func TestNormalizeHyphenation(t *testing.T) {
	n := NewTextNormalizer(DefaultNormalizerConfig())

	assert.Equal(t, "dodatkowy zakres usług",
		n.Normalize("dodat-\nkowy zakres usług"))
	// 同一行内的连字符不受影响
	assert.Equal(t, "badania psycho-techniczne",
		n.Normalize("badania psycho-techniczne"))
}

// TestNormalizeQuotes 弯引号（含波兰语低位引号）转直引号
func TestNormalizeQuotes(t *testing.T) {
	n := NewTextNormalizer(DefaultNormalizerConfig())

	assert.Equal(t, `pakiet "Premium"`, n.Normalize("pakiet „Premium”"))
	assert.Equal(t, "tzw. 'wariant'", n.Normalize("tzw. ‘wariant’"))
}

// TestNormalizeInvisibleChars 零宽字符与软连字符被移除
func TestNormalizeInvisibleChars(t *testing.T) {
	n := NewTextNormalizer(DefaultNormalizerConfig())

	assert.Equal(t, "konsultacja", n.Normalize("kon­sultacja"))
	assert.Equal(t, "usługa", n.Normalize("u​sługa\uFEFF"))
}

// TestNormalizeUnicodeNFC 分解形式的变音字符合成为NFC
func TestNormalizeUnicodeNFC(t *testing.T) {
	n := NewTextNormalizer(DefaultNormalizerConfig())

	// "a" + combining ogonek -> "ą"
	assert.Equal(t, "ą", n.Normalize("ą"))
	assert.Equal(t, "", n.Normalize(""))
}

// TestNormalizeDisabled 关闭全部开关时仅移除不可见字符
func TestNormalizeDisabled(t *testing.T) {
	n := NewTextNormalizer(NormalizerConfig{})

	assert.Equal(t, "podwójna  spacja", n.Normalize("podwójna  spacja"))
	assert.Equal(t, "dodat-\nkowy", n.Normalize("dodat-\nkowy"))
	assert.Equal(t, "tekst", n.Normalize("te​kst"))
}

// TestSegmentsFromPageTextNormalized 分片前先做文本规范化
func TestSegmentsFromPageTextNormalized(t *testing.T) {
	text := "dodat-\nkowy zakres usług\n\npakiet „Premium”  dla pracowników"

	segments, _ := segmentsFromPageText(text, 1, 0, false)
	require.Len(t, segments, 2)
	assert.Equal(t, "dodatkowy zakres usług", segments[0].Text)
	assert.Equal(t, `pakiet "Premium" dla pracowników`, segments[1].Text)
}
