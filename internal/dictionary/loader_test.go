package dictionary

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func quietLoader(opts ...LoaderOption) *Loader {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewLoader(append([]LoaderOption{WithLogger(logger)}, opts...)...)
}

// writeTestWorkbook 生成测试用XLSX词典文件
func writeTestWorkbook(t *testing.T, name string, rows [][]string) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		for j, cell := range row {
			cellName, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", cellName, cell))
		}
	}

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, f.SaveAs(path))
	return path
}

func writeTestCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestLoadExcel 从XLSX加载词典
func TestLoadExcel(t *testing.T) {
	path := writeTestWorkbook(t, "services_v2.1.xlsx", [][]string{
		{"Kod", "Nazwa", "Kategoria", "Podkategoria", "Synonimy"},
		{"KONS_INT", "Konsultacja internistyczna", "Konsultacje", "", "internista, lekarz chorób wewnętrznych"},
		{"LAB_MORF", "Morfologia krwi", "Diagnostyka", "Laboratorium", "morfologia"},
	})

	loader := quietLoader()
	entries, version, err := loader.Load(path)
	require.NoError(t, err)

	// 版本从文件名检测
	assert.Equal(t, "2.1", version)

	require.Len(t, entries, 2)
	assert.Equal(t, "KONS_INT", entries[0].Code)
	assert.Equal(t, "Konsultacja internistyczna", entries[0].Name)
	assert.Equal(t, "Konsultacje", entries[0].Category)
	assert.Equal(t, []string{"internista", "lekarz chorób wewnętrznych"}, entries[0].Synonyms)
	assert.Equal(t, "Laboratorium", entries[1].Subcategory)
}

// TestLoadCSV 从CSV加载词典，自动识别分号分隔符
func TestLoadCSV(t *testing.T) {
	path := writeTestCSV(t, "services.csv",
		"code;name;category;synonyms\n"+
			"KONS_KARD;Konsultacja kardiologiczna;Konsultacje;kardiolog\n"+
			"SZCZEP_GRYPA;Szczepienie przeciw grypie;Profilaktyka;\n")

	loader := quietLoader()
	entries, version, err := loader.Load(path)
	require.NoError(t, err)

	// 文件名无版本号时使用默认版本
	assert.Equal(t, "1.0", version)

	require.Len(t, entries, 2)
	assert.Equal(t, "KONS_KARD", entries[0].Code)
	assert.Equal(t, []string{"kardiolog"}, entries[0].Synonyms)
	assert.Nil(t, entries[1].Synonyms)
}

// TestLoadSkipsInvalidRows 必填字段缺失的行被跳过
func TestLoadSkipsInvalidRows(t *testing.T) {
	path := writeTestCSV(t, "services.csv",
		"code,name,category\n"+
			"A1,Usługa pierwsza,Kat1\n"+
			",Bez kodu,Kat1\n"+
			"A2,,Kat2\n"+
			"A3,Usługa trzecia,Kat2\n")

	loader := quietLoader()
	entries, _, err := loader.Load(path)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "A1", entries[0].Code)
	assert.Equal(t, "A3", entries[1].Code)
}

// TestLoadDuplicateCodes 重复编码：严格模式报错，宽松模式跳过
func TestLoadDuplicateCodes(t *testing.T) {
	content := "code,name,category\n" +
		"A1,Usługa pierwsza,Kat1\n" +
		"A1,Duplikat,Kat1\n"

	t.Run("strict", func(t *testing.T) {
		path := writeTestCSV(t, "services.csv", content)
		loader := quietLoader(WithStrictValidation(true))
		_, _, err := loader.Load(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDictionaryLoad)
	})

	t.Run("lenient", func(t *testing.T) {
		path := writeTestCSV(t, "services.csv", content)
		loader := quietLoader(WithStrictValidation(false))
		entries, _, err := loader.Load(path)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "Usługa pierwsza", entries[0].Name)
	})
}

// TestLoadMissingColumns 缺少必填列时报错
func TestLoadMissingColumns(t *testing.T) {
	path := writeTestCSV(t, "services.csv",
		"code,description\nA1,opis\n")

	loader := quietLoader()
	_, _, err := loader.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required columns")
}

// TestLoadFileNotFound 文件不存在时报错
func TestLoadFileNotFound(t *testing.T) {
	loader := quietLoader()
	_, _, err := loader.Load("/no/such/file.xlsx")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDictionaryLoad)
}

// TestLoadUnsupportedFormat 不支持的扩展名报错
func TestLoadUnsupportedFormat(t *testing.T) {
	path := writeTestCSV(t, "services.json", "{}")

	loader := quietLoader()
	_, _, err := loader.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file format")
}

// TestDetectVersion 版本号识别
func TestDetectVersion(t *testing.T) {
	loader := quietLoader()

	assert.Equal(t, "2.1", loader.detectVersion("uslugi_v2.1.xlsx"))
	assert.Equal(t, "3", loader.detectVersion("slownik_v3.csv"))
	assert.Equal(t, "1.0", loader.detectVersion("slownik.xlsx"))
}

// TestSplitSynonyms 别名列拆分
func TestSplitSynonyms(t *testing.T) {
	assert.Nil(t, splitSynonyms(""))
	assert.Equal(t, []string{"jeden"}, splitSynonyms("jeden"))
	assert.Equal(t, []string{"a", "b"}, splitSynonyms("a, b"))
	assert.Equal(t, []string{"a", "b", "c"}, splitSynonyms("a;b; c"))
}
