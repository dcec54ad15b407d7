package dictionary

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/fyerfyer/siwz-mapper/internal/models"
)

// ErrDictionaryLoad 词典加载失败错误
var ErrDictionaryLoad = errors.New("dictionary load failed")

// 从文件名检测词典版本，例如 "services_v1.2.xlsx"
var versionPattern = regexp.MustCompile(`(?i)[_v](\d+\.?\d*\.?\d*)(?:\.|_|$)`)

// defaultColumnMapping 列名到标准字段的映射（不区分大小写）
// 词典文件来自不同采购方，列名有波兰语和英语两套
var defaultColumnMapping = map[string][]string{
	"code":        {"code", "service_code", "kod", "kod_uslugi"},
	"name":        {"name", "service_name", "nazwa", "nazwa_uslugi"},
	"category":    {"category", "kategoria", "cat"},
	"subcategory": {"subcategory", "podkategoria", "subcat", "sub_category"},
	"synonyms":    {"synonyms", "synonimy", "aliases", "alternative_names"},
}

// Loader 医疗服务词典加载器
// 支持XLSX和CSV格式，做列名映射、空白清理、必填字段与重复编码校验
type Loader struct {
	columnMapping    map[string][]string
	strictValidation bool
	logger           *logrus.Logger
}

// LoaderOption 加载器配置选项
type LoaderOption func(*Loader)

// WithStrictValidation 设置是否启用严格校验
// 严格模式下重复编码和非法行直接报错，否则记录警告并跳过
func WithStrictValidation(strict bool) LoaderOption {
	return func(l *Loader) {
		l.strictValidation = strict
	}
}

// WithColumnMapping 设置自定义列名映射
func WithColumnMapping(mapping map[string][]string) LoaderOption {
	return func(l *Loader) {
		if len(mapping) > 0 {
			l.columnMapping = mapping
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader 创建新的词典加载器
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		columnMapping:    defaultColumnMapping,
		strictValidation: true,
		logger:           logrus.New(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load 从文件加载服务词典
// 返回服务条目列表和检测到的版本号
func (l *Loader) Load(filePath string) ([]*models.ServiceEntry, string, error) {
	if _, err := os.Stat(filePath); err != nil {
		return nil, "", fmt.Errorf("%w: file not found: %s", ErrDictionaryLoad, filePath)
	}

	l.logger.WithField("file", filePath).Info("Loading services dictionary")

	version := l.detectVersion(filePath)

	var rows [][]string
	var err error

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".xlsx", ".xls":
		rows, err = l.readExcel(filePath)
	case ".csv":
		rows, err = l.readCSV(filePath)
	default:
		return nil, "", fmt.Errorf("%w: unsupported file format: %s", ErrDictionaryLoad, filepath.Ext(filePath))
	}
	if err != nil {
		return nil, "", err
	}

	if len(rows) < 2 {
		return nil, "", fmt.Errorf("%w: file contains no data rows", ErrDictionaryLoad)
	}

	services, err := l.convertRows(rows)
	if err != nil {
		return nil, "", err
	}

	l.logger.WithFields(logrus.Fields{
		"services": len(services),
		"version":  version,
	}).Info("Dictionary loaded")

	return services, version, nil
}

// readExcel 读取XLSX工作簿的第一个工作表
func (l *Loader) readExcel(filePath string) ([][]string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open workbook: %v", ErrDictionaryLoad, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrDictionaryLoad)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read sheet %s: %v", ErrDictionaryLoad, sheets[0], err)
	}

	return rows, nil
}

// readCSV 读取CSV文件，自动尝试常见分隔符
func (l *Loader) readCSV(filePath string) ([][]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read file: %v", ErrDictionaryLoad, err)
	}

	for _, sep := range []rune{',', ';', '\t', '|'} {
		reader := csv.NewReader(strings.NewReader(string(data)))
		reader.Comma = sep
		reader.FieldsPerRecord = -1

		rows, err := reader.ReadAll()
		if err != nil {
			continue
		}
		if len(rows) > 0 && len(rows[0]) > 1 {
			l.logger.WithField("separator", string(sep)).Debug("Parsed CSV")
			return rows, nil
		}
	}

	return nil, fmt.Errorf("%w: could not parse CSV file with any separator", ErrDictionaryLoad)
}

// convertRows 把表格行转换为服务条目
// 第一行是表头；必填字段缺失的行被跳过，重复编码按严格模式处理
func (l *Loader) convertRows(rows [][]string) ([]*models.ServiceEntry, error) {
	colIndex, err := l.mapColumns(rows[0])
	if err != nil {
		return nil, err
	}

	var services []*models.ServiceEntry
	seen := make(map[string]bool)
	skipped := 0

	for i, row := range rows[1:] {
		get := func(field string) string {
			idx, ok := colIndex[field]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		code := get("code")
		name := get("name")
		category := get("category")

		if code == "" && name == "" && category == "" {
			continue // 整行为空
		}
		if code == "" || name == "" || category == "" {
			l.logger.WithField("row", i+2).Warn("Skipping row with empty required field")
			skipped++
			continue
		}

		if seen[code] {
			msg := fmt.Sprintf("duplicate code %q at row %d", code, i+2)
			if l.strictValidation {
				return nil, fmt.Errorf("%w: %s", ErrDictionaryLoad, msg)
			}
			l.logger.Warn("Skipping " + msg)
			skipped++
			continue
		}
		seen[code] = true

		services = append(services, &models.ServiceEntry{
			Code:        code,
			Name:        name,
			Category:    category,
			Subcategory: get("subcategory"),
			Synonyms:    splitSynonyms(get("synonyms")),
		})
	}

	if skipped > 0 {
		l.logger.WithField("skipped", skipped).Info("Removed invalid rows")
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("%w: no valid services loaded", ErrDictionaryLoad)
	}

	return services, nil
}

// mapColumns 把表头映射到标准字段的列索引
func (l *Loader) mapColumns(header []string) (map[string]int, error) {
	colIndex := make(map[string]int)

	for idx, col := range header {
		normalized := strings.ToLower(strings.TrimSpace(col))
		for field, candidates := range l.columnMapping {
			if _, done := colIndex[field]; done {
				continue
			}
			for _, candidate := range candidates {
				if normalized == strings.ToLower(candidate) {
					colIndex[field] = idx
					break
				}
			}
		}
	}

	var missing []string
	for _, required := range []string{"code", "name", "category"} {
		if _, ok := colIndex[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %v (available: %v)",
			ErrDictionaryLoad, missing, header)
	}

	return colIndex, nil
}

// splitSynonyms 按常见分隔符拆分别名列
func splitSynonyms(raw string) []string {
	if raw == "" {
		return nil
	}

	for _, sep := range []string{",", ";", "|", "\n"} {
		if strings.Contains(raw, sep) {
			var synonyms []string
			for _, part := range strings.Split(raw, sep) {
				if trimmed := strings.TrimSpace(part); trimmed != "" {
					synonyms = append(synonyms, trimmed)
				}
			}
			return synonyms
		}
	}

	return []string{raw}
}

// detectVersion 从文件名检测版本号，检测不到时默认 "1.0"
func (l *Loader) detectVersion(filePath string) string {
	stem := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	if m := versionPattern.FindStringSubmatch(stem); m != nil {
		return m[1]
	}
	return "1.0"
}
