package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fyerfyer/siwz-mapper/internal/classifier"
	"github.com/fyerfyer/siwz-mapper/internal/llm"
	"github.com/fyerfyer/siwz-mapper/internal/mapper"
	"github.com/fyerfyer/siwz-mapper/internal/models"
	"github.com/fyerfyer/siwz-mapper/internal/repository"
	"github.com/fyerfyer/siwz-mapper/pkg/storage"
	"github.com/fyerfyer/siwz-mapper/pkg/taskqueue"
)

// testSIWZDocument 两方案招标文档样例
// 方案标题大写成行，服务条目使用编号大纲，第3块是预防保健部分
const testSIWZDocument = `Specyfikacja Istotnych Warunków Zamówienia na usługi medyczne dla pracowników zamawiającego.

WARIANT 1 PAKIET PODSTAWOWY

1. Konsultacje specjalistyczne
1.1. konsultacja internistyczna
1.2. konsultacja kardiologiczna

WARIANT 2 PAKIET ROZSZERZONY

2. Diagnostyka laboratoryjna
2.1. morfologia krwi
2.2. cholesterol całkowity

3. Profilaktyka
3.1. szczepienie przeciw grypie`

// memoryStorage 基于内存的文件存储，避免测试落盘
type memoryStorage struct {
	files map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{files: make(map[string][]byte)}
}

func (s *memoryStorage) Save(reader io.Reader, filename string) (storage.FileInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return storage.FileInfo{}, err
	}
	id := strings.TrimSuffix(filename, filepath.Ext(filename))
	s.files[id] = data
	return storage.FileInfo{ID: id, Name: filename, Size: int64(len(data))}, nil
}

func (s *memoryStorage) Get(id string) (io.ReadCloser, error) {
	data, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", id)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memoryStorage) Delete(id string) error {
	delete(s.files, id)
	return nil
}

func (s *memoryStorage) List() ([]storage.FileInfo, error) {
	infos := make([]storage.FileInfo, 0, len(s.files))
	for id, data := range s.files {
		infos = append(infos, storage.FileInfo{ID: id, Size: int64(len(data))})
	}
	return infos, nil
}

func (s *memoryStorage) Exists(id string) (bool, error) {
	_, ok := s.files[id]
	return ok, nil
}

// scriptedLLM 按语义块内容给出固定分类的模拟客户端
type scriptedLLM struct{}

func (c *scriptedLLM) Name() string { return "scripted-model" }

func (c *scriptedLLM) Chat(ctx context.Context, messages []llm.Message, options ...llm.ChatOption) (*llm.Response, error) {
	text := blockTextFromPrompt(messages[len(messages)-1].Content)

	var label, hint string
	switch {
	case strings.HasPrefix(text, "WARIANT 1"):
		label, hint = "variant_header", "1"
	case strings.HasPrefix(text, "WARIANT 2"):
		label, hint = "variant_header", "2"
	case strings.HasPrefix(text, "3."):
		label = "prophylaxis"
	case strings.HasPrefix(text, "1."), strings.HasPrefix(text, "2."):
		label = "variant_body"
	default:
		label = "general"
	}

	resp := map[string]interface{}{
		"block_id":       "",
		"label":          label,
		"is_prophylaxis": label == "prophylaxis",
		"confidence":     0.9,
		"rationale":      "klasyfikacja testowa",
	}
	if hint != "" {
		resp["variant_hint"] = hint
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return &llm.Response{Text: string(data), ModelName: c.Name()}, nil
}

// blockTextFromPrompt 从分类提示词中取出当前块的文本
func blockTextFromPrompt(prompt string) string {
	const marker = "Tekst bloku:\n"
	idx := strings.Index(prompt, marker)
	if idx < 0 {
		return prompt
	}
	text := prompt[idx+len(marker):]
	if end := strings.Index(text, "\n\n"); end >= 0 {
		text = text[:end]
	}
	return text
}

func testDictionary() []*models.ServiceEntry {
	return []*models.ServiceEntry{
		{Code: "KONS_INT", Name: "Konsultacja internistyczna", Category: "Konsultacje"},
		{Code: "KONS_KARD", Name: "Konsultacja kardiologiczna", Category: "Konsultacje"},
		{Code: "LAB_MORF", Name: "Morfologia krwi", Category: "Diagnostyka"},
		{Code: "SZCZEP_GRYPA", Name: "Szczepienie przeciw grypie", Category: "Profilaktyka"},
	}
}

// setupTestPipeline 组装带模拟存储和模拟LLM的同步管线
func setupTestPipeline(t *testing.T) (*PipelineService, *memoryStorage) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Failed to connect to test database")

	require.NoError(t, db.Migrator().DropTable(&models.Document{}, &models.ExtractionRecord{}))
	require.NoError(t, db.AutoMigrate(&models.Document{}, &models.ExtractionRecord{}))

	testLogger := logrus.New()
	testLogger.SetLevel(logrus.ErrorLevel)

	repo := repository.NewDocumentRepositoryWithDB(db)
	statusManager := NewDocumentStatusManager(repo, testLogger)

	store := newMemoryStorage()
	cls := classifier.NewBlockClassifier(&scriptedLLM{}, classifier.WithLogger(testLogger))
	m := mapper.NewServiceMapper(testDictionary(), mapper.WithLogger(testLogger))

	pipeline := NewPipelineService(store, cls,
		WithLogger(testLogger),
		WithDocumentRepository(repo),
		WithStatusManager(statusManager),
		WithMapper(m, "1.0"),
	)

	return pipeline, store
}

func uploadTestDocument(t *testing.T, pipeline *PipelineService, store *memoryStorage, docID string) string {
	t.Helper()

	fileName := docID + ".txt"
	_, err := store.Save(strings.NewReader(testSIWZDocument), fileName)
	require.NoError(t, err)

	require.NoError(t, pipeline.GetStatusManager().MarkAsUploaded(
		context.Background(), docID, fileName, fileName, int64(len(testSIWZDocument))))

	return fileName
}

func TestProcessDocumentSync(t *testing.T) {
	pipeline, store := setupTestPipeline(t)
	require.NoError(t, pipeline.Init())
	ctx := context.Background()

	filePath := uploadTestDocument(t, pipeline, store, "doc-1")

	require.NoError(t, pipeline.ProcessDocument(ctx, "doc-1", filePath))

	doc, err := pipeline.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusCompleted, doc.Status)
	assert.Equal(t, models.StageCompleted, doc.CurrentStage)
	assert.Equal(t, 100, doc.Progress)
	assert.Equal(t, 6, doc.SegmentCount)
	assert.Equal(t, 2, doc.VariantCount)

	t.Run("extracted items per variant", func(t *testing.T) {
		items, err := pipeline.GetExtractedItems(ctx, "doc-1")
		require.NoError(t, err)
		require.Len(t, items, 2)

		v1IDs := make([]string, 0, len(items["V1"]))
		for _, item := range items["V1"] {
			assert.Equal(t, "V1", item.VariantID)
			v1IDs = append(v1IDs, item.ServiceLocalID)
		}
		assert.Equal(t, []string{"1", "1.1", "1.2"}, v1IDs)

		// 子条目继承块标题
		assert.Equal(t, "Konsultacje specjalistyczne", items["V1"][1].BlockHeadingRaw)
		assert.True(t, items["V1"][0].Extra.IsBlockHeader)

		v2IDs := make([]string, 0, len(items["V2"]))
		for _, item := range items["V2"] {
			v2IDs = append(v2IDs, item.ServiceLocalID)
		}
		assert.Equal(t, []string{"2", "2.1", "2.2", "3", "3.1"}, v2IDs)

		// 预防保健部分的条目带标志
		last := items["V2"][len(items["V2"])-1]
		assert.Equal(t, "3.1", last.ServiceLocalID)
		assert.True(t, last.IsProphylaxis)
		assert.Equal(t, "prophylaxis", last.BlockCategory)
	})

	t.Run("mapping results", func(t *testing.T) {
		result, err := pipeline.GetResults(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, "doc-1", result.DocID)
		require.Len(t, result.Variants, 2)
		assert.Equal(t, "1.0", result.Metadata["dictionary_version"])

		v1 := result.Variants[0]
		assert.Equal(t, "V1", v1.VariantID)
		assert.ElementsMatch(t, []string{"KONS_INT", "KONS_KARD"}, v1.CoreCodes)
		assert.Empty(t, v1.ProphylaxisCodes)

		v2 := result.Variants[1]
		assert.Equal(t, "V2", v2.VariantID)
		// cholesterol nie ma odpowiednika w słowniku
		assert.ElementsMatch(t, []string{"LAB_MORF"}, v2.CoreCodes)
		assert.ElementsMatch(t, []string{"SZCZEP_GRYPA"}, v2.ProphylaxisCodes)
	})

	t.Run("reprocessing replaces previous results", func(t *testing.T) {
		require.NoError(t, pipeline.ProcessDocument(ctx, "doc-1", filePath))

		result, err := pipeline.GetResults(ctx, "doc-1")
		require.NoError(t, err)
		assert.Len(t, result.Variants, 2)
	})
}

func TestProcessDocumentValidation(t *testing.T) {
	pipeline, _ := setupTestPipeline(t)
	ctx := context.Background()

	assert.Error(t, pipeline.ProcessDocument(ctx, "", "doc.txt"))
	assert.Error(t, pipeline.ProcessDocument(ctx, "doc-1", ""))
}

func TestProcessDocumentParseFailure(t *testing.T) {
	pipeline, _ := setupTestPipeline(t)
	ctx := context.Background()

	// 文档记录存在但文件不在存储中
	require.NoError(t, pipeline.GetStatusManager().MarkAsUploaded(
		ctx, "doc-1", "missing.txt", "missing.txt", 100))

	err := pipeline.ProcessDocument(ctx, "doc-1", "missing.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse document")

	doc, getErr := pipeline.GetDocument(ctx, "doc-1")
	require.NoError(t, getErr)
	assert.Equal(t, models.DocStatusFailed, doc.Status)
	assert.NotEmpty(t, doc.Error)
}

func TestRemapDocument(t *testing.T) {
	pipeline, store := setupTestPipeline(t)
	ctx := context.Background()

	filePath := uploadTestDocument(t, pipeline, store, "doc-1")
	require.NoError(t, pipeline.ProcessDocument(ctx, "doc-1", filePath))

	// 新版词典补充了cholesterol条目
	dictPath := filepath.Join(t.TempDir(), "slownik_v2.0.csv")
	dictCSV := strings.Join([]string{
		"kod,nazwa,kategoria",
		"KONS_INT,Konsultacja internistyczna,Konsultacje",
		"KONS_KARD,Konsultacja kardiologiczna,Konsultacje",
		"LAB_MORF,Morfologia krwi,Diagnostyka",
		"LAB_CHOL,Cholesterol całkowity,Diagnostyka",
		"SZCZEP_GRYPA,Szczepienie przeciw grypie,Profilaktyka",
	}, "\n")
	require.NoError(t, os.WriteFile(dictPath, []byte(dictCSV), 0644))

	require.NoError(t, pipeline.RemapDocument(ctx, "doc-1", dictPath))

	result, err := pipeline.GetResults(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, result.Variants, 2)

	v2 := result.Variants[1]
	assert.Equal(t, "V2", v2.VariantID)
	assert.ElementsMatch(t, []string{"LAB_MORF", "LAB_CHOL"}, v2.CoreCodes)
	assert.ElementsMatch(t, []string{"SZCZEP_GRYPA"}, v2.ProphylaxisCodes)

	t.Run("remap without extraction records", func(t *testing.T) {
		err := pipeline.RemapDocument(ctx, "doc-unknown", dictPath)
		require.Error(t, err)
	})
}

func TestPipelineTaskHandler(t *testing.T) {
	pipeline, store := setupTestPipeline(t)
	handler := NewPipelineTaskHandler(pipeline, nil)
	ctx := context.Background()

	assert.ElementsMatch(t,
		[]taskqueue.TaskType{taskqueue.TaskDocumentProcess, taskqueue.TaskDocumentRemap},
		handler.GetTaskTypes())

	filePath := uploadTestDocument(t, pipeline, store, "doc-1")

	t.Run("process document task", func(t *testing.T) {
		payload, err := taskqueue.MarshalPayload(taskqueue.DocumentProcessPayload{
			FilePath: filePath,
			FileName: filePath,
			FileType: "txt",
		})
		require.NoError(t, err)

		task := &taskqueue.Task{
			ID:         "task-1",
			Type:       taskqueue.TaskDocumentProcess,
			DocumentID: "doc-1",
			Payload:    payload,
		}
		require.NoError(t, handler.ProcessTask(ctx, task))

		doc, err := pipeline.GetDocument(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, models.DocStatusCompleted, doc.Status)
		assert.Equal(t, 2, doc.VariantCount)
	})

	t.Run("unsupported task type", func(t *testing.T) {
		task := &taskqueue.Task{
			ID:         "task-2",
			Type:       taskqueue.TaskType("document_export"),
			DocumentID: "doc-1",
		}
		err := handler.ProcessTask(ctx, task)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported task type")
	})
}
