package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/fyerfyer/siwz-mapper/internal/aggregator"
	"github.com/fyerfyer/siwz-mapper/internal/classifier"
	"github.com/fyerfyer/siwz-mapper/internal/dictionary"
	"github.com/fyerfyer/siwz-mapper/internal/document"
	"github.com/fyerfyer/siwz-mapper/internal/extractor"
	"github.com/fyerfyer/siwz-mapper/internal/mapper"
	"github.com/fyerfyer/siwz-mapper/internal/models"
	"github.com/fyerfyer/siwz-mapper/internal/repository"
	"github.com/fyerfyer/siwz-mapper/internal/segmenter"
	"github.com/fyerfyer/siwz-mapper/pkg/storage"
	"github.com/fyerfyer/siwz-mapper/pkg/taskqueue"
)

// PipelineService 文档处理管线服务
// 协调解析、分块、分类、聚合、提取和映射各个阶段
type PipelineService struct {
	storage       storage.Storage               // 文件存储服务
	segmenter     *segmenter.BlockSegmenter     // 语义分块器
	classifier    *classifier.BlockClassifier   // LLM块分类器
	aggregator    *aggregator.VariantAggregator // 方案聚合器
	extractor     *extractor.ServiceExtractor   // 服务条目提取器
	mapper        *mapper.ServiceMapper         // 编码映射器，可选
	dictVersion   string                        // 词典版本
	repo          repository.DocumentRepository // 文档元数据存储
	statusManager *DocumentStatusManager        // 文档状态管理器
	taskQueue     taskqueue.Queue               // 任务队列
	asyncEnabled  bool                          // 是否启用异步处理
	timeout       time.Duration                 // 处理超时时间
	logger        *logrus.Logger                // 日志记录器
}

// PipelineOption 管线服务配置选项
type PipelineOption func(*PipelineService)

// NewPipelineService 创建一个新的管线服务
func NewPipelineService(
	store storage.Storage,
	cls *classifier.BlockClassifier,
	opts ...PipelineOption,
) *PipelineService {
	srv := &PipelineService{
		storage:      store,
		segmenter:    segmenter.NewBlockSegmenter(segmenter.DefaultConfig()),
		classifier:   cls,
		aggregator:   aggregator.NewVariantAggregator(),
		extractor:    extractor.NewServiceExtractor(),
		timeout:      time.Minute * 10, // 默认超时时间
		logger:       logrus.New(),
		asyncEnabled: false,
	}

	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// WithSegmenter 设置语义分块器
func WithSegmenter(s *segmenter.BlockSegmenter) PipelineOption {
	return func(p *PipelineService) {
		if s != nil {
			p.segmenter = s
		}
	}
}

// WithAggregator 设置方案聚合器
func WithAggregator(a *aggregator.VariantAggregator) PipelineOption {
	return func(p *PipelineService) {
		if a != nil {
			p.aggregator = a
		}
	}
}

// WithMapper 设置编码映射器和词典版本
func WithMapper(m *mapper.ServiceMapper, dictVersion string) PipelineOption {
	return func(p *PipelineService) {
		p.mapper = m
		p.dictVersion = dictVersion
	}
}

// WithTimeout 设置处理超时时间
func WithTimeout(timeout time.Duration) PipelineOption {
	return func(p *PipelineService) {
		p.timeout = timeout
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) PipelineOption {
	return func(p *PipelineService) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithDocumentRepository 设置文档仓储
func WithDocumentRepository(repo repository.DocumentRepository) PipelineOption {
	return func(p *PipelineService) {
		p.repo = repo
	}
}

// WithStatusManager 设置状态管理器
func WithStatusManager(manager *DocumentStatusManager) PipelineOption {
	return func(p *PipelineService) {
		p.statusManager = manager
	}
}

// WithTaskQueue 设置任务队列
func WithTaskQueue(queue taskqueue.Queue) PipelineOption {
	return func(p *PipelineService) {
		p.taskQueue = queue
		p.asyncEnabled = queue != nil
	}
}

// Init 初始化管线服务
// 确保必要的依赖都已设置
func (p *PipelineService) Init() error {
	if p.repo == nil {
		p.repo = repository.NewDocumentRepository()
	}

	if p.statusManager == nil {
		p.statusManager = NewDocumentStatusManager(p.repo, p.logger)
	}

	return nil
}

// ProcessDocument 处理文档（解析、分块、分类、聚合、提取、映射）
func (p *PipelineService) ProcessDocument(ctx context.Context, docID string, filePath string) error {
	if err := p.Init(); err != nil {
		return err
	}

	if docID == "" {
		return errors.New("docID cannot be empty")
	}
	if filePath == "" {
		return errors.New("filePath cannot be empty")
	}

	p.logger.WithFields(logrus.Fields{
		"doc_id":    docID,
		"file_path": filePath,
	}).Info("Starting document processing")

	if p.asyncEnabled && p.taskQueue != nil {
		return p.processAsync(ctx, docID, filePath)
	}

	return p.processSync(ctx, docID, filePath)
}

// processAsync 将处理任务加入队列并立即返回
func (p *PipelineService) processAsync(ctx context.Context, docID string, filePath string) error {
	if err := p.statusManager.MarkAsProcessing(ctx, docID); err != nil {
		p.logger.WithError(err).Error("Failed to mark document as processing")
		return fmt.Errorf("failed to update document status: %w", err)
	}

	fileName := filepath.Base(filePath)
	payload := taskqueue.DocumentProcessPayload{
		FilePath: filePath,
		FileName: fileName,
		FileType: getFileType(fileName),
		Metadata: map[string]string{"source": "api"},
	}

	taskID, err := p.taskQueue.Enqueue(ctx, taskqueue.TaskDocumentProcess, docID, payload)
	if err != nil {
		p.failDocument(ctx, docID, fmt.Sprintf("failed to enqueue processing task: %v", err))
		return fmt.Errorf("failed to enqueue processing task: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"doc_id":  docID,
		"task_id": taskID,
	}).Info("Document processing task enqueued")

	return nil
}

// processSync 在当前进程中同步处理文档
func (p *PipelineService) processSync(ctx context.Context, docID string, filePath string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.statusManager.MarkAsProcessing(ctx, docID); err != nil {
		p.logger.WithError(err).Error("Failed to mark document as processing")
		// 继续处理，不中断
	}

	result, err := p.RunPipeline(ctx, docID, filePath)
	if err != nil {
		p.failDocument(ctx, docID, err.Error())
		return err
	}

	if err := p.statusManager.MarkAsCompleted(ctx, docID, result.SegmentCount, result.VariantCount); err != nil {
		p.logger.WithError(err).Error("Failed to mark document as completed")
		// 处理已成功，状态更新失败不返回错误
	}

	return nil
}

// RunPipeline 执行完整的处理管线并持久化结果
// 由同步路径和任务队列工作者共用
func (p *PipelineService) RunPipeline(ctx context.Context, docID string, filePath string) (*taskqueue.DocumentProcessResult, error) {
	if err := p.Init(); err != nil {
		return nil, err
	}

	// 阶段1：解析文档为带位置的片段
	p.markStage(ctx, docID, models.StageParsing, 5)
	segments, err := p.parseDocument(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	p.logger.WithFields(logrus.Fields{
		"doc_id":        docID,
		"segment_count": len(segments),
	}).Info("Document parsed")

	// 阶段2：聚合为语义块
	p.markStage(ctx, docID, models.StageSegmenting, 15)
	blocks := p.segmenter.Group(segments)
	p.logger.WithFields(logrus.Fields{
		"doc_id":      docID,
		"block_count": len(blocks),
	}).Info("Segments grouped into blocks")

	// 阶段3：LLM逐块分类
	p.markStage(ctx, docID, models.StageClassifying, 25)
	blockClasses, err := p.classifier.ClassifyBlocks(ctx, blocks)
	if err != nil {
		return nil, fmt.Errorf("failed to classify blocks: %w", err)
	}

	// 块级分类投影回片段级
	segClasses, err := classifier.ProjectToSegments(blocks, blockClasses)
	if err != nil {
		return nil, fmt.Errorf("failed to project classifications: %w", err)
	}
	flatSegments := classifier.FlattenBlocks(blocks)

	// 阶段4：按方案聚合片段
	p.markStage(ctx, docID, models.StageAggregating, 60)
	_, groups, err := p.aggregator.Aggregate(flatSegments, segClasses)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate variants: %w", err)
	}
	p.logger.WithFields(logrus.Fields{
		"doc_id":      docID,
		"variant_ids": p.aggregator.VariantIDs(groups),
	}).Info("Variants aggregated")

	// 阶段5：提取服务条目
	p.markStage(ctx, docID, models.StageExtracting, 75)
	itemsByVariant := p.extractor.ExtractFromVariants(groups)

	itemCount := 0
	for _, items := range itemsByVariant {
		itemCount += len(items)
	}

	// 阶段6：编码映射（未配置词典时跳过）
	var variantResults map[string]models.VariantResult
	if p.mapper != nil {
		p.markStage(ctx, docID, models.StageMapping, 85)
		results := p.mapper.MapVariants(itemsByVariant)
		variantResults = make(map[string]models.VariantResult, len(results))
		for _, r := range results {
			variantResults[r.VariantID] = r
		}
	}

	// 持久化提取结果
	if err := p.saveResults(docID, groups, itemsByVariant, variantResults); err != nil {
		return nil, fmt.Errorf("failed to save extraction results: %w", err)
	}

	return &taskqueue.DocumentProcessResult{
		DocumentID:   docID,
		SegmentCount: len(segments),
		BlockCount:   len(blocks),
		VariantCount: len(groups),
		ItemCount:    itemCount,
	}, nil
}

// parseDocument 从存储中读取文件并解析为片段
func (p *PipelineService) parseDocument(filePath string) ([]*models.PdfSegment, error) {
	fileName := filepath.Base(filePath)
	fileID := fileName[:len(fileName)-len(filepath.Ext(fileName))]

	reader, err := p.storage.Get(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file from storage: %w", err)
	}
	defer reader.Close()

	parser, err := document.ParserFactory(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create parser: %w", err)
	}

	return parser.ParseReader(reader, filePath)
}

// saveResults 将每个方案的提取和映射结果写入数据库
func (p *PipelineService) saveResults(
	docID string,
	groups []*models.VariantGroup,
	itemsByVariant map[string][]*models.VariantServiceItem,
	variantResults map[string]models.VariantResult,
) error {
	// 先清掉旧结果，支持重新处理
	if err := p.repo.DeleteExtractionRecords(docID); err != nil {
		p.logger.WithError(err).Warn("Failed to delete previous extraction records")
	}

	records := make([]*models.ExtractionRecord, 0, len(groups))
	for _, group := range groups {
		itemsJSON, err := json.Marshal(itemsByVariant[group.VariantID])
		if err != nil {
			return fmt.Errorf("failed to marshal items for variant %s: %w", group.VariantID, err)
		}

		record := &models.ExtractionRecord{
			DocumentID: docID,
			VariantID:  group.VariantID,
			Items:      datatypes.JSON(itemsJSON),
			CreatedAt:  time.Now(),
		}
		if group.HeaderSegment != nil {
			record.Header = group.HeaderSegment.Text
		}

		if variantResults != nil {
			if result, ok := variantResults[group.VariantID]; ok {
				resultJSON, err := json.Marshal(result)
				if err != nil {
					return fmt.Errorf("failed to marshal result for variant %s: %w", group.VariantID, err)
				}
				record.Result = datatypes.JSON(resultJSON)
			}
		}

		records = append(records, record)
	}

	return p.repo.SaveExtractionRecords(records)
}

// GetResults 汇总文档的全部方案结果
func (p *PipelineService) GetResults(ctx context.Context, docID string) (*models.DocumentResult, error) {
	if err := p.Init(); err != nil {
		return nil, err
	}

	doc, err := p.statusManager.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	records, err := p.repo.GetExtractionRecords(docID)
	if err != nil {
		return nil, fmt.Errorf("failed to get extraction records: %w", err)
	}

	result := &models.DocumentResult{
		DocID:    docID,
		Variants: make([]models.VariantResult, 0, len(records)),
		Metadata: map[string]interface{}{
			"file_name":    doc.FileName,
			"status":       doc.Status,
			"processed_at": doc.ProcessedAt,
		},
	}
	if p.dictVersion != "" {
		result.Metadata["dictionary_version"] = p.dictVersion
	}

	for _, record := range records {
		var vr models.VariantResult
		if len(record.Result) > 0 {
			if err := json.Unmarshal(record.Result, &vr); err != nil {
				return nil, fmt.Errorf("failed to unmarshal result for variant %s: %w", record.VariantID, err)
			}
		} else {
			// 未经过映射阶段的文档只有提取结果
			vr = models.VariantResult{VariantID: record.VariantID}
		}
		result.Variants = append(result.Variants, vr)
	}

	return result, nil
}

// GetExtractedItems 获取文档每个方案的服务条目
func (p *PipelineService) GetExtractedItems(ctx context.Context, docID string) (map[string][]*models.VariantServiceItem, error) {
	if err := p.Init(); err != nil {
		return nil, err
	}

	records, err := p.repo.GetExtractionRecords(docID)
	if err != nil {
		return nil, fmt.Errorf("failed to get extraction records: %w", err)
	}

	itemsByVariant := make(map[string][]*models.VariantServiceItem, len(records))
	for _, record := range records {
		var items []*models.VariantServiceItem
		if len(record.Items) > 0 {
			if err := json.Unmarshal(record.Items, &items); err != nil {
				return nil, fmt.Errorf("failed to unmarshal items for variant %s: %w", record.VariantID, err)
			}
		}
		itemsByVariant[record.VariantID] = items
	}

	return itemsByVariant, nil
}

// RemapDocument 使用新的词典重新运行映射阶段
// 提取结果保持不变，只重建每个方案的编码映射
func (p *PipelineService) RemapDocument(ctx context.Context, docID string, dictionaryPath string) error {
	if err := p.Init(); err != nil {
		return err
	}

	loader := dictionary.NewLoader(dictionary.WithLogger(p.logger))
	entries, version, err := loader.Load(dictionaryPath)
	if err != nil {
		return fmt.Errorf("failed to load dictionary: %w", err)
	}

	m := mapper.NewServiceMapper(entries, mapper.WithLogger(p.logger))

	itemsByVariant, err := p.GetExtractedItems(ctx, docID)
	if err != nil {
		return err
	}
	if len(itemsByVariant) == 0 {
		return fmt.Errorf("no extraction records found for document %s", docID)
	}

	results := m.MapVariants(itemsByVariant)

	records, err := p.repo.GetExtractionRecords(docID)
	if err != nil {
		return fmt.Errorf("failed to get extraction records: %w", err)
	}

	resultByVariant := make(map[string]models.VariantResult, len(results))
	for _, r := range results {
		resultByVariant[r.VariantID] = r
	}

	for _, record := range records {
		result, ok := resultByVariant[record.VariantID]
		if !ok {
			continue
		}
		resultJSON, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result for variant %s: %w", record.VariantID, err)
		}
		record.Result = datatypes.JSON(resultJSON)
	}

	if err := p.repo.DeleteExtractionRecords(docID); err != nil {
		return fmt.Errorf("failed to replace extraction records: %w", err)
	}
	if err := p.repo.SaveExtractionRecords(records); err != nil {
		return fmt.Errorf("failed to save remapped records: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"doc_id":             docID,
		"dictionary_version": version,
		"variant_count":      len(results),
	}).Info("Document remapped with new dictionary")

	return nil
}

// DeleteDocument 删除文档及其相关数据
func (p *PipelineService) DeleteDocument(ctx context.Context, docID string) error {
	if err := p.Init(); err != nil {
		return err
	}

	p.logger.WithField("doc_id", docID).Info("Deleting document")

	// 从存储中删除文件，文件可能已被删除
	if err := p.storage.Delete(docID); err != nil {
		p.logger.WithError(err).Warn("Failed to delete file from storage")
	}

	// 删除文档记录和提取结果
	if err := p.statusManager.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("failed to delete document record: %w", err)
	}

	// 删除队列中的相关任务
	if p.taskQueue != nil {
		tasks, err := p.taskQueue.GetTasksByDocument(ctx, docID)
		if err == nil {
			for _, task := range tasks {
				if err := p.taskQueue.DeleteTask(ctx, task.ID); err != nil {
					p.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to delete document task")
				}
			}
		}
	}

	return nil
}

// GetDocument 获取文档元数据
func (p *PipelineService) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	if err := p.Init(); err != nil {
		return nil, err
	}
	return p.statusManager.GetDocument(ctx, docID)
}

// ListDocuments 获取文档列表
func (p *PipelineService) ListDocuments(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	if err := p.Init(); err != nil {
		return nil, 0, err
	}
	return p.statusManager.ListDocuments(ctx, offset, limit, filters)
}

// WaitForDocumentProcessing 等待文档处理完成
func (p *PipelineService) WaitForDocumentProcessing(ctx context.Context, docID string, timeout time.Duration) error {
	if err := p.Init(); err != nil {
		return err
	}

	if !p.asyncEnabled || p.taskQueue == nil {
		status, err := p.statusManager.GetStatus(ctx, docID)
		if err != nil {
			return err
		}
		if status == models.DocStatusFailed {
			return fmt.Errorf("document processing failed")
		}
		if status != models.DocStatusCompleted {
			return fmt.Errorf("document not processed")
		}
		return nil
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tasks, err := p.taskQueue.GetTasksByDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to get document tasks: %w", err)
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no processing tasks found for document %s", docID)
	}

	// 找到最新的处理任务
	var latestTask *taskqueue.Task
	for _, task := range tasks {
		if task.Type != taskqueue.TaskDocumentProcess {
			continue
		}
		if latestTask == nil || task.CreatedAt.After(latestTask.CreatedAt) {
			latestTask = task
		}
	}
	if latestTask == nil {
		return fmt.Errorf("no processing task found for document %s", docID)
	}

	if _, err := p.taskQueue.WaitForTask(ctx, latestTask.ID, timeout); err != nil {
		return fmt.Errorf("failed to wait for document processing: %w", err)
	}

	status, err := p.statusManager.GetStatus(ctx, docID)
	if err != nil {
		return err
	}
	if status == models.DocStatusFailed {
		return fmt.Errorf("document processing failed")
	}
	if status != models.DocStatusCompleted {
		return fmt.Errorf("document processing incomplete")
	}

	return nil
}

// GetStatusManager 返回文档状态管理器实例
func (p *PipelineService) GetStatusManager() *DocumentStatusManager {
	return p.statusManager
}

// GetTaskQueue 返回任务队列实例
func (p *PipelineService) GetTaskQueue() taskqueue.Queue {
	return p.taskQueue
}

// markStage 更新处理阶段和进度，失败时只记录日志
func (p *PipelineService) markStage(ctx context.Context, docID string, stage models.ProcessStage, progress int) {
	if err := p.statusManager.MarkStage(ctx, docID, stage); err != nil {
		p.logger.WithError(err).Warn("Failed to update document stage")
	}
	if err := p.statusManager.UpdateProgress(ctx, docID, progress); err != nil {
		p.logger.WithError(err).Warn("Failed to update document progress")
	}
}

// failDocument 将文档标记为失败状态
func (p *PipelineService) failDocument(ctx context.Context, docID string, errorMsg string) {
	if p.statusManager == nil {
		p.logger.Error("Cannot mark document as failed: status manager not initialized")
		return
	}

	if err := p.statusManager.MarkAsFailed(ctx, docID, errorMsg); err != nil {
		p.logger.WithFields(logrus.Fields{
			"doc_id": docID,
			"error":  err,
		}).Error("Failed to mark document as failed")
	}
}
