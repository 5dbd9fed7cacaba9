package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ActivitySync/internal/config"
	"ActivitySync/internal/dedupe"
	"ActivitySync/internal/extractor"
	"ActivitySync/internal/interfaces"
	"ActivitySync/internal/model"
	"ActivitySync/internal/normalize"
	"ActivitySync/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// IngestService 摄入主流水线：捕获 → 提取 → 分数归一 → 去重键 → 条件写入 →
// 尝试次数重算 → 作业匹配。逐条处理，单条失败不影响批内其他记录。
type IngestService struct {
	eventRepo  repository.EventRepository
	rawRepo    repository.RawCaptureRepository
	attempts   *AttemptService
	matcher    *MatcherService
	cfg        *config.Config
	logger     *logrus.Logger
	extractors map[model.SourceType]interfaces.Extractor
}

func NewIngestService(
	eventRepo repository.EventRepository,
	rawRepo repository.RawCaptureRepository,
	attempts *AttemptService,
	matcher *MatcherService,
	cfg *config.Config,
	logger *logrus.Logger,
) *IngestService {
	return &IngestService{
		eventRepo: eventRepo,
		rawRepo:   rawRepo,
		attempts:  attempts,
		matcher:   matcher,
		cfg:       cfg,
		logger:    logger,
		extractors: map[model.SourceType]interfaces.Extractor{
			model.SourceWebhook:      extractor.NewWebhookExtractor(logger),
			model.SourceCSVImport:    extractor.NewCSVRowExtractor(logger),
			model.SourceRESTBackfill: extractor.NewLegacyExtractor(logger),
		},
	}
}

// Extractors 暴露方言提取器注册表，修复/回填任务复用同一套提取逻辑
func (s *IngestService) Extractors() map[model.SourceType]interfaces.Extractor {
	return s.extractors
}

// IngestWebhook 单条 webhook 投递。先原样捕获再解释：解析不了的载荷也留底。
func (s *IngestService) IngestWebhook(ctx context.Context, body []byte) (*model.IngestResult, error) {
	if err := s.capture(ctx, model.SourceWebhook, body); err != nil {
		return nil, fmt.Errorf("原始载荷捕获失败: %w", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("webhook载荷不是合法JSON: %w", err)
	}
	return s.ingestOne(ctx, model.SourceWebhook, payload, body)
}

// IngestCSV 批量导入CSV文本，返回结构化摘要（部分成功可见）
func (s *IngestService) IngestCSV(ctx context.Context, data string) (*model.BatchSummary, error) {
	rows, err := extractor.ParseCSV(data)
	if err != nil {
		return nil, err
	}
	return s.ingestBatch(ctx, model.SourceCSVImport, rows)
}

// IngestLegacy REST/旧版回填：预整形的行数组
func (s *IngestService) IngestLegacy(ctx context.Context, rows []model.LegacyRow) (*model.BatchSummary, error) {
	payloads := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		raw, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("序列化回填行失败: %w", err)
		}
		var m map[string]interface{}
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("回填行转换失败: %w", err)
		}
		payloads = append(payloads, m)
	}
	return s.ingestBatch(ctx, model.SourceRESTBackfill, payloads)
}

func (s *IngestService) ingestBatch(ctx context.Context, source model.SourceType, payloads []map[string]interface{}) (*model.BatchSummary, error) {
	summary := &model.BatchSummary{Total: len(payloads)}
	sampleLimit := s.cfg.Ingest.ErrorSampleLimit

	for i, payload := range payloads {
		raw, err := json.Marshal(payload)
		if err != nil {
			summary.AddError(sampleLimit, fmt.Sprintf("row %d: marshal: %v", i+1, err))
			continue
		}
		if err := s.capture(ctx, source, raw); err != nil {
			// 捕获失败说明存储不可用，整批终止
			return summary, fmt.Errorf("原始载荷捕获失败: %w", err)
		}
		result, err := s.ingestOne(ctx, source, payload, raw)
		if err != nil {
			var extErr *model.ExtractionError
			if errors.As(err, &extErr) {
				summary.AddError(sampleLimit, fmt.Sprintf("row %d: %v", i+1, extErr))
				continue
			}
			// 非提取类失败视为存储级故障，终止整批
			return summary, err
		}
		if result.Duplicate {
			summary.Duplicates++
		} else {
			summary.Imported++
		}
		summary.MatchErrors += result.MatchErrors
	}

	s.logger.WithFields(logrus.Fields{
		"source":     source,
		"total":      summary.Total,
		"imported":   summary.Imported,
		"duplicates": summary.Duplicates,
		"errors":     summary.Errors,
	}).Info("批量摄入完成")
	return summary, nil
}

// ingestOne 单条载荷走完整流水线。提取失败返回 *model.ExtractionError（记录级），
// 写库失败原样上抛（操作级）。
func (s *IngestService) ingestOne(ctx context.Context, source model.SourceType, payload map[string]interface{}, raw []byte) (*model.IngestResult, error) {
	ext, ok := s.extractors[source]
	if !ok {
		return nil, fmt.Errorf("未支持的摄入来源: %s", source)
	}

	draft, err := ext.Extract(payload)
	if err != nil {
		return nil, err
	}

	ev, err := BuildEvent(draft, source, raw)
	if err != nil {
		return nil, err
	}

	created, err := s.eventRepo.CreateIfAbsent(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("规范事件写入失败: %w", err)
	}
	if !created {
		return &model.IngestResult{Duplicate: true, DedupeKey: ev.DedupeKey}, nil
	}

	// 下游派生：失败只记日志+计数，规范事件本身是事实源，回放可补匹配
	matchErrs := s.postWrite(ctx, ev)

	return &model.IngestResult{Created: true, EventUUID: ev.EventUUID, DedupeKey: ev.DedupeKey, MatchErrors: matchErrs}, nil
}

// postWrite 写入成功后的派生步骤：quiz 分组尝试次数重算 + 作业完成匹配。
// 返回匹配失败条数，进摘要，后续由捕获回放重试匹配
func (s *IngestService) postWrite(ctx context.Context, ev *model.ActivityEvent) int {
	if ev.EventType == string(model.EventQuizAttempted) {
		key := repository.GroupKey{
			StudentEmail: ev.StudentEmail,
			ContentTitle: ev.ContentTitle,
			CourseName:   ev.CourseName,
		}
		if _, err := s.attempts.RecomputeGroup(ctx, key); err != nil {
			s.logger.WithError(err).WithField("event_uuid", ev.EventUUID).Warn("尝试次数重算失败")
		}
	}
	if completed, err := s.matcher.MatchEvent(ctx, ev); err != nil {
		matchErr := &model.DownstreamMatchError{EventUUID: ev.EventUUID, Err: err}
		s.logger.WithError(matchErr).Warn("作业匹配失败（不回滚事件写入）")
		return 1
	} else if completed > 0 {
		s.logger.WithFields(logrus.Fields{
			"event_uuid": ev.EventUUID,
			"completed":  completed,
		}).Info("作业完成匹配")
	}
	return 0
}

func (s *IngestService) capture(ctx context.Context, source model.SourceType, raw []byte) error {
	payload := raw
	if !json.Valid(payload) {
		// 非JSON文本包一层JSON字符串，jsonb 列才收得下
		wrapped, err := json.Marshal(string(raw))
		if err != nil {
			return err
		}
		payload = wrapped
	}
	return s.rawRepo.Create(ctx, &model.RawCapture{
		Source:     string(source),
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	})
}

// BuildEvent 草稿 → 规范事件。分数歧义是软错误：记录照常构建（分数为空）并打标。
func BuildEvent(draft *model.Draft, source model.SourceType, raw []byte) (*model.ActivityEvent, error) {
	score, scoreErr := normalize.ScorePercent(normalize.ScoreInput{
		Grade:          draft.Grade,
		CorrectCount:   draft.CorrectCount,
		IncorrectCount: draft.IncorrectCount,
		TotalQuestions: draft.TotalQuestions,
		PointsEarned:   draft.PointsEarned,
		PointsPossible: draft.PointsPossible,
		ScoreText:      draft.ScoreText,
		HasScoreText:   draft.HasScoreText,
	})

	metadata := map[string]interface{}{}
	if draft.AttemptNumber != nil {
		metadata[model.MetaAttemptNumber] = *draft.AttemptNumber
	}
	if draft.CorrectCount != nil {
		metadata[model.MetaCorrectCount] = *draft.CorrectCount
	}
	if draft.IncorrectCount != nil {
		metadata[model.MetaIncorrectCount] = *draft.IncorrectCount
	}
	if draft.ResultID != "" {
		metadata[model.MetaResultID] = draft.ResultID
	}
	if draft.LessonID != "" {
		metadata[model.MetaLessonID] = draft.LessonID
	}
	if draft.QuizID != "" {
		metadata[model.MetaQuizID] = draft.QuizID
	}
	if draft.Level != "" {
		metadata[model.MetaLevel] = draft.Level
	}
	if draft.Topic != "" {
		metadata[model.MetaTopic] = draft.Topic
	}
	var ambiguous *model.AmbiguousScoreError
	if errors.As(scoreErr, &ambiguous) {
		metadata[model.MetaScoreFlag] = true
	}

	ev := &model.ActivityEvent{
		EventUUID:    uuid.NewString(),
		EventType:    string(draft.EventType),
		StudentEmail: draft.StudentEmail,
		CourseName:   draft.CourseName,
		ContentTitle: draft.ContentTitle,
		OccurredAt:   draft.OccurredAt,
		Source:       string(source),
		RawPayload:   raw,
		ScorePercent: score,
		Metadata:     metadata,
	}
	if draft.StudentID != "" {
		ev.StudentUserID = &draft.StudentID
	}
	if draft.StudentName != "" {
		ev.StudentName = &draft.StudentName
	}
	if draft.CourseID != "" {
		ev.CourseID = &draft.CourseID
	}
	if draft.ContentID != "" {
		ev.ContentID = &draft.ContentID
	}
	if draft.LessonName != "" {
		ev.LessonName = &draft.LessonName
	}
	if draft.RawEventID != "" {
		ev.RawEventID = &draft.RawEventID
	}
	ev.DedupeKey = dedupe.BuildKey(draft)
	return ev, nil
}
