package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ActivitySync/internal/config"
	"ActivitySync/internal/dedupe"
	"ActivitySync/internal/interfaces"
	"ActivitySync/internal/model"
	"ActivitySync/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BackfillService 回放回填：对留底的原始载荷重跑提取/归一，从不回源拉取。
// 同一捕获集重复回放收敛到相同终态（去重键找到已有记录则就地补齐）。
// 回放同时是补匹配通道：摄入时作业匹配失败的事件在这里重试置完成。
type BackfillService struct {
	eventRepo  repository.EventRepository
	rawRepo    repository.RawCaptureRepository
	attempts   *AttemptService
	matcher    *MatcherService
	extractors map[model.SourceType]interfaces.Extractor
	cfg        *config.Config
	logger     *logrus.Logger
}

func NewBackfillService(
	eventRepo repository.EventRepository,
	rawRepo repository.RawCaptureRepository,
	attempts *AttemptService,
	matcher *MatcherService,
	extractors map[model.SourceType]interfaces.Extractor,
	cfg *config.Config,
	logger *logrus.Logger,
) *BackfillService {
	return &BackfillService{
		eventRepo:  eventRepo,
		rawRepo:    rawRepo,
		attempts:   attempts,
		matcher:    matcher,
		extractors: extractors,
		cfg:        cfg,
		logger:     logger,
	}
}

// ReplayCaptures 按来源回放捕获记录。逐条独立：中途失败只损失该批剩余部分，
// 恢复手段就是安全地再跑一遍。
func (s *BackfillService) ReplayCaptures(ctx context.Context, source model.SourceType) (*model.BatchSummary, error) {
	summary := &model.BatchSummary{}
	sampleLimit := s.cfg.Ingest.ErrorSampleLimit
	batch := s.cfg.Ingest.BatchLimit

	for offset := 0; ; offset += batch {
		captures, err := s.rawRepo.ListBySource(ctx, source, batch, offset)
		if err != nil {
			return summary, fmt.Errorf("拉取捕获记录失败: %w", err)
		}
		if len(captures) == 0 {
			break
		}
		for _, rec := range captures {
			summary.Total++
			s.replayOne(ctx, rec, summary, sampleLimit)
		}
		if len(captures) < batch {
			break
		}
	}

	s.logger.WithFields(logrus.Fields{
		"source":       source,
		"total":        summary.Total,
		"imported":     summary.Imported,
		"updated":      summary.Updated,
		"skipped":      summary.Skipped,
		"errors":       summary.Errors,
		"match_errors": summary.MatchErrors,
	}).Info("捕获回放完成")
	return summary, nil
}

func (s *BackfillService) replayOne(ctx context.Context, rec *model.RawCapture, summary *model.BatchSummary, sampleLimit int) {
	var payload map[string]interface{}
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		summary.AddError(sampleLimit, fmt.Sprintf("capture %d: %v", rec.ID, err))
		return
	}
	source := model.SourceType(rec.Source)
	ext, ok := s.extractors[source]
	if !ok {
		summary.Skipped++
		return
	}
	draft, err := ext.Extract(payload)
	if err != nil {
		summary.AddError(sampleLimit, fmt.Sprintf("capture %d: %v", rec.ID, err))
		return
	}

	key := dedupe.BuildKey(draft)
	existing, err := s.eventRepo.GetByDedupeKey(ctx, key)
	switch {
	case err == nil:
		// 已有记录：回放即修复，就地补齐缺的字段
		patched, patchErr := s.patchExisting(ctx, existing, draft)
		if patchErr != nil {
			summary.AddError(sampleLimit, fmt.Sprintf("capture %d: %v", rec.ID, patchErr))
			return
		}
		if patched {
			summary.Updated++
		} else {
			summary.Skipped++
		}
		// 摄入路径的重复分支不做匹配，漏掉的完成在这里补上
		if _, matchErr := s.matcher.MatchEvent(ctx, existing); matchErr != nil {
			s.logger.WithError(matchErr).WithField("event_uuid", existing.EventUUID).Warn("作业补匹配失败")
			summary.MatchErrors++
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// 无记录：从留底载荷重建规范事件
		ev, buildErr := BuildEvent(draft, source, rec.Payload)
		if buildErr != nil {
			summary.AddError(sampleLimit, fmt.Sprintf("capture %d: %v", rec.ID, buildErr))
			return
		}
		created, createErr := s.eventRepo.CreateIfAbsent(ctx, ev)
		if createErr != nil {
			summary.AddError(sampleLimit, fmt.Sprintf("capture %d: %v", rec.ID, createErr))
			return
		}
		if !created {
			summary.Duplicates++
			return
		}
		summary.Imported++
		summary.MatchErrors += s.postWrite(ctx, ev)
	default:
		summary.AddError(sampleLimit, fmt.Sprintf("capture %d: %v", rec.ID, err))
	}
}

// patchExisting 只补缺：已有非空字段不被回放覆盖（修复决策归 RepairService）
func (s *BackfillService) patchExisting(ctx context.Context, ev *model.ActivityEvent, draft *model.Draft) (bool, error) {
	fields := map[string]interface{}{}
	if ev.CourseName == "" && draft.CourseName != "" {
		fields["course_name"] = draft.CourseName
	}
	if ev.CourseID == nil && draft.CourseID != "" {
		fields["course_id"] = draft.CourseID
	}
	if ev.StudentName == nil && draft.StudentName != "" {
		fields["student_name"] = draft.StudentName
	}
	if ev.LessonName == nil && draft.LessonName != "" {
		fields["lesson_name"] = draft.LessonName
	}
	if len(ev.RawPayload) == 0 {
		// 历史记录缺原始载荷：回放顺带补上留底
		if raw, err := json.Marshal(draftPayloadNote(draft)); err == nil {
			fields["raw_payload"] = raw
		}
	}

	// metadata 只补缺失键
	metadata := cloneMetadata(ev.Metadata)
	metaChanged := false
	for key, val := range draftMetadata(draft) {
		if _, exists := metadata[key]; !exists {
			metadata[key] = val
			metaChanged = true
		}
	}
	if metaChanged {
		fields["metadata"] = metadata
	}

	if len(fields) == 0 {
		return false, nil
	}
	if err := s.eventRepo.UpdateColumns(ctx, ev.ID, fields); err != nil {
		return false, err
	}
	return true, nil
}

func draftMetadata(draft *model.Draft) map[string]interface{} {
	out := map[string]interface{}{}
	if draft.ResultID != "" {
		out[model.MetaResultID] = draft.ResultID
	}
	if draft.LessonID != "" {
		out[model.MetaLessonID] = draft.LessonID
	}
	if draft.QuizID != "" {
		out[model.MetaQuizID] = draft.QuizID
	}
	if draft.Level != "" {
		out[model.MetaLevel] = draft.Level
	}
	if draft.Topic != "" {
		out[model.MetaTopic] = draft.Topic
	}
	return out
}

// postWrite 重建写入后的派生步骤，与摄入流水线一致；返回匹配失败条数
func (s *BackfillService) postWrite(ctx context.Context, ev *model.ActivityEvent) int {
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
	if _, err := s.matcher.MatchEvent(ctx, ev); err != nil {
		s.logger.WithError(err).WithField("event_uuid", ev.EventUUID).Warn("作业匹配失败（不影响回放）")
		return 1
	}
	return 0
}

// draftPayloadNote 补留底时的最小载荷重建（原始文本已不可得）
func draftPayloadNote(draft *model.Draft) map[string]interface{} {
	return map[string]interface{}{
		"eventType":    string(draft.EventType),
		"studentEmail": draft.StudentEmail,
		"courseName":   draft.CourseName,
		"contentTitle": draft.ContentTitle,
		"occurredAt":   draft.OccurredAt,
	}
}
