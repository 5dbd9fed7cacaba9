package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ActivitySync/internal/config"
	"ActivitySync/internal/interfaces"
	"ActivitySync/internal/model"
	"ActivitySync/internal/normalize"
	"ActivitySync/internal/repository"

	"github.com/sirupsen/logrus"
)

// RepairService 批量修复任务：对已入库规范事件重跑提取/归一，订正历史坏记录。
// 每个修复都是 (已存记录, 原始载荷) → 补丁的逐条应用，重复运行安全（幂等）。
// 任务由运维手工触发，同一分组不并发跑——这是约定约束，不在运行时加锁。
type RepairService struct {
	eventRepo    repository.EventRepository
	rawRepo      repository.RawCaptureRepository
	courseLookup interfaces.CourseLookup
	extractors   map[model.SourceType]interfaces.Extractor
	cfg          *config.Config
	logger       *logrus.Logger
}

func NewRepairService(
	eventRepo repository.EventRepository,
	rawRepo repository.RawCaptureRepository,
	courseLookup interfaces.CourseLookup,
	extractors map[model.SourceType]interfaces.Extractor,
	cfg *config.Config,
	logger *logrus.Logger,
) *RepairService {
	return &RepairService{
		eventRepo:    eventRepo,
		rawRepo:      rawRepo,
		courseLookup: courseLookup,
		extractors:   extractors,
		cfg:          cfg,
		logger:       logger,
	}
}

// RepairScores 从留底原始载荷重算 quiz 事件分数。覆盖判定见
// normalize.ShouldReplaceScore：只补缺失值，或修「已存<50且高置信重算>50」
// 的历史坏数据；每次覆盖带前后值写审计日志。
func (s *RepairService) RepairScores(ctx context.Context) (*model.BatchSummary, error) {
	summary := &model.BatchSummary{}
	sampleLimit := s.cfg.Ingest.ErrorSampleLimit
	batch := s.cfg.Ingest.BatchLimit

	for offset := 0; ; offset += batch {
		events, err := s.eventRepo.ListQuizEvents(ctx, batch, offset)
		if err != nil {
			return summary, fmt.Errorf("拉取修复工作集失败: %w", err)
		}
		if len(events) == 0 {
			break
		}
		for _, ev := range events {
			summary.Total++
			s.repairScoreOne(ctx, ev, summary, sampleLimit)
		}
		if len(events) < batch {
			break
		}
	}

	s.logger.WithFields(logrus.Fields{
		"total":   summary.Total,
		"updated": summary.Updated,
		"skipped": summary.Skipped,
		"errors":  summary.Errors,
	}).Info("分数修复完成")
	return summary, nil
}

func (s *RepairService) repairScoreOne(ctx context.Context, ev *model.ActivityEvent, summary *model.BatchSummary, sampleLimit int) {
	// 原始载荷缺失本身是数据质量缺陷，浮出而不是掩盖
	if len(ev.RawPayload) == 0 {
		s.logger.WithField("event_uuid", ev.EventUUID).Warn("事件缺少原始载荷，无法重算")
		summary.AddError(sampleLimit, fmt.Sprintf("%s: missing raw payload", ev.EventUUID))
		return
	}
	draft, err := s.reExtract(ev)
	if err != nil {
		summary.AddError(sampleLimit, fmt.Sprintf("%s: %v", ev.EventUUID, err))
		return
	}
	recomputed, _ := normalize.ScorePercent(normalize.ScoreInput{
		Grade:          draft.Grade,
		CorrectCount:   draft.CorrectCount,
		IncorrectCount: draft.IncorrectCount,
		TotalQuestions: draft.TotalQuestions,
		PointsEarned:   draft.PointsEarned,
		PointsPossible: draft.PointsPossible,
		ScoreText:      draft.ScoreText,
		HasScoreText:   draft.HasScoreText,
	})
	if recomputed == nil {
		// 重算也得不出有效分数，保持现状待人工复核
		summary.Skipped++
		return
	}
	if ev.ScorePercent != nil && *ev.ScorePercent == *recomputed {
		summary.Skipped++
		return
	}
	if !normalize.ShouldReplaceScore(ev.ScorePercent, *recomputed) {
		summary.Skipped++
		return
	}

	// 审计：覆盖必须留前后值
	s.logger.WithFields(logrus.Fields{
		"event_uuid": ev.EventUUID,
		"before":     floatOrNil(ev.ScorePercent),
		"after":      *recomputed,
	}).Info("分数覆盖")
	if err := s.eventRepo.UpdateColumns(ctx, ev.ID, map[string]interface{}{
		"score_percent": *recomputed,
	}); err != nil {
		summary.AddError(sampleLimit, fmt.Sprintf("%s: %v", ev.EventUUID, err))
		return
	}
	summary.Updated++
}

// RepairCourses 课程名为空的事件按 metadata.lessonId 反查LMS补齐。
// 反查失败的记录保持未修复，计入 still unknown（Skipped），不丢弃。
func (s *RepairService) RepairCourses(ctx context.Context) (*model.BatchSummary, error) {
	summary := &model.BatchSummary{}
	sampleLimit := s.cfg.Ingest.ErrorSampleLimit
	batch := s.cfg.Ingest.BatchLimit

	// 补成功的记录会离开工作集，偏移量只跨过仍留在集合里的
	offset := 0
	for {
		events, err := s.eventRepo.ListMissingCourse(ctx, batch, offset)
		if err != nil {
			return summary, fmt.Errorf("拉取缺课程名事件失败: %w", err)
		}
		if len(events) == 0 {
			break
		}
		for _, ev := range events {
			summary.Total++
			if !s.repairCourseOne(ctx, ev, summary, sampleLimit) {
				offset++
			}
		}
		if len(events) < batch {
			break
		}
	}

	s.logger.WithFields(logrus.Fields{
		"total":         summary.Total,
		"updated":       summary.Updated,
		"still_unknown": summary.Skipped,
	}).Info("课程名修复完成")
	return summary, nil
}

// repairCourseOne 返回课程名是否已补上（记录是否离开了缺课程名工作集）
func (s *RepairService) repairCourseOne(ctx context.Context, ev *model.ActivityEvent, summary *model.BatchSummary, sampleLimit int) bool {
	lessonID := ev.MetaString(model.MetaLessonID)
	if lessonID == "" && ev.EventType == string(model.EventLessonCompleted) && ev.ContentID != nil {
		lessonID = *ev.ContentID
	}
	if lessonID == "" {
		summary.Skipped++
		return false
	}
	courseID, courseName, err := s.courseLookup.CourseForLesson(ctx, lessonID)
	if err != nil {
		s.logger.WithError(err).WithField("event_uuid", ev.EventUUID).Warn("课程反查失败，保持未修复")
		summary.Skipped++
		return false
	}
	if courseName == "" {
		summary.Skipped++
		return false
	}
	fields := map[string]interface{}{"course_name": courseName}
	if courseID != "" {
		fields["course_id"] = courseID
	}
	if err := s.eventRepo.UpdateColumns(ctx, ev.ID, fields); err != nil {
		summary.AddError(sampleLimit, fmt.Sprintf("%s: %v", ev.EventUUID, err))
		return false
	}
	summary.Updated++
	return true
}

// ArchiveEvents 软删：metadata 打 archived 标记 + 时间戳 + 原因。
// 已归档的跳过，不重复盖时间戳，重复运行不漂移。
func (s *RepairService) ArchiveEvents(ctx context.Context, eventUUIDs []string, reason string) (*model.BatchSummary, error) {
	summary := &model.BatchSummary{Total: len(eventUUIDs)}
	sampleLimit := s.cfg.Ingest.ErrorSampleLimit

	for _, id := range eventUUIDs {
		ev, err := s.eventRepo.GetByUUID(ctx, id)
		if err != nil {
			summary.AddError(sampleLimit, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		if ev.IsArchived() {
			summary.Skipped++
			continue
		}
		metadata := cloneMetadata(ev.Metadata)
		metadata[model.MetaArchived] = true
		metadata[model.MetaArchivedAt] = time.Now().UTC().Format(time.RFC3339)
		if reason != "" {
			metadata[model.MetaArchiveReason] = reason
		}
		if err := s.eventRepo.UpdateColumns(ctx, ev.ID, map[string]interface{}{
			"metadata": metadata,
		}); err != nil {
			summary.AddError(sampleLimit, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		summary.Updated++
	}
	return summary, nil
}

// PurgeResult 归档清理结果：未确认时只返回预览，不动数据
type PurgeResult struct {
	Confirmed bool     `json:"confirmed"`
	Count     int      `json:"count"`
	Deleted   int64    `json:"deleted,omitempty"`
	Preview   []string `json:"preview,omitempty"` // 将被删除的事件UUID
}

// PurgeArchived 物理删除已归档事件，唯一的删除路径：必须显式 confirm，
// 删除前每条先落备份快照（raw_captures，source=purge_snapshot）。
func (s *RepairService) PurgeArchived(ctx context.Context, confirm bool) (*PurgeResult, error) {
	events, err := s.eventRepo.ListArchived(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("拉取已归档事件失败: %w", err)
	}
	result := &PurgeResult{Confirmed: confirm, Count: len(events)}
	if !confirm {
		for _, ev := range events {
			result.Preview = append(result.Preview, ev.EventUUID)
		}
		return result, nil
	}

	ids := make([]uint64, 0, len(events))
	for _, ev := range events {
		snapshot, err := json.Marshal(ev)
		if err != nil {
			return result, fmt.Errorf("序列化备份快照失败: %w", err)
		}
		if err := s.rawRepo.Create(ctx, &model.RawCapture{
			Source:     "purge_snapshot",
			Payload:    snapshot,
			ReceivedAt: time.Now().UTC(),
		}); err != nil {
			return result, fmt.Errorf("写入备份快照失败: %w", err)
		}
		ids = append(ids, ev.ID)
	}
	deleted, err := s.eventRepo.DeleteByIDs(ctx, ids)
	if err != nil {
		return result, fmt.Errorf("删除已归档事件失败: %w", err)
	}
	result.Deleted = deleted
	s.logger.WithField("deleted", deleted).Info("归档事件物理删除完成")
	return result, nil
}

func (s *RepairService) reExtract(ev *model.ActivityEvent) (*model.Draft, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(ev.RawPayload, &payload); err != nil {
		return nil, fmt.Errorf("原始载荷解析失败: %w", err)
	}
	source := model.SourceType(ev.Source)
	ext, ok := s.extractors[source]
	if !ok {
		// manual_test 等无专属方言的来源按预整形处理
		ext = s.extractors[model.SourceRESTBackfill]
	}
	if ext == nil {
		return nil, fmt.Errorf("来源 %s 无可用提取器", ev.Source)
	}
	return ext.Extract(payload)
}

func floatOrNil(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
