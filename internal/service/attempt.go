package service

import (
	"context"
	"fmt"
	"sort"

	"ActivitySync/internal/model"
	"ActivitySync/internal/repository"

	"github.com/sirupsen/logrus"
)

// AttemptService 按 (学生, 内容标题, 课程名) 分组维护1起始的尝试序号。
// 任何成员被修复/回填后整组从头重算，不做增量，保证乱序摄入后的一致性。
type AttemptService struct {
	eventRepo repository.EventRepository
	logger    *logrus.Logger
}

func NewAttemptService(eventRepo repository.EventRepository, logger *logrus.Logger) *AttemptService {
	return &AttemptService{eventRepo: eventRepo, logger: logger}
}

// RenumberAttempts 纯函数：组内事件 → 尝试序号分配。occurred_at 升序，
// 同时间戳按原始插入序（主键）稳定，不引入无关排序条件。
// 确定性且幂等：同一输入集合跑两次结果一致。
func RenumberAttempts(events []*model.ActivityEvent) map[uint64]int {
	sorted := make([]*model.ActivityEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].OccurredAt.Equal(sorted[j].OccurredAt) {
			return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	numbers := make(map[uint64]int, len(sorted))
	for i, ev := range sorted {
		numbers[ev.ID] = i + 1
	}
	return numbers
}

// RecomputeGroup 重读整组并落盘有变化的序号，返回实际更新条数
func (s *AttemptService) RecomputeGroup(ctx context.Context, key repository.GroupKey) (int, error) {
	events, err := s.eventRepo.ListGroup(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("拉取分组失败: %w", err)
	}
	numbers := RenumberAttempts(events)

	changed := 0
	for _, ev := range events {
		want := numbers[ev.ID]
		if metaInt(ev.Metadata, model.MetaAttemptNumber) == want {
			continue
		}
		metadata := cloneMetadata(ev.Metadata)
		metadata[model.MetaAttemptNumber] = want
		if err := s.eventRepo.UpdateColumns(ctx, ev.ID, map[string]interface{}{
			"metadata": metadata,
		}); err != nil {
			return changed, fmt.Errorf("写回尝试序号失败: %w", err)
		}
		changed++
	}
	return changed, nil
}

// RecomputeAll 全库扫描重算（修复/回填后的兜底任务），逐组独立，单组失败继续
func (s *AttemptService) RecomputeAll(ctx context.Context, limit, sampleLimit int) (*model.BatchSummary, error) {
	keys, err := s.eventRepo.ListQuizGroups(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("拉取分组键失败: %w", err)
	}
	summary := &model.BatchSummary{Total: len(keys)}
	for _, key := range keys {
		changed, err := s.RecomputeGroup(ctx, key)
		if err != nil {
			summary.AddError(sampleLimit, fmt.Sprintf("group %s/%s: %v", key.StudentEmail, key.ContentTitle, err))
			continue
		}
		if changed > 0 {
			summary.Updated++
		} else {
			summary.Skipped++
		}
	}
	s.logger.WithFields(logrus.Fields{
		"groups":  summary.Total,
		"updated": summary.Updated,
		"errors":  summary.Errors,
	}).Info("尝试序号全量重算完成")
	return summary, nil
}

// metaInt metadata 数字经 JSON 往返后是 float64，统一按 int 读取
func metaInt(m map[string]interface{}, key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func cloneMetadata(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
