package service

import (
	"context"
	"fmt"

	"ActivitySync/internal/model"
	"ActivitySync/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// MatcherService 作业完成匹配：新写入/更新的规范事件找到它满足的待完成作业
// 并置完成。尽力而为的下游副作用，失败不回滚事件写入。
type MatcherService struct {
	assignRepo repository.AssignmentRepository
	logger     *logrus.Logger
}

func NewMatcherService(assignRepo repository.AssignmentRepository, logger *logrus.Logger) *MatcherService {
	return &MatcherService{assignRepo: assignRepo, logger: logger}
}

// MatchEvent 返回完成的作业条数。同一事件命中多个待完成作业是合法情况，全部置完成。
// 匹配键优先级：quiz 事件先 (student, lessonId) 有则用，否则 (student, quizId)；
// lesson 事件只按 (student, lessonId)。标识符先取 metadata，再退 content_id。
func (m *MatcherService) MatchEvent(ctx context.Context, ev *model.ActivityEvent) (int, error) {
	var candidates []*model.StudentAssignment
	var err error

	switch ev.EventType {
	case string(model.EventQuizAttempted):
		if lessonID := ev.MetaString(model.MetaLessonID); lessonID != "" {
			candidates, err = m.assignRepo.ListAssignedByLesson(ctx, ev.StudentEmail, lessonID)
		} else if quizID := m.quizIdent(ev); quizID != "" {
			candidates, err = m.assignRepo.ListAssignedByQuiz(ctx, ev.StudentEmail, quizID)
		}
	case string(model.EventLessonCompleted):
		if lessonID := m.lessonIdent(ev); lessonID != "" {
			candidates, err = m.assignRepo.ListAssignedByLesson(ctx, ev.StudentEmail, lessonID)
		}
	default:
		// 登录类事件不参与作业匹配
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("查询待完成作业失败: %w", err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	// 展示快照进作业 metadata：目录条目日后被改动也不影响历史展示
	snapshot := datatypes.JSONMap{
		"completedTitle": ev.ContentTitle,
	}
	if ev.ScorePercent != nil {
		snapshot["completedScore"] = *ev.ScorePercent
	}

	completed := 0
	for _, a := range candidates {
		if err := m.assignRepo.Complete(ctx, a.ID, ev.OccurredAt, ev.EventUUID, snapshot); err != nil {
			// 单条失败不阻塞其余候选
			m.logger.WithError(err).WithFields(logrus.Fields{
				"assignment_uuid": a.AssignmentUUID,
				"event_uuid":      ev.EventUUID,
			}).Warn("作业置完成失败")
			continue
		}
		completed++
	}
	return completed, nil
}

func (m *MatcherService) quizIdent(ev *model.ActivityEvent) string {
	if id := ev.MetaString(model.MetaQuizID); id != "" {
		return id
	}
	if ev.ContentID != nil {
		return *ev.ContentID
	}
	return ""
}

func (m *MatcherService) lessonIdent(ev *model.ActivityEvent) string {
	if id := ev.MetaString(model.MetaLessonID); id != "" {
		return id
	}
	if ev.ContentID != nil {
		return *ev.ContentID
	}
	return ""
}
