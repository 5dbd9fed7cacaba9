package service

import (
	"context"
	"fmt"
	"time"

	"ActivitySync/internal/interfaces"
	"ActivitySync/internal/model"
	"ActivitySync/internal/repository"

	"github.com/sirupsen/logrus"
)

// QueryService 面向看板的事件查询：列表、详情、学生分数历史
type QueryService struct {
	eventRepo repository.EventRepository
	roster    interfaces.RosterLookup
	logger    *logrus.Logger
}

func NewQueryService(eventRepo repository.EventRepository, roster interfaces.RosterLookup, logger *logrus.Logger) *QueryService {
	return &QueryService{eventRepo: eventRepo, roster: roster, logger: logger}
}

// EventListResult 分页列表响应
type EventListResult struct {
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Events   []*EventListItem `json:"events"`
}

// EventListItem 列表条目，metadata 原样带出供看板使用
type EventListItem struct {
	EventUUID    string                 `json:"event_uuid"`
	EventType    string                 `json:"event_type"`
	StudentEmail string                 `json:"student_email"`
	StudentName  *string                `json:"student_name,omitempty"`
	CourseName   string                 `json:"course_name,omitempty"`
	ContentTitle string                 `json:"content_title,omitempty"`
	OccurredAt   time.Time              `json:"occurred_at"`
	Source       string                 `json:"source"`
	ScorePercent *float64               `json:"score_percent,omitempty"`
	Archived     bool                   `json:"archived,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ListEvents teacherEmail 非空时先做名单反查，只看本班学生
func (s *QueryService) ListEvents(ctx context.Context, filter repository.EventFilter, teacherEmail string, page, pageSize int) (*EventListResult, error) {
	if teacherEmail != "" {
		emails, err := s.roster.Roster(ctx, teacherEmail)
		if err != nil {
			return nil, fmt.Errorf("老师名单反查失败: %w", err)
		}
		if len(emails) == 0 {
			return &EventListResult{Page: page, PageSize: pageSize, Events: []*EventListItem{}}, nil
		}
		filter.StudentEmails = emails
	}
	events, total, err := s.eventRepo.ListEvents(ctx, filter, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("查询事件列表失败: %w", err)
	}
	items := make([]*EventListItem, 0, len(events))
	for _, ev := range events {
		items = append(items, toListItem(ev))
	}
	return &EventListResult{Total: total, Page: page, PageSize: pageSize, Events: items}, nil
}

// GetEvent 按对外UUID取单条
func (s *QueryService) GetEvent(ctx context.Context, eventUUID string) (*model.ActivityEvent, error) {
	return s.eventRepo.GetByUUID(ctx, eventUUID)
}

// ScoreHistoryEntry 学生分数历史条目
type ScoreHistoryEntry struct {
	EventUUID     string    `json:"event_uuid"`
	ContentTitle  string    `json:"content_title"`
	CourseName    string    `json:"course_name,omitempty"`
	ScorePercent  *float64  `json:"score_percent"`
	AttemptNumber int       `json:"attempt_number,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ScoreHistory 单个学生的 quiz 历史，时间升序。归档记录显式排除——
// 软删标记在 metadata 里，聚合读路径必须自己过滤，不依赖存储层默认行为。
func (s *QueryService) ScoreHistory(ctx context.Context, studentEmail string) ([]*ScoreHistoryEntry, error) {
	events, err := s.eventRepo.ListByStudent(ctx, studentEmail)
	if err != nil {
		return nil, fmt.Errorf("查询分数历史失败: %w", err)
	}
	entries := make([]*ScoreHistoryEntry, 0, len(events))
	for _, ev := range events {
		if ev.IsArchived() {
			continue
		}
		entries = append(entries, &ScoreHistoryEntry{
			EventUUID:     ev.EventUUID,
			ContentTitle:  ev.ContentTitle,
			CourseName:    ev.CourseName,
			ScorePercent:  ev.ScorePercent,
			AttemptNumber: metaInt(ev.Metadata, model.MetaAttemptNumber),
			OccurredAt:    ev.OccurredAt,
		})
	}
	return entries, nil
}

func toListItem(ev *model.ActivityEvent) *EventListItem {
	return &EventListItem{
		EventUUID:    ev.EventUUID,
		EventType:    ev.EventType,
		StudentEmail: ev.StudentEmail,
		StudentName:  ev.StudentName,
		CourseName:   ev.CourseName,
		ContentTitle: ev.ContentTitle,
		OccurredAt:   ev.OccurredAt,
		Source:       ev.Source,
		ScorePercent: ev.ScorePercent,
		Archived:     ev.IsArchived(),
		Metadata:     ev.Metadata,
	}
}
