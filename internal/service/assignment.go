package service

import (
	"context"
	"fmt"
	"time"

	"ActivitySync/internal/model"
	"ActivitySync/internal/normalize"
	"ActivitySync/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AssignmentService 作业布置与目录维护
type AssignmentService struct {
	assignRepo  repository.AssignmentRepository
	catalogRepo repository.CatalogRepository
	logger      *logrus.Logger
}

func NewAssignmentService(assignRepo repository.AssignmentRepository, catalogRepo repository.CatalogRepository, logger *logrus.Logger) *AssignmentService {
	return &AssignmentService{assignRepo: assignRepo, catalogRepo: catalogRepo, logger: logger}
}

// CreateAssignmentRequest 一次给多个学生布置同一目录条目
type CreateAssignmentRequest struct {
	TeacherEmail  string   `json:"teacher_email" binding:"required"`
	StudentEmails []string `json:"student_emails" binding:"required"`
	CatalogID     uint64   `json:"catalog_id" binding:"required"`
	AssignedDay   string   `json:"assigned_day"` // YYYY-MM-DD，缺省取当天UTC
}

// CreateAssignments (老师, 学生, 目录条目, 布置日) 唯一，重复布置计入 duplicates
func (s *AssignmentService) CreateAssignments(ctx context.Context, req CreateAssignmentRequest) (*model.BatchSummary, error) {
	item, err := s.catalogRepo.GetByID(ctx, req.CatalogID)
	if err != nil {
		return nil, fmt.Errorf("目录条目 %d 不存在: %w", req.CatalogID, err)
	}
	day := req.AssignedDay
	if day == "" {
		day = time.Now().UTC().Format("2006-01-02")
	}
	teacher := normalize.Email(req.TeacherEmail)

	summary := &model.BatchSummary{Total: len(req.StudentEmails)}
	for _, raw := range req.StudentEmails {
		student := normalize.Email(raw)
		if student == "" {
			summary.AddError(0, fmt.Sprintf("空学生邮箱: %q", raw))
			continue
		}
		a := &model.StudentAssignment{
			AssignmentUUID: uuid.NewString(),
			TeacherEmail:   teacher,
			StudentEmail:   student,
			CatalogID:      item.ID,
			AssignedDay:    day,
			Title:          item.Title,
			LessonID:       item.LessonID,
			QuizID:         item.QuizID,
			Status:         string(model.AssignmentAssigned),
		}
		if item.Level != "" {
			level := item.Level
			a.Level = &level
		}
		created, err := s.assignRepo.CreateIfAbsent(ctx, a)
		if err != nil {
			summary.AddError(0, fmt.Sprintf("%s: %v", student, err))
			continue
		}
		if created {
			summary.Imported++
		} else {
			summary.Duplicates++
		}
	}
	return summary, nil
}

// AssignmentListResult 作业分页列表
type AssignmentListResult struct {
	Total       int64                      `json:"total"`
	Page        int                        `json:"page"`
	PageSize    int                        `json:"page_size"`
	Assignments []*model.StudentAssignment `json:"assignments"`
}

func (s *AssignmentService) List(ctx context.Context, filter repository.AssignmentFilter, page, pageSize int) (*AssignmentListResult, error) {
	list, total, err := s.assignRepo.List(ctx, filter, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("查询作业列表失败: %w", err)
	}
	return &AssignmentListResult{Total: total, Page: page, PageSize: pageSize, Assignments: list}, nil
}

func (s *AssignmentService) Archive(ctx context.Context, assignmentUUID string) error {
	if _, err := s.assignRepo.GetByUUID(ctx, assignmentUUID); err != nil {
		return fmt.Errorf("作业 %s 不存在: %w", assignmentUUID, err)
	}
	return s.assignRepo.Archive(ctx, assignmentUUID)
}

// CreateCatalogRequest 管理员录入目录条目
type CreateCatalogRequest struct {
	Title    string `json:"title" binding:"required"`
	Topic    string `json:"topic"`
	Level    string `json:"level"`
	Type     string `json:"type" binding:"required"` // lesson/quiz
	CourseID string `json:"course_id"`
	LessonID string `json:"lesson_id"`
	QuizID   string `json:"quiz_id"`
}

// CreateCatalogItem 标题在入库前做 Part/Item 后缀清洗；
// 原标题是 "... - Item N" 且未显式给 topic 时，topic 取后缀前的文本
func (s *AssignmentService) CreateCatalogItem(ctx context.Context, req CreateCatalogRequest) (*model.AssignmentCatalog, error) {
	if req.Type != "lesson" && req.Type != "quiz" {
		return nil, fmt.Errorf("未知目录类型: %s", req.Type)
	}
	topic := req.Topic
	if topic == "" {
		topic = normalize.TitleTopic(req.Title)
	}
	item := &model.AssignmentCatalog{
		Title: normalize.CleanTitle(req.Title),
		Topic: topic,
		Level: req.Level,
		Type:  req.Type,
	}
	if req.CourseID != "" {
		item.CourseID = &req.CourseID
	}
	if req.LessonID != "" {
		item.LessonID = &req.LessonID
	}
	if req.QuizID != "" {
		item.QuizID = &req.QuizID
	}
	if err := s.catalogRepo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("创建目录条目失败: %w", err)
	}
	return item, nil
}

func (s *AssignmentService) ListCatalog(ctx context.Context, level, contentType string, page, pageSize int) ([]*model.AssignmentCatalog, int64, error) {
	return s.catalogRepo.List(ctx, level, contentType, page, pageSize)
}
