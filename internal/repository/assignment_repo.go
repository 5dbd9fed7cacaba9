package repository

import (
	"context"
	"time"

	"ActivitySync/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AssignmentFilter 作业列表筛选
type AssignmentFilter struct {
	TeacherEmail string
	StudentEmail string
	Status       string
	AssignedDay  string
}

// AssignmentRepository 学生作业仓储
type AssignmentRepository interface {
	// CreateIfAbsent (teacher, student, catalog, assigned_day) 唯一索引去重创建
	CreateIfAbsent(ctx context.Context, a *model.StudentAssignment) (bool, error)
	GetByUUID(ctx context.Context, assignmentUUID string) (*model.StudentAssignment, error)
	// ListAssignedByLesson 待完成作业按 (student_email, lesson_id) 匹配
	ListAssignedByLesson(ctx context.Context, studentEmail, lessonID string) ([]*model.StudentAssignment, error)
	// ListAssignedByQuiz 待完成作业按 (student_email, quiz_id) 匹配
	ListAssignedByQuiz(ctx context.Context, studentEmail, quizID string) ([]*model.StudentAssignment, error)
	// Complete 置完成：completed_at 取事件业务时间，回写满足事件与展示快照
	Complete(ctx context.Context, id uint64, completedAt time.Time, eventUUID string, snapshot datatypes.JSONMap) error
	List(ctx context.Context, filter AssignmentFilter, page, pageSize int) ([]*model.StudentAssignment, int64, error)
	Archive(ctx context.Context, assignmentUUID string) error
}

type assignmentRepository struct {
	db *gorm.DB
}

func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) CreateIfAbsent(ctx context.Context, a *model.StudentAssignment) (bool, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "teacher_email"}, {Name: "student_email"},
			{Name: "catalog_id"}, {Name: "assigned_day"},
		},
		DoNothing: true,
	}).Create(a)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *assignmentRepository) GetByUUID(ctx context.Context, assignmentUUID string) (*model.StudentAssignment, error) {
	var a model.StudentAssignment
	if err := r.db.WithContext(ctx).Where("assignment_uuid = ?", assignmentUUID).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *assignmentRepository) ListAssignedByLesson(ctx context.Context, studentEmail, lessonID string) ([]*model.StudentAssignment, error) {
	var list []*model.StudentAssignment
	if err := r.db.WithContext(ctx).
		Where("status = ? AND student_email = ? AND lesson_id = ?",
			string(model.AssignmentAssigned), studentEmail, lessonID).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *assignmentRepository) ListAssignedByQuiz(ctx context.Context, studentEmail, quizID string) ([]*model.StudentAssignment, error) {
	var list []*model.StudentAssignment
	if err := r.db.WithContext(ctx).
		Where("status = ? AND student_email = ? AND quiz_id = ?",
			string(model.AssignmentAssigned), studentEmail, quizID).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *assignmentRepository) Complete(ctx context.Context, id uint64, completedAt time.Time, eventUUID string, snapshot datatypes.JSONMap) error {
	return r.db.WithContext(ctx).Model(&model.StudentAssignment{}).
		Where("id = ? AND status = ?", id, string(model.AssignmentAssigned)).
		Updates(map[string]interface{}{
			"status":       string(model.AssignmentCompleted),
			"completed_at": completedAt,
			"completed_by": eventUUID,
			"metadata":     snapshot,
			"updated_at":   time.Now(),
		}).Error
}

func (r *assignmentRepository) List(ctx context.Context, filter AssignmentFilter, page, pageSize int) ([]*model.StudentAssignment, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	db := r.db.WithContext(ctx).Model(&model.StudentAssignment{})
	if filter.TeacherEmail != "" {
		db = db.Where("teacher_email = ?", filter.TeacherEmail)
	}
	if filter.StudentEmail != "" {
		db = db.Where("student_email = ?", filter.StudentEmail)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.AssignedDay != "" {
		db = db.Where("assigned_day = ?", filter.AssignedDay)
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []*model.StudentAssignment
	if err := db.Order("assigned_day DESC, id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *assignmentRepository) Archive(ctx context.Context, assignmentUUID string) error {
	return r.db.WithContext(ctx).Model(&model.StudentAssignment{}).
		Where("assignment_uuid = ?", assignmentUUID).
		Updates(map[string]interface{}{
			"status":     string(model.AssignmentArchived),
			"updated_at": time.Now(),
		}).Error
}
