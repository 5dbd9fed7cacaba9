package model

import (
	"time"

	"gorm.io/datatypes"
)

// AssignmentStatus 作业生命周期：assigned → completed（或 archived）
type AssignmentStatus string

const (
	AssignmentAssigned  AssignmentStatus = "assigned"
	AssignmentCompleted AssignmentStatus = "completed"
	AssignmentArchived  AssignmentStatus = "archived"
)

// StudentAssignment 老师布置给学生的作业
// (teacher_email, student_email, catalog_id, assigned_day) 唯一索引做创建去重；
// 完成匹配走 (student_email, lesson_id|quiz_id)
type StudentAssignment struct {
	ID             uint64            `gorm:"column:id;primaryKey;autoIncrement"`
	AssignmentUUID string            `gorm:"column:assignment_uuid;type:varchar(64);uniqueIndex;not null;comment:对外全局唯一ID"`
	TeacherEmail   string            `gorm:"column:teacher_email;type:varchar(128);index;not null;uniqueIndex:uq_assignment_day;comment:布置老师邮箱"`
	StudentEmail   string            `gorm:"column:student_email;type:varchar(128);index;not null;uniqueIndex:uq_assignment_day;comment:学生邮箱（小写去空格）"`
	CatalogID      uint64            `gorm:"column:catalog_id;type:bigint;not null;uniqueIndex:uq_assignment_day;comment:关联目录条目ID"`
	AssignedDay    string            `gorm:"column:assigned_day;type:varchar(10);not null;uniqueIndex:uq_assignment_day;comment:布置日期 YYYY-MM-DD"`
	Title          string            `gorm:"column:title;type:varchar(256);not null;comment:布置时的标题快照"`
	Level          *string           `gorm:"column:level;type:varchar(32);comment:级别快照"`
	LessonID       *string           `gorm:"column:lesson_id;type:varchar(64);index;comment:匹配用课时ID"`
	QuizID         *string           `gorm:"column:quiz_id;type:varchar(64);index;comment:匹配用测验ID"`
	Status         string            `gorm:"column:status;type:varchar(16);index;default:'assigned';comment:assigned/completed/archived"`
	CompletedAt    *time.Time        `gorm:"column:completed_at;type:timestamp;comment:完成时间=事件业务时间"`
	CompletedBy    *string           `gorm:"column:completed_by;type:varchar(64);comment:满足该作业的事件UUID"`
	Metadata       datatypes.JSONMap `gorm:"column:metadata;type:jsonb;comment:完成快照（标题、分数）等"`
	CreatedAt      time.Time         `gorm:"column:created_at;type:timestamp;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;type:timestamp;default:CURRENT_TIMESTAMP"`
}

func (StudentAssignment) TableName() string { return "student_assignments" }

// AssignmentCatalog 可布置内容静态目录，管理员维护，匹配引擎只读
type AssignmentCatalog struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Title     string    `gorm:"column:title;type:varchar(256);not null;comment:标题（已去 Part/Item 后缀）"`
	Topic     string    `gorm:"column:topic;type:varchar(128);comment:主题，Item 后缀可反推"`
	Level     string    `gorm:"column:level;type:varchar(32);comment:级别"`
	Type      string    `gorm:"column:type;type:varchar(16);not null;comment:lesson/quiz"`
	CourseID  *string   `gorm:"column:course_id;type:varchar(64);comment:课程ID"`
	LessonID  *string   `gorm:"column:lesson_id;type:varchar(64);comment:课时ID"`
	QuizID    *string   `gorm:"column:quiz_id;type:varchar(64);comment:测验ID"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:CURRENT_TIMESTAMP"`
}

func (AssignmentCatalog) TableName() string { return "assignment_catalogs" }
