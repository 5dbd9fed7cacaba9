package model

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// SourceType 事件来源渠道（捕获路径显式传入，永不推断）
type SourceType string

const (
	SourceWebhook      SourceType = "webhook"
	SourceCSVImport    SourceType = "csv_import"
	SourceRESTBackfill SourceType = "rest_backfill"
	SourceManualTest   SourceType = "manual_test"
)

// EventType 规范事件类型枚举（下划线形式为准）
type EventType string

const (
	EventQuizAttempted   EventType = "quiz_attempted"
	EventLessonCompleted EventType = "lesson_completed"
	EventUserSignin      EventType = "user_signin"
)

// 旧版点号形式别名（quiz.attempted 等），入库前统一归一为下划线形式
var legacyEventTypeAliases = map[string]EventType{
	"quiz.attempted":   EventQuizAttempted,
	"lesson.completed": EventLessonCompleted,
	"user.signin":      EventUserSignin,
}

// NormalizeEventType 归一事件类型：点号别名转下划线形式，未知类型原样返回
func NormalizeEventType(raw string) EventType {
	s := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := legacyEventTypeAliases[s]; ok {
		return alias
	}
	return EventType(s)
}

// IsKnownEventType 是否为闭集内的规范事件类型
func IsKnownEventType(t EventType) bool {
	switch t {
	case EventQuizAttempted, EventLessonCompleted, EventUserSignin:
		return true
	}
	return false
}

// metadata 映射的约定键
const (
	MetaAttemptNumber  = "attemptNumber"
	MetaCorrectCount   = "correctCount"
	MetaIncorrectCount = "incorrectCount"
	MetaResultID       = "resultId"
	MetaLessonID       = "lessonId"
	MetaQuizID         = "quizId"
	MetaLevel          = "level"
	MetaTopic          = "topic"
	MetaArchived       = "archived"
	MetaArchivedAt     = "archivedAt"
	MetaArchiveReason  = "archiveReason"
	MetaScoreFlag      = "scoreFlagged" // 分数无法归一时标记，等待人工/修复复核
)

// ActivityEvent 规范活动事件主表（所有来源归一后一条）
// dedupe_key 唯一索引保证同一逻辑事件重复摄入幂等
type ActivityEvent struct {
	ID            uint64            `gorm:"column:id;primaryKey;autoIncrement"`
	EventUUID     string            `gorm:"column:event_uuid;type:varchar(64);uniqueIndex;not null;comment:对外全局唯一ID"`
	EventType     string            `gorm:"column:event_type;type:varchar(32);index;not null;comment:规范事件类型"`
	StudentEmail  string            `gorm:"column:student_email;type:varchar(128);index;not null;comment:学生邮箱（小写去空格）"`
	StudentUserID *string           `gorm:"column:student_user_id;type:varchar(64);comment:来源系统学生ID"`
	StudentName   *string           `gorm:"column:student_name;type:varchar(128);comment:学生展示名"`
	CourseID      *string           `gorm:"column:course_id;type:varchar(64);comment:课程ID，可空待补"`
	CourseName    string            `gorm:"column:course_name;type:varchar(128);comment:课程名，可空待 lesson 反查"`
	ContentID     *string           `gorm:"column:content_id;type:varchar(64);comment:内容（quiz/lesson）原生ID"`
	ContentTitle  string            `gorm:"column:content_title;type:varchar(256);comment:内容标题（已清洗）"`
	LessonName    *string           `gorm:"column:lesson_name;type:varchar(256);comment:所属课时名"`
	OccurredAt    time.Time         `gorm:"column:occurred_at;type:timestamp;index;not null;comment:事件业务时间，非摄入时间"`
	Source        string            `gorm:"column:source;type:varchar(16);index;not null;comment:来源渠道"`
	RawEventID    *string           `gorm:"column:raw_event_id;type:varchar(64);comment:来源侧事件ID，CSV可空"`
	RawPayload    datatypes.JSON    `gorm:"column:raw_payload;type:jsonb;comment:原始载荷，供回放修复"`
	DedupeKey     string            `gorm:"column:dedupe_key;type:varchar(64);uniqueIndex;not null;comment:逻辑事件唯一键"`
	ScorePercent  *float64          `gorm:"column:score_percent;type:numeric(6,2);comment:归一后0-100分数，不可恢复为空"`
	Metadata      datatypes.JSONMap `gorm:"column:metadata;type:jsonb;comment:来源附加信息（attemptNumber等）"`
	CreatedAt     time.Time         `gorm:"column:created_at;type:timestamp;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;type:timestamp;default:CURRENT_TIMESTAMP"`
}

func (ActivityEvent) TableName() string { return "activity_events" }

// IsArchived metadata.archived 软删标记；聚合读路径必须显式过滤
func (e *ActivityEvent) IsArchived() bool {
	if e.Metadata == nil {
		return false
	}
	v, ok := e.Metadata[MetaArchived].(bool)
	return ok && v
}

// MetaString 读取 metadata 中的字符串键，缺失返回空串
func (e *ActivityEvent) MetaString(key string) string {
	if e.Metadata == nil {
		return ""
	}
	if s, ok := e.Metadata[key].(string); ok {
		return s
	}
	return ""
}

// RawCapture 原始载荷捕获表：解释之前先落库，修复/回放只读这里，不回源
type RawCapture struct {
	ID         uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	Source     string         `gorm:"column:source;type:varchar(32);index;not null;comment:来源渠道"`
	Payload    datatypes.JSON `gorm:"column:payload;type:jsonb;not null;comment:原始载荷全文"`
	ReceivedAt time.Time      `gorm:"column:received_at;type:timestamp;not null;comment:接收时间"`
	CreatedAt  time.Time      `gorm:"column:created_at;type:timestamp;default:CURRENT_TIMESTAMP"`
}

func (RawCapture) TableName() string { return "raw_captures" }
