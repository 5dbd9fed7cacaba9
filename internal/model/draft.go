package model

import "time"

// Draft 提取器输出的部分规范记录：除身份字段外任何字段都可缺省，
// 后续由分数归一、去重键、写入阶段补全为 ActivityEvent
type Draft struct {
	EventType    EventType
	StudentEmail string // 已小写去空格
	StudentID    string
	StudentName  string
	CourseID     string
	CourseName   string
	ContentID    string
	ContentTitle string // 已做 Part/Item 后缀清洗
	Topic        string // Item 后缀反推出的主题，可空
	LessonName   string
	OccurredAt   time.Time
	RawEventID   string
	ResultID     string // 来源侧稳定结果ID，有则优先做去重键

	// 分数相关原始字段，交给归一器按优先级处理
	Grade          *float64 // grade 字段：≤1 视为分数比例，否则已是百分比
	CorrectCount   *int
	IncorrectCount *int
	TotalQuestions *int
	PointsEarned   *float64 // score/maxScore 形式（旧版回填）
	PointsPossible *float64
	ScoreText      string // "% Score" 一类的原文列
	HasScoreText   bool

	// 附加信息，进 metadata
	AttemptNumber *int
	LessonID      string
	QuizID        string
	Level         string
}

// LegacyRow REST/旧版回填的行结构，字段已预整形
type LegacyRow struct {
	EventType    string   `json:"eventType"`
	StudentEmail string   `json:"studentEmail"`
	CourseName   string   `json:"courseName"`
	ContentTitle string   `json:"contentTitle"`
	Score        *float64 `json:"score"`
	MaxScore     *float64 `json:"maxScore"`
	OccurredAt   string   `json:"occurredAt"`
}

// IngestResult 单条摄入的结果
type IngestResult struct {
	Created     bool   `json:"created"`
	Duplicate   bool   `json:"duplicate"`
	EventUUID   string `json:"event_uuid,omitempty"`
	DedupeKey   string `json:"dedupe_key"`
	MatchErrors int    `json:"match_errors,omitempty"` // 作业匹配失败条数（事件本身已写入）
}
