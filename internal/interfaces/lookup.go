package interfaces

import "context"

// CourseLookup lesson→course 外部反查，课程名修复任务使用。
// 失败以 *model.UpstreamFetchError 返回，记录计入 still unknown。
type CourseLookup interface {
	CourseForLesson(ctx context.Context, lessonID string) (courseID, courseName string, err error)
}

// RosterLookup 老师→学生名单只读查询。本系统不持有 LMS 名单数据，
// 只按需消费，作为注入的协作方接口，不做模块级缓存。
type RosterLookup interface {
	Roster(ctx context.Context, teacherEmail string) ([]string, error)
}
