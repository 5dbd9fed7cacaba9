package extractor

import (
	"strings"

	"ActivitySync/internal/interfaces"
	"ActivitySync/internal/model"
	"ActivitySync/internal/normalize"

	"github.com/sirupsen/logrus"
)

// WebhookExtractor webhook 方言：事件体嵌套在 payload 键下一层，
// quiz 字段分布在 quiz/user/course/chapter 子对象里；无 payload 包装时直接用顶层
type WebhookExtractor struct {
	logger *logrus.Logger
}

func NewWebhookExtractor(logger *logrus.Logger) interfaces.Extractor {
	return &WebhookExtractor{logger: logger}
}

func (e *WebhookExtractor) Source() model.SourceType { return model.SourceWebhook }

func (e *WebhookExtractor) Extract(payload map[string]interface{}) (*model.Draft, error) {
	// 1. 解包装：payload 键存在且是对象则下钻，否则整体即事件体（等价备选形状）
	body := payload
	if inner := getMap(payload, "payload"); inner != nil {
		body = inner
	}

	// 2. 事件类型：外层 action/event 声明优先，缺失按子对象形状推断
	eventType := e.resolveEventType(payload, body)

	d := &model.Draft{EventType: eventType}

	// 3. 学生身份（user 子对象）
	user := getMap(body, "user")
	d.StudentEmail = normalize.Email(getString(user, "email"))
	if d.StudentEmail == "" {
		return nil, model.NewExtractionError(model.SourceWebhook, "user.email")
	}
	d.StudentID = getString(user, "id")
	d.StudentName = strings.TrimSpace(strings.TrimSpace(getString(user, "first_name")) + " " + getString(user, "last_name"))

	// 4. 内容身份（quiz/lesson 子对象），登录事件没有内容，不强制
	if content := getMap(body, "quiz"); content != nil {
		d.ContentID = getString(content, "id")
		d.QuizID = d.ContentID
		d.ContentTitle = normalize.CleanTitle(getString(content, "name"))
		d.Topic = normalize.TitleTopic(getString(content, "name"))
	} else if content := getMap(body, "lesson"); content != nil {
		d.ContentID = getString(content, "id")
		d.LessonID = d.ContentID
		d.ContentTitle = normalize.CleanTitle(getString(content, "name"))
	}
	if eventType != model.EventUserSignin && d.ContentID == "" && d.ContentTitle == "" {
		return nil, model.NewExtractionError(model.SourceWebhook, "quiz/lesson")
	}

	// 5. 课程 / 课时
	if course := getMap(body, "course"); course != nil {
		d.CourseID = getString(course, "id")
		d.CourseName = getString(course, "name")
	}
	if chapter := getMap(body, "chapter"); chapter != nil {
		d.LessonName = getString(chapter, "name")
	}

	// 6. 业务时间：completed_at 为准，缺失退 created_at，再缺失整条拒绝
	ts := getString(body, "completed_at")
	if ts == "" {
		ts = getString(body, "created_at")
	}
	if ts == "" {
		return nil, model.NewExtractionError(model.SourceWebhook, "completed_at")
	}
	occurredAt, err := normalize.ParseEventTime(ts)
	if err != nil {
		e.logger.WithError(err).Warn("webhook: 时间字段无法解析")
		return nil, model.NewExtractionError(model.SourceWebhook, "completed_at")
	}
	d.OccurredAt = occurredAt

	// 7. 分数相关原始字段，交给归一器
	d.Grade = getFloat(body, "grade")
	d.CorrectCount = getInt(body, "correct_count")
	d.IncorrectCount = getInt(body, "incorrect_count")
	d.PointsEarned = getFloat(body, "score")
	d.PointsPossible = getFloat(body, "max_score")

	// 8. 附加信息
	d.AttemptNumber = getInt(body, "attempts")
	d.ResultID = getString(body, "result_id")
	d.RawEventID = d.ResultID
	if d.RawEventID == "" {
		d.RawEventID = getString(payload, "id")
	}
	return d, nil
}

// resolveEventType 外层声明优先，否则按 quiz → lesson → user 的形状推断
func (e *WebhookExtractor) resolveEventType(outer, body map[string]interface{}) model.EventType {
	for _, key := range []string{"action", "event"} {
		if raw := getString(outer, key); raw != "" {
			return model.NormalizeEventType(raw)
		}
	}
	switch {
	case has(body, "quiz"):
		return model.EventQuizAttempted
	case has(body, "lesson"):
		return model.EventLessonCompleted
	default:
		return model.EventUserSignin
	}
}
