package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"ActivitySync/internal/model"
	"ActivitySync/internal/normalize"
)

// BuildKey 计算逻辑事件唯一键，同一事件跨来源/跨时间重复摄入收敛到一条。
// 来源带稳定结果ID时优先 "{eventType}:{resultId}"；否则对身份字段做确定性哈希。
func BuildKey(d *model.Draft) string {
	if rid := strings.TrimSpace(d.ResultID); rid != "" {
		return fmt.Sprintf("%s:%s", d.EventType, rid)
	}
	return fallbackKey(d.EventType, d.StudentEmail, contentIdent(d), courseIdent(d), d.OccurredAt)
}

// contentIdent 内容标识：原生ID优先，缺失退回归一化标题
func contentIdent(d *model.Draft) string {
	if d.ContentID != "" {
		return d.ContentID
	}
	return strings.ToLower(strings.TrimSpace(d.ContentTitle))
}

// courseIdent 课程标识：ID优先，缺失退回归一化名称
func courseIdent(d *model.Draft) string {
	if d.CourseID != "" {
		return d.CourseID
	}
	return strings.ToLower(strings.TrimSpace(d.CourseName))
}

// fallbackKey 身份字段拼接后 sha256 截断。时间格式固定为 RFC3339 秒级 UTC，
// 同一秒内两个真实不同的事件会被判为重复——已知的接受风险，不在此处掩盖。
func fallbackKey(eventType model.EventType, email, content, course string, occurredAt time.Time) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s",
		eventType,
		normalize.Email(email),
		content,
		course,
		occurredAt.UTC().Format(time.RFC3339),
	)
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])[:32]
}
