package normalize

import (
	"fmt"
	"strings"
	"time"
)

// Email 学生邮箱归一：去空格 + 小写，作为身份键组成部分
func Email(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// 各方言出现过的时间格式，按出现频率排列
var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"January 2, 2006 15:04", // CSV 的 "Date Completed (UTC)" 列
	"January 2, 2006 15:04:05",
}

// ParseEventTime 解析来源时间字符串为 UTC 时间；全部格式失败返回错误
func ParseEventTime(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
