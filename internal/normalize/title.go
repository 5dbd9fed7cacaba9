package normalize

import (
	"regexp"
	"strings"
)

// 目录标题尾部后缀："- Part N" / "Part N" / "- Item N" / "Item N"（大小写不敏感）
var (
	partSuffix = regexp.MustCompile(`(?i)\s*-?\s*part\s+\d+\s*$`)
	itemSuffix = regexp.MustCompile(`(?i)\s*-?\s*item\s+\d+\s*$`)
)

// CleanTitle 去掉标题尾部的 Part/Item 序号后缀
func CleanTitle(title string) string {
	s := strings.TrimSpace(title)
	s = partSuffix.ReplaceAllString(s, "")
	s = itemSuffix.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// TitleTopic 标题匹配 "... - Item N" 时反推主题（后缀之前的文本）；
// 只在原 topic 为空时由调用方采用
func TitleTopic(title string) string {
	s := strings.TrimSpace(title)
	if !itemSuffix.MatchString(s) {
		return ""
	}
	return strings.TrimSpace(itemSuffix.ReplaceAllString(s, ""))
}
