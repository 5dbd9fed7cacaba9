package model

import (
	"errors"
	"fmt"
)

// ErrDuplicateEvent dedupe_key 冲突：同一逻辑事件重复摄入，跳过计数，不算失败
var ErrDuplicateEvent = errors.New("duplicate event")

// ExtractionError 原始载荷缺少身份字段（学生/内容/时间），事件整条拒绝
type ExtractionError struct {
	Source SourceType
	Field  string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed (%s): missing required field %q", e.Source, e.Field)
}

// NewExtractionError 构造身份字段缺失错误
func NewExtractionError(source SourceType, field string) *ExtractionError {
	return &ExtractionError{Source: source, Field: field}
}

// AmbiguousScoreError 软错误：分数无法落入任何优先级规则的有效区间。
// 记录仍然入库（score_percent 为空）并打标记，绝不默认为0或乱猜。
type AmbiguousScoreError struct {
	Raw    string
	Reason string
}

func (e *AmbiguousScoreError) Error() string {
	return fmt.Sprintf("ambiguous score %q: %s", e.Raw, e.Reason)
}

// DownstreamMatchError 规范事件写入成功之后的作业匹配失败，不回滚写入
type DownstreamMatchError struct {
	EventUUID string
	Err       error
}

func (e *DownstreamMatchError) Error() string {
	return fmt.Sprintf("assignment match failed for event %s: %v", e.EventUUID, e.Err)
}

func (e *DownstreamMatchError) Unwrap() error { return e.Err }

// UpstreamFetchError 修复过程中外部查询（如 lesson→course 反查）失败，
// 该记录保持未修复并计入 still unknown，不丢弃
type UpstreamFetchError struct {
	Lookup string
	Err    error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("upstream lookup %s failed: %v", e.Lookup, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

// BatchSummary 批量操作统一返回：部分成功必须可见，不是裸的成功/失败
type BatchSummary struct {
	Total       int      `json:"total"`
	Imported    int      `json:"imported"`
	Updated     int      `json:"updated"`
	Duplicates  int      `json:"duplicates"`
	Skipped     int      `json:"skipped"`
	Errors      int      `json:"errors"`
	MatchErrors int      `json:"match_errors"` // 下游作业匹配失败条数，非致命，待回放补匹配
	ErrorSample []string `json:"error_sample,omitempty"` // 有界样本，永不返回全量错误列表
}

// AddError 计入一条错误，样本超过上限后只计数
func (s *BatchSummary) AddError(limit int, detail string) {
	s.Errors++
	if limit <= 0 {
		limit = 20
	}
	if len(s.ErrorSample) < limit {
		s.ErrorSample = append(s.ErrorSample, detail)
	}
}
