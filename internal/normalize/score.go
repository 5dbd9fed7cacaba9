package normalize

import (
	"math"
	"strconv"
	"strings"

	"ActivitySync/internal/model"
)

// ScoreInput 各方言可能携带的分数表示，按固定优先级取其一
type ScoreInput struct {
	Grade          *float64
	CorrectCount   *int
	IncorrectCount *int
	TotalQuestions *int
	PointsEarned   *float64 // score/maxScore 形式（旧版回填、webhook 的 score 字段）
	PointsPossible *float64
	ScoreText      string
	HasScoreText   bool
}

// ScorePercent 把异构分数编码归一为 0-100 百分比。
// 优先级：grade > 对错计数 > "% Score" 文本列；全部缺失返回 nil，绝不猜。
// 区间外/无法解析的文本列返回 nil + AmbiguousScoreError（软错误，记录仍入库并打标）。
func ScorePercent(in ScoreInput) (*float64, error) {
	// 规则1：grade 字段，≤1 视为比例 ×100，否则已是百分比，所有来源统一适用
	if in.Grade != nil && !math.IsNaN(*in.Grade) && !math.IsInf(*in.Grade, 0) {
		g := *in.Grade
		if g <= 1 {
			g = g * 100
		}
		return &g, nil
	}

	// 规则2：对/错计数（或总题数）可得且总数>0
	if in.CorrectCount != nil {
		total := 0
		if in.TotalQuestions != nil {
			total = *in.TotalQuestions
		} else if in.IncorrectCount != nil {
			total = *in.CorrectCount + *in.IncorrectCount
		}
		if total > 0 {
			p := math.Round(float64(*in.CorrectCount) / float64(total) * 100)
			return &p, nil
		}
	}
	// 规则2同形：得分/满分（旧版回填的 score/maxScore）
	if in.PointsEarned != nil && in.PointsPossible != nil && *in.PointsPossible > 0 {
		p := math.Round(*in.PointsEarned / *in.PointsPossible * 100)
		return &p, nil
	}

	// 规则3："% Score" 文本列
	if in.HasScoreText {
		return parseScoreText(in.ScoreText)
	}

	// 规则4：无可用表示
	return nil, nil
}

func parseScoreText(raw string) (*float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	// "NA"/"N/A" 按空值处理，不算错误
	upper := strings.ToUpper(s)
	if upper == "NA" || upper == "N/A" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, &model.AmbiguousScoreError{Raw: raw, Reason: "not numeric"}
	}
	switch {
	case v > 0 && v < 1:
		p := v * 100
		return &p, nil
	case v >= 0 && v <= 100:
		return &v, nil
	default:
		return nil, &model.AmbiguousScoreError{Raw: raw, Reason: "out of range"}
	}
}

// ShouldReplaceScore 修复流程里的覆盖判定：
// (a) 已存值缺失/非有限 → 覆盖；
// (b) 已存值 < 50 而高置信重算值 > 50 → 覆盖（对历史坏数据的单向启发式，非普适规则）。
// 其余一律保留已存值；每次覆盖调用方必须带前后值写审计日志。
func ShouldReplaceScore(stored *float64, recomputed float64) bool {
	if stored == nil || math.IsNaN(*stored) || math.IsInf(*stored, 0) {
		return true
	}
	return *stored < 50 && recomputed > 50
}
