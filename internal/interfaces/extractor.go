package interfaces

import (
	"ActivitySync/internal/model"
)

// Extractor 方言提取器：每个摄入来源一个实现，把未知但有界的原始载荷
// 转成部分规范记录。可选字段缺失绝不报错，身份字段缺失返回 *model.ExtractionError。
type Extractor interface {
	Source() model.SourceType
	Extract(payload map[string]interface{}) (*model.Draft, error)
}
