package extractor

import (
	"encoding/csv"
	"fmt"
	"strings"

	"ActivitySync/internal/interfaces"
	"ActivitySync/internal/model"
	"ActivitySync/internal/normalize"

	"github.com/sirupsen/logrus"
)

// CSV 方言列名（与上游导出文件逐字一致）
const (
	colStudentEmail  = "Student Email"
	colStudentName   = "Student Name"
	colQuizName      = "Survey/Quiz Name"
	colCourseName    = "Course Name"
	colScore         = "% Score"
	colDateCompleted = "Date Completed (UTC)"
	colTotalCorrect  = "Total Correct"
	colTotalQuestion = "Total Number of Questions"
	colLevel         = "Level"
)

// CSVRowExtractor CSV 方言：按精确列名取字段，行恒为 quiz 记录
type CSVRowExtractor struct {
	logger *logrus.Logger
}

func NewCSVRowExtractor(logger *logrus.Logger) interfaces.Extractor {
	return &CSVRowExtractor{logger: logger}
}

func (e *CSVRowExtractor) Source() model.SourceType { return model.SourceCSVImport }

func (e *CSVRowExtractor) Extract(payload map[string]interface{}) (*model.Draft, error) {
	d := &model.Draft{EventType: model.EventQuizAttempted}

	d.StudentEmail = normalize.Email(getString(payload, colStudentEmail))
	if d.StudentEmail == "" {
		return nil, model.NewExtractionError(model.SourceCSVImport, colStudentEmail)
	}
	d.StudentName = getString(payload, colStudentName)

	rawTitle := getString(payload, colQuizName)
	if rawTitle == "" {
		return nil, model.NewExtractionError(model.SourceCSVImport, colQuizName)
	}
	d.ContentTitle = normalize.CleanTitle(rawTitle)
	d.Topic = normalize.TitleTopic(rawTitle)
	d.CourseName = getString(payload, colCourseName)
	d.Level = getString(payload, colLevel)

	ts := getString(payload, colDateCompleted)
	if ts == "" {
		return nil, model.NewExtractionError(model.SourceCSVImport, colDateCompleted)
	}
	occurredAt, err := normalize.ParseEventTime(ts)
	if err != nil {
		e.logger.WithError(err).WithField("value", ts).Warn("csv: 完成时间无法解析")
		return nil, model.NewExtractionError(model.SourceCSVImport, colDateCompleted)
	}
	d.OccurredAt = occurredAt

	// 分数：% Score 文本列 + 对错计数，优先级由归一器决定
	if has(payload, colScore) {
		d.HasScoreText = true
		d.ScoreText = getString(payload, colScore)
	}
	d.CorrectCount = getInt(payload, colTotalCorrect)
	d.TotalQuestions = getInt(payload, colTotalQuestion)

	return d, nil
}

// ParseCSV 解析带表头的 CSV 文本为按列名索引的行。标准引号规则：
// 引号内的逗号是字面量，字段外围引号剥掉。交给 encoding/csv 处理。
func ParseCSV(data string) ([]map[string]interface{}, error) {
	r := csv.NewReader(strings.NewReader(data))
	r.FieldsPerRecord = -1 // 行宽不齐的导出文件也要能读
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("CSV解析失败: %w", err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("CSV为空，缺少表头行")
	}
	header := records[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	rows := make([]map[string]interface{}, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]interface{}, len(header))
		empty := true
		for i, name := range header {
			if i >= len(rec) {
				break
			}
			row[name] = rec[i]
			if strings.TrimSpace(rec[i]) != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}
