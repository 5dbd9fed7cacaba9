package extractor

import (
	"ActivitySync/internal/interfaces"
	"ActivitySync/internal/model"
	"ActivitySync/internal/normalize"

	"github.com/sirupsen/logrus"
)

// LegacyExtractor REST/旧版回填方言：字段已预整形，几乎不需要变换
type LegacyExtractor struct {
	logger *logrus.Logger
}

func NewLegacyExtractor(logger *logrus.Logger) interfaces.Extractor {
	return &LegacyExtractor{logger: logger}
}

func (e *LegacyExtractor) Source() model.SourceType { return model.SourceRESTBackfill }

func (e *LegacyExtractor) Extract(payload map[string]interface{}) (*model.Draft, error) {
	eventType := model.NormalizeEventType(getString(payload, "eventType"))
	d := &model.Draft{EventType: eventType}

	d.StudentEmail = normalize.Email(getString(payload, "studentEmail"))
	if d.StudentEmail == "" {
		return nil, model.NewExtractionError(model.SourceRESTBackfill, "studentEmail")
	}

	rawTitle := getString(payload, "contentTitle")
	if eventType != model.EventUserSignin && rawTitle == "" {
		return nil, model.NewExtractionError(model.SourceRESTBackfill, "contentTitle")
	}
	d.ContentTitle = normalize.CleanTitle(rawTitle)
	d.Topic = normalize.TitleTopic(rawTitle)
	d.CourseName = getString(payload, "courseName")

	ts := getString(payload, "occurredAt")
	if ts == "" {
		return nil, model.NewExtractionError(model.SourceRESTBackfill, "occurredAt")
	}
	occurredAt, err := normalize.ParseEventTime(ts)
	if err != nil {
		e.logger.WithError(err).WithField("value", ts).Warn("legacy: occurredAt无法解析")
		return nil, model.NewExtractionError(model.SourceRESTBackfill, "occurredAt")
	}
	d.OccurredAt = occurredAt

	// grade 形字段出现在哪个来源都按规则1处理
	d.Grade = getFloat(payload, "grade")
	d.PointsEarned = getFloat(payload, "score")
	d.PointsPossible = getFloat(payload, "maxScore")

	return d, nil
}
