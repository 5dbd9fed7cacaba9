package extractor

import (
	"encoding/json"
	"errors"
	"io"
	"testing"

	"ActivitySync/internal/model"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func mustPayload(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("bad test payload: %v", err)
	}
	return m
}

func TestWebhookExtractQuiz(t *testing.T) {
	payload := mustPayload(t, `{
		"action": "quiz.attempted",
		"id": "evt-1",
		"payload": {
			"user": {"id": "u-9", "email": " Alice@Example.com ", "first_name": "Alice", "last_name": "Li"},
			"quiz": {"id": "q-77", "name": "Fractions - Part 2"},
			"course": {"id": "c-12", "name": "Math 101"},
			"chapter": {"name": "Unit 3"},
			"completed_at": "2026-03-01T10:00:00Z",
			"grade": 0.85,
			"correct_count": 8,
			"incorrect_count": 2,
			"result_id": "r-55",
			"attempts": 2
		}
	}`)
	d, err := NewWebhookExtractor(testLogger()).Extract(payload)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if d.EventType != model.EventQuizAttempted {
		t.Errorf("event type = %s", d.EventType)
	}
	if d.StudentEmail != "alice@example.com" {
		t.Errorf("email = %q, want normalized", d.StudentEmail)
	}
	if d.ContentTitle != "Fractions" {
		t.Errorf("title = %q, want suffix stripped", d.ContentTitle)
	}
	if d.ContentID != "q-77" || d.QuizID != "q-77" {
		t.Errorf("content id = %q quiz id = %q", d.ContentID, d.QuizID)
	}
	if d.CourseName != "Math 101" || d.CourseID != "c-12" {
		t.Errorf("course = %q/%q", d.CourseID, d.CourseName)
	}
	if d.LessonName != "Unit 3" {
		t.Errorf("lesson name = %q", d.LessonName)
	}
	if d.Grade == nil || *d.Grade != 0.85 {
		t.Errorf("grade = %v", d.Grade)
	}
	if d.CorrectCount == nil || *d.CorrectCount != 8 {
		t.Errorf("correct count = %v", d.CorrectCount)
	}
	if d.ResultID != "r-55" || d.RawEventID != "r-55" {
		t.Errorf("result id = %q raw event id = %q", d.ResultID, d.RawEventID)
	}
	if d.AttemptNumber == nil || *d.AttemptNumber != 2 {
		t.Errorf("attempt number = %v", d.AttemptNumber)
	}
	if d.OccurredAt.IsZero() {
		t.Error("occurred at not set")
	}
}

func TestWebhookExtractUnwrapped(t *testing.T) {
	// 无 payload 包装的等价形状
	payload := mustPayload(t, `{
		"user": {"email": "bob@example.com"},
		"lesson": {"id": "l-3", "name": "Decimals"},
		"completed_at": "2026-03-01T10:00:00Z"
	}`)
	d, err := NewWebhookExtractor(testLogger()).Extract(payload)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if d.EventType != model.EventLessonCompleted {
		t.Errorf("shape inference: event type = %s, want lesson_completed", d.EventType)
	}
	if d.LessonID != "l-3" {
		t.Errorf("lesson id = %q", d.LessonID)
	}
}

func TestWebhookExtractSigninWithoutContent(t *testing.T) {
	payload := mustPayload(t, `{
		"event": "user.signin",
		"payload": {
			"user": {"email": "bob@example.com"},
			"created_at": "2026-03-01T08:00:00Z"
		}
	}`)
	d, err := NewWebhookExtractor(testLogger()).Extract(payload)
	if err != nil {
		t.Fatalf("signin must not require content: %v", err)
	}
	if d.EventType != model.EventUserSignin {
		t.Errorf("event type = %s", d.EventType)
	}
}

func TestWebhookExtractRejections(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		missing string
	}{
		{
			"no email",
			`{"payload": {"user": {}, "quiz": {"id": "q-1", "name": "X"}, "completed_at": "2026-03-01T10:00:00Z"}}`,
			"user.email",
		},
		{
			"no content for quiz",
			`{"action": "quiz_attempted", "payload": {"user": {"email": "a@b.c"}, "completed_at": "2026-03-01T10:00:00Z"}}`,
			"quiz/lesson",
		},
		{
			"no timestamp",
			`{"payload": {"user": {"email": "a@b.c"}, "quiz": {"id": "q-1", "name": "X"}}}`,
			"completed_at",
		},
		{
			"bad timestamp",
			`{"payload": {"user": {"email": "a@b.c"}, "quiz": {"id": "q-1", "name": "X"}, "completed_at": "whenever"}}`,
			"completed_at",
		},
	}
	ext := NewWebhookExtractor(testLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ext.Extract(mustPayload(t, tt.raw))
			var extErr *model.ExtractionError
			if !errors.As(err, &extErr) {
				t.Fatalf("want ExtractionError, got %v", err)
			}
			if extErr.Field != tt.missing {
				t.Fatalf("missing field = %q, want %q", extErr.Field, tt.missing)
			}
		})
	}
}

func TestWebhookTimestampFallback(t *testing.T) {
	payload := mustPayload(t, `{
		"payload": {
			"user": {"email": "a@b.c"},
			"quiz": {"id": "q-1", "name": "X"},
			"created_at": "2026-03-01T09:30:00Z"
		}
	}`)
	d, err := NewWebhookExtractor(testLogger()).Extract(payload)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if d.OccurredAt.Hour() != 9 || d.OccurredAt.Minute() != 30 {
		t.Errorf("created_at fallback not applied: %v", d.OccurredAt)
	}
}

func TestWebhookNumericIDs(t *testing.T) {
	// JSON 数字型ID要转成字符串
	payload := mustPayload(t, `{
		"payload": {
			"user": {"id": 42, "email": "a@b.c"},
			"quiz": {"id": 77, "name": "X"},
			"completed_at": "2026-03-01T10:00:00Z"
		}
	}`)
	d, err := NewWebhookExtractor(testLogger()).Extract(payload)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if d.StudentID != "42" || d.ContentID != "77" {
		t.Errorf("numeric ids: student %q content %q", d.StudentID, d.ContentID)
	}
}
