package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"ActivitySync/internal/config"
	"ActivitySync/internal/model"
	"ActivitySync/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testConfig() *config.Config {
	return &config.Config{
		Ingest: config.IngestConfig{ErrorSampleLimit: 5, BatchLimit: 50},
	}
}

/* ---------------- 内存版仓储，行为对齐 gorm 实现 ---------------- */

type fakeEventRepo struct {
	events []*model.ActivityEvent
	byKey  map[string]*model.ActivityEvent
	nextID uint64

	failCreate bool // 注入存储故障
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{byKey: map[string]*model.ActivityEvent{}}
}

func (f *fakeEventRepo) CreateIfAbsent(_ context.Context, ev *model.ActivityEvent) (bool, error) {
	if f.failCreate {
		return false, fmt.Errorf("storage down")
	}
	if _, exists := f.byKey[ev.DedupeKey]; exists {
		return false, nil
	}
	f.nextID++
	ev.ID = f.nextID
	f.events = append(f.events, ev)
	f.byKey[ev.DedupeKey] = ev
	return true, nil
}

func (f *fakeEventRepo) GetByDedupeKey(_ context.Context, key string) (*model.ActivityEvent, error) {
	if ev, ok := f.byKey[key]; ok {
		return ev, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeEventRepo) GetByUUID(_ context.Context, eventUUID string) (*model.ActivityEvent, error) {
	for _, ev := range f.events {
		if ev.EventUUID == eventUUID {
			return ev, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeEventRepo) UpdateColumns(_ context.Context, id uint64, fields map[string]interface{}) error {
	for _, ev := range f.events {
		if ev.ID != id {
			continue
		}
		for key, val := range fields {
			switch key {
			case "metadata":
				if m, ok := val.(map[string]interface{}); ok {
					ev.Metadata = datatypes.JSONMap(m)
				} else if m, ok := val.(datatypes.JSONMap); ok {
					ev.Metadata = m
				}
			case "score_percent":
				if v, ok := val.(float64); ok {
					ev.ScorePercent = &v
				}
			case "course_name":
				ev.CourseName = val.(string)
			case "course_id":
				v := val.(string)
				ev.CourseID = &v
			case "student_name":
				v := val.(string)
				ev.StudentName = &v
			case "lesson_name":
				v := val.(string)
				ev.LessonName = &v
			case "raw_payload":
				if b, ok := val.([]byte); ok {
					ev.RawPayload = b
				} else if b, ok := val.(datatypes.JSON); ok {
					ev.RawPayload = b
				}
			case "updated_at":
				// 忽略
			}
		}
		return nil
	}
	return gorm.ErrRecordNotFound
}

func sortByTimeThenID(events []*model.ActivityEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].OccurredAt.Equal(events[j].OccurredAt) {
			return events[i].OccurredAt.Before(events[j].OccurredAt)
		}
		return events[i].ID < events[j].ID
	})
}

func (f *fakeEventRepo) ListEvents(_ context.Context, filter repository.EventFilter, page, pageSize int) ([]*model.ActivityEvent, int64, error) {
	var out []*model.ActivityEvent
	for _, ev := range f.events {
		if filter.EventType != "" && ev.EventType != string(model.NormalizeEventType(filter.EventType)) {
			continue
		}
		if filter.StudentEmail != "" && ev.StudentEmail != filter.StudentEmail {
			continue
		}
		if len(filter.StudentEmails) > 0 {
			found := false
			for _, email := range filter.StudentEmails {
				if ev.StudentEmail == email {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if filter.Source != "" && ev.Source != filter.Source {
			continue
		}
		out = append(out, ev)
	}
	return out, int64(len(out)), nil
}

func (f *fakeEventRepo) ListGroup(_ context.Context, key repository.GroupKey) ([]*model.ActivityEvent, error) {
	var out []*model.ActivityEvent
	for _, ev := range f.events {
		if ev.EventType == string(model.EventQuizAttempted) &&
			ev.StudentEmail == key.StudentEmail &&
			ev.ContentTitle == key.ContentTitle &&
			ev.CourseName == key.CourseName {
			out = append(out, ev)
		}
	}
	sortByTimeThenID(out)
	return out, nil
}

func (f *fakeEventRepo) ListQuizGroups(_ context.Context, _ int) ([]repository.GroupKey, error) {
	seen := map[repository.GroupKey]bool{}
	var keys []repository.GroupKey
	for _, ev := range f.events {
		if ev.EventType != string(model.EventQuizAttempted) {
			continue
		}
		k := repository.GroupKey{StudentEmail: ev.StudentEmail, ContentTitle: ev.ContentTitle, CourseName: ev.CourseName}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeEventRepo) ListQuizEvents(_ context.Context, limit, offset int) ([]*model.ActivityEvent, error) {
	var quiz []*model.ActivityEvent
	for _, ev := range f.events {
		if ev.EventType == string(model.EventQuizAttempted) {
			quiz = append(quiz, ev)
		}
	}
	if offset >= len(quiz) {
		return nil, nil
	}
	quiz = quiz[offset:]
	if limit > 0 && len(quiz) > limit {
		quiz = quiz[:limit]
	}
	return quiz, nil
}

func (f *fakeEventRepo) ListMissingCourse(_ context.Context, limit, offset int) ([]*model.ActivityEvent, error) {
	var out []*model.ActivityEvent
	for _, ev := range f.events {
		if ev.CourseName == "" {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeEventRepo) ListByStudent(_ context.Context, studentEmail string) ([]*model.ActivityEvent, error) {
	var out []*model.ActivityEvent
	for _, ev := range f.events {
		if ev.EventType == string(model.EventQuizAttempted) && ev.StudentEmail == studentEmail {
			out = append(out, ev)
		}
	}
	sortByTimeThenID(out)
	return out, nil
}

func (f *fakeEventRepo) ListArchived(_ context.Context, _ int) ([]*model.ActivityEvent, error) {
	var out []*model.ActivityEvent
	for _, ev := range f.events {
		if ev.IsArchived() {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeEventRepo) DeleteByIDs(_ context.Context, ids []uint64) (int64, error) {
	idSet := map[uint64]bool{}
	for _, id := range ids {
		idSet[id] = true
	}
	var kept []*model.ActivityEvent
	var deleted int64
	for _, ev := range f.events {
		if idSet[ev.ID] {
			delete(f.byKey, ev.DedupeKey)
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	f.events = kept
	return deleted, nil
}

type fakeRawRepo struct {
	captures []*model.RawCapture
	nextID   uint64
}

func (f *fakeRawRepo) Create(_ context.Context, capture *model.RawCapture) error {
	f.nextID++
	capture.ID = f.nextID
	f.captures = append(f.captures, capture)
	return nil
}

func (f *fakeRawRepo) ListBySource(_ context.Context, source model.SourceType, limit, offset int) ([]*model.RawCapture, error) {
	var out []*model.RawCapture
	for _, c := range f.captures {
		if source == "" || c.Source == string(source) {
			out = append(out, c)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRawRepo) Count(_ context.Context, source model.SourceType) (int64, error) {
	list, _ := f.ListBySource(context.Background(), source, len(f.captures)+1, 0)
	return int64(len(list)), nil
}

type fakeAssignRepo struct {
	assignments []*model.StudentAssignment
	nextID      uint64
	failMatch   bool
}

func (f *fakeAssignRepo) CreateIfAbsent(_ context.Context, a *model.StudentAssignment) (bool, error) {
	for _, existing := range f.assignments {
		if existing.TeacherEmail == a.TeacherEmail && existing.StudentEmail == a.StudentEmail &&
			existing.CatalogID == a.CatalogID && existing.AssignedDay == a.AssignedDay {
			return false, nil
		}
	}
	f.nextID++
	a.ID = f.nextID
	f.assignments = append(f.assignments, a)
	return true, nil
}

func (f *fakeAssignRepo) GetByUUID(_ context.Context, assignmentUUID string) (*model.StudentAssignment, error) {
	for _, a := range f.assignments {
		if a.AssignmentUUID == assignmentUUID {
			return a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAssignRepo) ListAssignedByLesson(_ context.Context, studentEmail, lessonID string) ([]*model.StudentAssignment, error) {
	if f.failMatch {
		return nil, fmt.Errorf("storage down")
	}
	var out []*model.StudentAssignment
	for _, a := range f.assignments {
		if a.Status == string(model.AssignmentAssigned) && a.StudentEmail == studentEmail &&
			a.LessonID != nil && *a.LessonID == lessonID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAssignRepo) ListAssignedByQuiz(_ context.Context, studentEmail, quizID string) ([]*model.StudentAssignment, error) {
	if f.failMatch {
		return nil, fmt.Errorf("storage down")
	}
	var out []*model.StudentAssignment
	for _, a := range f.assignments {
		if a.Status == string(model.AssignmentAssigned) && a.StudentEmail == studentEmail &&
			a.QuizID != nil && *a.QuizID == quizID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAssignRepo) Complete(_ context.Context, id uint64, completedAt time.Time, eventUUID string, snapshot datatypes.JSONMap) error {
	for _, a := range f.assignments {
		if a.ID == id && a.Status == string(model.AssignmentAssigned) {
			a.Status = string(model.AssignmentCompleted)
			a.CompletedAt = &completedAt
			a.CompletedBy = &eventUUID
			a.Metadata = snapshot
			return nil
		}
	}
	return nil
}

func (f *fakeAssignRepo) List(_ context.Context, filter repository.AssignmentFilter, _, _ int) ([]*model.StudentAssignment, int64, error) {
	var out []*model.StudentAssignment
	for _, a := range f.assignments {
		if filter.TeacherEmail != "" && a.TeacherEmail != filter.TeacherEmail {
			continue
		}
		if filter.StudentEmail != "" && a.StudentEmail != filter.StudentEmail {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		out = append(out, a)
	}
	return out, int64(len(out)), nil
}

func (f *fakeAssignRepo) Archive(_ context.Context, assignmentUUID string) error {
	for _, a := range f.assignments {
		if a.AssignmentUUID == assignmentUUID {
			a.Status = string(model.AssignmentArchived)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeCourseLookup struct {
	courses map[string][2]string // lessonID → (courseID, courseName)
	err     error
}

func (f *fakeCourseLookup) CourseForLesson(_ context.Context, lessonID string) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	if c, ok := f.courses[lessonID]; ok {
		return c[0], c[1], nil
	}
	return "", "", nil
}
