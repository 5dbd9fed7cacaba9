package repository

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"ActivitySync/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq int64

// testDB 每个用例独立的内存库；cache=shared 让连接池里的连接看到同一份数据
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := fmt.Sprintf("file:testdb_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(name), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&model.ActivityEvent{},
		&model.RawCapture{},
		&model.AssignmentCatalog{},
		&model.StudentAssignment{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedEvent(t *testing.T, repo EventRepository, uuid, dedupeKey string, occurredAt time.Time) *model.ActivityEvent {
	t.Helper()
	ev := &model.ActivityEvent{
		EventUUID:    uuid,
		EventType:    string(model.EventQuizAttempted),
		StudentEmail: "alice@example.com",
		ContentTitle: "Fractions",
		CourseName:   "Math 101",
		OccurredAt:   occurredAt,
		Source:       string(model.SourceWebhook),
		DedupeKey:    dedupeKey,
		Metadata:     map[string]interface{}{},
	}
	created, err := repo.CreateIfAbsent(context.Background(), ev)
	if err != nil {
		t.Fatalf("seed %s: %v", uuid, err)
	}
	if !created {
		t.Fatalf("seed %s: not created", uuid)
	}
	return ev
}

func TestCreateIfAbsentDedupe(t *testing.T) {
	repo := NewEventRepository(testDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	seedEvent(t, repo, "ev-1", "key-1", now)

	// 同键再插：不写入、不报错
	dup := &model.ActivityEvent{
		EventUUID:    "ev-2",
		EventType:    string(model.EventQuizAttempted),
		StudentEmail: "alice@example.com",
		OccurredAt:   now,
		Source:       string(model.SourceCSVImport),
		DedupeKey:    "key-1",
		Metadata:     map[string]interface{}{},
	}
	created, err := repo.CreateIfAbsent(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if created {
		t.Fatal("duplicate key must not create a second row")
	}

	got, err := repo.GetByDedupeKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("GetByDedupeKey: %v", err)
	}
	if got.EventUUID != "ev-1" {
		t.Fatalf("surviving row = %s, want first writer", got.EventUUID)
	}
}

func TestListGroupOrdering(t *testing.T) {
	repo := NewEventRepository(testDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// 乱序插入 + 同时间戳对
	seedEvent(t, repo, "ev-late", "k1", base.Add(2*time.Hour))
	seedEvent(t, repo, "ev-first", "k2", base)
	seedEvent(t, repo, "ev-tie", "k3", base) // 同时间戳，插入更晚

	events, err := repo.ListGroup(ctx, GroupKey{
		StudentEmail: "alice@example.com", ContentTitle: "Fractions", CourseName: "Math 101",
	})
	if err != nil {
		t.Fatalf("ListGroup: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("group size = %d", len(events))
	}
	wantOrder := []string{"ev-first", "ev-tie", "ev-late"}
	for i, want := range wantOrder {
		if events[i].EventUUID != want {
			t.Errorf("position %d = %s, want %s", i, events[i].EventUUID, want)
		}
	}
}

func TestUpdateColumnsPatch(t *testing.T) {
	repo := NewEventRepository(testDB(t))
	ctx := context.Background()
	ev := seedEvent(t, repo, "ev-1", "k1", time.Now().UTC())

	if err := repo.UpdateColumns(ctx, ev.ID, map[string]interface{}{
		"score_percent": 85.0,
		"course_name":   "Patched Course",
	}); err != nil {
		t.Fatalf("UpdateColumns: %v", err)
	}
	got, err := repo.GetByUUID(ctx, "ev-1")
	if err != nil {
		t.Fatalf("GetByUUID: %v", err)
	}
	if got.ScorePercent == nil || *got.ScorePercent != 85 {
		t.Errorf("score = %v", got.ScorePercent)
	}
	if got.CourseName != "Patched Course" {
		t.Errorf("course = %q", got.CourseName)
	}
}

func TestListMissingCourse(t *testing.T) {
	repo := NewEventRepository(testDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	seedEvent(t, repo, "ev-has-course", "k1", now)
	missing := &model.ActivityEvent{
		EventUUID: "ev-missing", EventType: string(model.EventLessonCompleted),
		StudentEmail: "bob@example.com", OccurredAt: now,
		Source: string(model.SourceWebhook), DedupeKey: "k2",
		Metadata: map[string]interface{}{},
	}
	if _, err := repo.CreateIfAbsent(ctx, missing); err != nil {
		t.Fatalf("seed: %v", err)
	}

	events, err := repo.ListMissingCourse(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListMissingCourse: %v", err)
	}
	if len(events) != 1 || events[0].EventUUID != "ev-missing" {
		t.Fatalf("missing-course set = %v", events)
	}

	// 偏移量跨过窗口后返回空集
	events, err = repo.ListMissingCourse(ctx, 0, 1)
	if err != nil {
		t.Fatalf("ListMissingCourse offset: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("offset past set must be empty, got %v", events)
	}
}

func TestListArchivedAndDelete(t *testing.T) {
	repo := NewEventRepository(testDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	keep := seedEvent(t, repo, "ev-keep", "k1", now)
	gone := seedEvent(t, repo, "ev-gone", "k2", now.Add(time.Minute))

	if err := repo.UpdateColumns(ctx, gone.ID, map[string]interface{}{
		"metadata": map[string]interface{}{model.MetaArchived: true},
	}); err != nil {
		t.Fatalf("archive: %v", err)
	}

	archived, err := repo.ListArchived(ctx, 0)
	if err != nil {
		t.Fatalf("ListArchived: %v", err)
	}
	if len(archived) != 1 || archived[0].EventUUID != "ev-gone" {
		t.Fatalf("archived set = %d", len(archived))
	}

	deleted, err := repo.DeleteByIDs(ctx, []uint64{gone.ID})
	if err != nil {
		t.Fatalf("DeleteByIDs: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d", deleted)
	}
	if _, err := repo.GetByUUID(ctx, "ev-gone"); err == nil {
		t.Fatal("deleted event still readable")
	}
	if _, err := repo.GetByUUID(ctx, keep.EventUUID); err != nil {
		t.Fatalf("surviving event unreadable: %v", err)
	}
}

func TestListEventsFilterAndPagination(t *testing.T) {
	repo := NewEventRepository(testDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		seedEvent(t, repo, fmt.Sprintf("ev-%d", i), fmt.Sprintf("k%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	events, total, err := repo.ListEvents(ctx, EventFilter{StudentEmail: "alice@example.com"}, 1, 2)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(events) != 2 {
		t.Errorf("page size = %d, want 2", len(events))
	}
	// 默认时间倒序
	if events[0].EventUUID != "ev-4" {
		t.Errorf("first item = %s, want newest", events[0].EventUUID)
	}

	// 点号别名在过滤前归一
	events, _, err = repo.ListEvents(ctx, EventFilter{EventType: "quiz.attempted"}, 1, 10)
	if err != nil {
		t.Fatalf("ListEvents alias filter: %v", err)
	}
	if len(events) != 5 {
		t.Errorf("alias filter matched %d, want 5", len(events))
	}
}
