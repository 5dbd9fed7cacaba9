package repository

import (
	"context"
	"time"

	"ActivitySync/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventFilter 事件列表筛选条件
type EventFilter struct {
	EventType     string   // 事件类型，点号别名在查询前归一
	StudentEmail  string   // 单个学生
	StudentEmails []string // 名单过滤（老师视角）
	Source        string   // 来源渠道
	DedupeKey     string   // 唯一键精确查
	From          *time.Time
	To            *time.Time
}

// GroupKey 尝试次数重算的分组键：(学生, 内容标题, 课程名)
type GroupKey struct {
	StudentEmail string
	ContentTitle string
	CourseName   string
}

// EventRepository 规范事件仓储接口
type EventRepository interface {
	// CreateIfAbsent 条件插入：dedupe_key 冲突时不写入，返回是否真正创建。
	// 依赖唯一索引上的 ON CONFLICT DO NOTHING，即原子的 insert-if-key-absent。
	CreateIfAbsent(ctx context.Context, ev *model.ActivityEvent) (bool, error)
	GetByDedupeKey(ctx context.Context, key string) (*model.ActivityEvent, error)
	GetByUUID(ctx context.Context, eventUUID string) (*model.ActivityEvent, error)
	// UpdateColumns 修复流程按主键打补丁，身份不变
	UpdateColumns(ctx context.Context, id uint64, fields map[string]interface{}) error
	ListEvents(ctx context.Context, filter EventFilter, page, pageSize int) ([]*model.ActivityEvent, int64, error)
	// ListGroup 取一个尝试次数分组的全部成员，occurred_at 升序、同时间戳按插入序稳定
	ListGroup(ctx context.Context, key GroupKey) ([]*model.ActivityEvent, error)
	// ListQuizGroups 全量重算扫描用的分组键列表
	ListQuizGroups(ctx context.Context, limit int) ([]GroupKey, error)
	// ListQuizEvents 分数修复的工作集（带 raw payload 的 quiz 事件）
	ListQuizEvents(ctx context.Context, limit, offset int) ([]*model.ActivityEvent, error)
	// ListMissingCourse 课程名为空、待 lesson 反查修复的事件，id 升序稳定分页
	ListMissingCourse(ctx context.Context, limit, offset int) ([]*model.ActivityEvent, error)
	// ListByStudent 单个学生的 quiz 事件（分数历史），occurred_at 升序
	ListByStudent(ctx context.Context, studentEmail string) ([]*model.ActivityEvent, error)
	// ListArchived metadata.archived=true 的软删事件（预览删除用）
	ListArchived(ctx context.Context, limit int) ([]*model.ActivityEvent, error)
	DeleteByIDs(ctx context.Context, ids []uint64) (int64, error)
}

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) CreateIfAbsent(ctx context.Context, ev *model.ActivityEvent) (bool, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedupe_key"}},
		DoNothing: true,
	}).Create(ev)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *eventRepository) GetByDedupeKey(ctx context.Context, key string) (*model.ActivityEvent, error) {
	var ev model.ActivityEvent
	if err := r.db.WithContext(ctx).Where("dedupe_key = ?", key).First(&ev).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *eventRepository) GetByUUID(ctx context.Context, eventUUID string) (*model.ActivityEvent, error) {
	var ev model.ActivityEvent
	if err := r.db.WithContext(ctx).Where("event_uuid = ?", eventUUID).First(&ev).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *eventRepository) UpdateColumns(ctx context.Context, id uint64, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now()
	return r.db.WithContext(ctx).Model(&model.ActivityEvent{}).
		Where("id = ?", id).Updates(fields).Error
}

func (r *eventRepository) ListEvents(ctx context.Context, filter EventFilter, page, pageSize int) ([]*model.ActivityEvent, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	db := r.db.WithContext(ctx).Model(&model.ActivityEvent{})
	if filter.EventType != "" {
		db = db.Where("event_type = ?", string(model.NormalizeEventType(filter.EventType)))
	}
	if filter.StudentEmail != "" {
		db = db.Where("student_email = ?", filter.StudentEmail)
	}
	if len(filter.StudentEmails) > 0 {
		db = db.Where("student_email IN ?", filter.StudentEmails)
	}
	if filter.Source != "" {
		db = db.Where("source = ?", filter.Source)
	}
	if filter.DedupeKey != "" {
		db = db.Where("dedupe_key = ?", filter.DedupeKey)
	}
	if filter.From != nil {
		db = db.Where("occurred_at >= ?", *filter.From)
	}
	if filter.To != nil {
		db = db.Where("occurred_at <= ?", *filter.To)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var events []*model.ActivityEvent
	if err := db.Order("occurred_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *eventRepository) ListGroup(ctx context.Context, key GroupKey) ([]*model.ActivityEvent, error) {
	var events []*model.ActivityEvent
	if err := r.db.WithContext(ctx).
		Where("event_type = ? AND student_email = ? AND content_title = ? AND course_name = ?",
			string(model.EventQuizAttempted), key.StudentEmail, key.ContentTitle, key.CourseName).
		Order("occurred_at ASC, id ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) ListQuizGroups(ctx context.Context, limit int) ([]GroupKey, error) {
	if limit <= 0 {
		limit = 5000
	}
	var keys []GroupKey
	if err := r.db.WithContext(ctx).Model(&model.ActivityEvent{}).
		Distinct("student_email", "content_title", "course_name").
		Where("event_type = ?", string(model.EventQuizAttempted)).
		Limit(limit).
		Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *eventRepository) ListQuizEvents(ctx context.Context, limit, offset int) ([]*model.ActivityEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	var events []*model.ActivityEvent
	if err := r.db.WithContext(ctx).
		Where("event_type = ?", string(model.EventQuizAttempted)).
		Order("id ASC").
		Offset(offset).Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) ListMissingCourse(ctx context.Context, limit, offset int) ([]*model.ActivityEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	var events []*model.ActivityEvent
	if err := r.db.WithContext(ctx).
		Where("course_name = '' OR course_name IS NULL").
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) ListByStudent(ctx context.Context, studentEmail string) ([]*model.ActivityEvent, error) {
	var events []*model.ActivityEvent
	if err := r.db.WithContext(ctx).
		Where("event_type = ? AND student_email = ?", string(model.EventQuizAttempted), studentEmail).
		Order("occurred_at ASC, id ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) ListArchived(ctx context.Context, limit int) ([]*model.ActivityEvent, error) {
	if limit <= 0 {
		limit = 1000
	}
	var events []*model.ActivityEvent
	if err := r.db.WithContext(ctx).
		Where(datatypes.JSONQuery("metadata").Equals(true, model.MetaArchived)).
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) DeleteByIDs(ctx context.Context, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.ActivityEvent{})
	return tx.RowsAffected, tx.Error
}
