package repository

import (
	"context"

	"ActivitySync/internal/model"

	"gorm.io/gorm"
)

// RawCaptureRepository 原始载荷捕获仓储：只增不改，修复/回放的唯一数据源
type RawCaptureRepository interface {
	Create(ctx context.Context, capture *model.RawCapture) error
	// ListBySource 按来源分页拉取捕获记录（回放任务的工作集）
	ListBySource(ctx context.Context, source model.SourceType, limit, offset int) ([]*model.RawCapture, error)
	Count(ctx context.Context, source model.SourceType) (int64, error)
}

type rawCaptureRepository struct {
	db *gorm.DB
}

func NewRawCaptureRepository(db *gorm.DB) RawCaptureRepository {
	return &rawCaptureRepository{db: db}
}

func (r *rawCaptureRepository) Create(ctx context.Context, capture *model.RawCapture) error {
	return r.db.WithContext(ctx).Create(capture).Error
}

func (r *rawCaptureRepository) ListBySource(ctx context.Context, source model.SourceType, limit, offset int) ([]*model.RawCapture, error) {
	if limit <= 0 {
		limit = 500
	}
	var captures []*model.RawCapture
	db := r.db.WithContext(ctx).Model(&model.RawCapture{})
	if source != "" {
		db = db.Where("source = ?", string(source))
	}
	if err := db.Order("id ASC").Offset(offset).Limit(limit).Find(&captures).Error; err != nil {
		return nil, err
	}
	return captures, nil
}

func (r *rawCaptureRepository) Count(ctx context.Context, source model.SourceType) (int64, error) {
	var total int64
	db := r.db.WithContext(ctx).Model(&model.RawCapture{})
	if source != "" {
		db = db.Where("source = ?", string(source))
	}
	if err := db.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
