package repository

import (
	"context"

	"ActivitySync/internal/model"

	"gorm.io/gorm"
)

// CatalogRepository 可布置内容目录仓储，管理员写、匹配引擎只读
type CatalogRepository interface {
	Create(ctx context.Context, c *model.AssignmentCatalog) error
	GetByID(ctx context.Context, id uint64) (*model.AssignmentCatalog, error)
	List(ctx context.Context, level, contentType string, page, pageSize int) ([]*model.AssignmentCatalog, int64, error)
}

type catalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) Create(ctx context.Context, c *model.AssignmentCatalog) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *catalogRepository) GetByID(ctx context.Context, id uint64) (*model.AssignmentCatalog, error) {
	var c model.AssignmentCatalog
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *catalogRepository) List(ctx context.Context, level, contentType string, page, pageSize int) ([]*model.AssignmentCatalog, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	db := r.db.WithContext(ctx).Model(&model.AssignmentCatalog{})
	if level != "" {
		db = db.Where("level = ?", level)
	}
	if contentType != "" {
		db = db.Where("type = ?", contentType)
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []*model.AssignmentCatalog
	if err := db.Order("level ASC, title ASC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}
