package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// TemplateRepository 工步模板仓库
type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// FindByProduct 查询产品的工步模板，按 sort_order 排序
func (r *TemplateRepository) FindByProduct(ctx context.Context, productID string) ([]entity.ProductStepTemplate, error) {
	var items []entity.ProductStepTemplate
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("sort_order ASC").
		Find(&items).Error
	return items, err
}

// FindByID 根据ID查找工步模板
func (r *TemplateRepository) FindByID(ctx context.Context, id string) (*entity.ProductStepTemplate, error) {
	var t entity.ProductStepTemplate
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// FindByProductAndKey 根据产品和key查找模板
func (r *TemplateRepository) FindByProductAndKey(ctx context.Context, productID, key string) (*entity.ProductStepTemplate, error) {
	var t entity.ProductStepTemplate
	err := r.db.WithContext(ctx).Where("product_id = ? AND key = ?", productID, key).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Create 创建工步模板
func (r *TemplateRepository) Create(ctx context.Context, t *entity.ProductStepTemplate) error {
	return r.db.WithContext(ctx).Create(t).Error
}

// Update 更新工步模板
func (r *TemplateRepository) Update(ctx context.Context, t *entity.ProductStepTemplate) error {
	return r.db.WithContext(ctx).Save(t).Error
}

// Delete 删除工步模板
// 在制运行持有的是独立克隆，删除模板不影响它们。
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&entity.ProductStepTemplate{}).Error
}
