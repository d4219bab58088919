package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// OrderRepository 生产订单仓库
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// FindByID 根据ID查找生产订单
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*entity.ProductionOrder, error) {
	var order entity.ProductionOrder
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// FindAll 查询订单列表
func (r *OrderRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.ProductionOrder, int64, error) {
	var items []entity.ProductionOrder
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ProductionOrder{})
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if productID := filters["product_id"]; productID != "" {
		query = query.Where("product_id = ?", productID)
	}
	if assignedTo := filters["assigned_to"]; assignedTo != "" {
		query = query.Where("assigned_to = ?", assignedTo)
	}
	if search := filters["search"]; search != "" {
		query = query.Where("order_code ILIKE ?", "%"+search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&items).Error
	return items, total, err
}

// Create 创建生产订单
func (r *OrderRepository) Create(ctx context.Context, order *entity.ProductionOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// Update 更新生产订单
func (r *OrderRepository) Update(ctx context.Context, order *entity.ProductionOrder) error {
	return r.db.WithContext(ctx).Save(order).Error
}

// UpdateStatusGuarded 条件更新订单状态，返回是否命中
// WHERE 带当前状态守卫，两个并发迁移只有一个能成功。
func (r *OrderRepository) UpdateStatusGuarded(ctx context.Context, id, fromStatus string, updates map[string]interface{}) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entity.ProductionOrder{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GenerateCode 生成订单编码 MO-{year}-{4位}
func (r *OrderRepository) GenerateCode(ctx context.Context) (string, error) {
	year := time.Now().Format("2006")
	prefix := fmt.Sprintf("MO-%s-", year)

	var maxCode string
	err := r.db.WithContext(ctx).
		Model(&entity.ProductionOrder{}).
		Select("COALESCE(MAX(order_code), '')").
		Where("order_code LIKE ?", prefix+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(maxCode, "MO-"+year+"-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("MO-%s-%04d", year, seq), nil
}
