package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryRepository 库存仓库
type InventoryRepository struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// DB 暴露底层连接供服务层开事务
func (r *InventoryRepository) DB() *gorm.DB {
	return r.db
}

// FindByMaterialAndLocation 查找某物料在某库位的库存行
func (r *InventoryRepository) FindByMaterialAndLocation(ctx context.Context, materialID, locationID string) (*entity.Inventory, error) {
	var inv entity.Inventory
	err := r.db.WithContext(ctx).
		Where("material_id = ? AND location_id = ?", materialID, locationID).
		First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// LockForUpdate 在事务内锁定库存行（SELECT ... FOR UPDATE）
// 并发发料请求在同一 (material, location) 上串行化，保证
// 缺料检查与扣减之间不会被其他事务插入扣减。
func LockForUpdate(tx *gorm.DB, materialID, locationID string) (*entity.Inventory, error) {
	var inv entity.Inventory
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("material_id = ? AND location_id = ?", materialID, locationID).
		First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// FindAll 查询库存列表
func (r *InventoryRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Inventory, int64, error) {
	var items []entity.Inventory
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Inventory{})
	if materialID := filters["material_id"]; materialID != "" {
		query = query.Where("material_id = ?", materialID)
	}
	if locationID := filters["location_id"]; locationID != "" {
		query = query.Where("location_id = ?", locationID)
	}
	if search := filters["search"]; search != "" {
		query = query.Where("material_code ILIKE ? OR material_name ILIKE ?", "%"+search+"%", "%"+search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("material_code ASC").Offset(offset).Limit(pageSize).Find(&items).Error
	return items, total, err
}

// Upsert 创建或更新库存行
func (r *InventoryRepository) Upsert(ctx context.Context, inv *entity.Inventory) error {
	return r.db.WithContext(ctx).Save(inv).Error
}

// CreateTransaction 记录库存交易
func (r *InventoryRepository) CreateTransaction(ctx context.Context, tx *entity.InventoryTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

// FindTransactions 查询某参照单据的库存交易
func (r *InventoryRepository) FindTransactions(ctx context.Context, referenceID string) ([]entity.InventoryTransaction, error) {
	var txs []entity.InventoryTransaction
	err := r.db.WithContext(ctx).
		Where("reference_id = ?", referenceID).
		Order("created_at DESC").
		Find(&txs).Error
	return txs, err
}
