package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// RunRepository 生产运行/批次仓库
type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// FindByID 根据ID查找运行（含批次与工步）
func (r *RunRepository) FindByID(ctx context.Context, id string) (*entity.ProductionRun, error) {
	var run entity.ProductionRun
	err := r.db.WithContext(ctx).
		Preload("Batches", func(db *gorm.DB) *gorm.DB {
			return db.Order("batch_code ASC")
		}).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Where("id = ?", id).
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// FindByOrderID 根据订单ID查找运行
func (r *RunRepository) FindByOrderID(ctx context.Context, orderID string) (*entity.ProductionRun, error) {
	var run entity.ProductionRun
	err := r.db.WithContext(ctx).
		Preload("Batches").
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Where("order_id = ?", orderID).
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// FindActive 查询所有活跃运行（所属订单未归档未完成），含批次与工步
func (r *RunRepository) FindActive(ctx context.Context) ([]entity.ProductionRun, error) {
	var runs []entity.ProductionRun
	err := r.db.WithContext(ctx).
		Preload("Batches").
		Preload("Steps").
		Joins("JOIN mes_production_orders o ON o.id = mes_production_runs.order_id").
		Where("o.status IN ?", []string{entity.OrderStatusPlanned, entity.OrderStatusInProgress, entity.OrderStatusBlocked}).
		Find(&runs).Error
	return runs, err
}

// FindBatchByID 根据ID查找批次
func (r *RunRepository) FindBatchByID(ctx context.Context, id string) (*entity.Batch, error) {
	var b entity.Batch
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// UpdateBatch 更新批次
func (r *RunRepository) UpdateBatch(ctx context.Context, b *entity.Batch) error {
	return r.db.WithContext(ctx).Save(b).Error
}

// CompleteBatchGuarded 批次完工条件更新
// actual_qty 与生产/到期日期随 COMPLETED 一次性写入；已完工的批次不会被二次命中。
func (r *RunRepository) CompleteBatchGuarded(ctx context.Context, id string, actualQty float64, userID string, now time.Time, expiresAt *time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entity.Batch{}).
		Where("id = ? AND status <> ?", id, entity.BatchStatusCompleted).
		Updates(map[string]interface{}{
			"status":           entity.BatchStatusCompleted,
			"actual_qty":       actualQty,
			"completed_by":     userID,
			"completed_at":     now,
			"manufacture_date": now,
			"expiration_date":  expiresAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GenerateBatchCode 生成批次编码 B-{yyyymmdd}-{4位}
// 以存储中的最大序号为基准，多实例下保持全局唯一。
func (r *RunRepository) GenerateBatchCode(ctx context.Context, tx *gorm.DB) (string, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	day := time.Now().Format("20060102")
	prefix := fmt.Sprintf("B-%s-", day)

	// 同一前缀串行取号，避免并发 MAX+1 撞唯一索引
	if err := db.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(hashtext(?))", prefix).Error; err != nil {
		return "", err
	}

	var maxCode string
	err := db.WithContext(ctx).
		Model(&entity.Batch{}).
		Select("COALESCE(MAX(batch_code), '')").
		Where("batch_code LIKE ?", prefix+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(maxCode, "B-"+day+"-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("B-%s-%04d", day, seq), nil
}
