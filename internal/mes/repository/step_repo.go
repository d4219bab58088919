package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// StepRepository 运行工步仓库
// 所有状态迁移都走带状态守卫的条件 UPDATE，依赖数据库原子性而非进程内锁，
// 多实例部署下同样正确。
type StepRepository struct {
	db *gorm.DB
}

func NewStepRepository(db *gorm.DB) *StepRepository {
	return &StepRepository{db: db}
}

// FindByID 根据ID查找工步
func (r *StepRepository) FindByID(ctx context.Context, id string) (*entity.RunStep, error) {
	var step entity.RunStep
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&step).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &step, nil
}

// FindByRun 查询运行下的全部工步
func (r *StepRepository) FindByRun(ctx context.Context, runID string) ([]entity.RunStep, error) {
	var steps []entity.RunStep
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("sort_order ASC").
		Find(&steps).Error
	return steps, err
}

// Create 创建工步
func (r *StepRepository) Create(ctx context.Context, step *entity.RunStep) error {
	return r.db.WithContext(ctx).Create(step).Error
}

// Update 更新工步
func (r *StepRepository) Update(ctx context.Context, step *entity.RunStep) error {
	return r.db.WithContext(ctx).Save(step).Error
}

// ClaimPending 认领：仅当工步仍为 PENDING 时命中（单行compare-and-set）
// 返回 false 表示守卫失败——已被他人抢占或状态已推进，由调用方裁决。
func (r *StepRepository) ClaimPending(ctx context.Context, stepID, userID string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entity.RunStep{}).
		Where("id = ? AND status = ?", stepID, entity.StepStatusPending).
		Updates(map[string]interface{}{
			"status":              entity.StepStatusClaimed,
			"assigned_to_user_id": userID,
			"claimed_at":          now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// StartGuarded 开工：PENDING（自动认领）或本人 CLAIMED 时命中
func (r *StepRepository) StartGuarded(ctx context.Context, stepID, userID string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entity.RunStep{}).
		Where("id = ? AND (status = ? OR (status = ? AND assigned_to_user_id = ?))",
			stepID, entity.StepStatusPending, entity.StepStatusClaimed, userID).
		Updates(map[string]interface{}{
			"status":              entity.StepStatusInProgress,
			"assigned_to_user_id": userID,
			"claimed_at":          gorm.Expr("COALESCE(claimed_at, ?)", now),
			"started_at":          now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CompleteGuarded 完工：仅 IN_PROGRESS 时命中
func (r *StepRepository) CompleteGuarded(ctx context.Context, stepID string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entity.RunStep{}).
		Where("id = ? AND status = ?", stepID, entity.StepStatusInProgress).
		Updates(map[string]interface{}{
			"status":       entity.StepStatusDone,
			"completed_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SkipGuarded 跳过：任意非终态都可命中
func (r *StepRepository) SkipGuarded(ctx context.Context, stepID, reason string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entity.RunStep{}).
		Where("id = ? AND status NOT IN ?", stepID,
			[]string{entity.StepStatusDone, entity.StepStatusSkipped}).
		Updates(map[string]interface{}{
			"status":      entity.StepStatusSkipped,
			"skip_reason": reason,
			"skipped_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetAssignee 设置或清除指派人，不改变状态（管理员重派用）
func (r *StepRepository) SetAssignee(ctx context.Context, stepID string, userID *string) error {
	return r.db.WithContext(ctx).Model(&entity.RunStep{}).
		Where("id = ?", stepID).
		Update("assigned_to_user_id", userID).Error
}

// DeleteGuarded 删除工步：仅 PENDING 时命中
func (r *StepRepository) DeleteGuarded(ctx context.Context, stepID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", stepID, entity.StepStatusPending).
		Delete(&entity.RunStep{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MaxSortOrder 运行下当前最大 sort_order
func (r *StepRepository) MaxSortOrder(ctx context.Context, runID string) (int, error) {
	var max int
	err := r.db.WithContext(ctx).
		Model(&entity.RunStep{}).
		Select("COALESCE(MAX(sort_order), 0)").
		Where("run_id = ?", runID).
		Scan(&max).Error
	return max, err
}
