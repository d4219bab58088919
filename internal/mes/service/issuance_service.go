package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/apperr"
	"github.com/bitfantasy/nimo-mes/internal/mes/auth"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// IssuanceService 物料发料服务
// 发料是全有或全无的：任何一行缺料则整单失败，不做部分扣减。
// 缺料检查与扣减在同一事务内，库存行用 SELECT ... FOR UPDATE 锁定，
// 两个并发发料不可能同时通过同一库存行的可用量检查。
type IssuanceService struct {
	invRepo     *repository.InventoryRepository
	orderRepo   *repository.OrderRepository
	runRepo     *repository.RunRepository
	productRepo *repository.ProductRepository
	auditRepo   *repository.ActivityLogRepository
	logger      *zap.Logger
}

func NewIssuanceService(repos *repository.Repositories, logger *zap.Logger) *IssuanceService {
	return &IssuanceService{
		invRepo:     repos.Inventory,
		orderRepo:   repos.Order,
		runRepo:     repos.Run,
		productRepo: repos.Product,
		auditRepo:   repos.ActivityLog,
		logger:      logger,
	}
}

// IssueLine 发料行
type IssueLine struct {
	MaterialID string  `json:"material_id" binding:"required"`
	LocationID string  `json:"location_id" binding:"required"`
	Quantity   float64 `json:"quantity" binding:"required"`
}

// IssueRequest 发料请求
// order_id 与 batch_id 二选一：按批次发料时交易挂在批次上，订单校验走批次所属订单。
type IssueRequest struct {
	OrderID string      `json:"order_id"`
	BatchID string      `json:"batch_id"`
	Lines   []IssueLine `json:"lines" binding:"required"`
	Notes   string      `json:"notes"`
}

// IssueResult 发料结果
type IssueResult struct {
	OrderID        string   `json:"order_id"`
	BatchID        string   `json:"batch_id,omitempty"`
	TransactionIDs []string `json:"transaction_ids"`
	IssuedAt       string   `json:"issued_at"`
}

// Issue 向在产订单发料
// 缺料时返回 MATERIAL_SHORTAGE，details 携带全部缺料行（不是只报第一行），
// 让计划员一次看全缺口。
func (s *IssuanceService) Issue(ctx context.Context, actor Actor, req *IssueRequest) (*IssueResult, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceInventory, auth.ActionIssue); err != nil {
		return nil, err
	}
	if len(req.Lines) == 0 {
		return nil, apperr.New(apperr.KindValidation, "发料行不能为空")
	}
	for i, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, apperr.New(apperr.KindValidation, "第 %d 行发料数量必须大于0", i+1)
		}
	}

	order, refType, refID, err := s.resolveReference(ctx, req)
	if err != nil {
		return nil, err
	}
	if order.Status != entity.OrderStatusInProgress {
		return nil, apperr.New(apperr.KindInvalidStatus, "订单状态 %s 不允许发料，仅在产订单可发料", order.Status)
	}

	// 统一按 (material, location) 升序加锁，避免并发发料互相死锁
	lines := make([]IssueLine, len(req.Lines))
	copy(lines, req.Lines)
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].MaterialID != lines[j].MaterialID {
			return lines[i].MaterialID < lines[j].MaterialID
		}
		return lines[i].LocationID < lines[j].LocationID
	})

	now := time.Now()
	txIDs := make([]string, 0, len(lines))

	err = s.invRepo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var shortages []apperr.ShortLine
		locked := make([]*entity.Inventory, len(lines))

		for i, line := range lines {
			inv, err := repository.LockForUpdate(tx, line.MaterialID, line.LocationID)
			if err != nil {
				if err == repository.ErrNotFound {
					shortages = append(shortages, s.shortLine(ctx, line, 0))
					continue
				}
				return fmt.Errorf("锁定库存失败: %w", err)
			}
			if inv.AvailableQty() < line.Quantity {
				shortages = append(shortages, apperr.ShortLine{
					MaterialID:   line.MaterialID,
					MaterialCode: inv.MaterialCode,
					LocationID:   line.LocationID,
					Requested:    line.Quantity,
					Available:    inv.AvailableQty(),
				})
				continue
			}
			locked[i] = inv
		}

		if len(shortages) > 0 {
			return apperr.Shortage(shortages)
		}

		for i, line := range lines {
			inv := locked[i]
			inv.OnHandQty -= line.Quantity
			inv.LastMovedAt = &now
			if err := tx.Save(inv).Error; err != nil {
				return fmt.Errorf("扣减库存失败: %w", err)
			}

			txn := &entity.InventoryTransaction{
				ID:              uuid.New().String()[:32],
				MaterialID:      line.MaterialID,
				MaterialCode:    inv.MaterialCode,
				LocationID:      line.LocationID,
				TransactionType: entity.TxTypeProductionOut,
				Quantity:        -line.Quantity,
				ReferenceType:   refType,
				ReferenceID:     refID,
				Notes:           req.Notes,
				CreatedBy:       actor.UserID,
				CreatedAt:       now,
			}
			if err := tx.Create(txn).Error; err != nil {
				return fmt.Errorf("记录库存交易失败: %w", err)
			}
			txIDs = append(txIDs, txn.ID)
		}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindShortage {
			metrics.MaterialShortages.Inc()
			s.logger.Warn("material issuance rejected on shortage",
				zap.String("reference_type", refType),
				zap.String("reference_id", refID),
				zap.Int("lines", len(lines)))
		}
		return nil, err
	}

	s.auditRepo.LogActivity(ctx, "order", order.ID, order.OrderCode, "issue_materials",
		"", "", fmt.Sprintf("按 %s 发料 %d 行", refType, len(lines)), actor.UserID)
	s.logger.Info("materials issued",
		zap.String("order_id", order.ID),
		zap.String("reference_type", refType),
		zap.String("reference_id", refID),
		zap.Int("lines", len(lines)))

	return &IssueResult{
		OrderID:        order.ID,
		BatchID:        req.BatchID,
		TransactionIDs: txIDs,
		IssuedAt:       now.Format(time.RFC3339),
	}, nil
}

// resolveReference 解析发料目标
// 指定 batch_id 时沿批次→运行→订单回溯，交易引用落在批次上。
func (s *IssuanceService) resolveReference(ctx context.Context, req *IssueRequest) (*entity.ProductionOrder, string, string, error) {
	switch {
	case req.OrderID != "" && req.BatchID != "":
		return nil, "", "", apperr.New(apperr.KindValidation, "order_id 与 batch_id 只能指定一个")
	case req.OrderID == "" && req.BatchID == "":
		return nil, "", "", apperr.New(apperr.KindValidation, "必须指定 order_id 或 batch_id")
	case req.BatchID != "":
		b, err := s.runRepo.FindBatchByID(ctx, req.BatchID)
		if err != nil {
			if err == repository.ErrNotFound {
				return nil, "", "", apperr.New(apperr.KindNotFound, "批次不存在: %s", req.BatchID)
			}
			return nil, "", "", err
		}
		run, err := s.runRepo.FindByID(ctx, b.RunID)
		if err != nil {
			return nil, "", "", fmt.Errorf("读取运行失败: %w", err)
		}
		order, err := s.orderRepo.FindByID(ctx, run.OrderID)
		if err != nil {
			return nil, "", "", fmt.Errorf("读取订单失败: %w", err)
		}
		return order, "BATCH", b.ID, nil
	default:
		order, err := s.orderRepo.FindByID(ctx, req.OrderID)
		if err != nil {
			if err == repository.ErrNotFound {
				return nil, "", "", apperr.New(apperr.KindNotFound, "订单不存在: %s", req.OrderID)
			}
			return nil, "", "", err
		}
		return order, "ORDER", order.ID, nil
	}
}

// shortLine 库存行不存在时仍要带回物料编码，方便前端展示
func (s *IssuanceService) shortLine(ctx context.Context, line IssueLine, available float64) apperr.ShortLine {
	sl := apperr.ShortLine{
		MaterialID: line.MaterialID,
		LocationID: line.LocationID,
		Requested:  line.Quantity,
		Available:  available,
	}
	if mat, err := s.productRepo.FindMaterialByID(ctx, line.MaterialID); err == nil {
		sl.MaterialCode = mat.Code
	}
	return sl
}

// ReceiveRequest 入库请求
type ReceiveRequest struct {
	MaterialID string  `json:"material_id" binding:"required"`
	LocationID string  `json:"location_id" binding:"required"`
	Quantity   float64 `json:"quantity" binding:"required"`
	TxType     string  `json:"tx_type"`
	Reference  string  `json:"reference"`
	Notes      string  `json:"notes"`
}

// Receive 入库（采购到货、生产入库、盘盈调整）
func (s *IssuanceService) Receive(ctx context.Context, actor Actor, req *ReceiveRequest) (*entity.Inventory, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceInventory, auth.ActionIssue); err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, apperr.New(apperr.KindValidation, "入库数量必须大于0")
	}
	txType := req.TxType
	if txType == "" {
		txType = entity.TxTypePurchaseIn
	}
	switch txType {
	case entity.TxTypePurchaseIn, entity.TxTypeProductionIn, entity.TxTypeAdjust:
	default:
		return nil, apperr.New(apperr.KindValidation, "未知的交易类型: %s", txType)
	}

	mat, err := s.productRepo.FindMaterialByID(ctx, req.MaterialID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.KindNotFound, "物料不存在: %s", req.MaterialID)
		}
		return nil, err
	}

	now := time.Now()
	var result *entity.Inventory

	err = s.invRepo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := repository.LockForUpdate(tx, req.MaterialID, req.LocationID)
		if err != nil {
			if err != repository.ErrNotFound {
				return fmt.Errorf("锁定库存失败: %w", err)
			}
			inv = &entity.Inventory{
				ID:           uuid.New().String()[:32],
				MaterialID:   mat.ID,
				MaterialCode: mat.Code,
				MaterialName: mat.Name,
				LocationID:   req.LocationID,
				Unit:         mat.Unit,
			}
		}
		inv.OnHandQty += req.Quantity
		inv.LastMovedAt = &now
		if err := tx.Save(inv).Error; err != nil {
			return fmt.Errorf("更新库存失败: %w", err)
		}

		txn := &entity.InventoryTransaction{
			ID:              uuid.New().String()[:32],
			MaterialID:      mat.ID,
			MaterialCode:    mat.Code,
			LocationID:      req.LocationID,
			TransactionType: txType,
			Quantity:        req.Quantity,
			ReferenceType:   "ORDER",
			ReferenceID:     req.Reference,
			Notes:           req.Notes,
			CreatedBy:       actor.UserID,
			CreatedAt:       now,
		}
		if err := tx.Create(txn).Error; err != nil {
			return fmt.Errorf("记录库存交易失败: %w", err)
		}
		result = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListInventory 查询库存
func (s *IssuanceService) ListInventory(ctx context.Context, actor Actor, page, pageSize int, filters map[string]string) ([]entity.Inventory, int64, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceInventory, auth.ActionRead); err != nil {
		return nil, 0, err
	}
	return s.invRepo.FindAll(ctx, page, pageSize, filters)
}

// ListTransactions 查询某订单或批次的库存交易
func (s *IssuanceService) ListTransactions(ctx context.Context, actor Actor, referenceID string) ([]entity.InventoryTransaction, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceInventory, auth.ActionRead); err != nil {
		return nil, err
	}
	return s.invRepo.FindTransactions(ctx, referenceID)
}
