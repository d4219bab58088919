package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/apperr"
	"github.com/bitfantasy/nimo-mes/internal/mes/auth"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Actor 请求身份，由认证中间件解析
type Actor struct {
	UserID string
	Role   string
}

// OrderService 订单生命周期控制 + 运行/批次编排
type OrderService struct {
	orderRepo    *repository.OrderRepository
	runRepo      *repository.RunRepository
	stepRepo     *repository.StepRepository
	templateRepo *repository.TemplateRepository
	productRepo  *repository.ProductRepository
	auditRepo    *repository.ActivityLogRepository
	db           *gorm.DB
	health       *HealthService // 可空，装配时注入
}

func (s *OrderService) invalidateHealth(ctx context.Context) {
	if s.health != nil {
		s.health.InvalidateSummary(ctx)
	}
}

func NewOrderService(repos *repository.Repositories, db *gorm.DB) *OrderService {
	return &OrderService{
		orderRepo:    repos.Order,
		runRepo:      repos.Run,
		stepRepo:     repos.Step,
		templateRepo: repos.Template,
		productRepo:  repos.Product,
		auditRepo:    repos.ActivityLog,
		db:           db,
	}
}

// CreateOrderRequest 创建订单请求
type CreateOrderRequest struct {
	ProductID  string     `json:"product_id" binding:"required"`
	Quantity   float64    `json:"quantity" binding:"required"`
	AssignedTo *string    `json:"assigned_to"`
	DueDate    *time.Time `json:"due_date"`
	Notes      string     `json:"notes"`
}

// CreateOrder 创建生产订单（初始 DRAFT）
func (s *OrderService) CreateOrder(ctx context.Context, actor Actor, req *CreateOrderRequest) (*entity.ProductionOrder, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceOrder, auth.ActionCreate); err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, apperr.New(apperr.KindValidation, "订单数量必须大于0")
	}

	product, err := s.productRepo.FindByID(ctx, req.ProductID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.KindNotFound, "产品不存在: %s", req.ProductID)
		}
		return nil, fmt.Errorf("查询产品失败: %w", err)
	}

	code, err := s.orderRepo.GenerateCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("生成订单编码失败: %w", err)
	}

	order := &entity.ProductionOrder{
		ID:          uuid.New().String()[:32],
		OrderCode:   code,
		ProductID:   product.ID,
		ProductCode: product.Code,
		ProductName: product.Name,
		Quantity:    req.Quantity,
		Status:      entity.OrderStatusDraft,
		AssignedTo:  req.AssignedTo,
		DueDate:     req.DueDate,
		Notes:       req.Notes,
		CreatedBy:   actor.UserID,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("创建订单失败: %w", err)
	}

	s.auditRepo.LogActivity(ctx, "order", order.ID, order.OrderCode, "create", "", order.Status,
		fmt.Sprintf("创建生产订单 %s x %.4g", product.Name, req.Quantity), actor.UserID)
	return order, nil
}

// GetOrder 获取订单详情
func (s *OrderService) GetOrder(ctx context.Context, actor Actor, id string) (*entity.ProductionOrder, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceOrder, auth.ActionRead); err != nil {
		return nil, err
	}
	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.KindNotFound, "订单不存在: %s", id)
		}
		return nil, err
	}
	return order, nil
}

// ListOrders 获取订单列表
func (s *OrderService) ListOrders(ctx context.Context, actor Actor, page, pageSize int, filters map[string]string) ([]entity.ProductionOrder, int64, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceOrder, auth.ActionRead); err != nil {
		return nil, 0, err
	}
	return s.orderRepo.FindAll(ctx, page, pageSize, filters)
}

// SplitBatchQuantities 批次数量拆分
// 批次数 = ceil(qty / size)，逐批填满 size，尾差落在最后一批；
// size 未设置或非正时整单一个批次。
func SplitBatchQuantities(quantity float64, defaultBatchSize *float64) []float64 {
	if defaultBatchSize == nil || *defaultBatchSize <= 0 {
		return []float64{quantity}
	}
	size := *defaultBatchSize
	count := int(math.Ceil(quantity / size))
	if count < 1 {
		count = 1
	}
	qtys := make([]float64, count)
	remaining := quantity
	for i := 0; i < count-1; i++ {
		qtys[i] = size
		remaining -= size
	}
	qtys[count-1] = remaining
	return qtys
}

// StartOrderResult 开工结果
type StartOrderResult struct {
	OrderID   string   `json:"order_id"`
	RunID     string   `json:"run_id"`
	BatchIDs  []string `json:"batch_ids"`
	RunStatus string   `json:"run_status"`
	Resumed   bool     `json:"resumed"`
}

// StartOrder 订单开工
// DRAFT/PLANNED：编排运行+批次+工步（单事务，要么全建要么全不建）后置 IN_PROGRESS；
// BLOCKED：恢复执行，沿用已有运行，不新建任何东西。
func (s *OrderService) StartOrder(ctx context.Context, actor Actor, orderID string, assignTo *string) (*StartOrderResult, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceOrder, auth.ActionStart); err != nil {
		return nil, err
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.KindNotFound, "订单不存在: %s", orderID)
		}
		return nil, err
	}

	if order.Status == entity.OrderStatusBlocked {
		return s.resumeOrder(ctx, actor, order)
	}

	if !entity.OrderStartable(order.Status) {
		return nil, apperr.New(apperr.KindInvalidStatus, "订单状态 %s 不允许开工", order.Status)
	}

	product, err := s.productRepo.FindByID(ctx, order.ProductID)
	if err != nil {
		return nil, fmt.Errorf("查询产品失败: %w", err)
	}
	templates, err := s.templateRepo.FindByProduct(ctx, order.ProductID)
	if err != nil {
		return nil, fmt.Errorf("读取工步模板失败: %w", err)
	}

	qtys := SplitBatchQuantities(order.Quantity, product.DefaultBatchSize)
	now := time.Now()

	run := &entity.ProductionRun{
		ID:        uuid.New().String()[:32],
		OrderID:   order.ID,
		ProductID: order.ProductID,
		StartedBy: actor.UserID,
	}

	var manufactureDate = now
	var expirationDate *time.Time
	if product.ShelfLifeDays > 0 {
		exp := now.AddDate(0, 0, product.ShelfLifeDays)
		expirationDate = &exp
	}

	batchIDs := make([]string, 0, len(qtys))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("创建运行失败: %w", err)
		}

		for _, qty := range qtys {
			code, err := s.runRepo.GenerateBatchCode(ctx, tx)
			if err != nil {
				return fmt.Errorf("生成批次编码失败: %w", err)
			}
			batch := &entity.Batch{
				ID:              uuid.New().String()[:32],
				RunID:           run.ID,
				ProductID:       order.ProductID,
				BatchCode:       code,
				PlannedQty:      qty,
				Status:          entity.BatchStatusPlanned,
				QCStatus:        entity.QCStatusPending,
				ManufactureDate: &manufactureDate,
				ExpirationDate:  expirationDate,
			}
			if err := tx.Create(batch).Error; err != nil {
				return fmt.Errorf("创建批次失败: %w", err)
			}
			batchIDs = append(batchIDs, batch.ID)
		}

		for i, tpl := range templates {
			tplID := tpl.ID
			step := &entity.RunStep{
				ID:         uuid.New().String()[:32],
				RunID:      run.ID,
				TemplateID: &tplID,
				Source:     entity.StepSourceTemplate,
				Key:        tpl.Key,
				Label:      tpl.Label,
				Required:   tpl.Required,
				SortOrder:  i + 1,
				Status:     entity.StepStatusPending,
			}
			if err := tx.Create(step).Error; err != nil {
				return fmt.Errorf("克隆工步失败: %w", err)
			}
		}

		updates := map[string]interface{}{"status": entity.OrderStatusInProgress}
		if assignTo != nil {
			updates["assigned_to"] = *assignTo
		}
		res := tx.Model(&entity.ProductionOrder{}).
			Where("id = ? AND status = ?", order.ID, order.Status).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// 并发开工只有一个能命中守卫
			return apperr.New(apperr.KindConflict, "订单 %s 正被并发开工", order.OrderCode)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditRepo.LogActivity(ctx, "order", order.ID, order.OrderCode, "start",
		order.Status, entity.OrderStatusInProgress,
		fmt.Sprintf("开工，创建 %d 个批次 %d 个工步", len(batchIDs), len(templates)), actor.UserID)
	s.invalidateHealth(ctx)

	return &StartOrderResult{
		OrderID:   order.ID,
		RunID:     run.ID,
		BatchIDs:  batchIDs,
		RunStatus: entity.RunStatusPlanned,
	}, nil
}

// resumeOrder BLOCKED → IN_PROGRESS，沿用既有运行
func (s *OrderService) resumeOrder(ctx context.Context, actor Actor, order *entity.ProductionOrder) (*StartOrderResult, error) {
	run, err := s.runRepo.FindByOrderID(ctx, order.ID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.KindInvalidOperation, "订单 %s 无可恢复的运行", order.OrderCode)
		}
		return nil, err
	}

	ok, err := s.orderRepo.UpdateStatusGuarded(ctx, order.ID, entity.OrderStatusBlocked, map[string]interface{}{
		"status":       entity.OrderStatusInProgress,
		"block_reason": "",
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.KindConflict, "订单 %s 状态已被并发修改", order.OrderCode)
	}

	batchIDs := make([]string, 0, len(run.Batches))
	for _, b := range run.Batches {
		batchIDs = append(batchIDs, b.ID)
	}

	s.auditRepo.LogActivity(ctx, "order", order.ID, order.OrderCode, "resume",
		entity.OrderStatusBlocked, entity.OrderStatusInProgress, "恢复执行", actor.UserID)
	s.invalidateHealth(ctx)

	return &StartOrderResult{
		OrderID:   order.ID,
		RunID:     run.ID,
		BatchIDs:  batchIDs,
		RunStatus: entity.DeriveRunStatus(entity.OrderStatusInProgress, run.Batches, run.Steps),
		Resumed:   true,
	}, nil
}

// BlockOrder 阻塞订单
// 已创建的批次与工步保持原样冻结，等待恢复或归档。
func (s *OrderService) BlockOrder(ctx context.Context, actor Actor, orderID, reason string) (*entity.ProductionOrder, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceOrder, auth.ActionBlock); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, apperr.New(apperr.KindValidation, "阻塞原因不能为空")
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.KindNotFound, "订单不存在: %s", orderID)
		}
		return nil, err
	}
	if !entity.OrderCanTransition(order.Status, entity.OrderStatusBlocked) {
		return nil, apperr.New(apperr.KindInvalidStatus, "订单状态 %s 不允许阻塞", order.Status)
	}

	ok, err := s.orderRepo.UpdateStatusGuarded(ctx, orderID, order.Status, map[string]interface{}{
		"status":       entity.OrderStatusBlocked,
		"block_reason": reason,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.KindConflict, "订单 %s 状态已被并发修改", order.OrderCode)
	}

	s.auditRepo.LogActivity(ctx, "order", order.ID, order.OrderCode, "block",
		order.Status, entity.OrderStatusBlocked, reason, actor.UserID)

	s.invalidateHealth(ctx)

	order.Status = entity.OrderStatusBlocked
	order.BlockReason = reason
	return order, nil
}

// ArchiveBlockedOrder 归档阻塞订单（终态）
func (s *OrderService) ArchiveBlockedOrder(ctx context.Context, actor Actor, orderID, reason string) (*entity.ProductionOrder, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceOrder, auth.ActionArchive); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, apperr.New(apperr.KindValidation, "归档原因不能为空")
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.KindNotFound, "订单不存在: %s", orderID)
		}
		return nil, err
	}
	if !entity.OrderCanTransition(order.Status, entity.OrderStatusArchived) {
		return nil, apperr.New(apperr.KindInvalidStatus, "只有 BLOCKED 状态的订单可归档，当前: %s", order.Status)
	}

	ok, err := s.orderRepo.UpdateStatusGuarded(ctx, orderID, entity.OrderStatusBlocked, map[string]interface{}{
		"status": entity.OrderStatusArchived,
		"notes":  gorm.Expr("CASE WHEN notes = '' THEN ? ELSE notes || E'\n' || ? END", reason, reason),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.KindConflict, "订单 %s 状态已被并发修改", order.OrderCode)
	}

	s.auditRepo.LogActivity(ctx, "order", order.ID, order.OrderCode, "archive",
		entity.OrderStatusBlocked, entity.OrderStatusArchived, reason, actor.UserID)

	s.invalidateHealth(ctx)

	order.Status = entity.OrderStatusArchived
	return order, nil
}

// IncompleteBatch 未完工批次信息（complete 失败时回传）
type IncompleteBatch struct {
	BatchID   string `json:"batch_id"`
	BatchCode string `json:"batch_code"`
	Status    string `json:"status"`
}

// CompleteOrder 订单完工，要求运行下全部批次已 COMPLETED
func (s *OrderService) CompleteOrder(ctx context.Context, actor Actor, orderID string) (*entity.ProductionOrder, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceOrder, auth.ActionComplete); err != nil {
		return nil, err
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.KindNotFound, "订单不存在: %s", orderID)
		}
		return nil, err
	}
	if !entity.OrderCanTransition(order.Status, entity.OrderStatusCompleted) {
		return nil, apperr.New(apperr.KindInvalidStatus, "订单状态 %s 不允许完工", order.Status)
	}

	run, err := s.runRepo.FindByOrderID(ctx, orderID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.KindInvalidOperation, "订单 %s 没有运行记录", order.OrderCode)
		}
		return nil, err
	}

	var incomplete []IncompleteBatch
	for _, b := range run.Batches {
		if b.Status != entity.BatchStatusCompleted {
			incomplete = append(incomplete, IncompleteBatch{BatchID: b.ID, BatchCode: b.BatchCode, Status: b.Status})
		}
	}
	if len(incomplete) > 0 {
		return nil, apperr.New(apperr.KindInvalidOperation, "尚有 %d 个批次未完工", len(incomplete)).
			WithDetails(incomplete)
	}

	ok, err := s.orderRepo.UpdateStatusGuarded(ctx, orderID, entity.OrderStatusInProgress, map[string]interface{}{
		"status": entity.OrderStatusCompleted,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.KindConflict, "订单 %s 状态已被并发修改", order.OrderCode)
	}

	s.auditRepo.LogActivity(ctx, "order", order.ID, order.OrderCode, "complete",
		entity.OrderStatusInProgress, entity.OrderStatusCompleted, "全部批次完工", actor.UserID)

	s.invalidateHealth(ctx)

	order.Status = entity.OrderStatusCompleted
	return order, nil
}

// GetRun 获取运行详情（含派生状态）
func (s *OrderService) GetRun(ctx context.Context, actor Actor, runID string) (*entity.ProductionRun, string, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceOrder, auth.ActionRead); err != nil {
		return nil, "", err
	}
	run, err := s.runRepo.FindByID(ctx, runID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, "", apperr.New(apperr.KindNotFound, "运行不存在: %s", runID)
		}
		return nil, "", err
	}
	order, err := s.orderRepo.FindByID(ctx, run.OrderID)
	if err != nil {
		return nil, "", err
	}
	return run, entity.DeriveRunStatus(order.Status, run.Batches, run.Steps), nil
}

// ListActivities 查询订单操作日志（倒序）
func (s *OrderService) ListActivities(ctx context.Context, actor Actor, orderID string, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceOrder, auth.ActionRead); err != nil {
		return nil, 0, err
	}
	if _, err := s.orderRepo.FindByID(ctx, orderID); err != nil {
		if err == repository.ErrNotFound {
			return nil, 0, apperr.New(apperr.KindNotFound, "订单不存在: %s", orderID)
		}
		return nil, 0, err
	}
	return s.auditRepo.FindByEntity(ctx, "order", orderID, page, pageSize)
}
