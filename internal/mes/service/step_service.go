package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/apperr"
	"github.com/bitfantasy/nimo-mes/internal/mes/auth"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/metrics"
	"github.com/google/uuid"
)

// 跳过原因最短长度
const minSkipReasonLen = 5

// StepService 运行工步状态机
// 认领是系统里唯一真正的互斥原语：PENDING → CLAIMED 通过数据库条件更新完成，
// 守卫失败的调用方收到 CONFLICT，绝不静默覆盖他人的认领。
type StepService struct {
	stepRepo  *repository.StepRepository
	runRepo   *repository.RunRepository
	orderRepo *repository.OrderRepository
	auditRepo *repository.ActivityLogRepository
	health    *HealthService // 可空，装配时注入
}

func (s *StepService) invalidateHealth(ctx context.Context) {
	if s.health != nil {
		s.health.InvalidateSummary(ctx)
	}
}

func NewStepService(repos *repository.Repositories) *StepService {
	return &StepService{
		stepRepo:  repos.Step,
		runRepo:   repos.Run,
		orderRepo: repos.Order,
		auditRepo: repos.ActivityLog,
	}
}

// TransitionResult 工步迁移结果
// 带回派生的运行状态，调用方无需二次查询即可同时刷新工步与运行。
type TransitionResult struct {
	RunID      string                `json:"run_id"`
	StepID     string                `json:"step_id"`
	Status     string                `json:"status"`
	RunStatus  string                `json:"run_status"`
	Timestamps entity.StepTimestamps `json:"timestamps"`
}

func (s *StepService) result(ctx context.Context, step *entity.RunStep) (*TransitionResult, error) {
	run, err := s.runRepo.FindByID(ctx, step.RunID)
	if err != nil {
		return nil, fmt.Errorf("读取运行失败: %w", err)
	}
	order, err := s.orderRepo.FindByID(ctx, run.OrderID)
	if err != nil {
		return nil, fmt.Errorf("读取订单失败: %w", err)
	}
	return &TransitionResult{
		RunID:      step.RunID,
		StepID:     step.ID,
		Status:     step.Status,
		RunStatus:  entity.DeriveRunStatus(order.Status, run.Batches, run.Steps),
		Timestamps: step.Timestamps(),
	}, nil
}

func (s *StepService) findStep(ctx context.Context, stepID string) (*entity.RunStep, error) {
	step, err := s.stepRepo.FindByID(ctx, stepID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.KindNotFound, "工步不存在: %s", stepID)
		}
		return nil, err
	}
	return step, nil
}

// Claim 认领工步
// 同一用户重复认领是幂等成功；被他人占用返回 CONFLICT。
func (s *StepService) Claim(ctx context.Context, actor Actor, stepID string) (*TransitionResult, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceStep, auth.ActionClaim); err != nil {
		return nil, err
	}

	now := time.Now()
	ok, err := s.stepRepo.ClaimPending(ctx, stepID, actor.UserID, now)
	if err != nil {
		return nil, fmt.Errorf("认领失败: %w", err)
	}
	if ok {
		metrics.StepTransitions.WithLabelValues("claim", "ok").Inc()
		s.auditRepo.LogActivity(ctx, "step", stepID, "", "claim",
			entity.StepStatusPending, entity.StepStatusClaimed, "", actor.UserID)
		s.invalidateHealth(ctx)
		step, err := s.findStep(ctx, stepID)
		if err != nil {
			return nil, err
		}
		return s.result(ctx, step)
	}

	// 守卫未命中：区分不存在 / 自己已持有 / 他人占用 / 已终态
	step, err := s.findStep(ctx, stepID)
	if err != nil {
		return nil, err
	}
	switch step.Status {
	case entity.StepStatusClaimed, entity.StepStatusInProgress:
		if step.AssignedToUserID != nil && *step.AssignedToUserID == actor.UserID {
			// 幂等：重复认领自己的工步
			metrics.StepTransitions.WithLabelValues("claim", "noop").Inc()
			return s.result(ctx, step)
		}
		metrics.StepTransitions.WithLabelValues("claim", "conflict").Inc()
		return nil, apperr.New(apperr.KindConflict, "工步已被其他操作员认领")
	default:
		if entity.StepTerminal(step.Status) {
			return nil, apperr.New(apperr.KindInvalidStatus, "工步已结束（%s），不能认领", step.Status)
		}
		metrics.StepTransitions.WithLabelValues("claim", "conflict").Inc()
		return nil, apperr.New(apperr.KindConflict, "认领失败，请重试")
	}
}

// Start 开工，PENDING 时自动认领
func (s *StepService) Start(ctx context.Context, actor Actor, stepID string) (*TransitionResult, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceStep, auth.ActionStart); err != nil {
		return nil, err
	}

	now := time.Now()
	ok, err := s.stepRepo.StartGuarded(ctx, stepID, actor.UserID, now)
	if err != nil {
		return nil, fmt.Errorf("开工失败: %w", err)
	}
	if ok {
		metrics.StepTransitions.WithLabelValues("start", "ok").Inc()
		s.auditRepo.LogActivity(ctx, "step", stepID, "", "start", "", entity.StepStatusInProgress, "", actor.UserID)
		s.invalidateHealth(ctx)
		step, err := s.findStep(ctx, stepID)
		if err != nil {
			return nil, err
		}
		return s.result(ctx, step)
	}

	step, err := s.findStep(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if entity.StepTerminal(step.Status) {
		return nil, apperr.New(apperr.KindInvalidStatus, "工步已结束（%s），不能开工", step.Status)
	}
	switch step.Status {
	case entity.StepStatusInProgress:
		if step.AssignedToUserID != nil && *step.AssignedToUserID == actor.UserID {
			metrics.StepTransitions.WithLabelValues("start", "noop").Inc()
			return s.result(ctx, step)
		}
		return nil, apperr.New(apperr.KindConflict, "工步正由其他操作员执行")
	default:
		return nil, apperr.New(apperr.KindConflict, "工步已被其他操作员认领")
	}
}

// Complete 完工：IN_PROGRESS → DONE
func (s *StepService) Complete(ctx context.Context, actor Actor, stepID string) (*TransitionResult, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceStep, auth.ActionComplete); err != nil {
		return nil, err
	}

	now := time.Now()
	ok, err := s.stepRepo.CompleteGuarded(ctx, stepID, now)
	if err != nil {
		return nil, fmt.Errorf("完工失败: %w", err)
	}
	if ok {
		metrics.StepTransitions.WithLabelValues("complete", "ok").Inc()
		s.auditRepo.LogActivity(ctx, "step", stepID, "", "complete",
			entity.StepStatusInProgress, entity.StepStatusDone, "", actor.UserID)
		s.invalidateHealth(ctx)
		step, err := s.findStep(ctx, stepID)
		if err != nil {
			return nil, err
		}
		return s.result(ctx, step)
	}

	step, err := s.findStep(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if step.Status == entity.StepStatusDone {
		// 幂等：重复提交同一终态
		metrics.StepTransitions.WithLabelValues("complete", "noop").Inc()
		return s.result(ctx, step)
	}
	return nil, apperr.New(apperr.KindInvalidStatus, "工步状态 %s 不允许完工", step.Status)
}

// Skip 跳过工步
// 任意非终态可跳过；必做工步的跳过被标记供健康度检查，但不阻止迁移。
func (s *StepService) Skip(ctx context.Context, actor Actor, stepID, reason string) (*TransitionResult, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceStep, auth.ActionSkip); err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(reason)) < minSkipReasonLen {
		return nil, apperr.New(apperr.KindValidation, "跳过原因至少 %d 个字符", minSkipReasonLen)
	}

	now := time.Now()
	ok, err := s.stepRepo.SkipGuarded(ctx, stepID, reason, now)
	if err != nil {
		return nil, fmt.Errorf("跳过失败: %w", err)
	}

	step, findErr := s.findStep(ctx, stepID)
	if findErr != nil {
		return nil, findErr
	}

	if !ok {
		if step.Status == entity.StepStatusSkipped {
			metrics.StepTransitions.WithLabelValues("skip", "noop").Inc()
			return s.result(ctx, step)
		}
		return nil, apperr.New(apperr.KindInvalidStatus, "工步状态 %s 不允许跳过", step.Status)
	}

	outcome := "ok"
	content := reason
	if step.Required {
		outcome = "required"
		content = "必做工步被跳过: " + reason
	}
	metrics.StepTransitions.WithLabelValues("skip", outcome).Inc()
	s.auditRepo.LogActivity(ctx, "step", stepID, "", "skip", "", entity.StepStatusSkipped, content, actor.UserID)
	s.invalidateHealth(ctx)

	return s.result(ctx, step)
}

// AdminAssign 管理员改派：设置或清除指派人，状态不变
func (s *StepService) AdminAssign(ctx context.Context, actor Actor, stepID string, assignedTo *string) (*TransitionResult, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceStep, auth.ActionAssign); err != nil {
		return nil, err
	}

	step, err := s.findStep(ctx, stepID)
	if err != nil {
		return nil, err
	}

	if err := s.stepRepo.SetAssignee(ctx, stepID, assignedTo); err != nil {
		return nil, fmt.Errorf("改派失败: %w", err)
	}

	content := "清除指派"
	if assignedTo != nil {
		content = "改派给 " + *assignedTo
	}
	s.auditRepo.LogActivity(ctx, "step", stepID, "", "assign", step.Status, step.Status, content, actor.UserID)

	step.AssignedToUserID = assignedTo
	return s.result(ctx, step)
}

// AddStepRequest 临时工步请求
type AddStepRequest struct {
	Label    string `json:"label" binding:"required"`
	Required bool   `json:"required"`
}

// AddStep 执行中添加临时工步（source=ADHOC，排在末尾）
func (s *StepService) AddStep(ctx context.Context, actor Actor, runID string, req *AddStepRequest) (*entity.RunStep, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceStep, auth.ActionCreate); err != nil {
		return nil, err
	}

	run, err := s.runRepo.FindByID(ctx, runID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.KindNotFound, "运行不存在: %s", runID)
		}
		return nil, err
	}
	order, err := s.orderRepo.FindByID(ctx, run.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status == entity.OrderStatusCompleted || order.Status == entity.OrderStatusArchived {
		return nil, apperr.New(apperr.KindInvalidStatus, "订单已结束（%s），不能添加工步", order.Status)
	}

	maxOrder, err := s.stepRepo.MaxSortOrder(ctx, runID)
	if err != nil {
		return nil, err
	}

	step := &entity.RunStep{
		ID:        uuid.New().String()[:32],
		RunID:     runID,
		Source:    entity.StepSourceAdhoc,
		Label:     req.Label,
		Required:  req.Required,
		SortOrder: maxOrder + 1,
		Status:    entity.StepStatusPending,
	}
	if err := s.stepRepo.Create(ctx, step); err != nil {
		return nil, fmt.Errorf("创建工步失败: %w", err)
	}

	s.auditRepo.LogActivity(ctx, "step", step.ID, "", "add_adhoc", "", entity.StepStatusPending, req.Label, actor.UserID)
	s.invalidateHealth(ctx)
	return step, nil
}

// UpdateStepRequest 工步修改请求
type UpdateStepRequest struct {
	Label    *string `json:"label"`
	Required *bool   `json:"required"`
}

// UpdateStep 修改工步（仅开工前）
// 一旦被认领/开工/跳过，执行记录不可回溯篡改，返回 INVALID_OPERATION。
// 模板克隆被修改时打 overridden 标记。
func (s *StepService) UpdateStep(ctx context.Context, actor Actor, stepID string, req *UpdateStepRequest) (*entity.RunStep, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceStep, auth.ActionEdit); err != nil {
		return nil, err
	}

	step, err := s.findStep(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if step.Status != entity.StepStatusPending {
		return nil, apperr.New(apperr.KindInvalidOperation, "工步已进入执行（%s），不能修改", step.Status)
	}

	if req.Label != nil {
		step.Label = *req.Label
	}
	if req.Required != nil {
		step.Required = *req.Required
	}
	if step.Source == entity.StepSourceTemplate {
		step.Overridden = true
	}

	if err := s.stepRepo.Update(ctx, step); err != nil {
		return nil, fmt.Errorf("更新工步失败: %w", err)
	}

	s.auditRepo.LogActivity(ctx, "step", step.ID, "", "update", step.Status, step.Status, step.Label, actor.UserID)
	return step, nil
}

// DeleteStep 删除工步（仅开工前、仅临时工步）
func (s *StepService) DeleteStep(ctx context.Context, actor Actor, stepID string) error {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceStep, auth.ActionDelete); err != nil {
		return err
	}

	step, err := s.findStep(ctx, stepID)
	if err != nil {
		return err
	}
	if step.Status != entity.StepStatusPending {
		return apperr.New(apperr.KindInvalidOperation, "工步已进入执行（%s），不能删除", step.Status)
	}
	if step.Source != entity.StepSourceAdhoc {
		return apperr.New(apperr.KindInvalidOperation, "模板工步不能删除，只能跳过")
	}

	ok, err := s.stepRepo.DeleteGuarded(ctx, stepID)
	if err != nil {
		return fmt.Errorf("删除工步失败: %w", err)
	}
	if !ok {
		return apperr.New(apperr.KindInvalidOperation, "工步已进入执行，不能删除")
	}

	s.auditRepo.LogActivity(ctx, "step", step.ID, "", "delete", entity.StepStatusPending, "", step.Label, actor.UserID)
	s.invalidateHealth(ctx)
	return nil
}

// ListSteps 查询运行工步
func (s *StepService) ListSteps(ctx context.Context, actor Actor, runID string) ([]entity.RunStep, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceStep, auth.ActionRead); err != nil {
		return nil, err
	}
	return s.stepRepo.FindByRun(ctx, runID)
}
